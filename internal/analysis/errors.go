package analysis

import "fmt"

// Kind separates upstream transport failures from unusable model output,
// so callers can decide whether a retry makes sense.
type Kind int

const (
	// KindUpstream means the LLM call itself failed (network, auth,
	// provider error). The story text never reached a model.
	KindUpstream Kind = iota
	// KindInvalidResponse means the model answered but the answer could
	// not be turned into JSON (empty, truncated beyond repair, or plain
	// prose).
	KindInvalidResponse
)

func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream_failure"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Error is the typed failure the analysis pipeline reports.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("analysis %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func upstreamErr(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

func invalidErr(msg string) *Error {
	return &Error{Kind: KindInvalidResponse, Message: msg}
}
