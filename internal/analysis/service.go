package analysis

import (
	"context"
	"time"

	"istory-server/internal/model"
	"istory-server/internal/sanitize"
)

// MetadataStore is the slice of the repository layer the invoker needs.
type MetadataStore interface {
	Upsert(ctx context.Context, storyID string, fields model.SanitizedMetadata) (*model.StoryMetadata, error)
	// MarkProcessing flips the row to analysis_status=processing so
	// readers can tell an analysis is in flight.
	MarkProcessing(ctx context.Context, storyID string) error
}

// Recorder receives one event per analysis attempt for the in-process
// observability log.
type Recorder interface {
	RecordAnalysis(storyID, status string, duration time.Duration, detail string)
}

// Service runs the fast-path analysis: prompt the model, extract JSON,
// sanitize, persist. Concurrent calls for the same story are allowed;
// the store's atomic upsert makes the row converge last-write-wins.
type Service struct {
	client   Client
	store    MetadataStore
	recorder Recorder
	budget   int
}

// NewService wires the invoker. recorder may be nil.
func NewService(client Client, store MetadataStore, recorder Recorder, promptTokenBudget int) *Service {
	return &Service{client: client, store: store, recorder: recorder, budget: promptTokenBudget}
}

// Analyze extracts metadata for one story and persists it. The row is
// flipped to analysis_status=processing before the model call, so during
// a long completion readers see the in-flight state rather than a stale
// one. The returned error, when non-nil, is always a *Error whose Kind
// tells the caller whether the model was ever reached. No metadata
// fields are written on failure; flipping the row to failed is the
// caller's decision.
func (s *Service) Analyze(ctx context.Context, storyID, storyText string) (*model.StoryMetadata, error) {
	start := time.Now()

	if err := s.store.MarkProcessing(ctx, storyID); err != nil {
		// The marker is advisory. The analysis itself still runs, and
		// a broken store will fail the Upsert with a real error.
		log.Warn().Str("storyID", storyID).Err(err).Msg("failed to mark analysis processing")
	}

	userPrompt := buildUserPrompt(truncateToTokenBudget(storyText, s.budget))

	raw, err := s.client.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		s.record(storyID, "failed", start, KindUpstream.String())
		return nil, upstreamErr("model call failed", err)
	}

	candidate, err := ExtractJSON(raw)
	if err != nil {
		s.record(storyID, "failed", start, KindInvalidResponse.String())
		return nil, err
	}

	fields := sanitize.Metadata(candidate)

	stored, storeErr := s.store.Upsert(ctx, storyID, fields)
	if storeErr != nil {
		s.record(storyID, "store_failed", start, storeErr.Error())
		return nil, storeErr
	}

	s.record(storyID, "completed", start, "")
	log.Info().
		Str("storyID", storyID).
		Str("tone", string(stored.EmotionalTone)).
		Str("domain", string(stored.LifeDomain)).
		Int("themes", len(stored.Themes)).
		Dur("duration", time.Since(start)).
		Msg("story analysis completed")

	return stored, nil
}

func (s *Service) record(storyID, status string, start time.Time, detail string) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordAnalysis(storyID, status, time.Since(start), detail)
}
