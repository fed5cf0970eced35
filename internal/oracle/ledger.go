package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"istory-server/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrNotRecorded means the ledger has no entry for the request key
	// yet. Callers treat it as "not verified", not as a failure.
	ErrNotRecorded = errors.New("no verification recorded on ledger")

	// ErrLedgerUnavailable means the gateway could not answer at all.
	// Distinct from ErrNotRecorded so clients keep polling instead of
	// concluding the story is unverified.
	ErrLedgerUnavailable = errors.New("verification ledger unavailable")
)

var ledgerRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "istory_ledger_request_duration_seconds",
	Help:    "CRE gateway request duration by operation and status.",
	Buckets: prometheus.DefBuckets,
}, []string{"operation", "status"})

// LedgerRecord is the consensus result as the CRE gateway reports it.
// Values are validated and clamped by the Reader before persisting.
type LedgerRecord struct {
	SignificanceScore int      `json:"significance_score"`
	EmotionalDepth    int      `json:"emotional_depth"`
	QualityScore      int      `json:"quality_score"`
	WordCount         int      `json:"word_count"`
	VerifiedThemes    []string `json:"verified_themes"`
	AttestationID     string   `json:"attestation_id"`
}

// LedgerClient talks to the CRE gateway.
type LedgerClient interface {
	GetVerification(ctx context.Context, requestKey string) (*LedgerRecord, error)
	SubmitJob(ctx context.Context, payload model.VerificationJobPayload) error
}

// RequestKey derives the deterministic ledger key for a story:
// "0x" + hex(keccak256(storyID)). The same story always maps to the
// same on-chain slot.
func RequestKey(storyID string) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(storyID))
	return "0x" + hex.EncodeToString(hash.Sum(nil))
}

// LedgerConfig holds CRE gateway connection settings.
type LedgerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type httpLedgerClient struct {
	cfg        LedgerConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ LedgerClient = (*httpLedgerClient)(nil)

func NewHTTPLedgerClient(cfg LedgerConfig, logger *zap.Logger) LedgerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpLedgerClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("LedgerClient"),
	}
}

func (c *httpLedgerClient) GetVerification(ctx context.Context, requestKey string) (*LedgerRecord, error) {
	url := fmt.Sprintf("%s/v1/verifications/%s", c.cfg.BaseURL, requestKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger request: %w", err)
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		ledgerRequests.WithLabelValues("get", "transport_error").Observe(time.Since(start).Seconds())
		c.logger.Warn("Ledger gateway unreachable", zap.String("requestKey", requestKey), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()
	ledgerRequests.WithLabelValues("get", fmt.Sprintf("%d", resp.StatusCode)).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotRecorded
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrLedgerUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected ledger response %d: %s", resp.StatusCode, string(body))
	}

	var record LedgerRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode ledger record: %w", err)
	}
	return &record, nil
}

func (c *httpLedgerClient) SubmitJob(ctx context.Context, payload model.VerificationJobPayload) error {
	body, err := json.Marshal(map[string]any{
		"request_key":     RequestKey(payload.StoryID),
		"workflow_run_id": payload.WorkflowRunID,
		"author_wallet":   payload.AuthorWallet,
		"content":         payload.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal verification job: %w", err)
	}

	url := c.cfg.BaseURL + "/v1/workflows/story-verification/runs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		ledgerRequests.WithLabelValues("submit", "transport_error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()
	ledgerRequests.WithLabelValues("submit", fmt.Sprintf("%d", resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway returned %d", ErrLedgerUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway rejected verification job: %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("Verification job submitted to gateway",
		zap.String("storyID", payload.StoryID),
		zap.String("workflowRunID", payload.WorkflowRunID),
	)
	return nil
}

func (c *httpLedgerClient) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
