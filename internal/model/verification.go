package model

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the lifecycle of a dispatched oracle run.
// "expired" is assigned by the reconciler when a run stays pending past
// the configured TTL.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationCompleted VerificationStatus = "completed"
	VerificationExpired   VerificationStatus = "expired"
)

// VerificationLog tracks one dispatch of a story to the CRE network.
// At most one pending row may exist per story; the partial unique index
// in the schema enforces it.
type VerificationLog struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	StoryID       string             `db:"story_id" json:"story_id"`
	WorkflowRunID string             `db:"workflow_run_id" json:"workflow_run_id"`
	Status        VerificationStatus `db:"status" json:"status"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// VerifiedMetrics is the cached copy of an on-chain consensus result.
// The ledger is the source of truth; this row is a read-through cache.
type VerifiedMetrics struct {
	StoryID           string    `db:"story_id" json:"story_id"`
	SignificanceScore int       `db:"significance_score" json:"significance_score"` // 0-100
	EmotionalDepth    int       `db:"emotional_depth" json:"emotional_depth"`       // 1-5
	QualityScore      int       `db:"quality_score" json:"quality_score"`           // 0-100
	WordCount         int       `db:"word_count" json:"word_count"`
	VerifiedThemes    []string  `db:"verified_themes" json:"verified_themes"`
	CREAttestationID  string    `db:"cre_attestation_id" json:"cre_attestation_id"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// VerificationJobPayload is the message the dispatcher publishes for the
// worker to deliver to the CRE gateway.
type VerificationJobPayload struct {
	WorkflowRunID string    `json:"workflow_run_id"`
	StoryID       string    `json:"story_id"`
	AuthorWallet  string    `json:"author_wallet"`
	Content       string    `json:"content"`
	DispatchedAt  time.Time `json:"dispatched_at"`
}
