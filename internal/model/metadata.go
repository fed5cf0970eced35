package model

import "time"

// EmotionalTone is the closed set of tones the analysis may assign.
type EmotionalTone string

const (
	ToneReflective  EmotionalTone = "reflective"
	ToneJoyful      EmotionalTone = "joyful"
	ToneAnxious     EmotionalTone = "anxious"
	ToneHopeful     EmotionalTone = "hopeful"
	ToneMelancholic EmotionalTone = "melancholic"
	ToneGrateful    EmotionalTone = "grateful"
	ToneFrustrated  EmotionalTone = "frustrated"
	TonePeaceful    EmotionalTone = "peaceful"
	ToneExcited     EmotionalTone = "excited"
	ToneUncertain   EmotionalTone = "uncertain"
	ToneNeutral     EmotionalTone = "neutral"
)

// LifeDomain is the closed set of life areas the analysis may assign.
type LifeDomain string

const (
	DomainWork          LifeDomain = "work"
	DomainRelationships LifeDomain = "relationships"
	DomainHealth        LifeDomain = "health"
	DomainIdentity      LifeDomain = "identity"
	DomainGrowth        LifeDomain = "growth"
	DomainCreativity    LifeDomain = "creativity"
	DomainSpirituality  LifeDomain = "spirituality"
	DomainFamily        LifeDomain = "family"
	DomainAdventure     LifeDomain = "adventure"
	DomainLearning      LifeDomain = "learning"
	DomainGeneral       LifeDomain = "general"
)

// validTones and validDomains are the membership tables for enum
// normalization. Keeping them as data (not scattered switches) makes the
// fallback policy testable on its own.
var validTones = map[EmotionalTone]struct{}{
	ToneReflective: {}, ToneJoyful: {}, ToneAnxious: {}, ToneHopeful: {},
	ToneMelancholic: {}, ToneGrateful: {}, ToneFrustrated: {}, TonePeaceful: {},
	ToneExcited: {}, ToneUncertain: {}, ToneNeutral: {},
}

var validDomains = map[LifeDomain]struct{}{
	DomainWork: {}, DomainRelationships: {}, DomainHealth: {}, DomainIdentity: {},
	DomainGrowth: {}, DomainCreativity: {}, DomainSpirituality: {}, DomainFamily: {},
	DomainAdventure: {}, DomainLearning: {}, DomainGeneral: {},
}

// NormalizeTone maps an arbitrary string onto the closed tone set,
// falling back to neutral.
func NormalizeTone(s string) EmotionalTone {
	if _, ok := validTones[EmotionalTone(s)]; ok {
		return EmotionalTone(s)
	}
	return ToneNeutral
}

// NormalizeDomain maps an arbitrary string onto the closed domain set,
// falling back to general.
func NormalizeDomain(s string) LifeDomain {
	if _, ok := validDomains[LifeDomain(s)]; ok {
		return LifeDomain(s)
	}
	return DomainGeneral
}

// AnalysisStatus describes where a story's metadata sits in the pipeline.
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// SanitizedMetadata is the output of the sanitizer: every field already
// conforms to the schema and can be written to the store as-is.
type SanitizedMetadata struct {
	Themes            []string      `json:"themes"`
	EmotionalTone     EmotionalTone `json:"emotional_tone"`
	LifeDomain        LifeDomain    `json:"life_domain"`
	IntensityScore    float64       `json:"intensity_score"`
	SignificanceScore float64       `json:"significance_score"`
	PeopleMentioned   []string      `json:"people_mentioned"`
	PlacesMentioned   []string      `json:"places_mentioned"`
	TimeReferences    []string      `json:"time_references"`
	BriefInsight      *string       `json:"brief_insight"`
}

// StoryMetadata is the stored record, one row per story.
type StoryMetadata struct {
	StoryID           string         `db:"story_id" json:"story_id"`
	Themes            []string       `db:"themes" json:"themes"`
	EmotionalTone     EmotionalTone  `db:"emotional_tone" json:"emotional_tone"`
	LifeDomain        LifeDomain     `db:"life_domain" json:"life_domain"`
	IntensityScore    float64        `db:"intensity_score" json:"intensity_score"`
	SignificanceScore float64        `db:"significance_score" json:"significance_score"`
	PeopleMentioned   []string       `db:"people_mentioned" json:"people_mentioned"`
	PlacesMentioned   []string       `db:"places_mentioned" json:"places_mentioned"`
	TimeReferences    []string       `db:"time_references" json:"time_references"`
	BriefInsight      *string        `db:"brief_insight" json:"brief_insight"`
	IsCanonical       bool           `db:"is_canonical" json:"is_canonical"`
	AnalysisStatus    AnalysisStatus `db:"analysis_status" json:"analysis_status"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
