// Package sanitize turns untrusted LLM-produced metadata into
// schema-conformant records. Every function here is total: malformed
// input maps to a defined fallback, never an error. Request-level
// validation stays strict at the HTTP boundary; this leniency applies
// only to model output, whose shape we cannot control.
package sanitize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"istory-server/internal/model"
)

const (
	maxThemes     = 5
	maxInsightLen = 500
	defaultScore  = 0.5
)

// Metadata sanitizes a decoded JSON candidate into SanitizedMetadata.
// Passing the output back through (as a decoded map) yields the same
// record.
func Metadata(candidate map[string]any) model.SanitizedMetadata {
	if candidate == nil {
		candidate = map[string]any{}
	}

	return model.SanitizedMetadata{
		Themes:            themes(candidate["themes"]),
		EmotionalTone:     tone(candidate["emotional_tone"]),
		LifeDomain:        domain(candidate["life_domain"]),
		IntensityScore:    score(candidate["intensity_score"]),
		SignificanceScore: score(candidate["significance_score"]),
		PeopleMentioned:   stringList(candidate["people_mentioned"]),
		PlacesMentioned:   stringList(candidate["places_mentioned"]),
		TimeReferences:    stringList(candidate["time_references"]),
		BriefInsight:      insight(candidate["brief_insight"]),
	}
}

// themes keeps at most maxThemes lowercase non-empty strings. Null
// entries are dropped here, unlike the entity lists below, which keep
// them as the literal "null".
func themes(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, maxThemes)
	for _, el := range arr {
		if el == nil {
			continue
		}
		s := strings.ToLower(stringify(el))
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxThemes {
			break
		}
	}
	return out
}

func tone(v any) model.EmotionalTone {
	s, _ := v.(string)
	return model.NormalizeTone(s)
}

func domain(v any) model.LifeDomain {
	s, _ := v.(string)
	return model.NormalizeDomain(s)
}

// score clamps numeric input to [0, 1] and substitutes the default for
// anything non-numeric, including NaN.
func score(v any) float64 {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return defaultScore
	}
	return math.Min(1, math.Max(0, f))
}

// stringList stringifies every entry, so nulls become the literal
// "null". Non-array input collapses to an empty list.
func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		out = append(out, stringify(el))
	}
	return out
}

// insight truncates to maxInsightLen characters; non-string input maps
// to nil, which the store keeps as NULL.
func insight(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	runes := []rune(s)
	if len(runes) > maxInsightLen {
		s = string(runes[:maxInsightLen])
	}
	return &s
}

// stringify renders a decoded JSON value as a string. Scalars follow
// their JSON text form; composites fall back to their JSON encoding.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
