package analysis

import "fmt"

// systemPrompt instructs the model to return nothing but the metadata
// object. The downstream sanitizer still treats the output as hostile.
const systemPrompt = `You are an analyst for a personal journaling application. ` +
	`Given a journal story, extract structured metadata about its emotional and thematic content. ` +
	`Respond with a single JSON object and nothing else. Do not wrap it in markdown. The object must have exactly these fields:
{
  "themes": up to 5 short lowercase theme strings,
  "emotional_tone": one of [reflective, joyful, anxious, hopeful, melancholic, grateful, frustrated, peaceful, excited, uncertain, neutral],
  "life_domain": one of [work, relationships, health, identity, growth, creativity, spirituality, family, adventure, learning, general],
  "intensity_score": number between 0.0 and 1.0,
  "significance_score": number between 0.0 and 1.0,
  "people_mentioned": array of names or roles mentioned,
  "places_mentioned": array of places mentioned,
  "time_references": array of time expressions mentioned,
  "brief_insight": one warm, specific sentence (max 500 characters) reflecting on the story
}`

func buildUserPrompt(storyText string) string {
	return fmt.Sprintf("Analyze the following journal story:\n\n%s", storyText)
}
