package story

import (
	"fmt"
	"log"
	"strings"

	"comicgen-server/modules/compose"
)

// Brief is the structured seed passed to the LLM, or used directly when the
// LLM is unavailable.
type Brief struct {
	Title    string
	Synopsis string
	Theme    string
	Scenes   []string
}

var recognisedGenres = map[string]bool{
	"adventure": true, "fantasy": true, "sci-fi": true, "mystery": true,
	"horror": true, "comedy": true, "drama": true, "action": true,
	"romance": true, "superhero": true, "noir": true, "western": true,
}

var recognisedStyles = map[string]bool{
	"cinematic": true, "anime": true, "manga": true, "western": true,
	"realistic": true, "cartoon": true, "noir": true, "fantasy": true,
	"sci-fi": true, "horror": true, "watercolor": true, "sketch": true,
}

var recognisedAudiences = map[string]bool{
	"children": true, "teen": true, "young-adult": true, "adult": true,
	"general": true, "family": true,
}

// ValidateFields warns about unrecognised genre/style/audience values.
// Unknown values are passed through to the LLM as-is.
func ValidateFields(genre, style, audience string) {
	if genre != "" && !recognisedGenres[strings.ToLower(genre)] {
		log.Printf("⚠️ Unrecognised genre %q, passing through", genre)
	}
	if style != "" && !recognisedStyles[strings.ToLower(style)] {
		log.Printf("⚠️ Unrecognised art style %q, passing through", style)
	}
	if audience != "" && !recognisedAudiences[strings.ToLower(audience)] {
		log.Printf("⚠️ Unrecognised target audience %q, passing through", audience)
	}
}

// FallbackBrief builds a deterministic brief from the raw user prompt, used
// when the LLM call fails or returns unparsable output.
func FallbackBrief(userPrompt string, pageCount int) Brief {
	n := compose.PanelCount(pageCount)
	scenes := make([]string, n)
	scenes[0] = fmt.Sprintf("Cover illustration for a story about: %s", userPrompt)
	for i := 1; i < n; i++ {
		scenes[i] = fmt.Sprintf("Scene %d of a story about: %s", i, userPrompt)
	}
	return Brief{
		Title:    "Generated Story",
		Synopsis: userPrompt,
		Theme:    "",
		Scenes:   scenes,
	}
}

const structureSystemPrompt = `You are a comic story architect. Given a story premise, produce a complete structure for a short comic.
Respond with ONLY a JSON object with these keys:
  "title": string,
  "synopsis": string (2-3 sentences),
  "theme": string,
  "visualStyle": string,
  "characterNotes": array of {"name": string, "description": string} (2-4 characters),
  "scenes": array of strings, one vivid visual description per panel.
The first scene is the cover illustration. Scene descriptions must be concrete and drawable: setting, characters present, action, camera angle.`

// buildStructurePrompt renders the user message for the structuring call.
func buildStructurePrompt(userPrompt, genre, style, tone, audience string, panelCount int) string {
	var sb strings.Builder
	sb.WriteString("Story premise: ")
	sb.WriteString(userPrompt)
	sb.WriteString("\n")
	if genre != "" {
		fmt.Fprintf(&sb, "Genre: %s\n", genre)
	}
	if style != "" {
		fmt.Fprintf(&sb, "Art style: %s\n", style)
	}
	if tone != "" {
		fmt.Fprintf(&sb, "Tone: %s\n", tone)
	}
	if audience != "" {
		fmt.Fprintf(&sb, "Target audience: %s\n", audience)
	}
	fmt.Fprintf(&sb, "Produce exactly %d scenes (the first is the cover).\n", panelCount)
	return sb.String()
}
