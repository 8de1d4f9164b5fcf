package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient returns canned completions so the full pipeline runs offline.
// It inspects the system prompt to decide whether a story structure or a
// dialogue script is being requested.
type MockClient struct {
	// StoryResponse and DialogueResponse override the canned payloads when
	// non-empty. Tests use these to exercise the tolerant parsers.
	StoryResponse    string
	DialogueResponse string

	// FailWith, when set, makes every call return this error.
	FailWith error
}

func (m *MockClient) Complete(_ context.Context, system, user string) (string, error) {
	if m.FailWith != nil {
		return "", m.FailWith
	}
	if strings.Contains(system, "dialogue") {
		if m.DialogueResponse != "" {
			return m.DialogueResponse, nil
		}
		return cannedDialogue(user), nil
	}
	if m.StoryResponse != "" {
		return m.StoryResponse, nil
	}
	return cannedStory, nil
}

const cannedStory = "```json\n" + `{
  "title": "Signals in the Dust",
  "synopsis": "An astronaut stranded on a red plain discovers a flickering hologram that knows her name.",
  "theme": "loneliness and unexpected connection",
  "visualStyle": "clean line art, muted palette, wide establishing shots",
  "characterNotes": [
    {"name": "Vera", "description": "A pragmatic astronaut in a scuffed white suit"},
    {"name": "Echo", "description": "A translucent blue hologram of uncertain origin"}
  ],
  "scenes": [
    "Cover: Vera stands before a vast crater under two moons, title space above her.",
    "Vera repairs an antenna array as a dust storm gathers on the horizon.",
    "A faint blue shimmer appears between the antenna masts.",
    "The shimmer resolves into Echo, who raises a hand in greeting.",
    "Vera steps back, hand on her tool belt, visor reflecting the blue light.",
    "Echo projects a star map showing a route Vera has never seen."
  ]
}` + "\n```"

// cannedDialogue fabricates one entry per panel id it finds in the prompt so
// the array length matches whatever panel count the caller embedded.
func cannedDialogue(user string) string {
	ids := extractPanelIDs(user)
	if len(ids) == 0 {
		ids = []string{"panel1"}
	}
	var sb strings.Builder
	sb.WriteString("```json\n[")
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(",")
		}
		if i == 0 {
			sb.WriteString(fmt.Sprintf(`{"panelId":%q,"title":"Signals in the Dust","dialogue":[],"narration":null}`, id))
			continue
		}
		sb.WriteString(fmt.Sprintf(`{"panelId":%q,"title":null,"dialogue":[{"speaker":"char_1","text":"Who is out there?"}],"narration":null}`, id))
	}
	sb.WriteString("]\n```")
	return sb.String()
}

func extractPanelIDs(user string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, field := range strings.Fields(user) {
		field = strings.Trim(field, ".,:;()[]\"'")
		if strings.HasPrefix(field, "panel") && len(field) > 5 && !seen[field] {
			rest := field[5:]
			numeric := true
			for _, r := range rest {
				if r < '0' || r > '9' {
					numeric = false
					break
				}
			}
			if numeric {
				seen[field] = true
				ids = append(ids, field)
			}
		}
	}
	return ids
}
