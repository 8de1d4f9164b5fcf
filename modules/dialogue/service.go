package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"comicgen-server/modules/common/llm"
	"comicgen-server/modules/common/model"
	"comicgen-server/modules/common/utils"
)

const maxWordsPerLine = 14
const maxLinesPerPanel = 2

// Generator writes titles, dialogue and narration onto panels with a single
// LLM call over the whole script.
type Generator struct {
	client llm.Client
}

func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

// Result reports the merge outcome. Warnings carry dropped lines and other
// normalisation notes; they never fail the call.
type Result struct {
	Success  bool     `json:"success"`
	Warnings []string `json:"warnings,omitempty"`
}

// panelScript is one entry of the LLM's response array.
type panelScript struct {
	PanelID   string       `json:"panelId"`
	Title     string       `json:"title"`
	Dialogue  []scriptLine `json:"dialogue"`
	Narration string       `json:"narration"`
}

type scriptLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

const dialogueSystemPrompt = `You are a comic dialogue writer. Given a story and its panels, write the text layer.
Respond with ONLY a JSON array, one object per panel, in panel order:
  {"panelId": string, "title": string|null, "dialogue": [{"speaker": string, "text": string}], "narration": string|null}
Rules: the first panel is the cover and gets only a title. Speakers must be character ids from the roster. Keep lines short and punchy. A panel has dialogue or narration, never both.`

// Generate runs the dialogue pass. On unparsable output it returns
// success=false, flags the project, and leaves every panel's text untouched.
func (g *Generator) Generate(ctx context.Context, project *model.Project) (*Result, error) {
	raw, err := g.client.Complete(ctx, dialogueSystemPrompt, buildDialoguePrompt(project))
	if err != nil {
		project.DialogueFailed = true
		return &Result{Success: false}, fmt.Errorf("dialogue llm call failed: %w", err)
	}

	scripts, err := parseScripts(raw)
	if err != nil {
		log.Printf("⚠️ Dialogue response unparsable: %v", err)
		project.DialogueFailed = true
		return &Result{Success: false}, err
	}

	result := &Result{Success: true}
	g.merge(project, scripts, result)
	project.DialogueFailed = false
	log.Printf("✅ Dialogue merged into %d panels (%d warnings)", len(scripts), len(result.Warnings))
	return result, nil
}

func buildDialoguePrompt(project *model.Project) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Story: %s\n", project.Title)
	if project.Synopsis != "" {
		fmt.Fprintf(&sb, "Synopsis: %s\n", project.Synopsis)
	}
	if project.Genre != "" {
		fmt.Fprintf(&sb, "Genre: %s\n", project.Genre)
	}
	if project.Tone != "" {
		fmt.Fprintf(&sb, "Tone: %s\n", project.Tone)
	}

	sb.WriteString("Characters:\n")
	for _, ch := range project.Characters {
		fmt.Fprintf(&sb, "- %s: %s (%s)\n", ch.ID, ch.Name, ch.Description)
	}

	sb.WriteString("Panels:\n")
	for _, panel := range project.Panels {
		fmt.Fprintf(&sb, "- %s: %s\n", panel.ID, panel.Prompt)
	}
	return sb.String()
}

// parseScripts applies the tolerant extraction order: fenced code block,
// first bracketed array, whole body.
func parseScripts(raw string) ([]panelScript, error) {
	candidates := []string{
		utils.ExtractFencedJSON(raw),
		utils.FirstJSONArray(raw),
		raw,
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var scripts []panelScript
		if err := json.Unmarshal([]byte(candidate), &scripts); err != nil {
			continue
		}
		if len(scripts) > 0 {
			return scripts, nil
		}
	}
	return nil, fmt.Errorf("no parsable dialogue array in response (%d chars)", len(raw))
}

// merge applies scripts to panels by id, normalising as it goes. Dialogue
// fields are overwritten; everything else on the panel is preserved.
func (g *Generator) merge(project *model.Project, scripts []panelScript, result *Result) {
	known := make(map[string]bool, len(project.Characters))
	for _, ch := range project.Characters {
		known[ch.ID] = true
	}

	for _, script := range scripts {
		panel := project.PanelByID(script.PanelID)
		if panel == nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("dialogue for unknown panel %q discarded", script.PanelID))
			continue
		}

		panel.Title = strings.TrimSpace(script.Title)
		panel.Narration = strings.TrimSpace(script.Narration)
		panel.Dialogue = nil

		for _, line := range script.Dialogue {
			if !known[line.Speaker] {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("panel %s: dropped line for unknown speaker %q", panel.ID, line.Speaker))
				continue
			}
			text := utils.TruncateWords(line.Text, maxWordsPerLine)
			if text == "" {
				continue
			}
			if len(panel.Dialogue) >= maxLinesPerPanel {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("panel %s: dropped excess dialogue line", panel.ID))
				continue
			}
			panel.Dialogue = append(panel.Dialogue, model.DialogueLine{
				Speaker: line.Speaker,
				Text:    text,
			})
		}

		normalisePanel(panel, result)
	}

	// the cover rule holds even when the LLM skipped panel1 entirely
	if cover := project.PanelByID(model.CoverPanelID); cover != nil {
		normalisePanel(cover, result)
	}
}

func normalisePanel(panel *model.Panel, result *Result) {
	if panel.IsCover() {
		if panel.Title == "" {
			panel.Title = "Untitled Comic"
		}
		panel.Dialogue = nil
		panel.Narration = ""
		return
	}
	// dialogue XOR narration
	if len(panel.Dialogue) > 0 && panel.Narration != "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("panel %s: has both dialogue and narration, dropped narration", panel.ID))
		panel.Narration = ""
	}
}
