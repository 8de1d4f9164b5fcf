package story

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"comicgen-server/modules/common/fallback"
	"comicgen-server/modules/common/llm"
	"comicgen-server/modules/common/model"
	"comicgen-server/modules/common/utils"
	"comicgen-server/modules/compose"
)

// Structurer expands a story request into characters and panels via the LLM,
// falling back to a deterministic structure when the call fails.
type Structurer struct {
	client llm.Client
}

func NewStructurer(client llm.Client) *Structurer {
	return &Structurer{client: client}
}

// structureResponse is the shape the LLM is asked to return. Fields are
// interface-typed where models are known to drift from the contract.
type structureResponse struct {
	Title          string        `json:"title"`
	Synopsis       string        `json:"synopsis"`
	Theme          string        `json:"theme"`
	VisualStyle    string        `json:"visualStyle"`
	CharacterNotes []interface{} `json:"characterNotes"`
	Scenes         []interface{} `json:"scenes"`
}

// Structure fills the project with characters and panels. After it returns
// the project always has at least one panel and panels[0] is the cover.
func (s *Structurer) Structure(ctx context.Context, project *model.Project) error {
	ValidateFields(project.Genre, project.Style, project.TargetAudience)

	panelCount := compose.PanelCount(project.PageCount)

	resp, err := s.callLLM(ctx, project, panelCount)
	if err != nil {
		log.Printf("⚠️ Story structuring failed, using fallback: %v", err)
		s.applyFallback(project, panelCount)
		return nil
	}
	s.apply(project, resp, panelCount)
	return nil
}

func (s *Structurer) callLLM(ctx context.Context, project *model.Project, panelCount int) (*structureResponse, error) {
	userPrompt := buildStructurePrompt(
		project.UserPrompt, project.Genre, project.Style,
		project.Tone, project.TargetAudience, panelCount)

	raw, err := s.client.Complete(ctx, structureSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	return parseStructureResponse(raw)
}

// parseStructureResponse tries a fenced block, then the first { ... } block,
// then the whole body.
func parseStructureResponse(raw string) (*structureResponse, error) {
	candidates := []string{
		utils.ExtractFencedJSON(raw),
		utils.FirstJSONObject(raw),
		raw,
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var resp structureResponse
		if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
			continue
		}
		if resp.Title == "" && len(resp.Scenes) == 0 {
			continue
		}
		return &resp, nil
	}
	return nil, fmt.Errorf("no parsable structure in llm response (%d chars)", len(raw))
}

func (s *Structurer) apply(project *model.Project, resp *structureResponse, panelCount int) {
	project.Title = firstNonEmpty(resp.Title, "Generated Story")
	project.Synopsis = resp.Synopsis
	project.Theme = resp.Theme

	project.Characters = transcribeCharacters(resp.CharacterNotes)

	scenes := transcribeScenes(resp.Scenes)
	if len(scenes) == 0 {
		log.Printf("⚠️ Structure response had no scenes, using fallback scenes")
		scenes = FallbackBrief(project.UserPrompt, project.PageCount).Scenes
	}
	s.buildPanels(project, scenes, resp.VisualStyle, panelCount)

	log.Printf("✅ Story structured: %q with %d characters, %d panels",
		project.Title, len(project.Characters), len(project.Panels))
}

func (s *Structurer) applyFallback(project *model.Project, panelCount int) {
	brief := FallbackBrief(project.UserPrompt, project.PageCount)
	project.Title = brief.Title
	project.Synopsis = brief.Synopsis
	project.Theme = brief.Theme
	project.Characters = []*model.Character{{
		ID:          model.CharacterID(1),
		Name:        "Protagonist",
		Description: "The main character of the story",
	}}
	s.buildPanels(project, brief.Scenes, project.Style, panelCount)
}

// buildPanels creates panel1..panelN with prompts, generation dimensions from
// the layout slots, and context references back to the cover and the
// immediately preceding panel.
func (s *Structurer) buildPanels(project *model.Project, scenes []string, visualStyle string, panelCount int) {
	// pad or trim the scene list to the required panel count
	for len(scenes) < panelCount {
		scenes = append(scenes, fmt.Sprintf("Continuation scene %d of: %s", len(scenes), project.UserPrompt))
	}
	scenes = scenes[:panelCount]

	styleSuffix := ""
	if visualStyle != "" {
		styleSuffix = ", " + visualStyle
	}

	panels := make([]*model.Panel, 0, panelCount)
	for i := 1; i <= panelCount; i++ {
		id := model.PanelID(i)
		w, h := compose.PanelDimensions(project.PageCount, id)
		_, page, placed := compose.SlotFor(compose.Templates(project.PageCount), id)
		if !placed {
			page = project.PageCount
		}

		var contextIDs []string
		if i > 1 {
			contextIDs = append(contextIDs, model.CoverPanelID)
		}
		if i > 2 {
			contextIDs = append(contextIDs, model.PanelID(i-1))
		}

		panels = append(panels, &model.Panel{
			ID:              id,
			PageIndex:       page,
			Prompt:          strings.TrimSpace(scenes[i-1]) + styleSuffix,
			Width:           w,
			Height:          h,
			ContextPanelIDs: contextIDs,
		})
	}
	project.Panels = panels
}

func transcribeCharacters(notes []interface{}) []*model.Character {
	var characters []*model.Character
	for _, note := range notes {
		var name, description string
		switch v := note.(type) {
		case map[string]interface{}:
			name = fallback.SafeString(v["name"], "")
			description = fallback.SafeString(v["description"], "")
		case string:
			name = strings.TrimSpace(v)
		}
		if name == "" {
			continue
		}
		characters = append(characters, &model.Character{
			ID:          model.CharacterID(len(characters) + 1),
			Name:        name,
			Description: description,
		})
	}
	return characters
}

func transcribeScenes(raw []interface{}) []string {
	var scenes []string
	for _, entry := range raw {
		var text string
		switch v := entry.(type) {
		case string:
			text = strings.TrimSpace(v)
		case map[string]interface{}:
			text = fallback.SafeString(v["description"], "")
		}
		if text != "" {
			scenes = append(scenes, text)
		}
	}
	return scenes
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
