package story

import (
	"context"
	"errors"
	"strings"
	"testing"

	"comicgen-server/modules/common/llm"
	"comicgen-server/modules/common/model"
	"comicgen-server/modules/compose"
)

func newProject(pageCount int) *model.Project {
	return &model.Project{
		ID:         "proj_test",
		UserPrompt: "mars astronaut meets hologram",
		PageCount:  pageCount,
		Genre:      "sci-fi",
		Style:      "manga",
	}
}

func TestStructureHappyPath(t *testing.T) {
	s := NewStructurer(&llm.MockClient{})
	project := newProject(3)

	if err := s.Structure(context.Background(), project); err != nil {
		t.Fatalf("Structure failed: %v", err)
	}

	if project.Title == "" || project.Title == "Generated Story" {
		t.Errorf("expected LLM title, got %q", project.Title)
	}
	if len(project.Panels) != compose.PanelCount(3) {
		t.Fatalf("expected %d panels, got %d", compose.PanelCount(3), len(project.Panels))
	}
	if project.Panels[0].ID != model.CoverPanelID {
		t.Errorf("panels[0].id = %q, want panel1", project.Panels[0].ID)
	}
	for _, panel := range project.Panels {
		if strings.TrimSpace(panel.Prompt) == "" {
			t.Errorf("panel %s has empty prompt", panel.ID)
		}
		if panel.Width <= 0 || panel.Height <= 0 {
			t.Errorf("panel %s has bad dimensions %dx%d", panel.ID, panel.Width, panel.Height)
		}
	}
	for i, ch := range project.Characters {
		if ch.ID != model.CharacterID(i+1) {
			t.Errorf("character %d id = %q, want %q", i, ch.ID, model.CharacterID(i+1))
		}
	}
}

func TestStructureFallbackOnLLMError(t *testing.T) {
	s := NewStructurer(&llm.MockClient{FailWith: errors.New("connection refused")})
	project := newProject(2)

	if err := s.Structure(context.Background(), project); err != nil {
		t.Fatalf("Structure must not fail when fallback applies: %v", err)
	}

	if project.Title != "Generated Story" {
		t.Errorf("fallback title = %q", project.Title)
	}
	if len(project.Panels) != 6 {
		t.Errorf("fallback panel count = %d, want 6", len(project.Panels))
	}
	if project.Panels[0].ID != model.CoverPanelID {
		t.Errorf("fallback panels[0].id = %q", project.Panels[0].ID)
	}
	if len(project.Characters) == 0 {
		t.Error("fallback must still create a character roster")
	}
}

func TestStructureFallbackOnGarbageOutput(t *testing.T) {
	s := NewStructurer(&llm.MockClient{StoryResponse: "Sure! Here is a story about Mars..."})
	project := newProject(4)

	if err := s.Structure(context.Background(), project); err != nil {
		t.Fatalf("Structure failed: %v", err)
	}
	if len(project.Panels) != compose.PanelCount(4) {
		t.Errorf("panel count = %d, want %d", len(project.Panels), compose.PanelCount(4))
	}
	if project.Title != "Generated Story" {
		t.Errorf("expected fallback title, got %q", project.Title)
	}
}

func TestStructurePadsShortSceneList(t *testing.T) {
	s := NewStructurer(&llm.MockClient{StoryResponse: `{
		"title": "Tiny",
		"synopsis": "s",
		"theme": "t",
		"characterNotes": [{"name": "A", "description": "d"}],
		"scenes": ["cover only"]
	}`})
	project := newProject(3)

	if err := s.Structure(context.Background(), project); err != nil {
		t.Fatalf("Structure failed: %v", err)
	}
	if len(project.Panels) != compose.PanelCount(3) {
		t.Fatalf("panel count = %d, want %d", len(project.Panels), compose.PanelCount(3))
	}
	for _, panel := range project.Panels {
		if panel.Prompt == "" {
			t.Errorf("padded panel %s has empty prompt", panel.ID)
		}
	}
}

func TestContextPanelIDsFormDAG(t *testing.T) {
	s := NewStructurer(&llm.MockClient{})
	project := newProject(3)
	if err := s.Structure(context.Background(), project); err != nil {
		t.Fatalf("Structure failed: %v", err)
	}

	for i, panel := range project.Panels {
		for _, ref := range panel.ContextPanelIDs {
			refIndex := model.PanelIndex(ref)
			if refIndex < 1 || refIndex > i {
				t.Errorf("panel %s references %s which is not strictly earlier", panel.ID, ref)
			}
		}
	}
	if len(project.Panels[0].ContextPanelIDs) != 0 {
		t.Error("cover panel must not have context references")
	}
}

func TestTranscribeCharactersToleratesLooseShapes(t *testing.T) {
	characters := transcribeCharacters([]interface{}{
		map[string]interface{}{"name": "  Vera  ", "description": "pilot"},
		map[string]interface{}{"name": 42, "description": "not a string name"},
		map[string]interface{}{"name": "Echo", "description": 7},
		"  Drifter  ",
		map[string]interface{}{"description": "nameless"},
	})

	if len(characters) != 3 {
		t.Fatalf("characters = %d, want 3: %+v", len(characters), characters)
	}
	if characters[0].Name != "Vera" || characters[0].Description != "pilot" {
		t.Errorf("characters[0] = %+v", characters[0])
	}
	if characters[1].Name != "Echo" || characters[1].Description != "" {
		t.Errorf("non-string description must be dropped: %+v", characters[1])
	}
	if characters[2].Name != "Drifter" || characters[2].ID != model.CharacterID(3) {
		t.Errorf("characters[2] = %+v", characters[2])
	}
}

func TestTranscribeScenesToleratesLooseShapes(t *testing.T) {
	scenes := transcribeScenes([]interface{}{
		"  a rooftop chase  ",
		map[string]interface{}{"description": " the fall "},
		map[string]interface{}{"description": 3},
		map[string]interface{}{"caption": "wrong key"},
	})

	want := []string{"a rooftop chase", "the fall"}
	if len(scenes) != len(want) {
		t.Fatalf("scenes = %v", scenes)
	}
	for i := range want {
		if scenes[i] != want[i] {
			t.Errorf("scenes[%d] = %q, want %q", i, scenes[i], want[i])
		}
	}
}

func TestFallbackBriefSceneCount(t *testing.T) {
	cases := map[int]int{1: 6, 2: 6, 3: 6, 4: 8, 5: 10}
	for pageCount, want := range cases {
		brief := FallbackBrief("test prompt", pageCount)
		if len(brief.Scenes) != want {
			t.Errorf("FallbackBrief(pageCount=%d) scenes = %d, want %d", pageCount, len(brief.Scenes), want)
		}
	}
}
