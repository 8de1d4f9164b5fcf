package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Project is the shared document every pipeline stage reads and writes.
// It is persisted as YAML after each stage completes; unknown keys survive a
// load/save cycle through the inline Extra map.
type Project struct {
	ID             string `yaml:"id" json:"id"`
	Title          string `yaml:"title" json:"title"`
	Genre          string `yaml:"genre" json:"genre"`
	Style          string `yaml:"style" json:"style"`
	PageCount      int    `yaml:"pages" json:"pages"`
	TargetAudience string `yaml:"target_audience" json:"targetAudience"`
	UserPrompt     string `yaml:"user_prompt" json:"userPrompt"`
	Tone           string `yaml:"tone,omitempty" json:"tone,omitempty"`
	Status         string `yaml:"status" json:"status"`

	Synopsis string `yaml:"synopsis,omitempty" json:"synopsis,omitempty"`
	Theme    string `yaml:"theme,omitempty" json:"theme,omitempty"`

	// DialogueFailed marks that the dialogue stage ran and could not parse the
	// model output. Composition still runs without text.
	DialogueFailed bool `yaml:"dialogue_failed,omitempty" json:"dialogueFailed,omitempty"`

	Characters []*Character `yaml:"characters" json:"characters"`
	Panels     []*Panel     `yaml:"panels" json:"panels"`

	// PageURLs holds the storage URLs of already composed pages, page 1 first.
	PageURLs []string `yaml:"page_urls,omitempty" json:"pageUrls,omitempty"`

	Extra map[string]interface{} `yaml:",inline" json:"-"`
}

// Character is created by the story structurer with a stable char_N id and
// referenced by dialogue speakers.
type Character struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description" json:"description"`
	ReferenceURLs []string `yaml:"references,omitempty" json:"references,omitempty"`

	Extra map[string]interface{} `yaml:",inline" json:"-"`
}

// Panel is one artwork cell. The panel with id "panel1" is the cover: its
// Title is mandatory, Dialogue stays empty and Narration stays empty.
type Panel struct {
	ID              string   `yaml:"id" json:"id"`
	PageIndex       int      `yaml:"page_index" json:"pageIndex"`
	Prompt          string   `yaml:"prompt" json:"prompt"`
	Width           int      `yaml:"width" json:"width"`
	Height          int      `yaml:"height" json:"height"`
	ContextPanelIDs []string `yaml:"context_panel_ids,omitempty" json:"contextPanelIds,omitempty"`

	// GeneratedImageURL is set once the panel image has been uploaded. A panel
	// with a non-empty URL is complete and is never regenerated unless its id
	// is named explicitly.
	GeneratedImageURL string `yaml:"cloudinaryUrl,omitempty" json:"cloudinaryUrl,omitempty"`

	// Seed used for the last generation attempt; regeneration must pick a
	// different one.
	Seed int64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	Title     string         `yaml:"title,omitempty" json:"title,omitempty"`
	Dialogue  []DialogueLine `yaml:"dialogue,omitempty" json:"dialogue,omitempty"`
	Narration string         `yaml:"narration,omitempty" json:"narration,omitempty"`

	Extra map[string]interface{} `yaml:",inline" json:"-"`
}

// DialogueLine is one balloon. X and Y are fractional coordinates in [0,1]
// relative to the panel box.
type DialogueLine struct {
	Speaker string  `yaml:"speaker" json:"speaker"`
	Text    string  `yaml:"text" json:"text"`
	X       float64 `yaml:"x,omitempty" json:"x,omitempty"`
	Y       float64 `yaml:"y,omitempty" json:"y,omitempty"`
}

// Project status constants
const (
	StatusPending       = "pending"
	StatusProcessing    = "processing"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusUserCancelled = "user_cancelled"
)

// CoverPanelID - panel1 carries the cover by convention.
const CoverPanelID = "panel1"

// Panel dimension bounds; values outside are clamped at composition time.
const (
	MinPanelDim = 100
	MaxPanelDim = 2000
)

// IsComplete reports whether the panel already has an uploaded image.
func (p *Panel) IsComplete() bool {
	return p != nil && p.GeneratedImageURL != ""
}

// IsCover reports whether this panel is the cover page.
func (p *Panel) IsCover() bool {
	return p != nil && p.ID == CoverPanelID
}

// PanelByID returns the panel with the given id, or nil.
func (pr *Project) PanelByID(id string) *Panel {
	for _, p := range pr.Panels {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// CharacterByID returns the character with the given id, or nil.
func (pr *Project) CharacterByID(id string) *Character {
	for _, c := range pr.Characters {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// HasCharacter reports whether a dialogue speaker id resolves to a character.
func (pr *Project) HasCharacter(id string) bool {
	return pr.CharacterByID(id) != nil
}

// PanelID formats the stable panel id for a one-based index.
func PanelID(index int) string {
	return fmt.Sprintf("panel%d", index)
}

// CharacterID formats the stable character id for a one-based index.
func CharacterID(index int) string {
	return fmt.Sprintf("char_%d", index)
}

// PanelIndex parses the one-based index out of a "panelN" id. Returns -1 for
// anything that does not look like a panel id.
func PanelIndex(id string) int {
	if !strings.HasPrefix(id, "panel") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, "panel"))
	if err != nil || n < 1 {
		return -1
	}
	return n
}

// ParsePanelIDList splits a comma-separated panel id list ("panel4,panel7")
// into trimmed, de-duplicated ids. Empty entries are dropped.
func ParsePanelIDList(raw string) []string {
	seen := map[string]bool{}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// ClampPanelDim clamps a panel dimension into the allowed range. The bool
// reports whether the value was already in range.
func ClampPanelDim(v int) (int, bool) {
	if v < MinPanelDim {
		return MinPanelDim, false
	}
	if v > MaxPanelDim {
		return MaxPanelDim, false
	}
	return v, true
}
