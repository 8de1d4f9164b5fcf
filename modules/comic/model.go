package comic

import (
	"comicgen-server/modules/panels"
)

// GenerateRequest is the body of POST /generate-comic.
type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	ArtStyle       string `json:"artStyle,omitempty"`
	PageCount      int    `json:"pageCount,omitempty"`
	Genre          string `json:"genre,omitempty"`
	Tone           string `json:"tone,omitempty"`
	TargetAudience string `json:"targetAudience,omitempty"`
}

// PageRef points at one uploaded page image.
type PageRef struct {
	Page int    `json:"page"`
	URL  string `json:"url"`
}

// GenerateResponse is the pipeline outcome. Errors name the panels that
// failed; the pages list may contain placeholder artwork for them.
type GenerateResponse struct {
	Success   bool                `json:"success"`
	ProjectID string              `json:"projectId"`
	Status    string              `json:"status"`
	Title     string              `json:"title,omitempty"`
	Pages     []PageRef           `json:"pages"`
	Errors    []panels.PanelError `json:"errors,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// RegenerateRequest is the body of POST /regenerate-panels. ProjectID is
// optional; when empty the most recently saved project is used.
type RegenerateRequest struct {
	ProjectID string `json:"projectId,omitempty"`
	PanelIDs  string `json:"panelIds"`
}
