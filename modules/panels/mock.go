package panels

import (
	"context"
	"fmt"
	"sync"

	"comicgen-server/modules/common/fallback"
)

// MockProvider completes every generation instantly with a configured URL per
// panel id, or a placeholder data URI when none is configured. Used in mock
// mode and by tests.
type MockProvider struct {
	// URLs maps panel id to the image URL the provider should return.
	URLs map[string]string

	// FailPanels lists panel ids whose generation should fail.
	FailPanels map[string]bool

	mu      sync.Mutex
	pending map[string]*GenerationStatus
	nextID  int

	// Submitted records every job, in order, for assertions.
	Submitted []*GenerationJob
}

func NewMockProvider(urls map[string]string) *MockProvider {
	return &MockProvider{
		URLs:    urls,
		pending: make(map[string]*GenerationStatus),
	}
}

func (p *MockProvider) Submit(_ context.Context, job *GenerationJob) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		p.pending = make(map[string]*GenerationStatus)
	}
	p.Submitted = append(p.Submitted, job)

	p.nextID++
	id := fmt.Sprintf("mock-%d", p.nextID)

	if p.FailPanels[job.PanelID] {
		p.pending[id] = &GenerationStatus{State: GenFailed, Error: "mock failure"}
		return id, nil
	}

	url := p.URLs[job.PanelID]
	if url == "" {
		url = "data:image/png;base64," + fallback.PlaceholderBase64()
	}
	p.pending[id] = &GenerationStatus{State: GenComplete, ImageURLs: []string{url}}
	return id, nil
}

func (p *MockProvider) Status(_ context.Context, generationID string) (*GenerationStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.pending[generationID]
	if !ok {
		return nil, fmt.Errorf("unknown generation id %s", generationID)
	}
	return status, nil
}
