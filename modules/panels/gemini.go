package panels

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"

	"comicgen-server/modules/common/config"
)

// GeminiProvider generates panels synchronously through the Gemini API.
// Submit blocks for the full generation; the resulting image is held as a
// data URI and handed out on the first Status call.
type GeminiProvider struct {
	client *genai.Client
	model  string

	mu      sync.Mutex
	results map[string]*GenerationStatus
	nextID  int
}

func NewGeminiProvider(ctx context.Context, cfg *config.Config) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{
		client:  client,
		model:   cfg.GeminiImageModel,
		results: make(map[string]*GenerationStatus),
	}, nil
}

func (p *GeminiProvider) Submit(ctx context.Context, job *GenerationJob) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(job.Prompt),
	}
	content := &genai.Content{Parts: parts}

	log.Printf("📤 Generating %s via Gemini (%dx%d)", job.PanelID, job.Width, job.Height)
	result, err := p.client.Models.GenerateContent(
		ctx,
		p.model,
		[]*genai.Content{content},
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				AspectRatio: aspectRatioFor(job.Width, job.Height),
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	var imageData []byte
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				imageData = part.InlineData.Data
				break
			}
		}
		if imageData != nil {
			break
		}
	}
	if imageData == nil {
		return "", fmt.Errorf("no image data in gemini response")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("gemini-%d", p.nextID)
	p.results[id] = &GenerationStatus{
		State:     GenComplete,
		ImageURLs: []string{"data:image/png;base64," + base64.StdEncoding.EncodeToString(imageData)},
	}
	return id, nil
}

func (p *GeminiProvider) Status(_ context.Context, generationID string) (*GenerationStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.results[generationID]
	if !ok {
		return nil, fmt.Errorf("unknown generation id %s", generationID)
	}
	delete(p.results, generationID)
	return status, nil
}

// aspectRatioFor snaps panel dimensions to the ratios the API accepts.
func aspectRatioFor(width, height int) string {
	if height == 0 {
		return "1:1"
	}
	ratio := float64(width) / float64(height)
	switch {
	case ratio > 1.5:
		return "16:9"
	case ratio > 1.15:
		return "4:3"
	case ratio > 0.85:
		return "1:1"
	case ratio > 0.65:
		return "3:4"
	default:
		return "9:16"
	}
}
