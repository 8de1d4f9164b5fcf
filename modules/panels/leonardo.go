package panels

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"comicgen-server/modules/common/config"
)

// LeonardoProvider drives the Leonardo.ai REST API: submit a generation,
// then poll until the images are ready.
type LeonardoProvider struct {
	client *resty.Client
}

func NewLeonardoProvider(cfg *config.Config) *LeonardoProvider {
	client := resty.New().
		SetBaseURL(cfg.ImageAPIURL).
		SetAuthToken(cfg.ImageAPIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(60 * time.Second)
	return &LeonardoProvider{client: client}
}

type leonardoSubmitResponse struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type leonardoStatusResponse struct {
	GenerationsByPK struct {
		Status          string `json:"status"`
		GeneratedImages []struct {
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}

func (p *LeonardoProvider) Submit(ctx context.Context, job *GenerationJob) (string, error) {
	body := map[string]interface{}{
		"prompt":     job.Prompt,
		"width":      job.Width,
		"height":     job.Height,
		"num_images": 1,
	}
	if job.Seed != 0 {
		body["seed"] = job.Seed
	}
	if len(job.ContextImageURLs) > 0 {
		// context images condition the model for character continuity
		body["init_image_urls"] = job.ContextImageURLs
	}

	var result leonardoSubmitResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/generations")
	if err != nil {
		return "", fmt.Errorf("generation submit failed: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.IsError() {
		return "", fmt.Errorf("generation submit returned %d: %s", resp.StatusCode(), resp.String())
	}
	if result.SDGenerationJob.GenerationID == "" {
		return "", fmt.Errorf("generation submit returned no generation id")
	}

	log.Printf("🚀 Generation submitted for %s: %s", job.PanelID, result.SDGenerationJob.GenerationID)
	return result.SDGenerationJob.GenerationID, nil
}

func (p *LeonardoProvider) Status(ctx context.Context, generationID string) (*GenerationStatus, error) {
	var result leonardoStatusResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/generations/" + generationID)
	if err != nil {
		return nil, fmt.Errorf("status query failed: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status query returned %d: %s", resp.StatusCode(), resp.String())
	}

	gen := result.GenerationsByPK
	status := &GenerationStatus{}
	switch gen.Status {
	case "COMPLETE":
		status.State = GenComplete
		for _, img := range gen.GeneratedImages {
			if img.URL != "" {
				status.ImageURLs = append(status.ImageURLs, img.URL)
			}
		}
		if len(status.ImageURLs) == 0 {
			status.State = GenFailed
			status.Error = "generation complete but no image URLs"
		}
	case "FAILED":
		status.State = GenFailed
		status.Error = "generation failed upstream"
	default:
		status.State = GenPending
	}
	return status, nil
}
