package panels

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"comicgen-server/modules/common/cancel"
	"comicgen-server/modules/common/config"
	"comicgen-server/modules/common/model"
	"comicgen-server/modules/common/storage"
	"comicgen-server/modules/common/utils"
)

const seedBase = 42
const seedSalt = 1000

// PanelError names a panel that failed and why.
type PanelError struct {
	PanelID string `json:"panelId"`
	Message string `json:"message"`
}

// BatchResult reports the outcome of one generation batch.
type BatchResult struct {
	Success          bool              `json:"success"`
	Cancelled        bool              `json:"cancelled,omitempty"`
	TotalRequested   int               `json:"totalRequested"`
	SuccessfulPanels int               `json:"successfulPanels"`
	FailedPanelIDs   []string          `json:"failedPanelIds"`
	SkippedPanelIDs  []string          `json:"skippedPanelIds,omitempty"`
	SourceMap        map[string]string `json:"sourceMap"`
	Errors           []PanelError      `json:"errors,omitempty"`
}

// Worker runs panel generations through the provider state machine:
// submit → poll → download → upload. Panels are processed sequentially,
// paced by a rate limiter so batches stay inside the image service's budget.
type Worker struct {
	provider  Provider
	uploader  storage.Uploader
	cancels   cancel.Manager
	limiter   *rate.Limiter
	download  *resty.Client
	pollEvery time.Duration
	maxPolls  int

	// passthrough stores provider URLs directly instead of re-hosting them;
	// set in mock mode so pre-canned fixture URLs survive verbatim.
	passthrough bool
}

func NewWorker(provider Provider, uploader storage.Uploader, cancels cancel.Manager, cfg *config.Config) *Worker {
	return &Worker{
		provider:  provider,
		uploader:  uploader,
		cancels:   cancels,
		limiter:   rate.NewLimiter(rate.Every(cfg.PanelDelay), 1),
		download:  resty.New().SetTimeout(60 * time.Second),
		pollEvery: cfg.PollInterval,
		maxPolls:  cfg.MaxPollAttempts,

		passthrough: cfg.MockMode,
	}
}

// GenerateAll generates every panel that does not yet have an image.
func (w *Worker) GenerateAll(ctx context.Context, project *model.Project) *BatchResult {
	var ids []string
	for _, panel := range project.Panels {
		ids = append(ids, panel.ID)
	}
	return w.generate(ctx, project, ids, false)
}

// Regenerate re-runs only the named panels, with fresh seeds. Unknown ids are
// reported as skipped; completed panels in the set are regenerated anyway
// since the request named them explicitly.
func (w *Worker) Regenerate(ctx context.Context, project *model.Project, panelIDs []string) *BatchResult {
	return w.generate(ctx, project, panelIDs, true)
}

func (w *Worker) generate(ctx context.Context, project *model.Project, panelIDs []string, regen bool) *BatchResult {
	result := &BatchResult{
		TotalRequested: len(panelIDs),
		SourceMap:      make(map[string]string),
	}

	for _, id := range panelIDs {
		if w.cancels.IsCancelled(ctx, project.ID) {
			log.Printf("🛑 Batch cancelled for project %s, stopping before %s", project.ID, id)
			result.Cancelled = true
			break
		}

		panel := project.PanelByID(id)
		if panel == nil {
			log.Printf("⚠️ Unknown panel id %s, skipping", id)
			result.SkippedPanelIDs = append(result.SkippedPanelIDs, id)
			continue
		}
		if !regen && panel.IsComplete() {
			result.SkippedPanelIDs = append(result.SkippedPanelIDs, id)
			continue
		}

		url, err := w.generateOne(ctx, project, panel, regen)
		if err != nil {
			log.Printf("❌ Panel %s failed: %v", id, err)
			result.FailedPanelIDs = append(result.FailedPanelIDs, id)
			result.Errors = append(result.Errors, PanelError{PanelID: id, Message: err.Error()})
			continue
		}

		panel.GeneratedImageURL = url
		result.SuccessfulPanels++
		result.SourceMap[id] = url
	}

	result.Success = result.SuccessfulPanels > 0 || result.TotalRequested == 0
	return result
}

// generateOne walks a single panel through submit, poll, download and upload.
func (w *Worker) generateOne(ctx context.Context, project *model.Project, panel *model.Panel, regen bool) (string, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return "", err
	}

	seed := nextSeed(panel, regen)
	job := &GenerationJob{
		PanelID:          panel.ID,
		Prompt:           panel.Prompt,
		Width:            panel.Width,
		Height:           panel.Height,
		Seed:             seed,
		ContextImageURLs: contextImageURLs(project, panel),
	}

	generationID, err := w.submitWithBackoff(ctx, job)
	if err != nil {
		return "", err
	}
	panel.Seed = seed

	status, err := w.poll(ctx, generationID)
	if err != nil {
		return "", err
	}

	sourceURL := status.ImageURLs[0]
	if w.passthrough {
		log.Printf("✅ Panel %s resolved (passthrough)", panel.ID)
		return sourceURL, nil
	}

	data, err := w.fetchImage(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}

	webpData, err := utils.ConvertImageToWebP(data, 90.0)
	if err != nil {
		return "", fmt.Errorf("webp conversion failed: %w", err)
	}

	objectPath := storage.PanelObjectPath(project.ID, model.PanelIndex(panel.ID))
	url, err := w.uploader.Upload(ctx, objectPath, webpData, "image/webp")
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	log.Printf("✅ Panel %s generated: %s", panel.ID, url)
	return url, nil
}

// submitWithBackoff retries a rate-limited submission once after a double
// poll interval.
func (w *Worker) submitWithBackoff(ctx context.Context, job *GenerationJob) (string, error) {
	generationID, err := w.provider.Submit(ctx, job)
	if errors.Is(err, ErrRateLimited) {
		log.Printf("⚠️ Rate limited submitting %s, backing off %s", job.PanelID, 2*w.pollEvery)
		select {
		case <-time.After(2 * w.pollEvery):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		generationID, err = w.provider.Submit(ctx, job)
	}
	return generationID, err
}

// poll queries generation status until it completes, fails, or the attempt
// budget runs out. A timeout is a per-panel failure, never a batch failure.
func (w *Worker) poll(ctx context.Context, generationID string) (*GenerationStatus, error) {
	retriedRateLimit := false
	for attempt := 0; attempt < w.maxPolls; attempt++ {
		status, err := w.provider.Status(ctx, generationID)
		if errors.Is(err, ErrRateLimited) && !retriedRateLimit {
			retriedRateLimit = true
			select {
			case <-time.After(2 * w.pollEvery):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		switch status.State {
		case GenComplete:
			if len(status.ImageURLs) == 0 {
				return nil, fmt.Errorf("generation %s complete with no images", generationID)
			}
			return status, nil
		case GenFailed:
			return nil, fmt.Errorf("generation %s failed: %s", generationID, status.Error)
		}

		select {
		case <-time.After(w.pollEvery):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("generation %s timed out after %d polls", generationID, w.maxPolls)
}

func (w *Worker) fetchImage(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "data:") {
		return utils.DecodeDataURI(url)
	}
	resp, err := w.download.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("image fetch returned %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// nextSeed is deterministic for initial generation so re-runs reproduce, and
// randomised for regeneration so retries explore a different point. The new
// seed is never the one already recorded on the panel.
func nextSeed(panel *model.Panel, regen bool) int64 {
	index := model.PanelIndex(panel.ID)
	base := int64(seedBase + index*seedSalt)
	if !regen {
		return base
	}
	for {
		seed := base + rand.Int63n(1_000_000) + 1
		if seed != panel.Seed {
			return seed
		}
	}
}

// contextImageURLs resolves a panel's context references to the URLs of
// already generated panels. References always point at earlier panels.
func contextImageURLs(project *model.Project, panel *model.Panel) []string {
	var urls []string
	for _, id := range panel.ContextPanelIDs {
		ref := project.PanelByID(id)
		if ref != nil && ref.IsComplete() {
			urls = append(urls, ref.GeneratedImageURL)
		}
	}
	return urls
}
