package panels

import (
	"context"
	"errors"
)

// Generation states reported by providers.
const (
	GenPending  = "PENDING"
	GenComplete = "COMPLETE"
	GenFailed   = "FAILED"
)

// ErrRateLimited is returned by providers on HTTP 429. The worker backs off
// and retries the submission once before declaring the panel failed.
var ErrRateLimited = errors.New("image service rate limited")

// GenerationJob is one panel's generation request.
type GenerationJob struct {
	PanelID          string
	Prompt           string
	Width            int
	Height           int
	Seed             int64
	ContextImageURLs []string
}

// GenerationStatus is a point-in-time view of a submitted generation.
type GenerationStatus struct {
	State     string
	ImageURLs []string
	Error     string
}

// Provider submits generation jobs to an external image model and reports
// their progress. Synchronous backends complete the work inside Submit and
// report COMPLETE on the first Status call.
type Provider interface {
	Submit(ctx context.Context, job *GenerationJob) (string, error)
	Status(ctx context.Context, generationID string) (*GenerationStatus, error)
}
