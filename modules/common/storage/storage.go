package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"comicgen-server/modules/common/config"
)

// Uploader stores generated images under deterministic object paths and
// returns public URLs. Uploads are upserts so regenerating a panel replaces
// the previous file at the same path.
type Uploader interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
}

// PanelObjectPath returns the canonical storage path for a panel image.
func PanelObjectPath(projectID string, panelIndex int) string {
	return fmt.Sprintf("panels/%s/panel_%d.webp", projectID, panelIndex)
}

// PageObjectPath returns the canonical storage path for a composed page.
func PageObjectPath(projectID string, pageNumber int) string {
	return fmt.Sprintf("pages/%s/page_%d.webp", projectID, pageNumber)
}

// SupabaseUploader talks to the Supabase Storage HTTP API directly.
type SupabaseUploader struct {
	httpClient *http.Client
}

func NewSupabaseUploader() *SupabaseUploader {
	return &SupabaseUploader{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (u *SupabaseUploader) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	cfg := config.GetConfig()

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s",
		cfg.SupabaseURL, cfg.SupabaseBucket, objectPath)

	log.Printf("📤 Uploading to storage: %s (%d bytes)", objectPath, len(data))

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	url := publicURL(cfg, objectPath)
	log.Printf("✅ Uploaded: %s", url)
	return url, nil
}

// publicURL prefers the configured storage base (a CDN or custom domain) over
// the project's default public endpoint.
func publicURL(cfg *config.Config, objectPath string) string {
	if base := cfg.SupabaseStorageBaseURL; base != "" {
		return strings.TrimSuffix(base, "/") + "/" + path.Join(cfg.SupabaseBucket, objectPath)
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		cfg.SupabaseURL, cfg.SupabaseBucket, objectPath)
}

// LocalUploader writes objects under a base directory and returns URLs served
// by the static file route. Used in mock mode so the full pipeline runs
// without cloud credentials.
type LocalUploader struct {
	baseDir string
	baseURL string
}

func NewLocalUploader(baseDir, baseURL string) *LocalUploader {
	return &LocalUploader{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (u *LocalUploader) Upload(_ context.Context, objectPath string, data []byte, _ string) (string, error) {
	fullPath := filepath.Join(u.baseDir, filepath.FromSlash(objectPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object %s: %w", objectPath, err)
	}
	log.Printf("📤 Stored locally: %s (%d bytes)", fullPath, len(data))
	return u.baseURL + "/" + path.Clean(objectPath), nil
}
