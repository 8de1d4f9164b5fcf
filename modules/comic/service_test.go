package comic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"comicgen-server/modules/common/cancel"
	"comicgen-server/modules/common/config"
	"comicgen-server/modules/common/fallback"
	"comicgen-server/modules/common/llm"
	"comicgen-server/modules/common/model"
	"comicgen-server/modules/common/storage"
	"comicgen-server/modules/common/store"
	"comicgen-server/modules/compose"
	"comicgen-server/modules/dialogue"
	"comicgen-server/modules/panels"
	"comicgen-server/modules/story"
)

func fixtureURL() string {
	return "data:image/png;base64," + fallback.PlaceholderBase64()
}

type testRig struct {
	coordinator *Coordinator
	store       *store.Store
	storeDir    string
	provider    *panels.MockProvider
	cancels     cancel.Manager
}

func newRig(t *testing.T, client llm.Client, provider *panels.MockProvider) *testRig {
	t.Helper()
	cfg := &config.Config{
		MockMode:        true,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 3,
		PanelDelay:      time.Millisecond,
		PageWidth:       600,
		PageHeight:      800,
		PageMargin:      20,
	}

	storeDir := t.TempDir()
	st, err := store.New(storeDir)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	cancels := cancel.NewMemoryManager()
	uploader := storage.NewLocalUploader(t.TempDir(), "/static")

	coordinator := NewCoordinator(
		st,
		story.NewStructurer(client),
		panels.NewWorker(provider, uploader, cancels, cfg),
		dialogue.NewGenerator(client),
		compose.NewComposer(cfg),
		uploader,
		cancels,
	)
	return &testRig{coordinator: coordinator, store: st, storeDir: storeDir, provider: provider, cancels: cancels}
}

func fixtureProvider(n int) *panels.MockProvider {
	urls := make(map[string]string)
	for i := 1; i <= n; i++ {
		urls[model.PanelID(i)] = fixtureURL()
	}
	return panels.NewMockProvider(urls)
}

func TestGenerateMockHappyPath(t *testing.T) {
	rig := newRig(t, &llm.MockClient{}, fixtureProvider(8))

	resp, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{
		Prompt:    "mars astronaut meets hologram",
		PageCount: 3,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !resp.Success || resp.Status != model.StatusCompleted {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(resp.Pages))
	}
	for i, page := range resp.Pages {
		if page.Page != i+1 || page.URL == "" {
			t.Errorf("page ref %d malformed: %+v", i, page)
		}
	}

	project, err := rig.store.Load(resp.ProjectID)
	if err != nil {
		t.Fatalf("project not persisted: %v", err)
	}
	if project.Status != model.StatusCompleted {
		t.Errorf("persisted status = %q", project.Status)
	}
	if len(project.PageURLs) != 3 {
		t.Errorf("persisted page urls = %d", len(project.PageURLs))
	}
}

func TestGenerateCoverInvariants(t *testing.T) {
	rig := newRig(t, &llm.MockClient{}, fixtureProvider(8))

	resp, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{
		Prompt:    "a lighthouse keeper and a sea serpent",
		PageCount: 3,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	project, err := rig.store.Load(resp.ProjectID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cover := project.Panels[0]
	if cover.ID != model.CoverPanelID {
		t.Fatalf("panels[0].id = %q", cover.ID)
	}
	if strings.TrimSpace(cover.Title) == "" {
		t.Error("cover title empty after full pipeline")
	}
	if len(cover.Dialogue) != 0 || cover.Narration != "" {
		t.Errorf("cover carries dialogue/narration: %+v", cover)
	}
}

func TestGenerateValidation(t *testing.T) {
	rig := newRig(t, &llm.MockClient{}, fixtureProvider(8))

	if _, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{Prompt: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty prompt: got %v", err)
	}
	if _, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{Prompt: "x", PageCount: 9}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("pageCount 9: got %v", err)
	}
	if _, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{Prompt: "x", PageCount: -1}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("pageCount -1: got %v", err)
	}
}

func TestGenerateContinuesPastFailedPanels(t *testing.T) {
	provider := fixtureProvider(8)
	provider.FailPanels = map[string]bool{"panel3": true}
	rig := newRig(t, &llm.MockClient{}, provider)

	resp, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{
		Prompt:    "a heist in a floating city",
		PageCount: 2,
	})
	if err != nil {
		t.Fatalf("partial failure must not abort: %v", err)
	}
	if len(resp.Pages) != 2 {
		t.Errorf("pages = %d, want 2", len(resp.Pages))
	}
	if len(resp.Errors) != 1 || resp.Errors[0].PanelID != "panel3" {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestGenerateAllPanelsFailedIsFatal(t *testing.T) {
	provider := panels.NewMockProvider(nil)
	provider.FailPanels = map[string]bool{}
	for i := 1; i <= 8; i++ {
		provider.FailPanels[model.PanelID(i)] = true
	}
	rig := newRig(t, &llm.MockClient{}, provider)

	resp, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{
		Prompt:    "doomed request",
		PageCount: 2,
	})
	if err == nil {
		t.Fatal("expected error when every panel fails")
	}
	if resp == nil || resp.Status != model.StatusFailed {
		t.Fatalf("response = %+v", resp)
	}

	project, loadErr := rig.store.Load(resp.ProjectID)
	if loadErr != nil {
		t.Fatalf("partial project not persisted: %v", loadErr)
	}
	if project.Status != model.StatusFailed {
		t.Errorf("persisted status = %q", project.Status)
	}
}

func TestGenerateSurvivesDialogueFailure(t *testing.T) {
	client := &llm.MockClient{DialogueResponse: "Sure! Here you go: witty banter."}
	rig := newRig(t, client, fixtureProvider(8))

	resp, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{
		Prompt:    "a chess match against a ghost",
		PageCount: 2,
	})
	if err != nil {
		t.Fatalf("dialogue failure must not abort: %v", err)
	}
	if len(resp.Pages) != 2 {
		t.Errorf("pages = %d, want 2", len(resp.Pages))
	}
	if len(resp.Warnings) == 0 {
		t.Error("expected a warning about the dialogue failure")
	}

	project, err := rig.store.Load(resp.ProjectID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !project.DialogueFailed {
		t.Error("dialogue_failed flag not persisted")
	}
}

func TestRegenerateDefaultsToLatestProject(t *testing.T) {
	rig := newRig(t, &llm.MockClient{}, fixtureProvider(8))

	resp, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{
		Prompt:    "a detective who only works at dawn",
		PageCount: 2,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	rig.provider.URLs["panel4"] = "data:image/png;base64,regenerated"
	result, err := rig.coordinator.Regenerate(context.Background(), &RegenerateRequest{
		PanelIDs: "panel4",
	})
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	if result.SuccessfulPanels != 1 {
		t.Fatalf("result = %+v", result)
	}

	project, err := rig.store.Load(resp.ProjectID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := project.PanelByID("panel4").GeneratedImageURL; got != "data:image/png;base64,regenerated" {
		t.Errorf("panel4 url = %q", got)
	}
}

func TestRegenerateAllUnknownIDsDoesNotPersist(t *testing.T) {
	rig := newRig(t, &llm.MockClient{}, fixtureProvider(8))

	resp, err := rig.coordinator.Generate(context.Background(), &GenerateRequest{
		Prompt:    "a gardener who grows constellations",
		PageCount: 2,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	file := filepath.Join(rig.storeDir, resp.ProjectID+".yaml")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(file, past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	result, err := rig.coordinator.Regenerate(context.Background(), &RegenerateRequest{
		PanelIDs: "panel98,panel99",
	})
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	if result.Success {
		t.Error("batch with no resolvable ids must not report success")
	}
	if len(result.SkippedPanelIDs) != 2 {
		t.Errorf("skipped = %v", result.SkippedPanelIDs)
	}

	info, err := os.Stat(file)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if time.Since(info.ModTime()) < 30*time.Minute {
		t.Error("project file was rewritten despite no panels being touched")
	}
}

// alwaysCancelled simulates a user cancelling immediately after submission.
type alwaysCancelled struct{}

func (alwaysCancelled) RequestCancel(context.Context, string) error { return nil }
func (alwaysCancelled) IsCancelled(context.Context, string) bool    { return true }
func (alwaysCancelled) Clear(context.Context, string)               {}

func TestCancelledPipelineReportsUserCancelled(t *testing.T) {
	cfg := &config.Config{
		MockMode:        true,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 3,
		PanelDelay:      time.Millisecond,
		PageWidth:       600,
		PageHeight:      800,
		PageMargin:      20,
	}
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	client := &llm.MockClient{}
	provider := fixtureProvider(8)
	uploader := storage.NewLocalUploader(t.TempDir(), "/static")
	cancels := alwaysCancelled{}

	coordinator := NewCoordinator(
		st,
		story.NewStructurer(client),
		panels.NewWorker(provider, uploader, cancels, cfg),
		dialogue.NewGenerator(client),
		compose.NewComposer(cfg),
		uploader,
		cancels,
	)

	resp, err := coordinator.Generate(context.Background(), &GenerateRequest{
		Prompt:    "cancelled before any artwork",
		PageCount: 2,
	})
	if err != nil {
		t.Fatalf("cancellation must not surface as an error: %v", err)
	}
	if resp.Status != model.StatusUserCancelled {
		t.Fatalf("status = %q, want user_cancelled", resp.Status)
	}
	if len(provider.Submitted) != 0 {
		t.Errorf("cancelled pipeline submitted %d generations", len(provider.Submitted))
	}

	project, err := st.Load(resp.ProjectID)
	if err != nil {
		t.Fatalf("cancelled project not persisted: %v", err)
	}
	if project.Status != model.StatusUserCancelled {
		t.Errorf("persisted status = %q", project.Status)
	}
	if len(project.Panels) == 0 {
		t.Error("structured panels should survive cancellation")
	}
}
