package comic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"comicgen-server/modules/common/cancel"
	"comicgen-server/modules/common/model"
	"comicgen-server/modules/common/storage"
	"comicgen-server/modules/common/store"
	"comicgen-server/modules/common/utils"
	"comicgen-server/modules/compose"
	"comicgen-server/modules/dialogue"
	"comicgen-server/modules/panels"
	"comicgen-server/modules/story"
)

// ErrInvalidRequest marks validation failures the handler maps to 400.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNoPages marks a pipeline that produced nothing viewable; the handler
// maps it to 500.
var ErrNoPages = errors.New("no pages produced")

const maxPageCount = 6
const defaultPageCount = 3

// Coordinator runs the full pipeline: structure the story, generate panel
// art, write the dialogue layer, compose and upload pages. The project
// document is persisted after every stage.
type Coordinator struct {
	store      *store.Store
	structurer *story.Structurer
	panelsW    *panels.Worker
	dialogueG  *dialogue.Generator
	composer   *compose.Composer
	uploader   storage.Uploader
	cancels    cancel.Manager
}

func NewCoordinator(
	st *store.Store,
	structurer *story.Structurer,
	panelsW *panels.Worker,
	dialogueG *dialogue.Generator,
	composer *compose.Composer,
	uploader storage.Uploader,
	cancels cancel.Manager,
) *Coordinator {
	return &Coordinator{
		store:      st,
		structurer: structurer,
		panelsW:    panelsW,
		dialogueG:  dialogueG,
		composer:   composer,
		uploader:   uploader,
		cancels:    cancels,
	}
}

// Generate runs the pipeline end to end for a fresh project.
func (c *Coordinator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	pageCount := req.PageCount
	if pageCount == 0 {
		pageCount = defaultPageCount
	}
	if pageCount < 1 || pageCount > maxPageCount {
		return nil, fmt.Errorf("%w: pageCount must be between 1 and %d", ErrInvalidRequest, maxPageCount)
	}

	project := &model.Project{
		ID:             "proj_" + uuid.NewString(),
		UserPrompt:     req.Prompt,
		Genre:          req.Genre,
		Style:          req.ArtStyle,
		Tone:           req.Tone,
		TargetAudience: req.TargetAudience,
		PageCount:      pageCount,
		Status:         model.StatusProcessing,
	}
	if err := c.store.Save(project); err != nil {
		return nil, err
	}
	defer c.cancels.Clear(context.WithoutCancel(ctx), project.ID)

	log.Printf("🎬 Pipeline started: %s (%d pages)", project.ID, pageCount)

	// stage 1: story structure
	if err := c.structurer.Structure(ctx, project); err != nil {
		return c.fail(project, err)
	}
	if len(project.Panels) == 0 {
		return c.fail(project, fmt.Errorf("structurer produced no panels"))
	}
	if err := c.store.Save(project); err != nil {
		return nil, err
	}
	if c.cancelled(ctx, project) {
		return c.cancelledResponse(project), nil
	}

	// stage 2: panel artwork
	batch := c.panelsW.GenerateAll(ctx, project)
	if err := c.store.Save(project); err != nil {
		return nil, err
	}
	if batch.Cancelled || c.cancelled(ctx, project) {
		return c.cancelledResponse(project), nil
	}
	if batch.SuccessfulPanels == 0 && len(batch.FailedPanelIDs) > 0 {
		resp, err := c.fail(project, fmt.Errorf("%w: every panel generation failed", ErrNoPages))
		if resp != nil {
			resp.Errors = batch.Errors
		}
		return resp, err
	}

	var warnings []string

	// stage 3: dialogue layer; a failure here degrades, never aborts
	if result, err := c.dialogueG.Generate(ctx, project); err != nil {
		log.Printf("⚠️ Dialogue stage failed, composing without text: %v", err)
		warnings = append(warnings, "dialogue generation failed: "+err.Error())
	} else {
		warnings = append(warnings, result.Warnings...)
	}
	if err := c.store.Save(project); err != nil {
		return nil, err
	}
	if c.cancelled(ctx, project) {
		return c.cancelledResponse(project), nil
	}

	// stage 4: composition and page upload
	pages, err := c.composer.ComposePages(ctx, project)
	if err != nil {
		return c.fail(project, fmt.Errorf("composition failed: %w", err))
	}
	pageRefs, err := c.uploadPages(ctx, project, pages)
	if err != nil {
		return c.fail(project, err)
	}
	if len(pageRefs) == 0 {
		return c.fail(project, ErrNoPages)
	}

	project.Status = model.StatusCompleted
	if err := c.store.Save(project); err != nil {
		return nil, err
	}

	log.Printf("🎉 Pipeline completed: %s (%d pages, %d failed panels)",
		project.ID, len(pageRefs), len(batch.FailedPanelIDs))

	return &GenerateResponse{
		Success:   true,
		ProjectID: project.ID,
		Status:    project.Status,
		Title:     project.Title,
		Pages:     pageRefs,
		Errors:    batch.Errors,
		Warnings:  warnings,
	}, nil
}

// Regenerate re-runs generation for the named panels only and persists the
// merged URLs. Every other panel is untouched.
func (c *Coordinator) Regenerate(ctx context.Context, req *RegenerateRequest) (*panels.BatchResult, error) {
	ids := model.ParsePanelIDList(req.PanelIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: panelIds is required", ErrInvalidRequest)
	}

	projectID := req.ProjectID
	if projectID == "" {
		latest, err := c.store.LatestID()
		if err != nil {
			return nil, fmt.Errorf("no project to regenerate: %w", err)
		}
		projectID = latest
	}

	project, err := c.store.Load(projectID)
	if err != nil {
		return nil, err
	}

	log.Printf("🔁 Regenerating %d panels of %s", len(ids), projectID)
	result := c.panelsW.Regenerate(ctx, project, ids)

	// Failed attempts still record fresh seeds; only an all-skipped batch
	// leaves the document untouched.
	if result.SuccessfulPanels > 0 || len(result.FailedPanelIDs) > 0 {
		if err := c.store.Save(project); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Cancel flags a running pipeline for the given project.
func (c *Coordinator) Cancel(ctx context.Context, projectID string) error {
	if _, err := c.store.Load(projectID); err != nil {
		return err
	}
	return c.cancels.RequestCancel(ctx, projectID)
}

// Project exposes the stored document.
func (c *Coordinator) Project(projectID string) (*model.Project, error) {
	return c.store.Load(projectID)
}

func (c *Coordinator) uploadPages(ctx context.Context, project *model.Project, pages []compose.PageImage) ([]PageRef, error) {
	var refs []PageRef
	project.PageURLs = nil
	for _, page := range pages {
		webpData, err := utils.ConvertPNGToWebP(page.Data, 90.0)
		if err != nil {
			return nil, fmt.Errorf("page %d conversion failed: %w", page.PageNumber, err)
		}
		url, err := c.uploader.Upload(ctx, storage.PageObjectPath(project.ID, page.PageNumber), webpData, "image/webp")
		if err != nil {
			return nil, fmt.Errorf("page %d upload failed: %w", page.PageNumber, err)
		}
		project.PageURLs = append(project.PageURLs, url)
		refs = append(refs, PageRef{Page: page.PageNumber, URL: url})
	}
	return refs, nil
}

func (c *Coordinator) cancelled(ctx context.Context, project *model.Project) bool {
	if !c.cancels.IsCancelled(ctx, project.ID) {
		return false
	}
	project.Status = model.StatusUserCancelled
	if err := c.store.Save(project); err != nil {
		log.Printf("⚠️ Failed to persist cancelled project %s: %v", project.ID, err)
	}
	return true
}

func (c *Coordinator) cancelledResponse(project *model.Project) *GenerateResponse {
	project.Status = model.StatusUserCancelled
	if err := c.store.Save(project); err != nil {
		log.Printf("⚠️ Failed to persist cancelled project %s: %v", project.ID, err)
	}
	log.Printf("🛑 Pipeline cancelled: %s", project.ID)
	return &GenerateResponse{
		Success:   false,
		ProjectID: project.ID,
		Status:    model.StatusUserCancelled,
	}
}

// fail persists whatever partial project exists before surfacing the error.
func (c *Coordinator) fail(project *model.Project, cause error) (*GenerateResponse, error) {
	project.Status = model.StatusFailed
	if err := c.store.Save(project); err != nil {
		log.Printf("⚠️ Failed to persist failed project %s: %v", project.ID, err)
	}
	return &GenerateResponse{
		Success:   false,
		ProjectID: project.ID,
		Status:    model.StatusFailed,
	}, cause
}
