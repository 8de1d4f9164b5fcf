package compose

import (
	"context"
	"fmt"
	"image/color"
	"log"

	"github.com/fogleman/gg"

	"comicgen-server/modules/common/config"
	"comicgen-server/modules/common/model"
	"comicgen-server/modules/common/utils"
)

// PageImage is one rendered page.
type PageImage struct {
	PageNumber int
	Data       []byte
	Mime       string
}

// textStyle describes one role from the fixed style table. SizeFrac is the
// font size as a fraction of the panel box height.
type textStyle struct {
	SizeFrac float64
	Fill     color.Color
	Stroke   color.Color
	StrokeW  float64
	Shadow   bool
}

var styleTable = map[string]textStyle{
	"title":     {SizeFrac: 0.075, Fill: color.White, Stroke: color.Black, StrokeW: 6, Shadow: true},
	"narration": {SizeFrac: 0.04, Fill: color.White, Stroke: color.Black, StrokeW: 2, Shadow: true},
	"dialogue":  {SizeFrac: 0.035, Fill: color.Black, Stroke: color.White, StrokeW: 1, Shadow: false},
	"sfx":       {SizeFrac: 0.06, Fill: color.RGBA{R: 220, A: 255}, Stroke: color.White, StrokeW: 3, Shadow: true},
}

// Composer renders project pages. It is deterministic: the same project and
// the same fetched images always produce the same bytes.
type Composer struct {
	fonts   *fontSource
	fetcher *Fetcher

	pageW  int
	pageH  int
	margin int
}

func NewComposer(cfg *config.Config) *Composer {
	return &Composer{
		fonts:   newFontSource(cfg.FontPath),
		fetcher: NewFetcher(),
		pageW:   cfg.PageWidth,
		pageH:   cfg.PageHeight,
		margin:  cfg.PageMargin,
	}
}

// ComposePages renders every page of the project's layout. A panel without
// an image gets a labelled placeholder box; a layout slot naming a panel the
// project does not have is fatal.
func (c *Composer) ComposePages(ctx context.Context, project *model.Project) ([]PageImage, error) {
	templates := Templates(project.PageCount)

	for _, tpl := range templates {
		for _, slot := range tpl.Slots {
			if project.PanelByID(slot.PanelID) == nil {
				return nil, fmt.Errorf("layout slot references missing panel %s on page %d", slot.PanelID, tpl.PageNumber)
			}
		}
	}

	var urls []string
	for _, panel := range project.Panels {
		urls = append(urls, panel.GeneratedImageURL)
	}
	c.fetcher.Prefetch(ctx, urls)

	var pages []PageImage
	for _, tpl := range templates {
		page, err := c.composePage(ctx, project, tpl)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	log.Printf("✅ Composed %d pages for project %s", len(pages), project.ID)
	return pages, nil
}

type panelBox struct {
	X, Y, W, H float64
}

// slotBox applies the placement rules: vertical position from the slot's
// fractional y/h over the usable area, width from the slot's aspect ratio,
// horizontal anchor from its alignment plus offset.
func (c *Composer) slotBox(slot Slot) (panelBox, error) {
	m := float64(c.margin)
	usableW := float64(c.pageW) - 2*m
	usableH := float64(c.pageH) - 2*m

	pw, ph, err := ParseSize(slot.Size)
	if err != nil {
		return panelBox{}, err
	}
	pw, ph = clampDim(slot.PanelID, pw), clampDim(slot.PanelID, ph)

	y := m + slot.Y*usableH
	boxH := slot.H * usableH
	boxW := boxH * float64(pw) / float64(ph)
	if boxW > usableW {
		boxW = usableW
	}

	var x float64
	switch slot.Align {
	case AlignLeft:
		x = m
	case AlignRight:
		x = float64(c.pageW) - m - boxW
	default:
		x = m + (usableW-boxW)/2
	}
	x += slot.OffsetX * usableW

	return panelBox{X: x, Y: y, W: boxW, H: boxH}, nil
}

func clampDim(panelID string, v int) int {
	clamped, ok := model.ClampPanelDim(v)
	if !ok {
		log.Printf("⚠️ Panel %s dimension %d out of bounds, clamped to %d", panelID, v, clamped)
	}
	return clamped
}

func (c *Composer) composePage(ctx context.Context, project *model.Project, tpl Template) (PageImage, error) {
	if c.pageW <= 0 || c.pageH <= 0 {
		return PageImage{}, fmt.Errorf("invalid canvas size %dx%d", c.pageW, c.pageH)
	}
	dc := gg.NewContext(c.pageW, c.pageH)
	dc.SetColor(color.White)
	dc.Clear()

	for _, slot := range tpl.Slots {
		panel := project.PanelByID(slot.PanelID)
		box, err := c.slotBox(slot)
		if err != nil {
			return PageImage{}, err
		}

		c.drawPanelImage(ctx, dc, panel, box)
		c.drawPanelText(dc, panel, box)
	}

	data, err := utils.EncodePNG(dc.Image())
	if err != nil {
		return PageImage{}, err
	}
	return PageImage{PageNumber: tpl.PageNumber, Data: data, Mime: "image/png"}, nil
}

func (c *Composer) drawPanelImage(ctx context.Context, dc *gg.Context, panel *model.Panel, box panelBox) {
	w, h := int(box.W), int(box.H)

	if panel.GeneratedImageURL == "" {
		c.drawPlaceholder(dc, panel.ID, box)
	} else {
		img, err := c.fetcher.Fetch(ctx, panel.GeneratedImageURL)
		if err != nil {
			log.Printf("⚠️ Panel %s image unavailable, drawing placeholder: %v", panel.ID, err)
			c.drawPlaceholder(dc, panel.ID, box)
		} else {
			dc.DrawImage(utils.ScaleToFill(img, w, h), int(box.X), int(box.Y))
		}
	}

	dc.SetColor(color.Black)
	dc.SetLineWidth(2)
	dc.DrawRectangle(box.X, box.Y, box.W, box.H)
	dc.Stroke()
}

func (c *Composer) drawPlaceholder(dc *gg.Context, panelID string, box panelBox) {
	dc.SetColor(color.RGBA{R: 230, G: 230, B: 230, A: 255})
	dc.DrawRectangle(box.X, box.Y, box.W, box.H)
	dc.Fill()

	dc.SetFontFace(c.fonts.face(box.H * styleTable["narration"].SizeFrac))
	dc.SetColor(color.RGBA{R: 120, G: 120, B: 120, A: 255})
	dc.DrawStringAnchored(panelID, box.X+box.W/2, box.Y+box.H/2, 0.5, 0.5)
}

func (c *Composer) drawPanelText(dc *gg.Context, panel *model.Panel, box panelBox) {
	if panel.IsCover() {
		if panel.Title != "" {
			c.drawStyled(dc, panel.Title, "title", box, box.X+box.W/2, box.Y+0.1*box.H)
		}
		return
	}

	if panel.Narration != "" {
		c.drawStyled(dc, panel.Narration, "narration", box, box.X+box.W/2, box.Y+0.9*box.H)
	}

	for i, line := range panel.Dialogue {
		x := box.X + line.X*box.W
		y := box.Y + line.Y*box.H
		if line.X == 0 && line.Y == 0 {
			// no placement from the LLM: stack lines below the top edge
			x = box.X + box.W/2
			y = box.Y + (0.15+0.12*float64(i))*box.H
		}
		c.drawStyled(dc, line.Text, "dialogue", box, x, y)
	}
}

// drawStyled renders text with the stroke and shadow of its style role.
// Stroke is emulated by drawing the text offset around a ring, shadow by a
// translucent draw below-right, both before the fill.
func (c *Composer) drawStyled(dc *gg.Context, text, role string, box panelBox, x, y float64) {
	style := styleTable[role]
	size := box.H * style.SizeFrac
	dc.SetFontFace(c.fonts.face(size))

	wrapWidth := box.W * 0.9

	if style.Shadow {
		dc.SetColor(color.RGBA{A: 128})
		c.drawWrapped(dc, text, x+size*0.06+2, y+size*0.06+2, wrapWidth)
	}

	if style.StrokeW > 0 {
		dc.SetColor(style.Stroke)
		r := style.StrokeW
		for _, offset := range [][2]float64{
			{-r, 0}, {r, 0}, {0, -r}, {0, r},
			{-r, -r}, {-r, r}, {r, -r}, {r, r},
		} {
			c.drawWrapped(dc, text, x+offset[0], y+offset[1], wrapWidth)
		}
	}

	dc.SetColor(style.Fill)
	c.drawWrapped(dc, text, x, y, wrapWidth)
}

func (c *Composer) drawWrapped(dc *gg.Context, text string, x, y, width float64) {
	dc.DrawStringWrapped(text, x, y, 0.5, 0.5, width, 1.3, gg.AlignCenter)
}
