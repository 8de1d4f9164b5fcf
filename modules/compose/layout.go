package compose

import (
	"fmt"
	"strconv"
	"strings"

	"comicgen-server/modules/common/model"
)

// Slot positions one panel on a page. Y and H are fractions of the usable
// page height; Size carries the aspect ratio and the dimensions requested
// from the image model; OffsetX nudges the horizontal anchor by a fraction
// of the usable width.
type Slot struct {
	PanelID string
	Size    string // "WxH"
	Y       float64
	H       float64
	Align   string
	OffsetX float64
}

// Template is the set of slots composing one page.
type Template struct {
	PageNumber int
	Slots      []Slot
}

const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// gutter between stacked slots, as a fraction of usable height
const slotGutter = 0.03

// PanelCount returns the number of panels a project of the given page count
// carries: the cover plus enough scene panels to fill the remaining pages.
func PanelCount(pageCount int) int {
	perPage := (6 + pageCount - 1) / pageCount
	return pageCount * perPage
}

// slot sizes by number of panels sharing a page; the aspect ratio doubles as
// the generation request dimensions
var slotSizes = map[int]string{
	1: "1000x1200",
	2: "900x640",
	3: "800x420",
}

// Templates returns the page layouts for a page count. Page 1 is always the
// full-bleed cover holding panel1. The remaining panels are stacked on the
// following pages, larger groups on earlier pages, alternating left/right
// alignment for visual rhythm. Panels beyond the template's capacity stay
// unplaced; a one-page comic is its cover.
func Templates(pageCount int) []Template {
	if pageCount < 1 {
		pageCount = 1
	}

	templates := []Template{{
		PageNumber: 1,
		Slots: []Slot{{
			PanelID: model.CoverPanelID,
			Size:    "1200x1600",
			Y:       0,
			H:       1,
			Align:   AlignCenter,
		}},
	}}
	if pageCount == 1 {
		return templates
	}

	remaining := PanelCount(pageCount) - 1
	pagesLeft := pageCount - 1
	panelIndex := 2

	for page := 2; page <= pageCount; page++ {
		count := (remaining + pagesLeft - 1) / pagesLeft
		remaining -= count
		pagesLeft--

		size, ok := slotSizes[count]
		if !ok {
			size = slotSizes[3]
		}
		slotH := (1.0 - slotGutter*float64(count-1)) / float64(count)

		var slots []Slot
		for i := 0; i < count; i++ {
			align := AlignLeft
			if i%2 == 1 {
				align = AlignRight
			}
			if count == 1 {
				align = AlignCenter
			}
			slots = append(slots, Slot{
				PanelID: model.PanelID(panelIndex),
				Size:    size,
				Y:       float64(i) * (slotH + slotGutter),
				H:       slotH,
				Align:   align,
			})
			panelIndex++
		}
		templates = append(templates, Template{PageNumber: page, Slots: slots})
	}
	return templates
}

// SlotFor finds the slot and page number placing a panel, if any.
func SlotFor(templates []Template, panelID string) (Slot, int, bool) {
	for _, tpl := range templates {
		for _, slot := range tpl.Slots {
			if slot.PanelID == panelID {
				return slot, tpl.PageNumber, true
			}
		}
	}
	return Slot{}, 0, false
}

// ParseSize splits a "WxH" size string into dimensions.
func ParseSize(size string) (int, int, error) {
	parts := strings.SplitN(size, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size %q", size)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: %w", size, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: %w", size, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: dimensions must be positive", size)
	}
	return w, h, nil
}

// PanelDimensions returns the generation dimensions for a panel, derived from
// its layout slot. Unplaced panels fall back to the smallest slot size.
func PanelDimensions(pageCount int, panelID string) (int, int) {
	if slot, _, ok := SlotFor(Templates(pageCount), panelID); ok {
		if w, h, err := ParseSize(slot.Size); err == nil {
			return w, h
		}
	}
	w, h, _ := ParseSize(slotSizes[3])
	return w, h
}
