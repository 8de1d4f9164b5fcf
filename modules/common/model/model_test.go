package model

import (
	"reflect"
	"testing"
)

func TestPanelIDRoundTrip(t *testing.T) {
	for _, index := range []int{1, 4, 12} {
		if got := PanelIndex(PanelID(index)); got != index {
			t.Errorf("PanelIndex(PanelID(%d)) = %d", index, got)
		}
	}
	for _, bad := range []string{"", "panel", "panelX", "char_1", "panel-3"} {
		if got := PanelIndex(bad); got != -1 {
			t.Errorf("PanelIndex(%q) = %d, want -1", bad, got)
		}
	}
}

func TestParsePanelIDList(t *testing.T) {
	got := ParsePanelIDList(" panel4, panel7 ,panel4,, panel2")
	want := []string{"panel4", "panel7", "panel2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePanelIDList = %v, want %v", got, want)
	}
	if got := ParsePanelIDList("   "); got != nil {
		t.Errorf("blank input = %v, want nil", got)
	}
}

func TestClampPanelDim(t *testing.T) {
	if v, ok := ClampPanelDim(800); v != 800 || !ok {
		t.Errorf("ClampPanelDim(800) = %d, %v", v, ok)
	}
	if v, ok := ClampPanelDim(50); v != MinPanelDim || ok {
		t.Errorf("ClampPanelDim(50) = %d, %v", v, ok)
	}
	if v, ok := ClampPanelDim(5000); v != MaxPanelDim || ok {
		t.Errorf("ClampPanelDim(5000) = %d, %v", v, ok)
	}
}

func TestIsCoverAndComplete(t *testing.T) {
	cover := &Panel{ID: CoverPanelID}
	if !cover.IsCover() {
		t.Error("panel1 must be the cover")
	}
	if cover.IsComplete() {
		t.Error("panel without URL must not be complete")
	}
	cover.GeneratedImageURL = "https://example.com/x.webp"
	if !cover.IsComplete() {
		t.Error("panel with URL must be complete")
	}
}

func TestProjectLookups(t *testing.T) {
	project := &Project{
		Characters: []*Character{{ID: "char_1", Name: "Vera"}},
		Panels:     []*Panel{{ID: "panel1"}, {ID: "panel2"}},
	}
	if project.PanelByID("panel2") == nil || project.PanelByID("panel9") != nil {
		t.Error("PanelByID lookup broken")
	}
	if !project.HasCharacter("char_1") || project.HasCharacter("char_2") {
		t.Error("HasCharacter lookup broken")
	}
}
