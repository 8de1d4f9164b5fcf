package compose

import (
	"log"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// fontSource hands out faces at arbitrary sizes from one parsed TTF. When no
// font file is configured it degrades to the fixed-size basicfont, which
// keeps composition running in minimal environments.
type fontSource struct {
	ttf *truetype.Font
}

func newFontSource(fontPath string) *fontSource {
	if fontPath == "" {
		log.Printf("⚠️ No font configured, falling back to basicfont")
		return &fontSource{}
	}
	data, err := os.ReadFile(fontPath)
	if err != nil {
		log.Printf("⚠️ Failed to read font %s, falling back to basicfont: %v", fontPath, err)
		return &fontSource{}
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		log.Printf("⚠️ Failed to parse font %s, falling back to basicfont: %v", fontPath, err)
		return &fontSource{}
	}
	log.Printf("✅ Font loaded: %s", fontPath)
	return &fontSource{ttf: parsed}
}

func (s *fontSource) face(size float64) font.Face {
	if s.ttf == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(s.ttf, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
