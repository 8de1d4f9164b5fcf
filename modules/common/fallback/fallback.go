package fallback

import "strings"

const transparentPixelBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mP8/x8AAwMB/6X+ZQAAAABJRU5ErkJggg=="

// PlaceholderBase64 returns a 1x1 transparent PNG in base64 for panels that
// have no generated image yet.
func PlaceholderBase64() string {
	return transparentPixelBase64
}

// SafeString returns a trimmed string or the provided fallback. LLM responses
// are decoded into interface maps whose values are not always strings.
func SafeString(value interface{}, fallback string) string {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s != "" {
			return s
		}
	}
	return fallback
}
