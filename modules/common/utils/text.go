package utils

import (
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractFencedJSON returns the contents of the first fenced code block, or
// "" when the text has none.
func ExtractFencedJSON(text string) string {
	m := fencedBlockRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// FirstJSONArray returns the first balanced [ ... ] block, or "".
func FirstJSONArray(text string) string {
	return firstBalanced(text, '[', ']')
}

// FirstJSONObject returns the first balanced { ... } block, or "".
func FirstJSONObject(text string) string {
	return firstBalanced(text, '{', '}')
}

func firstBalanced(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// TruncateWords trims a sentence to at most n words.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
