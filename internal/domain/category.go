package domain

import (
	"fmt"
	"strings"
)

// Category is a content category. It is both a capability tag and a routing key.
type Category string

const (
	CategoryText  Category = "text"
	CategoryImage Category = "image"
	CategoryAudio Category = "audio"
	CategoryVideo Category = "video"
	CategoryMixed Category = "mixed"
)

// Categories returns the closed category set in canonical order.
func Categories() []Category {
	return []Category{CategoryText, CategoryImage, CategoryAudio, CategoryVideo, CategoryMixed}
}

var categoryTokens = map[Category]string{
	CategoryText:  "texto",
	CategoryImage: "imagem",
	CategoryAudio: "audio",
	CategoryVideo: "video",
	CategoryMixed: "misto",
}

// Token returns the persisted token for c.
func (c Category) Token() string {
	return categoryTokens[c]
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryTokens[c]
	return ok
}

// ParseCategory accepts either the English name or the persisted token.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, tok := range categoryTokens {
		if s == string(c) || s == tok {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown content category %q", s)
}
