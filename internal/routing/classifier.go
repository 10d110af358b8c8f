package routing

import (
	"path/filepath"
	"strings"

	"github.com/hpn/caseflow/internal/domain"
)

// Hint describes the task or media being analyzed.
type Hint struct {
	Label          string `json:"label,omitempty"`
	MIMEType       string `json:"mimeType,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	ContainsImages bool   `json:"containsImages,omitempty"`
	ContainsAudio  bool   `json:"containsAudio,omitempty"`
	ContainsVideo  bool   `json:"containsVideo,omitempty"`
}

// Rule maps a matching hint to a category.
type Rule struct {
	Name     string
	Category domain.Category
	Match    func(Hint) bool
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier over rules. With no rules it uses DefaultRules.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// With returns a classifier that tries r before the existing rules.
func (c *Classifier) With(r Rule) *Classifier {
	rules := make([]Rule, 0, len(c.rules)+1)
	rules = append(rules, r)
	rules = append(rules, c.rules...)
	return &Classifier{rules: rules}
}

// Classify returns the category of the first matching rule, or text.
func (c *Classifier) Classify(h Hint) domain.Category {
	for _, r := range c.rules {
		if r.Match(h) {
			return r.Category
		}
	}
	return domain.CategoryText
}

// Classify uses the default rule set.
func Classify(h Hint) domain.Category {
	return defaultClassifier.Classify(h)
}

var defaultClassifier = NewClassifier()

var (
	videoExts = []string{".mp4", ".mov", ".avi", ".mkv", ".m4v", ".wmv", ".3gp", ".mpeg", ".mpg"}
	audioExts = []string{".mp3", ".wav", ".ogg", ".oga", ".opus", ".m4a", ".flac", ".aac", ".wma", ".amr", ".mpga"}
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".heic", ".tiff"}
)

// DefaultRules returns the built-in rules: mixed, video, audio, image.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "mixed",
			Category: domain.CategoryMixed,
			Match: func(h Hint) bool {
				return mediaFlags(h) >= 2 || labelHas(h, "misto", "mixed", "multimodal")
			},
		},
		{
			Name:     "video",
			Category: domain.CategoryVideo,
			Match: func(h Hint) bool {
				return h.ContainsVideo || mimeHas(h, "video/") || extIn(h, videoExts) ||
					labelHas(h, "vídeo", "video")
			},
		},
		{
			Name:     "audio",
			Category: domain.CategoryAudio,
			Match: func(h Hint) bool {
				return h.ContainsAudio || mimeHas(h, "audio/") || extIn(h, audioExts) ||
					labelHas(h, "áudio", "audio", "transcri", "gravação", "gravacao", "voz", "voice")
			},
		},
		{
			Name:     "image",
			Category: domain.CategoryImage,
			Match: func(h Hint) bool {
				return h.ContainsImages || mimeHas(h, "image/") || extIn(h, imageExts) ||
					labelHas(h, "imagem", "image", "foto", "photo", "screenshot", "print")
			},
		},
	}
}

func mediaFlags(h Hint) int {
	n := 0
	for _, f := range []bool{h.ContainsImages, h.ContainsAudio, h.ContainsVideo} {
		if f {
			n++
		}
	}
	return n
}

func labelHas(h Hint, words ...string) bool {
	label := strings.ToLower(h.Label)
	for _, w := range words {
		if strings.Contains(label, w) {
			return true
		}
	}
	return false
}

func mimeHas(h Hint, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(h.MIMEType), prefix)
}

func extIn(h Hint, exts []string) bool {
	if h.FileName == "" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(h.FileName))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
