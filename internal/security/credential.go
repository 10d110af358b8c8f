package security

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaskRune is the bullet used when displaying stored credentials.
const MaskRune = '•'

// MinCredentialLength is the shortest credential considered plausible.
const MinCredentialLength = 10

var maskMarkers = []string{"•", "●", "∙", "·", "…", "..."}

var (
	starRun = regexp.MustCompile(`\*{3,}`)
	xRun    = regexp.MustCompile(`(?i)x{6,}`)
)

var placeholders = []string{
	"your-api-key",
	"your_api_key",
	"yourapikey",
	"your-key-here",
	"<api-key>",
	"<api_key>",
	"api-key-here",
	"insert-key",
	"placeholder",
	"changeme",
	"redacted",
}

// LooksMasked reports whether key is a display mask or a well-known
// placeholder rather than a real credential.
func LooksMasked(key string) bool {
	for _, m := range maskMarkers {
		if strings.Contains(key, m) {
			return true
		}
	}
	if starRun.MatchString(key) || xRun.MatchString(key) {
		return true
	}
	lower := strings.ToLower(key)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsPlausibleCredential reports whether key is long enough to be real.
func IsPlausibleCredential(key string) bool {
	return utf8.RuneCountInString(key) >= MinCredentialLength
}

// MaskCredential renders key for display as four bullets plus the last four
// characters. Short keys are fully masked.
func MaskCredential(key string) string {
	if key == "" {
		return ""
	}
	mask := strings.Repeat(string(MaskRune), 4)
	runes := []rune(key)
	if len(runes) <= 8 {
		return mask
	}
	return mask + string(runes[len(runes)-4:])
}
