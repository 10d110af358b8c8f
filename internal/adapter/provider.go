// Package adapter provides implementations for external AI provider integrations.
// It uses the Adapter pattern to abstract provider-specific APIs behind a common interface.
package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hpn/caseflow/internal/domain"
)

// Adapter translates a prompt into one vendor's wire request and normalizes the
// vendor's response. Exactly one Adapter exists per provider.
type Adapter interface {
	// BuildRequest returns a ready-to-send request, credentials included.
	BuildRequest(ctx context.Context, prompt string, cfg domain.ProviderConfig) (*http.Request, error)

	// ParseResponse extracts the flat text of a 2xx response body.
	ParseResponse(body []byte) (string, *domain.Failure)

	// ErrorMessage extracts the provider-supplied message from an error body.
	ErrorMessage(body []byte) string
}

// AudioInput is an audio payload ready for a transcription endpoint.
type AudioInput struct {
	FileName    string
	ContentType string
	Data        []byte
	Prompt      string
}

// Transcriber is implemented by adapters whose vendor exposes speech-to-text.
type Transcriber interface {
	BuildTranscription(ctx context.Context, in AudioInput, cfg domain.ProviderConfig) (*http.Request, error)
	ParseTranscription(body []byte) (string, *domain.Failure)
	TranscriptionModel(cfg domain.ProviderConfig) string
}

// Default vendor endpoints.
const (
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultAnthropicBaseURL  = "https://api.anthropic.com/v1"
	DefaultGroqBaseURL       = "https://api.groq.com/openai/v1"
	DefaultDeepSeekBaseURL   = "https://api.deepseek.com"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

var defaultBaseURLs = map[domain.ProviderID]string{
	domain.ProviderOpenAI:     DefaultOpenAIBaseURL,
	domain.ProviderGemini:     DefaultGeminiBaseURL,
	domain.ProviderAnthropic:  DefaultAnthropicBaseURL,
	domain.ProviderGroq:       DefaultGroqBaseURL,
	domain.ProviderDeepSeek:   DefaultDeepSeekBaseURL,
	domain.ProviderOpenRouter: DefaultOpenRouterBaseURL,
}

// buildAdapters returns the adapter table. The built-in adapter is present only
// when its base URL is configured.
func buildAdapters(baseURLs map[domain.ProviderID]string, builtinToken string) map[domain.ProviderID]Adapter {
	url := func(id domain.ProviderID) string {
		if u, ok := baseURLs[id]; ok && u != "" {
			return strings.TrimSuffix(u, "/")
		}
		return defaultBaseURLs[id]
	}

	table := map[domain.ProviderID]Adapter{
		domain.ProviderOpenAI: &chatCompletionsAdapter{
			baseURL:            url(domain.ProviderOpenAI),
			transcriptionModel: "whisper-1",
		},
		domain.ProviderGroq: &chatCompletionsAdapter{
			baseURL:            url(domain.ProviderGroq),
			transcriptionModel: "whisper-large-v3",
		},
		domain.ProviderDeepSeek: &chatCompletionsAdapter{
			baseURL: url(domain.ProviderDeepSeek),
		},
		domain.ProviderOpenRouter: &chatCompletionsAdapter{
			baseURL: url(domain.ProviderOpenRouter),
			headers: map[string]string{
				"HTTP-Referer": "https://github.com/hpn/caseflow",
				"X-Title":      "caseflow",
			},
		},
		domain.ProviderGemini:    NewGeminiAdapter(url(domain.ProviderGemini)),
		domain.ProviderAnthropic: NewAnthropicAdapter(url(domain.ProviderAnthropic)),
	}

	if u := baseURLs[domain.ProviderBuiltin]; u != "" {
		table[domain.ProviderBuiltin] = &chatCompletionsAdapter{
			baseURL:            strings.TrimSuffix(u, "/"),
			staticToken:        builtinToken,
			serviceOnly:        true,
			transcriptionModel: "whisper-1",
		}
	}
	return table
}

const maxMessageLen = 300

// providerMessage pulls the human-readable message out of an error body. The
// common vendor shapes are tried in order before falling back to the raw body.
func providerMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error", "detail"} {
			r := gjson.GetBytes(body, path)
			if r.Type == gjson.String && r.String() != "" {
				return truncate(r.String(), maxMessageLen)
			}
		}
	}
	return truncate(strings.TrimSpace(string(body)), maxMessageLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
