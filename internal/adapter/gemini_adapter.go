package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hpn/caseflow/internal/domain"
)

// defaultTranscriptionPrompt is sent with audio when the caller gives none.
const defaultTranscriptionPrompt = "Transcribe this audio verbatim. Return only the transcript."

// GeminiAdapter speaks the generateContent API. The credential travels in the
// ?key= query parameter.
type GeminiAdapter struct {
	baseURL string
}

// NewGeminiAdapter creates a GeminiAdapter for baseURL.
func NewGeminiAdapter(baseURL string) *GeminiAdapter {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	return &GeminiAdapter{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (g *GeminiAdapter) endpoint(cfg domain.ProviderConfig) string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(cfg.EffectiveModel()), url.QueryEscape(strings.TrimSpace(cfg.APIKey)))
}

func (g *GeminiAdapter) BuildRequest(ctx context.Context, prompt string, cfg domain.ProviderConfig) (*http.Request, error) {
	return g.post(ctx, cfg, GeminiRequest{
		Contents: []GeminiContent{{
			Role:  "user",
			Parts: []GeminiPart{{Text: prompt}},
		}},
	})
}

func (g *GeminiAdapter) post(ctx context.Context, cfg domain.ProviderConfig, body GeminiRequest) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(cfg), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// blockingFinishReasons end a candidate without text because of safety policy.
var blockingFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"RECITATION":         true,
}

func (g *GeminiAdapter) ParseResponse(body []byte) (string, *domain.Failure) {
	if !gjson.ValidBytes(body) {
		return "", domain.NewFailure(domain.MalformedResponse, "response is not valid JSON")
	}
	root := gjson.ParseBytes(body)

	if reason := root.Get("promptFeedback.blockReason"); reason.Exists() {
		return "", domain.NewFailure(domain.ContentBlocked, "prompt blocked: %s", reason.String())
	}

	candidate := root.Get("candidates.0")
	if !candidate.Exists() {
		return "", domain.NewFailure(domain.MalformedResponse, "missing candidates[0]")
	}

	var sb strings.Builder
	for _, part := range candidate.Get("content.parts.#.text").Array() {
		sb.WriteString(part.String())
	}
	text := sb.String()

	if strings.TrimSpace(text) == "" {
		if reason := candidate.Get("finishReason").String(); blockingFinishReasons[reason] {
			return "", domain.NewFailure(domain.ContentBlocked, "candidate finished with %s", reason)
		}
		return "", domain.NewFailure(domain.MalformedResponse, "missing candidates[0].content.parts[].text")
	}
	return text, nil
}

func (g *GeminiAdapter) ErrorMessage(body []byte) string {
	return providerMessage(body)
}

func (g *GeminiAdapter) TranscriptionModel(cfg domain.ProviderConfig) string {
	return cfg.EffectiveModel()
}

// BuildTranscription sends the audio inline next to the instruction text.
func (g *GeminiAdapter) BuildTranscription(ctx context.Context, in AudioInput, cfg domain.ProviderConfig) (*http.Request, error) {
	prompt := in.Prompt
	if prompt == "" {
		prompt = defaultTranscriptionPrompt
	}
	mimeType := in.ContentType
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return g.post(ctx, cfg, GeminiRequest{
		Contents: []GeminiContent{{
			Role: "user",
			Parts: []GeminiPart{
				{InlineData: &GeminiBlob{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(in.Data)}},
				{Text: prompt},
			},
		}},
	})
}

func (g *GeminiAdapter) ParseTranscription(body []byte) (string, *domain.Failure) {
	return g.ParseResponse(body)
}

// GeminiRequest represents a generateContent request.
type GeminiRequest struct {
	Contents []GeminiContent `json:"contents"`
}

// GeminiContent represents a content block.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is either text or inline binary data.
type GeminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *GeminiBlob `json:"inline_data,omitempty"`
}

// GeminiBlob carries base64 media inside a part.
type GeminiBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}
