package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hpn/caseflow/internal/domain"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// AnthropicAdapter speaks the Messages API with x-api-key authentication.
type AnthropicAdapter struct {
	baseURL string
}

// NewAnthropicAdapter creates an AnthropicAdapter for baseURL.
func NewAnthropicAdapter(baseURL string) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	return &AnthropicAdapter{baseURL: strings.TrimSuffix(baseURL, "/")}
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []ChatMessage `json:"messages"`
}

func (a *AnthropicAdapter) BuildRequest(ctx context.Context, prompt string, cfg domain.ProviderConfig) (*http.Request, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     cfg.EffectiveModel(),
		MaxTokens: anthropicMaxTokens,
		Messages:  []ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", strings.TrimSpace(cfg.APIKey))
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

func (a *AnthropicAdapter) ParseResponse(body []byte) (string, *domain.Failure) {
	if !gjson.ValidBytes(body) {
		return "", domain.NewFailure(domain.MalformedResponse, "response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if root.Get("stop_reason").String() == "refusal" {
		return "", domain.NewFailure(domain.ContentBlocked, "model refused to answer")
	}

	var sb strings.Builder
	root.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
		return true
	})
	if strings.TrimSpace(sb.String()) == "" {
		return "", domain.NewFailure(domain.MalformedResponse, "missing content[].text")
	}
	return sb.String(), nil
}

func (a *AnthropicAdapter) ErrorMessage(body []byte) string {
	return providerMessage(body)
}
