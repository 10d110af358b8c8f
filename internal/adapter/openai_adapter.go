package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hpn/caseflow/internal/domain"
)

// chatCompletionsAdapter serves every vendor speaking the OpenAI chat-completions
// dialect: bearer auth, messages-list body, text at choices[0].message.content.
type chatCompletionsAdapter struct {
	baseURL string

	// staticToken authenticates when the config carries no credential.
	staticToken string

	// serviceOnly sends staticToken and never a user credential.
	serviceOnly bool

	// headers are vendor extras sent on every request.
	headers map[string]string

	// transcriptionModel is empty for vendors without /audio/transcriptions.
	transcriptionModel string
}

func (a *chatCompletionsAdapter) BuildRequest(ctx context.Context, prompt string, cfg domain.ProviderConfig) (*http.Request, error) {
	body, err := json.Marshal(ChatCompletionRequest{
		Model:    cfg.EffectiveModel(),
		Messages: []ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req, cfg)
	return req, nil
}

func (a *chatCompletionsAdapter) authorize(req *http.Request, cfg domain.ProviderConfig) {
	token := strings.TrimSpace(cfg.APIKey)
	if token == "" || a.serviceOnly {
		token = a.staticToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
}

func (a *chatCompletionsAdapter) ParseResponse(body []byte) (string, *domain.Failure) {
	if !gjson.ValidBytes(body) {
		return "", domain.NewFailure(domain.MalformedResponse, "response is not valid JSON")
	}
	choice := gjson.GetBytes(body, "choices.0")
	if choice.Get("finish_reason").String() == "content_filter" {
		return "", domain.NewFailure(domain.ContentBlocked, "response withheld by the provider's content filter")
	}

	content := choice.Get("message.content")
	if content.Type == gjson.String && strings.TrimSpace(content.String()) != "" {
		return content.String(), nil
	}
	if refusal := choice.Get("message.refusal"); refusal.Type == gjson.String && refusal.String() != "" {
		return "", domain.NewFailure(domain.ContentBlocked, "%s", truncate(refusal.String(), maxMessageLen))
	}
	return "", domain.NewFailure(domain.MalformedResponse, "missing choices[0].message.content")
}

func (a *chatCompletionsAdapter) ErrorMessage(body []byte) string {
	return providerMessage(body)
}

func (a *chatCompletionsAdapter) TranscriptionModel(cfg domain.ProviderConfig) string {
	if strings.Contains(cfg.Model, "whisper") {
		return cfg.Model
	}
	return a.transcriptionModel
}

func (a *chatCompletionsAdapter) BuildTranscription(ctx context.Context, in AudioInput, cfg domain.ProviderConfig) (*http.Request, error) {
	if a.transcriptionModel == "" {
		return nil, fmt.Errorf("transcription is not offered by %s", cfg.Provider)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"model":           a.TranscriptionModel(cfg),
		"response_format": "json",
	}
	if in.Prompt != "" {
		fields["prompt"] = in.Prompt
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile("file", in.FileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(in.Data); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	a.authorize(req, cfg)
	return req, nil
}

func (a *chatCompletionsAdapter) ParseTranscription(body []byte) (string, *domain.Failure) {
	if !gjson.ValidBytes(body) {
		return "", domain.NewFailure(domain.MalformedResponse, "response is not valid JSON")
	}
	text := gjson.GetBytes(body, "text")
	if text.Type != gjson.String {
		return "", domain.NewFailure(domain.MalformedResponse, "missing text in transcription response")
	}
	return text.String(), nil
}
