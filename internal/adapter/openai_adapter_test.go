package adapter

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/hpn/caseflow/internal/domain"
)

func TestTranscribeMultipart(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusOK, `{"text":"olá, preciso de ajuda"}`)
	d := newTestDispatcher(domain.ProviderGroq, upstream.URL)

	cfg := domain.NewProviderConfig(domain.ProviderGroq)
	cfg.APIKey = "gsk_testtesttesttest"
	wav := []byte("RIFF$\x00\x00\x00WAVE")

	res := d.Transcribe(context.Background(), AudioInput{
		FileName: "call.wav", ContentType: "audio/wav", Data: wav, Prompt: "support call",
	}, cfg)
	if !res.OK() || res.Text != "olá, preciso de ajuda" {
		t.Fatalf("result = %+v", res)
	}
	if res.Model != "whisper-large-v3" {
		t.Errorf("Model = %q, want whisper-large-v3", res.Model)
	}

	req, body := upstream.request()
	if req.URL.Path != "/audio/transcriptions" {
		t.Errorf("path = %s", req.URL.Path)
	}
	_, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("content type: %v", err)
	}

	fields := map[string][]byte{}
	r := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("multipart: %v", err)
		}
		data, _ := io.ReadAll(p)
		fields[p.FormName()] = data
	}

	if string(fields["model"]) != "whisper-large-v3" {
		t.Errorf("model field = %q", fields["model"])
	}
	if string(fields["prompt"]) != "support call" {
		t.Errorf("prompt field = %q", fields["prompt"])
	}
	if !bytes.Equal(fields["file"], wav) {
		t.Error("file field does not carry the audio bytes")
	}
}

func TestTranscribeChecksCredentialFirst(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusOK, `{"text":"x"}`)
	d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL)

	res := d.Transcribe(context.Background(), AudioInput{FileName: "a.wav", Data: []byte("x")}, openAIConfig("••••1234"))
	if res.OK() || res.Failure.Kind != domain.MaskedCredential {
		t.Fatalf("result = %+v, want MaskedCredential", res)
	}
	if upstream.calls.Load() != 0 {
		t.Error("upstream must not be called")
	}
}

func TestDeepSeekHasNoTranscription(t *testing.T) {
	cfg := domain.NewProviderConfig(domain.ProviderDeepSeek)
	cfg.APIKey = testKey
	res := NewDispatcher(WithLogger(quietLogger())).Transcribe(context.Background(), AudioInput{Data: []byte("x")}, cfg)
	if res.OK() || res.Failure.Kind != domain.NoProviderAvailable {
		t.Fatalf("result = %+v, want NoProviderAvailable", res)
	}
}

func TestOpenRouterSendsAttributionHeaders(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusOK, chatOK)
	d := newTestDispatcher(domain.ProviderOpenRouter, upstream.URL)

	cfg := domain.NewProviderConfig(domain.ProviderOpenRouter)
	cfg.APIKey = "sk-or-v1-testtesttesttest"
	if res := d.Invoke(context.Background(), "hi", cfg); !res.OK() {
		t.Fatalf("Invoke failed: %v", res.Failure)
	}

	req, _ := upstream.request()
	if req.Header.Get("X-Title") == "" || req.Header.Get("HTTP-Referer") == "" {
		t.Error("OpenRouter attribution headers missing")
	}
	if req.Header.Get("Authorization") != "Bearer sk-or-v1-testtesttesttest" {
		t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
	}
}
