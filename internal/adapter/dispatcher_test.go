package adapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpn/caseflow/internal/domain"
)

const testKey = "sk-test-aaaaaaaaaaaa"

// mockUpstream counts requests and answers every one of them with status/body.
type mockUpstream struct {
	*httptest.Server
	calls atomic.Int32

	mu       sync.Mutex
	lastReq  *http.Request
	lastBody []byte
}

func newMockUpstream(t *testing.T, status int, body string) *mockUpstream {
	t.Helper()
	m := &mockUpstream{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		data, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.lastReq = r.Clone(context.Background())
		m.lastBody = data
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockUpstream) request() (*http.Request, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq, m.lastBody
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(id domain.ProviderID, url string, opts ...DispatcherOption) *Dispatcher {
	opts = append([]DispatcherOption{WithBaseURL(id, url), WithLogger(quietLogger())}, opts...)
	return NewDispatcher(opts...)
}

func openAIConfig(key string) domain.ProviderConfig {
	pc := domain.NewProviderConfig(domain.ProviderOpenAI)
	pc.APIKey = key
	return pc
}

const chatOK = `{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Customer wants a refund."}}]}`

func TestInvokePreconditionsSkipNetwork(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want domain.FailureKind
	}{
		{"missing", "", domain.MissingCredential},
		{"whitespace only", "   ", domain.MissingCredential},
		{"masked bullets", "••••1234", domain.MaskedCredential},
		{"placeholder", "YOUR_API_KEY", domain.MaskedCredential},
		{"implausibly short", "shortkey", domain.ImplausibleCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := newMockUpstream(t, http.StatusOK, chatOK)
			d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL)

			res := d.Invoke(context.Background(), "hello", openAIConfig(tt.key))

			if res.OK() {
				t.Fatalf("Invoke succeeded, want %s", tt.want)
			}
			if res.Failure.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", res.Failure.Kind, tt.want)
			}
			if n := upstream.calls.Load(); n != 0 {
				t.Errorf("upstream called %d times, want 0", n)
			}
		})
	}
}

func TestInvokeStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   domain.FailureKind
		detail string
	}{
		{http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided"}}`, domain.AuthFailure, "Incorrect API key"},
		{http.StatusForbidden, `{"error":{"message":"forbidden"}}`, domain.AuthFailure, "forbidden"},
		{http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached"}}`, domain.RateLimited, "Rate limit reached"},
		{http.StatusPaymentRequired, `{"message":"Payment required"}`, domain.InsufficientCredit, "Payment required"},
		{http.StatusNotFound, `{"error":{"message":"The model does not exist"}}`, domain.ModelNotFound, "gpt-4o-mini"},
		{http.StatusBadRequest, `{"error":{"message":"messages[0].content is too long"}}`, domain.BadRequest, "messages[0].content is too long"},
		{http.StatusBadRequest, `plain text failure`, domain.BadRequest, "plain text failure"},
		{http.StatusInternalServerError, `{"error":"boom"}`, domain.UpstreamError, "HTTP 500"},
		{http.StatusServiceUnavailable, ``, domain.UpstreamError, "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			upstream := newMockUpstream(t, tt.status, tt.body)
			d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL)

			res := d.Invoke(context.Background(), "hello", openAIConfig(testKey))

			if res.OK() {
				t.Fatalf("Invoke succeeded, want %s", tt.want)
			}
			if res.Failure.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", res.Failure.Kind, tt.want)
			}
			if !strings.Contains(res.Failure.Detail, tt.detail) {
				t.Errorf("Detail = %q, want it to contain %q", res.Failure.Detail, tt.detail)
			}
			if n := upstream.calls.Load(); n != 1 {
				t.Errorf("upstream called %d times, want exactly 1", n)
			}
		})
	}
}

func TestInvokeRateLimitedIsNotRetried(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`)
	d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL)

	res := d.Invoke(context.Background(), "hello", openAIConfig(testKey))

	if res.OK() || res.Failure.Kind != domain.RateLimited {
		t.Fatalf("result = %+v, want RateLimited", res)
	}
	if n := upstream.calls.Load(); n != 1 {
		t.Fatalf("upstream called %d times, want 1", n)
	}
}

func TestInvokeConnectivityFailure(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusOK, chatOK)
	url := upstream.URL
	upstream.Close()

	d := newTestDispatcher(domain.ProviderOpenAI, url)
	res := d.Invoke(context.Background(), "hello", openAIConfig(testKey))

	if res.OK() || res.Failure.Kind != domain.ConnectivityFailure {
		t.Fatalf("result = %+v, want ConnectivityFailure", res)
	}
}

func TestInvokeTimeoutIsConnectivityFailure(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	d := newTestDispatcher(domain.ProviderOpenAI, slow.URL, WithTimeout(50*time.Millisecond))
	res := d.Invoke(context.Background(), "hello", openAIConfig(testKey))

	if res.OK() || res.Failure.Kind != domain.ConnectivityFailure {
		t.Fatalf("result = %+v, want ConnectivityFailure", res)
	}
}

func TestInvokeOpenAISuccess(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusOK, chatOK)
	d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL)

	res := d.Invoke(context.Background(), "Summarize the call", openAIConfig(testKey))

	if !res.OK() {
		t.Fatalf("Invoke failed: %v", res.Failure)
	}
	if res.Text != "Customer wants a refund." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want registry default gpt-4o-mini", res.Model)
	}

	req, body := upstream.request()
	if req.URL.Path != "/chat/completions" {
		t.Errorf("path = %s, want /chat/completions", req.URL.Path)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer "+testKey {
		t.Errorf("Authorization = %q", got)
	}

	var sent ChatCompletionRequest
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if sent.Model != "gpt-4o-mini" || len(sent.Messages) != 1 || sent.Messages[0].Content != "Summarize the call" {
		t.Errorf("unexpected request body: %s", body)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("request body is not a JSON object: %v", err)
	}
	if len(fields) != 2 {
		t.Errorf("body carries fields beyond model and messages: %s", body)
	}
}

func TestInvokeUsesConfiguredModel(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusOK, chatOK)
	d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL)

	cfg := openAIConfig(testKey)
	cfg.Model = "gpt-4o"
	res := d.Invoke(context.Background(), "hi", cfg)

	_, body := upstream.request()
	if !strings.Contains(string(body), `"model":"gpt-4o"`) || res.Model != "gpt-4o" {
		t.Errorf("configured model not used: body=%s model=%s", body, res.Model)
	}
}

func TestInvokeMalformedAndBlocked(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.FailureKind
	}{
		{"not json", `<html>oops</html>`, domain.MalformedResponse},
		{"no choices", `{"object":"chat.completion"}`, domain.MalformedResponse},
		{"null content", `{"choices":[{"message":{"content":null}}]}`, domain.MalformedResponse},
		{"content filter", `{"choices":[{"finish_reason":"content_filter","message":{"content":""}}]}`, domain.ContentBlocked},
		{"refusal", `{"choices":[{"message":{"content":null,"refusal":"I can't help with that."}}]}`, domain.ContentBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := newMockUpstream(t, http.StatusOK, tt.body)
			d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL)

			res := d.Invoke(context.Background(), "hi", openAIConfig(testKey))
			if res.OK() || res.Failure.Kind != tt.want {
				t.Fatalf("result = %+v, want %s", res, tt.want)
			}
		})
	}
}

func TestInvokeBuiltin(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		d := NewDispatcher(WithLogger(quietLogger()))
		res := d.Invoke(context.Background(), "hi", domain.NewProviderConfig(domain.ProviderBuiltin))
		if res.OK() || res.Failure.Kind != domain.NoProviderAvailable {
			t.Fatalf("result = %+v, want NoProviderAvailable", res)
		}
		if d.Has(domain.ProviderBuiltin) {
			t.Error("Has(builtin) = true without a base URL")
		}
	})

	t.Run("no user credential needed", func(t *testing.T) {
		upstream := newMockUpstream(t, http.StatusOK, chatOK)
		d := newTestDispatcher(domain.ProviderBuiltin, upstream.URL, WithBuiltinToken("service-token-123"))

		res := d.Invoke(context.Background(), "hi", domain.NewProviderConfig(domain.ProviderBuiltin))
		if !res.OK() {
			t.Fatalf("Invoke failed: %v", res.Failure)
		}
		req, _ := upstream.request()
		if got := req.Header.Get("Authorization"); got != "Bearer service-token-123" {
			t.Errorf("Authorization = %q, want service token", got)
		}
	})

	t.Run("user key never replaces the service token", func(t *testing.T) {
		upstream := newMockUpstream(t, http.StatusOK, chatOK)
		d := newTestDispatcher(domain.ProviderBuiltin, upstream.URL, WithBuiltinToken("service-token-123"))

		pc := domain.NewProviderConfig(domain.ProviderBuiltin)
		pc.APIKey = "sk-user-supplied-0000"
		res := d.Invoke(context.Background(), "hi", pc)
		if !res.OK() {
			t.Fatalf("Invoke failed: %v", res.Failure)
		}
		req, _ := upstream.request()
		if got := req.Header.Get("Authorization"); got != "Bearer service-token-123" {
			t.Errorf("Authorization = %q, want service token", got)
		}
	})
}

func TestTransportFailureOmitsCredential(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	base := closed.URL
	closed.Close()

	d := newTestDispatcher(domain.ProviderGemini, base)
	pc := domain.NewProviderConfig(domain.ProviderGemini)
	pc.APIKey = "abcdefghij12345"

	res := d.Invoke(context.Background(), "hi", pc)
	if res.OK() || res.Failure.Kind != domain.ConnectivityFailure {
		t.Fatalf("result = %+v, want ConnectivityFailure", res)
	}
	if strings.Contains(res.Failure.Detail, pc.APIKey) {
		t.Errorf("detail leaks the credential: %q", res.Failure.Detail)
	}
	if strings.Contains(res.Failure.Detail, "generateContent") {
		t.Errorf("detail includes the request URL: %q", res.Failure.Detail)
	}
}

func TestInvokeUnknownProvider(t *testing.T) {
	d := NewDispatcher(WithLogger(quietLogger()))
	res := d.Invoke(context.Background(), "hi", domain.ProviderConfig{Provider: "mystery", APIKey: testKey})
	if res.OK() || res.Failure.Kind != domain.NoProviderAvailable {
		t.Fatalf("result = %+v, want NoProviderAvailable", res)
	}
}

func TestInvokeDetailIsRedacted(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusUnauthorized,
		`{"error":{"message":"Incorrect API key provided: sk-live-abcdefghijklmnopqrstuvwxyz"}}`)
	d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL)

	res := d.Invoke(context.Background(), "hi", openAIConfig(testKey))
	if strings.Contains(res.Failure.Detail, "abcdefghijklmnop") {
		t.Errorf("detail leaks credential: %q", res.Failure.Detail)
	}
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingRecorder) ObserveInvocation(_ domain.ProviderID, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestInvokeRecordsOutcome(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusOK, chatOK)
	rec := &recordingRecorder{}
	d := newTestDispatcher(domain.ProviderOpenAI, upstream.URL, WithRecorder(rec))

	d.Invoke(context.Background(), "hi", openAIConfig(testKey))
	d.Invoke(context.Background(), "hi", openAIConfig("shortkey"))

	if len(rec.outcomes) != 2 || rec.outcomes[0] != "success" || rec.outcomes[1] != string(domain.ImplausibleCredential) {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

type stubAdapter struct{ text string }

func (s stubAdapter) BuildRequest(ctx context.Context, _ string, _ domain.ProviderConfig) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, "http://stub.invalid", nil)
}
func (s stubAdapter) ParseResponse([]byte) (string, *domain.Failure) { return s.text, nil }
func (s stubAdapter) ErrorMessage([]byte) string                     { return "" }

func TestWithAdapterReplacesTableEntry(t *testing.T) {
	upstream := newMockUpstream(t, http.StatusOK, `{}`)
	stub := stubAdapter{text: "stubbed"}
	d := NewDispatcher(
		WithLogger(quietLogger()),
		WithAdapter(domain.ProviderDeepSeek, stub),
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: upstream.URL}}),
	)

	cfg := domain.NewProviderConfig(domain.ProviderDeepSeek)
	cfg.APIKey = testKey
	res := d.Invoke(context.Background(), "hi", cfg)
	if !res.OK() || res.Text != "stubbed" {
		t.Fatalf("result = %+v, want stubbed text", res)
	}
}

// rewriteTransport sends every request to target.
type rewriteTransport struct{ target string }

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := http.NewRequestWithContext(req.Context(), req.Method, rt.target, req.Body)
	if err != nil {
		return nil, err
	}
	return http.DefaultTransport.RoundTrip(out)
}
