package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hpn/caseflow/internal/domain"
	"github.com/hpn/caseflow/internal/security"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 8 << 20
)

// Recorder receives one observation per upstream attempt.
type Recorder interface {
	ObserveInvocation(provider domain.ProviderID, outcome string, elapsed time.Duration)
}

// Dispatcher routes an invocation to the adapter registered for the config's
// provider. It is stateless across calls and never retries.
type Dispatcher struct {
	httpClient   *http.Client
	baseURLs     map[domain.ProviderID]string
	builtinToken string
	overrides    map[domain.ProviderID]Adapter
	adapters     map[domain.ProviderID]Adapter
	logger       *slog.Logger
	recorder     Recorder
}

// DispatcherOption is a functional option for configuring Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBaseURL points a provider at a custom endpoint.
// The built-in provider is only available once its base URL is set.
func WithBaseURL(id domain.ProviderID, url string) DispatcherOption {
	return func(d *Dispatcher) {
		d.baseURLs[id] = strings.TrimSuffix(url, "/")
	}
}

// WithBuiltinToken sets the service token sent to the built-in gateway.
func WithBuiltinToken(token string) DispatcherOption {
	return func(d *Dispatcher) {
		d.builtinToken = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.httpClient.Timeout = timeout
		}
	}
}

// WithAdapter registers or replaces the adapter for id.
func WithAdapter(id domain.ProviderID, a Adapter) DispatcherOption {
	return func(d *Dispatcher) {
		d.overrides[id] = a
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// NewDispatcher creates a Dispatcher with the default adapter table.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURLs:   make(map[domain.ProviderID]string),
		overrides:  make(map[domain.ProviderID]Adapter),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.adapters = buildAdapters(d.baseURLs, d.builtinToken)
	for id, a := range d.overrides {
		d.adapters[id] = a
	}
	return d
}

// Has reports whether an adapter is registered for id.
func (d *Dispatcher) Has(id domain.ProviderID) bool {
	_, ok := d.adapters[id]
	return ok
}

// Invoke sends prompt to cfg's provider and normalizes the outcome. Credential
// preconditions are checked before any network activity.
func (d *Dispatcher) Invoke(ctx context.Context, prompt string, cfg domain.ProviderConfig) domain.AnalysisResult {
	model := cfg.EffectiveModel()

	a, ok := d.adapters[cfg.Provider]
	if !ok {
		return domain.Failed(noAdapter(cfg.Provider), cfg.Provider, model)
	}

	return d.execute(ctx, cfg, model, call{
		build: func() (*http.Request, error) { return a.BuildRequest(ctx, prompt, cfg) },
		parse: a.ParseResponse,
		msg:   a.ErrorMessage,
	})
}

// Transcribe sends audio to cfg's provider speech-to-text endpoint.
func (d *Dispatcher) Transcribe(ctx context.Context, in AudioInput, cfg domain.ProviderConfig) domain.AnalysisResult {
	a, ok := d.adapters[cfg.Provider]
	if !ok {
		return domain.Failed(noAdapter(cfg.Provider), cfg.Provider, cfg.EffectiveModel())
	}
	t, ok := a.(Transcriber)
	if !ok || t.TranscriptionModel(cfg) == "" {
		f := domain.NewFailure(domain.NoProviderAvailable, "%s does not offer transcription", domain.DisplayName(cfg.Provider))
		return domain.Failed(f, cfg.Provider, cfg.EffectiveModel())
	}

	return d.execute(ctx, cfg, t.TranscriptionModel(cfg), call{
		build: func() (*http.Request, error) { return t.BuildTranscription(ctx, in, cfg) },
		parse: t.ParseTranscription,
		msg:   a.ErrorMessage,
	})
}

type call struct {
	build func() (*http.Request, error)
	parse func([]byte) (string, *domain.Failure)
	msg   func([]byte) string
}

func (d *Dispatcher) execute(ctx context.Context, cfg domain.ProviderConfig, model string, c call) domain.AnalysisResult {
	logger := d.logger.With(
		slog.String("provider", string(cfg.Provider)),
		slog.String("model", model),
	)

	if f := CheckCredential(cfg); f != nil {
		logger.Warn("credential precondition failed", slog.String("kind", string(f.Kind)))
		d.observe(cfg.Provider, f.Kind, 0)
		return domain.Failed(f, cfg.Provider, model)
	}

	req, err := c.build()
	if err != nil {
		f := domain.NewFailure(domain.BadRequest, "%s", security.Redact(err.Error()))
		d.observe(cfg.Provider, f.Kind, 0)
		return domain.Failed(f, cfg.Provider, model)
	}

	start := time.Now()
	text, f := d.send(req, model, c)
	elapsed := time.Since(start)

	if f != nil {
		f.Detail = security.Redact(f.Detail)
		d.observe(cfg.Provider, f.Kind, elapsed)
		logger.Warn("provider call failed",
			slog.String("kind", string(f.Kind)),
			slog.String("detail", f.Detail),
			slog.Duration("latency", elapsed),
		)
		return domain.Failed(f, cfg.Provider, model)
	}

	d.observe(cfg.Provider, "", elapsed)
	logger.Info("provider call succeeded", slog.Duration("latency", elapsed))
	return domain.Succeeded(text, cfg.Provider, model)
}

// send performs exactly one HTTP round trip.
func (d *Dispatcher) send(req *http.Request, model string, c call) (string, *domain.Failure) {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", domain.NewFailure(domain.ConnectivityFailure, "%s", describeTransportError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", domain.NewFailure(domain.ConnectivityFailure, "read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ClassifyStatus(resp.StatusCode, model, c.msg(body))
	}
	return c.parse(body)
}

func (d *Dispatcher) observe(id domain.ProviderID, kind domain.FailureKind, elapsed time.Duration) {
	if d.recorder == nil {
		return
	}
	outcome := "success"
	if kind != "" {
		outcome = string(kind)
	}
	d.recorder.ObserveInvocation(id, outcome, elapsed)
}

// CheckCredential validates cfg's credential without touching the network.
func CheckCredential(cfg domain.ProviderConfig) *domain.Failure {
	if !domain.RequiresCredential(cfg.Provider) {
		return nil
	}
	key := strings.TrimSpace(cfg.APIKey)
	name := domain.DisplayName(cfg.Provider)
	switch {
	case key == "":
		return domain.NewFailure(domain.MissingCredential, "no API key configured for %s", name)
	case security.LooksMasked(key):
		return domain.NewFailure(domain.MaskedCredential, "the %s API key is a masked or placeholder value; paste the full key", name)
	case !security.IsPlausibleCredential(key):
		return domain.NewFailure(domain.ImplausibleCredential, "the %s API key is too short to be valid", name)
	}
	return nil
}

// ClassifyStatus maps a non-2xx status onto the failure taxonomy.
func ClassifyStatus(status int, model, message string) *domain.Failure {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewFailure(domain.AuthFailure, "credential rejected (HTTP %d): %s", status, message)
	case http.StatusTooManyRequests:
		return domain.NewFailure(domain.RateLimited, "rate limit reached: %s", message)
	case http.StatusPaymentRequired:
		return domain.NewFailure(domain.InsufficientCredit, "insufficient credit: %s", message)
	case http.StatusNotFound:
		return domain.NewFailure(domain.ModelNotFound, "model %q not found: %s", model, message)
	case http.StatusBadRequest:
		return domain.NewFailure(domain.BadRequest, "%s", message)
	default:
		return domain.NewFailure(domain.UpstreamError, "HTTP %d: %s", status, message)
	}
}

func noAdapter(id domain.ProviderID) *domain.Failure {
	if id == domain.ProviderBuiltin {
		return domain.NewFailure(domain.NoProviderAvailable, "the built-in provider endpoint is not configured")
	}
	return domain.NewFailure(domain.NoProviderAvailable, "no adapter registered for provider %q", id)
}

func describeTransportError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	}
	// The request URL can carry a credential in its query string.
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Sprintf("network error: %s: %v", uerr.Op, uerr.Err)
	}
	return fmt.Sprintf("network error: %v", err)
}
