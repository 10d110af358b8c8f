// Package analysis ties the configuration store, router, adapters and
// transcoder into the analyze and transcribe flows.
package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpn/caseflow/internal/adapter"
	"github.com/hpn/caseflow/internal/domain"
	"github.com/hpn/caseflow/internal/media"
	"github.com/hpn/caseflow/internal/routing"
)

// DefaultBatchLimit caps concurrent provider calls within one batch.
const DefaultBatchLimit = 4

// connectionTestPrompt is sent by TestConnection.
const connectionTestPrompt = "Reply with the single word OK."

// ConfigSource yields a snapshot of the provider configuration.
type ConfigSource interface {
	Load(ctx context.Context) domain.MultiProviderConfiguration
}

// Invoker performs one provider call.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, cfg domain.ProviderConfig) domain.AnalysisResult
	Transcribe(ctx context.Context, in adapter.AudioInput, cfg domain.ProviderConfig) domain.AnalysisResult
}

// Transcoder prepares uploads for transcription.
type Transcoder interface {
	EnsureTranscodable(ctx context.Context, f *media.File) (*media.File, error)
}

// Service runs analyses. It keeps no state between calls beyond its
// collaborators.
type Service struct {
	config     ConfigSource
	invoker    Invoker
	classifier *routing.Classifier
	transcoder Transcoder
	batchLimit int
	logger     *slog.Logger
}

// Option is a functional option for configuring Service.
type Option func(*Service)

// WithClassifier replaces the default rule set.
func WithClassifier(c *routing.Classifier) Option {
	return func(s *Service) {
		s.classifier = c
	}
}

// WithTranscoder sets the media transcoder used before transcription.
// Without one, uploads are sent as-is.
func WithTranscoder(t Transcoder) Option {
	return func(s *Service) {
		s.transcoder = t
	}
}

// WithBatchLimit sets how many batch items run at once.
func WithBatchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service.
func NewService(config ConfigSource, inv Invoker, opts ...Option) *Service {
	s := &Service{
		config:     config,
		invoker:    inv,
		classifier: routing.NewClassifier(),
		batchLimit: DefaultBatchLimit,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classify maps a hint onto a category with the service's rules.
func (s *Service) Classify(h routing.Hint) domain.Category {
	return s.classifier.Classify(h)
}

// Analyze resolves a provider for req against a fresh configuration snapshot
// and invokes it exactly once. A failed call is returned as-is; no other
// provider is tried.
func (s *Service) Analyze(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisResult {
	return s.analyze(ctx, s.config.Load(ctx), req)
}

// ClassifyAndAnalyze fills in the category from hint when req has none.
func (s *Service) ClassifyAndAnalyze(ctx context.Context, req domain.AnalysisRequest, hint routing.Hint) domain.AnalysisResult {
	if req.Category == "" {
		req.Category = s.Classify(hint)
	}
	return s.Analyze(ctx, req)
}

// AnalyzeBatch runs independent requests concurrently against one
// configuration snapshot. Results keep the input order and a failed item does
// not affect the others.
func (s *Service) AnalyzeBatch(ctx context.Context, reqs []domain.AnalysisRequest) []domain.AnalysisResult {
	results := make([]domain.AnalysisResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	cfg := s.config.Load(ctx)

	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = s.analyze(ctx, cfg, req)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("batch analyzed", slog.Int("items", len(reqs)), slog.Int("failed", countFailed(results)))
	return results
}

func (s *Service) analyze(ctx context.Context, cfg domain.MultiProviderConfiguration, req domain.AnalysisRequest) domain.AnalysisResult {
	if req.Category == "" {
		req.Category = domain.CategoryText
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.Failed(domain.NewFailure(domain.BadRequest, "prompt is empty"), req.Provider, "")
	}

	pc, f := Resolve(cfg, req)
	if f != nil {
		s.logResult(req.Category, domain.Failed(f, req.Provider, ""), 0)
		return domain.Failed(f, req.Provider, "")
	}

	start := time.Now()
	res := s.invoker.Invoke(ctx, req.Prompt, pc)
	s.logResult(req.Category, res, time.Since(start))
	return res
}

// Transcribe converts f when needed, routes the audio category and sends the
// result to that provider's speech-to-text endpoint.
func (s *Service) Transcribe(ctx context.Context, f *media.File, prompt string) domain.AnalysisResult {
	if f == nil || len(f.Data) == 0 {
		return domain.Failed(domain.NewFailure(domain.BadRequest, "no audio uploaded"), "", "")
	}

	upload := f
	if s.transcoder != nil {
		out, err := s.transcoder.EnsureTranscodable(ctx, f)
		if err != nil {
			fail := domain.AsFailure(err, domain.DecodeFailure)
			s.logResult(domain.CategoryAudio, domain.Failed(fail, "", ""), 0)
			return domain.Failed(fail, "", "")
		}
		upload = out
	}

	pc, fail := Resolve(s.config.Load(ctx), domain.AnalysisRequest{Category: domain.CategoryAudio})
	if fail != nil {
		return domain.Failed(fail, "", "")
	}

	start := time.Now()
	res := s.invoker.Transcribe(ctx, adapter.AudioInput{
		FileName:    upload.Name,
		ContentType: upload.ContentType,
		Data:        upload.Data,
		Prompt:      prompt,
	}, pc)
	s.logResult(domain.CategoryAudio, res, time.Since(start))
	return res
}

// TestConnection sends a short fixed prompt to the stored config for id.
// Disabled providers can be tested too.
func (s *Service) TestConnection(ctx context.Context, id domain.ProviderID) domain.AnalysisResult {
	if !domain.IsKnown(id) {
		return domain.Failed(domain.NewFailure(domain.BadRequest, "unknown provider %q", id), id, "")
	}
	pc, ok := s.config.Load(ctx).Find(id)
	if !ok {
		if id != domain.FallbackProvider {
			return domain.Failed(domain.NewFailure(domain.NoProviderAvailable, "%s is not configured", domain.DisplayName(id)), id, "")
		}
		pc = domain.NewProviderConfig(id)
	}
	return s.TestProvider(ctx, pc)
}

// TestProvider is TestConnection for a config that may not be saved yet.
func (s *Service) TestProvider(ctx context.Context, pc domain.ProviderConfig) domain.AnalysisResult {
	res := s.invoker.Invoke(ctx, connectionTestPrompt, pc)
	s.logger.Info("connection test",
		slog.String("provider", string(pc.Provider)),
		slog.Bool("ok", res.OK()),
	)
	return res
}

func (s *Service) logResult(c domain.Category, res domain.AnalysisResult, elapsed time.Duration) {
	attrs := []any{
		slog.String("category", string(c)),
		slog.String("provider", string(res.Provider)),
		slog.Duration("elapsed", elapsed),
	}
	if res.OK() {
		s.logger.Info("analysis completed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("kind", string(res.Failure.Kind)))
	s.logger.Warn("analysis failed", attrs...)
}

func countFailed(results []domain.AnalysisResult) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}
