// Package handler exposes the routing, analysis and media services over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hpn/caseflow/internal/domain"
	"github.com/hpn/caseflow/internal/media"
	"github.com/hpn/caseflow/internal/routing"
	"github.com/hpn/caseflow/internal/security"
	"github.com/hpn/caseflow/internal/store"
)

const (
	// DefaultMaxUploadBytes caps multipart uploads.
	DefaultMaxUploadBytes = 100 << 20

	// MaxBatchItems caps one /v1/analyze/batch call.
	MaxBatchItems = 32

	ctxKeyProvider    = "provider"
	ctxKeyFailureKind = "failure_kind"
)

// ConfigStore is the persisted provider configuration.
type ConfigStore interface {
	Load(ctx context.Context) domain.MultiProviderConfiguration
	UpsertProvider(ctx context.Context, pc domain.ProviderConfig) (domain.MultiProviderConfiguration, error)
	RemoveProvider(ctx context.Context, id domain.ProviderID) (domain.MultiProviderConfiguration, error)
	Reset(ctx context.Context) (domain.MultiProviderConfiguration, error)
}

// Analyzer runs analyses and transcriptions.
type Analyzer interface {
	Classify(h routing.Hint) domain.Category
	Analyze(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisResult
	AnalyzeBatch(ctx context.Context, reqs []domain.AnalysisRequest) []domain.AnalysisResult
	Transcribe(ctx context.Context, f *media.File, prompt string) domain.AnalysisResult
	TestConnection(ctx context.Context, id domain.ProviderID) domain.AnalysisResult
	TestProvider(ctx context.Context, pc domain.ProviderConfig) domain.AnalysisResult
}

// Transcoder converts uploads to a transcribable container.
type Transcoder interface {
	EnsureTranscodable(ctx context.Context, f *media.File) (*media.File, error)
}

// APIHandler serves the /v1 API.
type APIHandler struct {
	store      ConfigStore
	analyzer   Analyzer
	transcoder Transcoder
	logger     *slog.Logger
	maxUpload  int64
}

// APIHandlerOption is a functional option for configuring APIHandler.
type APIHandlerOption func(*APIHandler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) APIHandlerOption {
	return func(h *APIHandler) {
		h.logger = logger
	}
}

// WithTranscoder enables POST /v1/transcode.
func WithTranscoder(t Transcoder) APIHandlerOption {
	return func(h *APIHandler) {
		h.transcoder = t
	}
}

// WithMaxUploadBytes caps multipart request bodies.
func WithMaxUploadBytes(n int64) APIHandlerOption {
	return func(h *APIHandler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(st ConfigStore, an Analyzer, opts ...APIHandlerOption) *APIHandler {
	h := &APIHandler{
		store:     st,
		analyzer:  an,
		logger:    slog.Default(),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the /v1 routes on r.
func (h *APIHandler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.GET("/providers", h.HandleProviders)
	v1.GET("/config", h.HandleGetConfig)
	v1.DELETE("/config", h.HandleResetConfig)
	v1.PUT("/config/providers/:provider", h.HandleUpsertProvider)
	v1.DELETE("/config/providers/:provider", h.HandleRemoveProvider)
	v1.POST("/config/providers/:provider/test", h.HandleTestProvider)
	v1.POST("/classify", h.HandleClassify)
	v1.POST("/analyze", h.HandleAnalyze)
	v1.POST("/analyze/batch", h.HandleAnalyzeBatch)
	v1.POST("/transcode", h.HandleTranscode)
	v1.POST("/transcribe", h.HandleTranscribe)
}

// HandleHealth handles GET /health.
func (h *APIHandler) HandleHealth(c *gin.Context) {
	cfg := h.store.Load(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"providers_enabled": len(cfg.Enabled()),
	})
}

type registryEntry struct {
	ID                 domain.ProviderID `json:"id"`
	Name               string            `json:"name"`
	Capabilities       []domain.Category `json:"capabilities"`
	Models             []string          `json:"models"`
	DefaultModel       string            `json:"defaultModel"`
	RequiresCredential bool              `json:"requiresCredential"`
}

// HandleProviders handles GET /v1/providers.
func (h *APIHandler) HandleProviders(c *gin.Context) {
	ids := domain.AllProviders()
	out := make([]registryEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, registryEntry{
			ID:                 id,
			Name:               domain.DisplayName(id),
			Capabilities:       domain.Capabilities(id),
			Models:             domain.Models(id),
			DefaultModel:       domain.DefaultModel(id),
			RequiresCredential: domain.RequiresCredential(id),
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

type providerView struct {
	Provider       domain.ProviderID `json:"provider"`
	Name           string            `json:"name"`
	APIKey         string            `json:"apiKey,omitempty"`
	HasAPIKey      bool              `json:"hasApiKey"`
	Model          string            `json:"model,omitempty"`
	EffectiveModel string            `json:"effectiveModel"`
	Enabled        bool              `json:"enabled"`
	Capabilities   []domain.Category `json:"capabilities"`
}

type configView struct {
	Providers []providerView                        `json:"providers"`
	Routing   map[domain.Category]domain.ProviderID `json:"routing"`
}

// viewOf masks credentials. Raw keys never leave the process.
func viewOf(cfg domain.MultiProviderConfiguration) configView {
	v := configView{
		Providers: make([]providerView, 0, len(cfg.Providers)),
		Routing:   make(map[domain.Category]domain.ProviderID, len(cfg.Routing)),
	}
	for _, p := range cfg.Providers {
		v.Providers = append(v.Providers, providerView{
			Provider:       p.Provider,
			Name:           domain.DisplayName(p.Provider),
			APIKey:         security.MaskCredential(p.APIKey),
			HasAPIKey:      strings.TrimSpace(p.APIKey) != "",
			Model:          p.Model,
			EffectiveModel: p.EffectiveModel(),
			Enabled:        p.Enabled,
			Capabilities:   p.Capabilities,
		})
	}
	for k, id := range cfg.Routing {
		v.Routing[k] = id
	}
	return v
}

// HandleGetConfig handles GET /v1/config.
func (h *APIHandler) HandleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(h.store.Load(c.Request.Context())))
}

// HandleResetConfig handles DELETE /v1/config. The persisted record is
// dropped, including one that no longer decodes.
func (h *APIHandler) HandleResetConfig(c *gin.Context) {
	cfg, err := h.store.Reset(c.Request.Context())
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, viewOf(cfg))
}

// providerPayload is a partial update; absent fields keep their stored value.
type providerPayload struct {
	APIKey       *string  `json:"apiKey"`
	Model        *string  `json:"model"`
	Enabled      *bool    `json:"enabled"`
	Capabilities []string `json:"capabilities"`
}

// HandleUpsertProvider handles PUT /v1/config/providers/:provider.
func (h *APIHandler) HandleUpsertProvider(c *gin.Context) {
	id, ok := h.providerParam(c)
	if !ok {
		return
	}

	var body providerPayload
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, domain.NewFailure(domain.BadRequest, "invalid request body: %v", err), id)
		return
	}

	ctx := c.Request.Context()
	current, exists := h.store.Load(ctx).Find(id)
	pc, f := mergeProvider(id, current, exists, body)
	if f != nil {
		h.fail(c, f, id)
		return
	}

	cfg, err := h.store.UpsertProvider(ctx, pc)
	if err != nil {
		h.storeError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, viewOf(cfg))
}

// mergeProvider applies body over the stored config. A masked key echoed back
// from GET /v1/config keeps the stored key.
func mergeProvider(id domain.ProviderID, current domain.ProviderConfig, exists bool, body providerPayload) (domain.ProviderConfig, *domain.Failure) {
	pc := current
	if !exists {
		pc = domain.NewProviderConfig(id)
	}

	if body.APIKey != nil {
		key := strings.TrimSpace(*body.APIKey)
		switch {
		case key != "" && !domain.RequiresCredential(id):
			return domain.ProviderConfig{}, domain.NewFailure(domain.BadRequest,
				"%s uses the server credential and does not accept an API key", domain.DisplayName(id))
		case key != "" && security.LooksMasked(key):
			if strings.TrimSpace(pc.APIKey) == "" {
				return domain.ProviderConfig{}, domain.NewFailure(domain.MaskedCredential,
					"the %s API key is a masked value and no key is stored; paste the full key", domain.DisplayName(id))
			}
		default:
			pc.APIKey = key
		}
	}
	if body.Model != nil {
		pc.Model = strings.TrimSpace(*body.Model)
	}
	if body.Enabled != nil {
		pc.Enabled = *body.Enabled
	}
	if body.Capabilities != nil {
		caps := make([]domain.Category, 0, len(body.Capabilities))
		for _, raw := range body.Capabilities {
			cat, err := domain.ParseCategory(raw)
			if err != nil {
				return domain.ProviderConfig{}, domain.NewFailure(domain.BadRequest, "%v", err)
			}
			caps = append(caps, cat)
		}
		pc.Capabilities = caps
	}
	return pc, nil
}

// HandleRemoveProvider handles DELETE /v1/config/providers/:provider.
// Removing an absent provider succeeds without changes.
func (h *APIHandler) HandleRemoveProvider(c *gin.Context) {
	id, ok := h.providerParam(c)
	if !ok {
		return
	}
	cfg, err := h.store.RemoveProvider(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, viewOf(cfg))
}

// HandleTestProvider handles POST /v1/config/providers/:provider/test.
// With a body, the unsaved values are tested over the stored ones.
func (h *APIHandler) HandleTestProvider(c *gin.Context) {
	id, ok := h.providerParam(c)
	if !ok {
		return
	}

	var body providerPayload
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, domain.NewFailure(domain.BadRequest, "invalid request body: %v", err), id)
		return
	}

	ctx := c.Request.Context()
	var res domain.AnalysisResult
	if body.APIKey == nil && body.Model == nil {
		res = h.analyzer.TestConnection(ctx, id)
	} else {
		current, exists := h.store.Load(ctx).Find(id)
		pc, f := mergeProvider(id, current, exists, body)
		if f != nil {
			h.fail(c, f, id)
			return
		}
		res = h.analyzer.TestProvider(ctx, pc)
	}
	h.result(c, res)
}

// HandleClassify handles POST /v1/classify.
func (h *APIHandler) HandleClassify(c *gin.Context) {
	var hint routing.Hint
	if err := c.ShouldBindJSON(&hint); err != nil {
		h.fail(c, domain.NewFailure(domain.BadRequest, "invalid request body: %v", err), "")
		return
	}
	cat := h.analyzer.Classify(hint)
	c.JSON(http.StatusOK, gin.H{"category": cat, "token": cat.Token()})
}

type analyzeRequest struct {
	ID       string       `json:"id,omitempty"`
	Prompt   string       `json:"prompt"`
	Category string       `json:"category,omitempty"`
	Provider string       `json:"provider,omitempty"`
	Hint     routing.Hint `json:"hint"`
}

// toDomain resolves the category, classifying the hint when none is given.
func (h *APIHandler) toDomain(r analyzeRequest) (domain.AnalysisRequest, *domain.Failure) {
	req := domain.AnalysisRequest{
		Prompt:   r.Prompt,
		Provider: domain.ProviderID(strings.ToLower(strings.TrimSpace(r.Provider))),
	}
	if strings.TrimSpace(r.Category) == "" {
		req.Category = h.analyzer.Classify(r.Hint)
		return req, nil
	}
	cat, err := domain.ParseCategory(r.Category)
	if err != nil {
		return req, domain.NewFailure(domain.BadRequest, "%v", err)
	}
	req.Category = cat
	return req, nil
}

// HandleAnalyze handles POST /v1/analyze.
func (h *APIHandler) HandleAnalyze(c *gin.Context) {
	var body analyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, domain.NewFailure(domain.BadRequest, "invalid request body: %v", err), "")
		return
	}
	req, f := h.toDomain(body)
	if f != nil {
		h.fail(c, f, req.Provider)
		return
	}
	h.result(c, h.analyzer.Analyze(c.Request.Context(), req))
}

type batchItemResult struct {
	ID       string            `json:"id"`
	OK       bool              `json:"ok"`
	Category domain.Category   `json:"category,omitempty"`
	Text     string            `json:"text,omitempty"`
	Provider domain.ProviderID `json:"provider,omitempty"`
	Model    string            `json:"model,omitempty"`
	Error    *domain.Failure   `json:"error,omitempty"`
}

// HandleAnalyzeBatch handles POST /v1/analyze/batch. Items are independent:
// the response is 200 with per-item outcomes in request order.
func (h *APIHandler) HandleAnalyzeBatch(c *gin.Context) {
	var body struct {
		Items []analyzeRequest `json:"items"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, domain.NewFailure(domain.BadRequest, "invalid request body: %v", err), "")
		return
	}
	if len(body.Items) == 0 || len(body.Items) > MaxBatchItems {
		h.fail(c, domain.NewFailure(domain.BadRequest, "batch must contain between 1 and %d items", MaxBatchItems), "")
		return
	}

	out := make([]batchItemResult, len(body.Items))
	reqs := make([]domain.AnalysisRequest, 0, len(body.Items))
	pending := make([]int, 0, len(body.Items))
	for i, item := range body.Items {
		out[i].ID = item.ID
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		req, f := h.toDomain(item)
		out[i].Category = req.Category
		if f != nil {
			out[i].Provider = req.Provider
			out[i].Error = f
			continue
		}
		reqs = append(reqs, req)
		pending = append(pending, i)
	}

	results := h.analyzer.AnalyzeBatch(c.Request.Context(), reqs)
	for j, res := range results {
		i := pending[j]
		out[i].OK = res.OK()
		out[i].Text = res.Text
		out[i].Provider = res.Provider
		out[i].Model = res.Model
		out[i].Error = res.Failure
	}

	c.JSON(http.StatusOK, gin.H{"request_id": requestID(c), "results": out})
}

// HandleTranscode handles POST /v1/transcode. The response body is the
// converted file, or the upload itself when no conversion was needed.
func (h *APIHandler) HandleTranscode(c *gin.Context) {
	if h.transcoder == nil {
		h.fail(c, domain.NewFailure(domain.NoProviderAvailable, "media transcoding is not configured"), "")
		return
	}
	f, failure := h.readUpload(c)
	if failure != nil {
		h.fail(c, failure, "")
		return
	}

	out, err := h.transcoder.EnsureTranscodable(c.Request.Context(), f)
	if err != nil {
		h.fail(c, domain.AsFailure(err, domain.DecodeFailure), "")
		return
	}

	contentType := out.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("X-Transcoded", fmt.Sprintf("%t", out != f))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Name))
	c.Data(http.StatusOK, contentType, out.Data)
}

// HandleTranscribe handles POST /v1/transcribe.
func (h *APIHandler) HandleTranscribe(c *gin.Context) {
	f, failure := h.readUpload(c)
	if failure != nil {
		h.fail(c, failure, "")
		return
	}
	h.result(c, h.analyzer.Transcribe(c.Request.Context(), f, c.PostForm("prompt")))
}

func (h *APIHandler) readUpload(c *gin.Context) (*media.File, *domain.Failure) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, domain.NewFailure(domain.BadRequest, "upload exceeds %d bytes", h.maxUpload)
		}
		return nil, domain.NewFailure(domain.BadRequest, "multipart field 'file' is required: %v", err)
	}
	data, err := readFormFile(fh)
	if err != nil {
		return nil, domain.NewFailure(domain.BadRequest, "read upload: %v", err)
	}
	return &media.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func (h *APIHandler) providerParam(c *gin.Context) (domain.ProviderID, bool) {
	id := domain.ProviderID(strings.ToLower(c.Param("provider")))
	if !domain.IsKnown(id) {
		h.fail(c, domain.NewFailure(domain.BadRequest, "unknown provider %q", c.Param("provider")), "")
		return "", false
	}
	return id, true
}

func (h *APIHandler) storeError(c *gin.Context, err error, id domain.ProviderID) {
	if errors.Is(err, store.ErrUnknownProvider) || errors.Is(err, store.ErrNoCapabilities) {
		h.fail(c, domain.NewFailure(domain.BadRequest, "%v", err), id)
		return
	}
	h.logger.Error("configuration store failed",
		slog.String("provider", string(id)),
		slog.String("error", err.Error()),
	)
	c.Set(ctxKeyProvider, string(id))
	c.JSON(http.StatusInternalServerError, gin.H{
		"ok":         false,
		"error":      gin.H{"kind": "StorageError", "detail": "configuration could not be saved"},
		"provider":   id,
		"request_id": requestID(c),
	})
}

// result writes an AnalysisResult with the status mapped from its failure.
func (h *APIHandler) result(c *gin.Context, res domain.AnalysisResult) {
	if !res.OK() {
		h.fail(c, res.Failure, res.Provider)
		return
	}
	c.Set(ctxKeyProvider, string(res.Provider))
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"text":       res.Text,
		"provider":   res.Provider,
		"model":      res.Model,
		"request_id": requestID(c),
	})
}

func (h *APIHandler) fail(c *gin.Context, f *domain.Failure, id domain.ProviderID) {
	c.Set(ctxKeyProvider, string(id))
	c.Set(ctxKeyFailureKind, string(f.Kind))
	body := gin.H{
		"ok":         false,
		"error":      gin.H{"kind": f.Kind, "detail": security.Redact(f.Detail)},
		"request_id": requestID(c),
	}
	if id != "" {
		body["provider"] = id
	}
	c.JSON(StatusFor(f.Kind), body)
}

// StatusFor maps a failure kind onto an HTTP status.
func StatusFor(kind domain.FailureKind) int {
	switch kind {
	case domain.MissingCredential, domain.MaskedCredential, domain.ImplausibleCredential, domain.BadRequest:
		return http.StatusBadRequest
	case domain.AuthFailure:
		return http.StatusUnauthorized
	case domain.InsufficientCredit:
		return http.StatusPaymentRequired
	case domain.ModelNotFound:
		return http.StatusNotFound
	case domain.NoAudioTrack, domain.DecodeFailure:
		return http.StatusUnprocessableEntity
	case domain.RateLimited:
		return http.StatusTooManyRequests
	case domain.NoProviderAvailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
