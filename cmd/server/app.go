package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/hpn/caseflow/internal/adapter"
	"github.com/hpn/caseflow/internal/analysis"
	"github.com/hpn/caseflow/internal/config"
	"github.com/hpn/caseflow/internal/domain"
	"github.com/hpn/caseflow/internal/handler"
	"github.com/hpn/caseflow/internal/media"
	"github.com/hpn/caseflow/internal/metrics"
	"github.com/hpn/caseflow/internal/security"
	"github.com/hpn/caseflow/internal/store"
)

// loadDotEnv reads .env files when present. A missing file is not an error.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// newLogger builds the process logger. Every record passes through the
// credential redactor before it is written.
func newLogger(lc config.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if strings.EqualFold(lc.Format, "text") {
		inner = slog.NewTextHandler(w, opts)
	} else {
		inner = slog.NewJSONHandler(w, opts)
	}
	return slog.New(security.NewRedactedHandler(inner))
}

// openKV opens the configured persistence backend. The returned close
// function is never nil.
func openKV(ctx context.Context, sc config.StorageConfig) (store.KV, func() error, error) {
	noop := func() error { return nil }

	switch sc.Backend {
	case config.BackendMemory:
		return store.NewMemoryKV(), noop, nil
	case config.BackendFile:
		kv, err := store.NewFileKV(sc.FileDir)
		if err != nil {
			return nil, noop, err
		}
		return kv, noop, nil
	case config.BackendRedis:
		kv, err := store.NewRedisKV(ctx, store.RedisOptions{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		if err != nil {
			return nil, noop, err
		}
		return kv, kv.Close, nil
	case config.BackendSQLite:
		kv, err := store.NewSQLiteKV(sc.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return kv, kv.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

// seedProviders adds environment-supplied credentials for providers that are
// not configured yet. Stored entries always win.
func seedProviders(ctx context.Context, st *store.Store, seeds []config.ProviderSeed, logger *slog.Logger) (int, error) {
	added := 0
	for _, seed := range seeds {
		if _, exists := st.Load(ctx).Find(seed.Provider); exists {
			logger.Debug("provider already configured, seed skipped",
				slog.String("provider", string(seed.Provider)))
			continue
		}
		pc := domain.NewProviderConfig(seed.Provider)
		pc.APIKey = seed.APIKey
		if _, err := st.UpsertProvider(ctx, pc); err != nil {
			return added, fmt.Errorf("seed %s: %w", seed.Provider, err)
		}
		added++
	}
	return added, nil
}

// app is the fully wired service.
type app struct {
	router    *gin.Engine
	store     *store.Store
	collector *metrics.Collector
	closeKV   func() error
}

func (a *app) Close() error {
	return a.closeKV()
}

func newApp(ctx context.Context, cfg *config.Configuration, logger *slog.Logger) (*app, error) {
	kv, closeKV, err := openKV(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	st := store.New(kv, store.WithKey(cfg.Storage.Key), store.WithLogger(logger))
	seeded, err := seedProviders(ctx, st, cfg.Providers.Seeds, logger)
	if err != nil {
		closeKV()
		return nil, err
	}
	if seeded > 0 {
		logger.Info("providers seeded from environment", slog.Int("count", seeded))
	}

	collector := metrics.NewCollector(true)

	dispatchOpts := []adapter.DispatcherOption{
		adapter.WithTimeout(cfg.Providers.RequestTimeout()),
		adapter.WithLogger(logger),
		adapter.WithRecorder(collector),
	}
	for _, ep := range cfg.Providers.Endpoints() {
		dispatchOpts = append(dispatchOpts, adapter.WithBaseURL(ep.Provider, ep.URL))
	}
	if cfg.Providers.BuiltinURL != "" {
		dispatchOpts = append(dispatchOpts,
			adapter.WithBaseURL(domain.ProviderBuiltin, cfg.Providers.BuiltinURL),
			adapter.WithBuiltinToken(cfg.Providers.BuiltinToken),
		)
	}
	dispatcher := adapter.NewDispatcher(dispatchOpts...)

	transcoder := media.NewTranscoder(
		media.FFmpegDecoder{
			FFmpegPath:  cfg.Transcoder.FFmpegPath,
			FFprobePath: cfg.Transcoder.FFprobePath,
		},
		media.WithLogger(logger),
		media.WithMetrics(collector),
		media.WithMaxCapture(cfg.Transcoder.MaxCapture()),
		media.WithTempDir(cfg.Transcoder.TempDir),
	)

	svc := analysis.NewService(st, dispatcher,
		analysis.WithTranscoder(transcoder),
		analysis.WithBatchLimit(cfg.Providers.BatchConcurrency),
		analysis.WithLogger(logger),
	)

	api := handler.NewAPIHandler(st, svc,
		handler.WithLogger(logger),
		handler.WithTranscoder(transcoder),
		handler.WithMaxUploadBytes(int64(cfg.Server.MaxUploadMB)<<20),
	)
	router := handler.NewRouter(api, handler.RouterConfig{
		Logger:         logger,
		Recorder:       collector,
		MetricsHandler: collector.Handler(),
	})

	return &app{
		router:    router,
		store:     st,
		collector: collector,
		closeKV:   closeKV,
	}, nil
}
