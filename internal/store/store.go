package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hpn/caseflow/internal/domain"
	"github.com/hpn/caseflow/internal/routing"
)

// DefaultKey is the KV key holding the configuration record.
const DefaultKey = "caseflow:multi_provider_config"

var (
	// ErrUnknownProvider is returned when upserting an identity outside the registry.
	ErrUnknownProvider = errors.New("store: unknown provider")

	// ErrNoCapabilities is returned when a requested capability set does not
	// overlap the provider's registry capabilities.
	ErrNoCapabilities = errors.New("store: provider has no usable capabilities")
)

// Store owns the multi-provider configuration. Callers always receive copies.
type Store struct {
	kv     KV
	key    string
	logger *slog.Logger

	// mu serializes the read-modify-write cycles of every mutating method.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the KV key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store over kv.
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the persisted configuration or the default single-provider
// configuration. It never fails: backend errors and corrupt data are logged
// and replaced by the default.
func (s *Store) Load(ctx context.Context) domain.MultiProviderConfiguration {
	cfg, ok := s.read(ctx)
	if !ok {
		return domain.DefaultConfiguration()
	}
	return cfg
}

// read returns the persisted configuration. When nothing usable is persisted
// it returns an empty provider list and false.
func (s *Store) read(ctx context.Context) (domain.MultiProviderConfiguration, bool) {
	empty := domain.MultiProviderConfiguration{Routing: routing.BuildTable(nil)}

	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return empty, false
	}
	if err != nil {
		s.logger.Warn("config load failed, using default",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return empty, false
	}

	cfg, err := decode(data)
	if err != nil {
		s.logger.Warn("persisted config is corrupt, using default",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return empty, false
	}
	return cfg, true
}

// Save overwrites the persisted configuration with cfg.
func (s *Store) Save(ctx context.Context, cfg domain.MultiProviderConfiguration) error {
	data, err := encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	return nil
}

// UpsertProvider replaces the entry for pc.Provider or appends it, recomputes
// routing and persists the result.
func (s *Store) UpsertProvider(ctx context.Context, pc domain.ProviderConfig) (domain.MultiProviderConfiguration, error) {
	if !domain.IsKnown(pc.Provider) {
		return domain.MultiProviderConfiguration{}, fmt.Errorf("%w: %q", ErrUnknownProvider, pc.Provider)
	}
	caps, err := effectiveCapabilities(pc.Provider, pc.Capabilities)
	if err != nil {
		return domain.MultiProviderConfiguration{}, err
	}
	pc = pc.Clone()
	pc.Capabilities = caps

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, _ := s.read(ctx)
	idx := slices.IndexFunc(cfg.Providers, func(p domain.ProviderConfig) bool {
		return p.Provider == pc.Provider
	})
	if idx >= 0 {
		cfg.Providers[idx] = pc
	} else {
		cfg.Providers = append(cfg.Providers, pc)
	}
	cfg.Routing = routing.BuildTable(cfg.Providers)

	if err := s.Save(ctx, cfg); err != nil {
		return domain.MultiProviderConfiguration{}, err
	}

	s.logger.Info("provider upserted",
		slog.String("provider", string(pc.Provider)),
		slog.Bool("enabled", pc.Enabled),
		slog.Bool("replaced", idx >= 0),
	)
	return cfg.Clone(), nil
}

// RemoveProvider deletes the entry for id, recomputes routing and persists.
// Removing an absent identity is a no-op.
func (s *Store) RemoveProvider(ctx context.Context, id domain.ProviderID) (domain.MultiProviderConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.read(ctx)
	idx := slices.IndexFunc(cfg.Providers, func(p domain.ProviderConfig) bool {
		return p.Provider == id
	})
	if idx < 0 {
		if !ok {
			return domain.DefaultConfiguration(), nil
		}
		return cfg, nil
	}

	cfg.Providers = slices.Delete(cfg.Providers, idx, idx+1)
	cfg.Routing = routing.BuildTable(cfg.Providers)

	if err := s.Save(ctx, cfg); err != nil {
		return domain.MultiProviderConfiguration{}, err
	}

	s.logger.Info("provider removed", slog.String("provider", string(id)))
	return cfg.Clone(), nil
}

// Reset deletes the persisted record, corrupt or not, and returns the default
// configuration that Load reports afterwards.
func (s *Store) Reset(ctx context.Context) (domain.MultiProviderConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.key); err != nil {
		return domain.MultiProviderConfiguration{}, fmt.Errorf("reset config: %w", err)
	}
	s.logger.Info("provider configuration reset", slog.String("key", s.key))
	return domain.DefaultConfiguration(), nil
}

// effectiveCapabilities intersects requested with the registry set. An empty
// request means the full registry set.
func effectiveCapabilities(id domain.ProviderID, requested []domain.Category) ([]domain.Category, error) {
	all := domain.Capabilities(id)
	if len(requested) == 0 {
		return all, nil
	}
	out := make([]domain.Category, 0, len(requested))
	for _, c := range all {
		if slices.Contains(requested, c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s supports %v", ErrNoCapabilities, id, all)
	}
	return out, nil
}
