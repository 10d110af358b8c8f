package analysis

import (
	"github.com/hpn/caseflow/internal/domain"
	"github.com/hpn/caseflow/internal/routing"
)

// Resolve picks the provider config that should serve req.
//
// An explicit override must name a configured, enabled provider that supports
// the category. Otherwise the routing table decides; a missing or stale entry
// is recomputed with routing.Route. The built-in provider is implicitly
// present unless stored as disabled.
func Resolve(cfg domain.MultiProviderConfiguration, req domain.AnalysisRequest) (domain.ProviderConfig, *domain.Failure) {
	c := req.Category
	if !c.Valid() {
		return domain.ProviderConfig{}, domain.NewFailure(domain.BadRequest, "unknown content category %q", c)
	}

	if req.Provider != "" {
		return resolveOverride(cfg, req.Provider, c)
	}

	id, ok := cfg.Routing[c]
	if !ok {
		id = routing.Route(cfg.Enabled(), c)
	}
	pc, found := cfg.Find(id)
	if id != domain.FallbackProvider && (!found || !pc.Enabled || !pc.Supports(c)) {
		id = routing.Route(cfg.Enabled(), c)
		pc, found = cfg.Find(id)
	}

	if id == domain.FallbackProvider {
		return fallback(pc, found)
	}
	return pc, nil
}

func resolveOverride(cfg domain.MultiProviderConfiguration, id domain.ProviderID, c domain.Category) (domain.ProviderConfig, *domain.Failure) {
	if !domain.IsKnown(id) {
		return domain.ProviderConfig{}, domain.NewFailure(domain.BadRequest, "unknown provider %q", id)
	}
	pc, found := cfg.Find(id)
	if id == domain.FallbackProvider {
		return fallback(pc, found)
	}

	name := domain.DisplayName(id)
	switch {
	case !found:
		return domain.ProviderConfig{}, domain.NewFailure(domain.NoProviderAvailable, "%s is not configured", name)
	case !pc.Enabled:
		return domain.ProviderConfig{}, domain.NewFailure(domain.NoProviderAvailable, "%s is disabled", name)
	case !pc.Supports(c):
		return domain.ProviderConfig{}, domain.NewFailure(domain.NoProviderAvailable, "%s does not handle %s content", name, c)
	}
	return pc, nil
}

func fallback(pc domain.ProviderConfig, found bool) (domain.ProviderConfig, *domain.Failure) {
	if !found {
		return domain.NewProviderConfig(domain.FallbackProvider), nil
	}
	if !pc.Enabled {
		return domain.ProviderConfig{}, domain.NewFailure(domain.NoProviderAvailable,
			"no enabled provider qualifies and the built-in provider is disabled")
	}
	return pc, nil
}
