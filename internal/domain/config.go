package domain

// RoutingTable assigns exactly one provider to every category.
type RoutingTable map[Category]ProviderID

// Clone returns an independent copy.
func (r RoutingTable) Clone() RoutingTable {
	out := make(RoutingTable, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MultiProviderConfiguration is the unit of persistence.
type MultiProviderConfiguration struct {
	Providers []ProviderConfig `json:"providers"`
	Routing   RoutingTable     `json:"routing"`
}

// DefaultConfiguration returns the built-in provider, enabled and routed to itself
// for every category.
func DefaultConfiguration() MultiProviderConfiguration {
	routing := make(RoutingTable, len(Categories()))
	for _, c := range Categories() {
		routing[c] = FallbackProvider
	}
	return MultiProviderConfiguration{
		Providers: []ProviderConfig{NewProviderConfig(FallbackProvider)},
		Routing:   routing,
	}
}

// Clone returns a deep copy so that callers never alias store state.
func (m MultiProviderConfiguration) Clone() MultiProviderConfiguration {
	providers := make([]ProviderConfig, len(m.Providers))
	for i, p := range m.Providers {
		providers[i] = p.Clone()
	}
	return MultiProviderConfiguration{
		Providers: providers,
		Routing:   m.Routing.Clone(),
	}
}

// Find returns a copy of the config for id.
func (m MultiProviderConfiguration) Find(id ProviderID) (ProviderConfig, bool) {
	for _, p := range m.Providers {
		if p.Provider == id {
			return p.Clone(), true
		}
	}
	return ProviderConfig{}, false
}

// Enabled returns copies of the enabled providers, in list order.
func (m MultiProviderConfiguration) Enabled() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(m.Providers))
	for _, p := range m.Providers {
		if p.Enabled {
			out = append(out, p.Clone())
		}
	}
	return out
}
