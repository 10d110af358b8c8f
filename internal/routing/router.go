// Package routing selects a provider for a content category and classifies
// task hints into categories.
package routing

import "github.com/hpn/caseflow/internal/domain"

// Route walks the priority list for c and returns the first provider that is
// present in providers, enabled, and capable of c. When none qualifies the
// fallback provider is returned. Route is total and deterministic.
func Route(providers []domain.ProviderConfig, c domain.Category) domain.ProviderID {
	for _, id := range domain.PriorityList(c) {
		for _, p := range providers {
			if p.Provider == id && p.Enabled && p.Supports(c) {
				return id
			}
		}
	}
	return domain.FallbackProvider
}

// BuildTable computes Route for every category.
func BuildTable(providers []domain.ProviderConfig) domain.RoutingTable {
	table := make(domain.RoutingTable, len(domain.Categories()))
	for _, c := range domain.Categories() {
		table[c] = Route(providers, c)
	}
	return table
}
