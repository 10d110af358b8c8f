package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/hpn/caseflow/internal/domain"
)

func cfg(id domain.ProviderID, enabled bool) domain.ProviderConfig {
	pc := domain.NewProviderConfig(id)
	pc.Enabled = enabled
	return pc
}

func TestRouteEmptyListAlwaysFallback(t *testing.T) {
	for _, c := range domain.Categories() {
		assert.Equal(t, domain.FallbackProvider, Route(nil, c), "category %s", c)
		assert.Equal(t, domain.FallbackProvider, Route([]domain.ProviderConfig{}, c), "category %s", c)
	}
}

func TestRouteExamples(t *testing.T) {
	tests := []struct {
		name      string
		providers []domain.ProviderConfig
		category  domain.Category
		want      domain.ProviderID
	}{
		{
			name:      "fast text backend preferred for text",
			providers: []domain.ProviderConfig{cfg(domain.ProviderOpenAI, true), cfg(domain.ProviderGroq, true)},
			category:  domain.CategoryText,
			want:      domain.ProviderGroq,
		},
		{
			name:      "multimodal backend preferred for image",
			providers: []domain.ProviderConfig{cfg(domain.ProviderOpenAI, true), cfg(domain.ProviderGemini, true)},
			category:  domain.CategoryImage,
			want:      domain.ProviderGemini,
		},
		{
			name:      "disabled provider skipped",
			providers: []domain.ProviderConfig{cfg(domain.ProviderGroq, false), cfg(domain.ProviderOpenAI, true)},
			category:  domain.CategoryText,
			want:      domain.ProviderOpenAI,
		},
		{
			name:      "incapable provider skipped",
			providers: []domain.ProviderConfig{cfg(domain.ProviderDeepSeek, true)},
			category:  domain.CategoryVideo,
			want:      domain.FallbackProvider,
		},
		{
			name: "narrowed capability set respected",
			providers: []domain.ProviderConfig{{
				Provider:     domain.ProviderGemini,
				Enabled:      true,
				Capabilities: []domain.Category{domain.CategoryText},
			}},
			category: domain.CategoryVideo,
			want:     domain.FallbackProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.providers, tt.category))
		})
	}
}

func TestBuildTableIsTotal(t *testing.T) {
	table := BuildTable([]domain.ProviderConfig{cfg(domain.ProviderOpenAI, true)})
	assert.Len(t, table, len(domain.Categories()))
	assert.Equal(t, domain.ProviderOpenAI, table[domain.CategoryAudio])
	assert.Equal(t, domain.FallbackProvider, table[domain.CategoryVideo])
}

// providersGen draws a list of distinct providers with random enabled flags
// and random capability subsets.
func providersGen() *rapid.Generator[[]domain.ProviderConfig] {
	return rapid.Custom(func(t *rapid.T) []domain.ProviderConfig {
		ids := rapid.SliceOfDistinct(rapid.SampledFrom(domain.AllProviders()), func(id domain.ProviderID) domain.ProviderID {
			return id
		}).Draw(t, "ids")

		out := make([]domain.ProviderConfig, 0, len(ids))
		for _, id := range ids {
			all := domain.Capabilities(id)
			caps := rapid.SliceOfDistinct(rapid.SampledFrom(all), func(c domain.Category) domain.Category {
				return c
			}).Draw(t, "caps")
			out = append(out, domain.ProviderConfig{
				Provider:     id,
				Enabled:      rapid.Bool().Draw(t, "enabled"),
				Capabilities: caps,
			})
		}
		return out
	})
}

func TestRoutePicksEarliestQualifyingProvider(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		providers := providersGen().Draw(t, "providers")
		c := rapid.SampledFrom(domain.Categories()).Draw(t, "category")

		want := domain.FallbackProvider
	search:
		for _, id := range domain.PriorityList(c) {
			for _, p := range providers {
				if p.Provider == id && p.Enabled && p.Supports(c) {
					want = id
					break search
				}
			}
		}

		if got := Route(providers, c); got != want {
			t.Fatalf("Route(%v, %s) = %s, want %s", providers, c, got, want)
		}
	})
}

func TestRouteIsDeterministicAndConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		providers := providersGen().Draw(t, "providers")
		table := BuildTable(providers)

		for _, c := range domain.Categories() {
			id, ok := table[c]
			if !ok {
				t.Fatalf("category %s unmapped", c)
			}
			if id != Route(providers, c) {
				t.Fatalf("Route not deterministic for %s", c)
			}
			if id == domain.FallbackProvider {
				continue
			}
			found := false
			for _, p := range providers {
				if p.Provider == id && p.Enabled && p.Supports(c) {
					found = true
				}
			}
			if !found {
				t.Fatalf("routing[%s] = %s references a provider that is absent, disabled or incapable", c, id)
			}
		}
	})
}
