// Package domain contains the core business entities and value objects.
// These structs are framework-agnostic and represent the heart of the application.
package domain

import "slices"

// ProviderID identifies an AI backend vendor.
type ProviderID string

const (
	// ProviderBuiltin is the hosted gateway that needs no user credential.
	// It supports every category and is the routing fallback.
	ProviderBuiltin    ProviderID = "builtin"
	ProviderOpenAI     ProviderID = "openai"
	ProviderGemini     ProviderID = "gemini"
	ProviderAnthropic  ProviderID = "anthropic"
	ProviderGroq       ProviderID = "groq"
	ProviderDeepSeek   ProviderID = "deepseek"
	ProviderOpenRouter ProviderID = "openrouter"
)

// FallbackProvider is selected when no configured provider qualifies for a category.
const FallbackProvider = ProviderBuiltin

// AllProviders returns every known provider in declaration order.
func AllProviders() []ProviderID {
	return []ProviderID{
		ProviderBuiltin,
		ProviderOpenAI,
		ProviderGemini,
		ProviderAnthropic,
		ProviderGroq,
		ProviderDeepSeek,
		ProviderOpenRouter,
	}
}

// IsKnown reports whether id is part of the closed provider set.
func IsKnown(id ProviderID) bool {
	_, ok := registry[id]
	return ok
}

// ProviderConfig is the per-provider configuration record owned by the store.
type ProviderConfig struct {
	// Provider is the vendor this record configures.
	Provider ProviderID `json:"provider"`

	// APIKey is the opaque credential. Empty for the built-in provider.
	APIKey string `json:"apiKey,omitempty"`

	// Model selects a vendor model. Empty means the registry default.
	Model string `json:"model,omitempty"`

	// Enabled marks the provider as eligible for routing.
	Enabled bool `json:"enabled"`

	// Capabilities is the effective capability set, a subset of the registry's.
	Capabilities []Category `json:"capabilities"`
}

// NewProviderConfig returns an enabled config carrying the registry capabilities.
func NewProviderConfig(id ProviderID) ProviderConfig {
	return ProviderConfig{
		Provider:     id,
		Enabled:      true,
		Capabilities: Capabilities(id),
	}
}

// Clone returns a deep copy.
func (p ProviderConfig) Clone() ProviderConfig {
	p.Capabilities = slices.Clone(p.Capabilities)
	return p
}

// Supports reports whether the effective capability set includes c.
func (p ProviderConfig) Supports(c Category) bool {
	return slices.Contains(p.Capabilities, c)
}

// EffectiveModel returns the configured model or the registry default.
func (p ProviderConfig) EffectiveModel() string {
	if p.Model != "" {
		return p.Model
	}
	return DefaultModel(p.Provider)
}
