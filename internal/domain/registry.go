package domain

import "slices"

type providerInfo struct {
	name         string
	capabilities []Category
	models       []string
	credential   bool
}

var registry = map[ProviderID]providerInfo{
	ProviderBuiltin: {
		name:         "Built-in AI",
		capabilities: Categories(),
		models:       []string{"google/gemini-2.5-flash", "google/gemini-2.5-pro", "openai/gpt-5-mini"},
	},
	ProviderOpenAI: {
		name:         "OpenAI",
		capabilities: []Category{CategoryText, CategoryImage, CategoryAudio, CategoryMixed},
		models:       []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini", "whisper-1"},
		credential:   true,
	},
	ProviderGemini: {
		name:         "Google Gemini",
		capabilities: Categories(),
		models:       []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.0-flash"},
		credential:   true,
	},
	ProviderAnthropic: {
		name:         "Anthropic Claude",
		capabilities: []Category{CategoryText, CategoryImage, CategoryMixed},
		models:       []string{"claude-3-5-haiku-latest", "claude-sonnet-4-5", "claude-opus-4-1"},
		credential:   true,
	},
	ProviderGroq: {
		name:         "Groq",
		capabilities: []Category{CategoryText, CategoryAudio},
		models:       []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "whisper-large-v3"},
		credential:   true,
	},
	ProviderDeepSeek: {
		name:         "DeepSeek",
		capabilities: []Category{CategoryText},
		models:       []string{"deepseek-chat", "deepseek-reasoner"},
		credential:   true,
	},
	ProviderOpenRouter: {
		name:         "OpenRouter",
		capabilities: []Category{CategoryText, CategoryImage, CategoryMixed},
		models:       []string{"openai/gpt-4o-mini", "anthropic/claude-3.5-sonnet", "google/gemini-2.5-flash"},
		credential:   true,
	},
}

// priorities holds the hand-ordered preference per category.
// The fallback provider is not listed; routing appends it implicitly.
var priorities = map[Category][]ProviderID{
	CategoryText:  {ProviderGroq, ProviderDeepSeek, ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOpenRouter},
	CategoryImage: {ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter},
	CategoryAudio: {ProviderOpenAI, ProviderGroq, ProviderGemini},
	CategoryVideo: {ProviderGemini},
	CategoryMixed: {ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter},
}

// Capabilities returns the static capability set of id. The result is a copy.
func Capabilities(id ProviderID) []Category {
	return slices.Clone(registry[id].capabilities)
}

// Models returns the models offered by id, default first.
func Models(id ProviderID) []string {
	return slices.Clone(registry[id].models)
}

// DefaultModel returns the model used when a config leaves Model unset.
func DefaultModel(id ProviderID) string {
	models := registry[id].models
	if len(models) == 0 {
		return ""
	}
	return models[0]
}

// DisplayName returns a human-readable vendor name.
func DisplayName(id ProviderID) string {
	if info, ok := registry[id]; ok {
		return info.name
	}
	return string(id)
}

// RequiresCredential reports whether calls to id need a user API key.
func RequiresCredential(id ProviderID) bool {
	return registry[id].credential
}

// PriorityList returns the preference order for c. The result is a copy.
func PriorityList(c Category) []ProviderID {
	return slices.Clone(priorities[c])
}
