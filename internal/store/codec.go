package store

import (
	"encoding/json"
	"errors"

	"github.com/hpn/caseflow/internal/domain"
	"github.com/hpn/caseflow/internal/routing"
)

// The persisted record uses fixed category tokens; keep it stable across versions.
type configRecord struct {
	Providers []providerRecord `json:"providers"`
	Routing   routingRecord    `json:"routing"`
}

type providerRecord struct {
	Provider     string   `json:"provider"`
	APIKey       string   `json:"apiKey,omitempty"`
	Model        string   `json:"model,omitempty"`
	Enabled      bool     `json:"enabled"`
	Capabilities []string `json:"capabilities"`
}

type routingRecord struct {
	Texto  string `json:"texto"`
	Imagem string `json:"imagem"`
	Audio  string `json:"audio"`
	Video  string `json:"video"`
	Misto  string `json:"misto"`
}

func encode(cfg domain.MultiProviderConfiguration) ([]byte, error) {
	rec := configRecord{Providers: make([]providerRecord, 0, len(cfg.Providers))}
	for _, p := range cfg.Providers {
		caps := make([]string, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, c.Token())
		}
		rec.Providers = append(rec.Providers, providerRecord{
			Provider:     string(p.Provider),
			APIKey:       p.APIKey,
			Model:        p.Model,
			Enabled:      p.Enabled,
			Capabilities: caps,
		})
	}
	rec.Routing = routingRecord{
		Texto:  string(cfg.Routing[domain.CategoryText]),
		Imagem: string(cfg.Routing[domain.CategoryImage]),
		Audio:  string(cfg.Routing[domain.CategoryAudio]),
		Video:  string(cfg.Routing[domain.CategoryVideo]),
		Misto:  string(cfg.Routing[domain.CategoryMixed]),
	}
	return json.Marshal(rec)
}

// decode parses and normalizes a persisted record. Unknown providers and
// categories are dropped, duplicates collapse onto the last occurrence, and
// routing is recomputed from the provider list rather than trusted.
func decode(data []byte) (domain.MultiProviderConfiguration, error) {
	var rec configRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.MultiProviderConfiguration{}, err
	}
	if rec.Providers == nil {
		return domain.MultiProviderConfiguration{}, errors.New("record has no providers field")
	}

	cfg := domain.MultiProviderConfiguration{Providers: make([]domain.ProviderConfig, 0, len(rec.Providers))}
	index := make(map[domain.ProviderID]int, len(rec.Providers))

	for _, r := range rec.Providers {
		id := domain.ProviderID(r.Provider)
		if !domain.IsKnown(id) {
			continue
		}
		requested := make([]domain.Category, 0, len(r.Capabilities))
		for _, tok := range r.Capabilities {
			if c, err := domain.ParseCategory(tok); err == nil {
				requested = append(requested, c)
			}
		}
		caps, err := effectiveCapabilities(id, requested)
		if err != nil {
			caps = domain.Capabilities(id)
		}
		pc := domain.ProviderConfig{
			Provider:     id,
			APIKey:       r.APIKey,
			Model:        r.Model,
			Enabled:      r.Enabled,
			Capabilities: caps,
		}
		if i, dup := index[id]; dup {
			cfg.Providers[i] = pc
			continue
		}
		index[id] = len(cfg.Providers)
		cfg.Providers = append(cfg.Providers, pc)
	}

	cfg.Routing = routing.BuildTable(cfg.Providers)
	return cfg, nil
}
