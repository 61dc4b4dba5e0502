package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RegistryAsset is one curated entry of the static asset registry.
type RegistryAsset struct {
	Name        string
	Symbol      string
	Display     string
	Description string
	Exponent    *int
	Image       string
	Website     string
	Twitter     string
	Telegram    string
}

type assetListDoc struct {
	Assets []struct {
		Base       string `json:"base"`
		Display    string `json:"display"`
		Name       string `json:"name"`
		Symbol     string `json:"symbol"`
		Descr      string `json:"description"`
		DenomUnits []struct {
			Denom    string   `json:"denom"`
			Exponent int      `json:"exponent"`
			Aliases  []string `json:"aliases"`
		} `json:"denom_units"`
		LogoURIs struct {
			PNG string `json:"png"`
			SVG string `json:"svg"`
		} `json:"logo_URIs"`
		Socials struct {
			Website string `json:"website"`
			Twitter string `json:"twitter"`
		} `json:"socials"`
	} `json:"assets"`
}

// Registry is the lazily loaded curated asset list. Entries are indexed by
// base denom, display, alias and symbol (lowercased).
type Registry struct {
	url  string
	http *http.Client

	once  sync.Once
	mu    sync.RWMutex
	byKey map[string]*RegistryAsset
}

// NewRegistry builds a registry backed by an assetlist.json URL. An empty
// URL disables lookups.
func NewRegistry(url string) *Registry {
	return &Registry{
		url:  url,
		http: &http.Client{Timeout: 20 * time.Second},
	}
}

// Lookup returns the first registry entry matching any of the given keys,
// or nil. The registry loads on first use.
func (r *Registry) Lookup(ctx context.Context, keys ...string) *RegistryAsset {
	if r == nil || r.url == "" {
		return nil
	}
	r.once.Do(func() {
		if err := r.load(ctx); err != nil {
			log.Printf("[Registry] load %s: %v", r.url, err)
		}
	})
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if a, ok := r.byKey[strings.ToLower(k)]; ok {
			return a
		}
	}
	return nil
}

func (r *Registry) load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry returned %d", resp.StatusCode)
	}
	var doc assetListDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return err
	}

	byKey := make(map[string]*RegistryAsset)
	for _, raw := range doc.Assets {
		asset := &RegistryAsset{
			Name:        raw.Name,
			Symbol:      raw.Symbol,
			Display:     raw.Display,
			Description: raw.Descr,
			Website:     raw.Socials.Website,
			Twitter:     raw.Socials.Twitter,
		}
		if raw.LogoURIs.PNG != "" {
			asset.Image = raw.LogoURIs.PNG
		} else if raw.LogoURIs.SVG != "" {
			asset.Image = raw.LogoURIs.SVG
		}
		for _, u := range raw.DenomUnits {
			if u.Denom == raw.Display {
				exp := u.Exponent
				asset.Exponent = &exp
			}
		}

		index := func(k string) {
			if k != "" {
				byKey[strings.ToLower(k)] = asset
			}
		}
		index(raw.Base)
		index(raw.Display)
		index(raw.Symbol)
		for _, u := range raw.DenomUnits {
			for _, alias := range u.Aliases {
				index(alias)
			}
		}
	}

	r.mu.Lock()
	r.byKey = byKey
	r.mu.Unlock()
	log.Printf("[Registry] loaded %d assets", len(doc.Assets))
	return nil
}
