// Package meta resolves canonical token metadata: on-chain bank metadata,
// IBC denom traces, token URIs, the curated asset registry and factory
// supply figures, merged into the token row without clobbering known
// values with nulls.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"zigscan/internal/chain"
	"zigscan/internal/models"
	"zigscan/internal/repository"
)

const ibcPrefix = "ibc/"

var uDenomRe = regexp.MustCompile(`^u([a-z0-9]+)$`)

// Resolver implements the metadata refresh used by the block processor's
// phase 3 and the fast-track listener.
type Resolver struct {
	client      *chain.Client
	repo        *repository.Repository
	registry    *Registry
	nativeDenom string
	http        *http.Client
}

func NewResolver(client *chain.Client, repo *repository.Repository, registry *Registry, nativeDenom string) *Resolver {
	return &Resolver{
		client:      client,
		repo:        repo,
		registry:    registry,
		nativeDenom: nativeDenom,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

// Refresh resolves and stores metadata for one denom.
func (r *Resolver) Refresh(ctx context.Context, denom string) error {
	if _, err := r.repo.EnsureToken(ctx, denom, r.nativeDenom); err != nil {
		return err
	}

	kind := repository.KindForDenom(denom, r.nativeDenom)
	update := repository.TokenMetaUpdate{Denom: denom, Kind: &kind}

	// IBC denoms resolve through their transfer trace; the traced base
	// denom is what metadata and registry lookups key on.
	lookup := denom
	if strings.HasPrefix(denom, ibcPrefix) {
		trace, err := r.client.GetIBCDenomTrace(ctx, strings.TrimPrefix(denom, ibcPrefix))
		if err != nil {
			return fmt.Errorf("trace %s: %w", denom, err)
		}
		if trace != nil && trace.BaseDenom != "" {
			lookup = trace.BaseDenom
		}
	}

	md, err := r.client.GetDenomMetadata(ctx, lookup)
	if err != nil {
		return err
	}
	if md != nil && (md.Base != "" || len(md.DenomUnits) > 0) {
		applyBankMetadata(&update, md)
		if md.URI != "" {
			r.applyURI(ctx, &update, md.URI)
		}
	} else if kind == models.TokenKindIBC {
		exp := 6
		update.Exponent = &exp
	} else if m := uDenomRe.FindStringSubmatch(lookup); m != nil {
		core := m[1]
		exp := 0
		update.Symbol = &core
		update.Display = &core
		update.Exponent = &exp
	}

	r.applyRegistry(ctx, &update, lookup, md)

	if err := r.repo.UpdateTokenMetadata(ctx, update); err != nil {
		return err
	}

	if kind == models.TokenKindFactory {
		if err := r.refreshFactorySupply(ctx, denom); err != nil {
			return err
		}
	}
	return nil
}

// applyBankMetadata fills the update from live bank metadata. The exponent
// comes from the denom unit whose denom or alias matches the display
// field.
func applyBankMetadata(u *repository.TokenMetaUpdate, md *chain.DenomMetadata) {
	setIf(&u.Name, md.Name)
	setIf(&u.Symbol, md.Symbol)
	setIf(&u.Display, md.Display)
	for _, unit := range md.DenomUnits {
		if unit.Denom == md.Display {
			exp := unit.Exponent
			u.Exponent = &exp
			return
		}
		for _, alias := range unit.Aliases {
			if alias == md.Display {
				exp := unit.Exponent
				u.Exponent = &exp
				return
			}
		}
	}
}

// applyURI fetches the token URI: an image content-type means the URI is
// the image itself, a JSON body carries icon and social fields.
func (r *Resolver) applyURI(ctx context.Context, u *repository.TokenMetaUpdate, uri string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		setIf(&u.Image, uri)
		return
	}

	var doc struct {
		Icon        string `json:"icon"`
		Image       string `json:"image"`
		Logo        string `json:"logo"`
		Website     string `json:"website"`
		Twitter     string `json:"twitter"`
		Telegram    string `json:"telegram"`
		Description string `json:"description"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || json.Unmarshal(body, &doc) != nil {
		return
	}
	image := doc.Icon
	if image == "" {
		image = doc.Image
	}
	if image == "" {
		image = doc.Logo
	}
	setIf(&u.Image, image)
	setIf(&u.Website, doc.Website)
	setIf(&u.Twitter, doc.Twitter)
	setIf(&u.Telegram, doc.Telegram)
	setIf(&u.Description, doc.Description)
}

// applyRegistry merges curated registry data. The registry wins on name
// and symbol; everything else only fills gaps the live metadata left.
func (r *Resolver) applyRegistry(ctx context.Context, u *repository.TokenMetaUpdate, lookup string, md *chain.DenomMetadata) {
	keys := []string{lookup}
	if md != nil {
		keys = append(keys, md.Display, md.Symbol)
	}
	if u.Display != nil {
		keys = append(keys, *u.Display)
	}
	if u.Symbol != nil {
		keys = append(keys, *u.Symbol)
	}
	asset := r.registry.Lookup(ctx, keys...)
	if asset == nil {
		return
	}

	if asset.Name != "" {
		u.Name = &asset.Name
	}
	if asset.Symbol != "" {
		u.Symbol = &asset.Symbol
	}
	setIf(&u.Display, asset.Display)
	if u.Exponent == nil {
		u.Exponent = asset.Exponent
	}
	setIf(&u.Image, asset.Image)
	setIf(&u.Website, asset.Website)
	setIf(&u.Twitter, asset.Twitter)
	setIf(&u.Telegram, asset.Telegram)
	setIf(&u.Description, asset.Description)
}

func (r *Resolver) refreshFactorySupply(ctx context.Context, denom string) error {
	fd, err := r.client.GetFactoryDenom(ctx, denom)
	if err != nil {
		return err
	}
	if fd == nil {
		return nil
	}
	var maxSupply, totalSupply *string
	if fd.MaxSupply != "" {
		maxSupply = &fd.MaxSupply
	}
	if fd.TotalSupply != "" {
		totalSupply = &fd.TotalSupply
	}
	if maxSupply == nil && totalSupply == nil {
		return nil
	}
	return r.repo.SetTokenSupply(ctx, denom, maxSupply, totalSupply)
}

// setIf assigns value to *dst only when dst is still unset and value is
// non-empty.
func setIf(dst **string, value string) {
	if *dst == nil && value != "" {
		v := value
		*dst = &v
	}
}
