// Package listing runs the catalog view pipeline of one mounted listing
// page: it hydrates filter state from the URL, fetches from the catalog
// source, re-derives the visible products locally where the backend does
// not filter, and renders the view model.
package listing

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/utafrali/storefront/internal/catalog"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Profile describes one listing page: which filters the backend enforces,
// how brands are selected and what base query every fetch carries.
type Profile struct {
	Name             string               `json:"name"`
	Title            string               `json:"title"`
	Caps             catalog.Capabilities `json:"capabilities"`
	BrandMode        catalog.BrandMode    `json:"-"`
	PerPage          int                  `json:"per_page"`
	FetchLimit       int                  `json:"-"`
	Bounds           catalog.PriceRange   `json:"price_bounds"`
	Base             url.Values           `json:"-"`
	Scope            []string             `json:"scope,omitempty"`
	Debounce         time.Duration        `json:"-"`
	ParentSelectable bool                 `json:"parent_selectable"`
	Suggestions      bool                 `json:"suggestions"`
}

// SingleBrand reports whether the brand filter is single-select.
func (p Profile) SingleBrand() bool { return p.BrandMode == catalog.BrandSingle }

// ScopeValues extracts the profile's scope parameters (e.g. shop_id) from
// q. Every scope parameter is required.
func (p Profile) ScopeValues(q url.Values) (url.Values, error) {
	scope := url.Values{}
	for _, key := range p.Scope {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			return nil, apperrors.InvalidInput(fmt.Sprintf("%s is required for the %s listing", key, p.Name))
		}
		scope.Set(key, v)
	}
	return scope, nil
}

// Translator returns the query translator for this profile. scope is
// merged into the base query.
func (p Profile) Translator(scope url.Values) catalog.Translator {
	base := url.Values{}
	maps.Copy(base, p.Base)
	maps.Copy(base, scope)
	return catalog.Translator{
		Caps:       p.Caps,
		Bounds:     p.Bounds,
		PerPage:    p.PerPage,
		FetchLimit: p.FetchLimit,
		Base:       base,
	}
}

// Defaults are the settings shared by the built-in profiles.
type Defaults struct {
	PerPage    int
	FetchLimit int
	Debounce   time.Duration
	Bounds     catalog.PriceRange
}

// DefaultProfiles returns the storefront's listing pages.
func DefaultProfiles(d Defaults) []Profile {
	base := func(name, title string, caps catalog.Capabilities) Profile {
		return Profile{
			Name:       name,
			Title:      title,
			Caps:       caps,
			BrandMode:  catalog.BrandMulti,
			PerPage:    d.PerPage,
			FetchLimit: d.FetchLimit,
			Bounds:     d.Bounds,
			Base:       url.Values{},
			Debounce:   d.Debounce,
		}
	}

	products := base("products", "All products", catalog.AllServer())

	newArrivals := base("new", "New arrivals", catalog.Capabilities{Category: true, Brand: true, Price: true, Search: true})
	newArrivals.Base.Set("is_new", "true")

	featured := base("featured", "Featured products", catalog.Capabilities{Category: true, Search: true})
	featured.Base.Set("featured", "true")

	promo := base("promo", "Promotions", catalog.Capabilities{})
	promo.Base.Set("promo", "true")
	promo.BrandMode = catalog.BrandSingle

	search := base("search", "Search results", catalog.AllServer())
	search.Suggestions = true

	shop := base("shop", "Shop products", catalog.AllServer())
	shop.Scope = []string{"shop_id"}
	shop.ParentSelectable = true

	wholesale := base("wholesale", "Wholesale", catalog.AllServer())
	wholesale.Base.Set("wholesale", "true")

	return []Profile{products, newArrivals, featured, promo, search, shop, wholesale}
}

// Registry looks profiles up by name.
type Registry struct {
	byName map[string]Profile
	order  []string
}

// NewRegistry indexes profiles. Later duplicates replace earlier ones.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{byName: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if _, ok := r.byName[p.Name]; !ok {
			r.order = append(r.order, p.Name)
		}
		r.byName[p.Name] = p
	}
	return r
}

// Lookup returns the named profile.
func (r *Registry) Lookup(name string) (Profile, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// All returns every profile in registration order.
func (r *Registry) All() []Profile {
	out := make([]Profile, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the registered profile names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.byName))
}
