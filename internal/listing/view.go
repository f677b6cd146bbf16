package listing

import (
	"maps"
	"slices"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
)

// BrandView is a brand filter option.
type BrandView struct {
	ID       domain.ID `json:"id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	Selected bool      `json:"selected"`
}

// BadgeView is an active filter with the action that clears it.
type BadgeView struct {
	catalog.Badge
	Clear Action `json:"clear"`
}

// View is the render model of a listing.
type View struct {
	Profile    string               `json:"profile"`
	Status     Status               `json:"status"`
	Error      string               `json:"error,omitempty"`
	Retryable  bool                 `json:"retryable"`
	Refreshing bool                 `json:"refreshing"`
	Products   []domain.Product     `json:"products"`
	Pagination catalog.PageInfo     `json:"pagination"`
	Window     []catalog.WindowItem `json:"page_window"`
	State      catalog.State        `json:"state"`
	Query      string               `json:"query"`
	Categories []catalog.NodeView   `json:"categories"`
	Expanded   []domain.ID          `json:"expanded_categories"`
	Brands     []BrandView          `json:"brands"`
	Badges     []BadgeView          `json:"badges"`
	Sorts      []catalog.SortKey    `json:"sort_options"`
	Generation uint64               `json:"generation"`
}

// View returns the current render model.
func (p *Pipeline) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Pipeline) viewLocked() View {
	s := p.holder.State()
	bounds := p.holder.Bounds()

	mirror := p.holder.Values()
	maps.Copy(mirror, p.scope)

	brands := make([]BrandView, 0, len(p.brands))
	for _, b := range p.brands {
		brands = append(brands, BrandView{ID: b.ID, Name: b.Name, Slug: b.Slug, Selected: s.HasBrand(b.ID)})
	}

	raw := catalog.Badges(s, bounds, p.tree, p.brands)
	badges := make([]BadgeView, 0, len(raw))
	for _, b := range raw {
		badges = append(badges, BadgeView{Badge: b, Clear: clearAction(b, bounds)})
	}

	return View{
		Profile:    p.profile.Name,
		Status:     p.status,
		Error:      p.errMsg,
		Retryable:  p.status == StatusError,
		Refreshing: p.loaded && !p.settledLocked(),
		Products:   slices.Clone(p.visible),
		Pagination: p.info,
		Window:     catalog.Window(p.info.Page, p.info.TotalPages),
		State:      s,
		Query:      mirror.Encode(),
		Categories: catalog.Render(p.tree, &p.expanded, s.Category),
		Expanded:   p.expanded.IDs(),
		Brands:     brands,
		Badges:     badges,
		Sorts:      catalog.SortKeys(),
		Generation: p.generation,
	}
}
