package listing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ActionType names a shopper interaction.
type ActionType string

const (
	ActionSetCategory    ActionType = "set_category"
	ActionClickCategory  ActionType = "click_category"
	ActionToggleExpanded ActionType = "toggle_expanded"
	ActionToggleBrand    ActionType = "toggle_brand"
	ActionSetPriceRange  ActionType = "set_price_range"
	ActionSetRating      ActionType = "set_rating"
	ActionSetDiscount    ActionType = "set_discount"
	ActionSetSearch      ActionType = "set_search"
	ActionSetSort        ActionType = "set_sort"
	ActionSetPage        ActionType = "set_page"
	ActionReset          ActionType = "reset"
)

// Action is one interaction. Value carries the argument of single-valued
// actions; Min and Max carry the price range.
type Action struct {
	Type  ActionType       `json:"type"`
	Value string           `json:"value,omitempty"`
	Min   *decimal.Decimal `json:"min,omitempty"`
	Max   *decimal.Decimal `json:"max,omitempty"`
}

// apply runs the transition for a against the pipeline's holder, tree and
// expansion set. The caller holds p.mu.
func (p *Pipeline) apply(a Action) error {
	h := p.holder
	value := strings.TrimSpace(a.Value)

	switch a.Type {
	case ActionSetCategory:
		id := domain.ID(value)
		if resolved, ok := p.tree.Resolve(value); ok {
			id = resolved
		}
		h.SetCategory(id)
		if !id.IsZero() {
			catalog.PreExpand(p.tree, &p.expanded, id)
		}
	case ActionClickCategory:
		if !catalog.Click(p.tree, &p.expanded, h, domain.ID(value), p.profile.ParentSelectable) {
			return apperrors.NotFound("category", value)
		}
	case ActionToggleExpanded:
		if !p.tree.HasChildren(domain.ID(value)) {
			return apperrors.InvalidParameter("value", value)
		}
		p.expanded.Toggle(domain.ID(value))
	case ActionToggleBrand:
		if value == "" {
			return apperrors.InvalidInput("toggle_brand requires a brand id")
		}
		h.ToggleBrand(domain.ID(value))
	case ActionSetPriceRange:
		lo, hi := h.Bounds().Min, h.Bounds().Max
		if a.Min != nil {
			lo = *a.Min
		}
		if a.Max != nil {
			hi = *a.Max
		}
		h.SetPriceRange(lo, hi)
	case ActionSetRating, ActionSetDiscount, ActionSetPage:
		n, err := strconv.Atoi(value)
		if err != nil {
			return apperrors.InvalidParameter("value", value)
		}
		switch a.Type {
		case ActionSetRating:
			h.SetRating(n)
		case ActionSetDiscount:
			h.SetDiscount(n)
		default:
			h.SetPage(n)
		}
	case ActionSetSearch:
		h.SetSearch(a.Value)
	case ActionSetSort:
		key, ok := catalog.ParseSortKey(value)
		if !ok {
			return apperrors.InvalidParameter("value", value)
		}
		h.SetSort(key)
	case ActionReset:
		h.Reset()
	default:
		return apperrors.InvalidParameter("type", string(a.Type))
	}
	return nil
}

// clearAction returns the action that removes badge b.
func clearAction(b catalog.Badge, bounds catalog.PriceRange) Action {
	switch b.Field {
	case catalog.BadgeCategory:
		return Action{Type: ActionSetCategory}
	case catalog.BadgeBrand:
		return Action{Type: ActionToggleBrand, Value: b.Value}
	case catalog.BadgePrice:
		lo, hi := bounds.Min, bounds.Max
		return Action{Type: ActionSetPriceRange, Min: &lo, Max: &hi}
	case catalog.BadgeRating:
		return Action{Type: ActionSetRating, Value: "0"}
	case catalog.BadgeDiscount:
		return Action{Type: ActionSetDiscount, Value: "0"}
	default:
		return Action{Type: ActionSetSearch}
	}
}
