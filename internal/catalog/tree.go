package catalog

import (
	"slices"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/slug"
)

type treeNode struct {
	cat      domain.Category
	parent   domain.ID
	children []domain.ID
}

// Tree is an indexed category forest. Child order follows input order.
type Tree struct {
	nodes  map[domain.ID]*treeNode
	order  []domain.ID
	roots  []domain.ID
	bySlug map[string]domain.ID
}

// NewTree indexes categories, which may be a nested forest, a flat list
// linked by ParentID, or a mix. A child listed under a parent without its
// own ParentID inherits that parent. References to unknown parents and
// parent links that would close a cycle turn the node into a root.
// Missing slugs are derived from the name.
func NewTree(categories []domain.Category) *Tree {
	t := &Tree{
		nodes:  make(map[domain.ID]*treeNode),
		bySlug: make(map[string]domain.ID),
	}
	t.collect(categories, "")

	for _, id := range t.order {
		n := t.nodes[id]
		if n.parent == id || (n.parent != "" && t.nodes[n.parent] == nil) {
			n.parent = ""
		}
	}
	for _, id := range t.order {
		if t.reaches(t.nodes[id].parent, id) {
			t.nodes[id].parent = ""
		}
	}

	for _, id := range t.order {
		n := t.nodes[id]
		if n.parent == "" {
			t.roots = append(t.roots, id)
			continue
		}
		p := t.nodes[n.parent]
		p.children = append(p.children, id)
	}
	return t
}

func (t *Tree) collect(categories []domain.Category, inherited domain.ID) {
	for _, c := range categories {
		if c.ID.IsZero() {
			continue
		}
		if _, dup := t.nodes[c.ID]; !dup {
			parent := c.ParentID
			if parent.IsZero() {
				parent = inherited
			}
			flat := c
			flat.Children = nil
			flat.ParentID = parent
			if flat.Slug == "" {
				flat.Slug = slug.Generate(flat.Name)
			}
			t.nodes[c.ID] = &treeNode{cat: flat, parent: parent}
			t.order = append(t.order, c.ID)
			if _, taken := t.bySlug[flat.Slug]; !taken && flat.Slug != "" {
				t.bySlug[flat.Slug] = c.ID
			}
		}
		t.collect(c.Children, c.ID)
	}
}

// reaches reports whether walking up from start arrives at target.
func (t *Tree) reaches(start, target domain.ID) bool {
	seen := make(map[domain.ID]bool)
	for id := start; id != ""; id = t.nodes[id].parent {
		if id == target {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return false
}

// Len returns the number of categories.
func (t *Tree) Len() int { return len(t.order) }

// Names returns every category name in input order.
func (t *Tree) Names() []string {
	names := make([]string, 0, len(t.order))
	for _, id := range t.order {
		names = append(names, t.nodes[id].cat.Name)
	}
	return names
}

// Lookup returns the category with the given id, without children.
func (t *Tree) Lookup(id domain.ID) (domain.Category, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return domain.Category{}, false
	}
	return n.cat, true
}

// Resolve maps a URL value to a category id. The value may be an id, a
// slug, or a name whose slug matches.
func (t *Tree) Resolve(value string) (domain.ID, bool) {
	if _, ok := t.nodes[domain.ID(value)]; ok {
		return domain.ID(value), true
	}
	if id, ok := t.bySlug[value]; ok {
		return id, true
	}
	id, ok := t.bySlug[slug.Generate(value)]
	return id, ok
}

// HasChildren reports whether id is a branch node.
func (t *Tree) HasChildren(id domain.ID) bool {
	n, ok := t.nodes[id]
	return ok && len(n.children) > 0
}

// Ancestors returns the parent chain of id, root first, excluding id.
func (t *Tree) Ancestors(id domain.ID) []domain.ID {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var chain []domain.ID
	for p := n.parent; p != ""; p = t.nodes[p].parent {
		chain = append(chain, p)
	}
	slices.Reverse(chain)
	return chain
}

// Descendants returns every category below id in depth-first order.
func (t *Tree) Descendants(id domain.ID) []domain.ID {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var out []domain.ID
	for _, c := range n.children {
		out = append(out, c)
		out = append(out, t.Descendants(c)...)
	}
	return out
}

// Categories rebuilds the nested forest.
func (t *Tree) Categories() []domain.Category {
	return t.nested(t.roots)
}

func (t *Tree) nested(ids []domain.ID) []domain.Category {
	out := make([]domain.Category, 0, len(ids))
	for _, id := range ids {
		n := t.nodes[id]
		c := n.cat
		if len(n.children) > 0 {
			c.Children = t.nested(n.children)
		}
		out = append(out, c)
	}
	return out
}

// Expanded is the ordered set of expanded branch ids.
type Expanded struct {
	ids []domain.ID
}

// Has reports whether id is expanded.
func (e *Expanded) Has(id domain.ID) bool { return slices.Contains(e.ids, id) }

// Add expands id.
func (e *Expanded) Add(id domain.ID) {
	if !e.Has(id) {
		e.ids = append(e.ids, id)
	}
}

// Toggle flips id and reports whether it is now expanded.
func (e *Expanded) Toggle(id domain.ID) bool {
	if i := slices.Index(e.ids, id); i >= 0 {
		e.ids = slices.Delete(e.ids, i, i+1)
		return false
	}
	e.ids = append(e.ids, id)
	return true
}

// IDs returns the expanded ids in expansion order.
func (e *Expanded) IDs() []domain.ID {
	return append([]domain.ID{}, e.ids...)
}

// PreExpand expands every ancestor of selected so the selection is visible.
func PreExpand(t *Tree, e *Expanded, selected domain.ID) {
	for _, id := range t.Ancestors(selected) {
		e.Add(id)
	}
}

// Click applies a click on category id. A branch toggles its expansion and,
// when parentSelectable is set, also becomes the selected category. A leaf
// becomes the selected category and leaves expansion untouched. Unknown
// ids report false.
func Click(t *Tree, e *Expanded, h *Holder, id domain.ID, parentSelectable bool) bool {
	if _, ok := t.nodes[id]; !ok {
		return false
	}
	if t.HasChildren(id) {
		e.Toggle(id)
		if parentSelectable {
			h.SetCategory(id)
		}
		return true
	}
	h.SetCategory(id)
	return true
}

// NodeView is one rendered category row. Children are only populated for
// expanded nodes.
type NodeView struct {
	ID          domain.ID  `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Icon        string     `json:"icon,omitempty"`
	Depth       int        `json:"depth"`
	HasChildren bool       `json:"has_children"`
	Expanded    bool       `json:"expanded"`
	Selected    bool       `json:"selected"`
	Children    []NodeView `json:"children,omitempty"`
}

// Render walks the forest depth-first into views.
func Render(t *Tree, e *Expanded, selected domain.ID) []NodeView {
	return t.render(t.roots, 0, e, selected)
}

func (t *Tree) render(ids []domain.ID, depth int, e *Expanded, selected domain.ID) []NodeView {
	views := make([]NodeView, 0, len(ids))
	for _, id := range ids {
		n := t.nodes[id]
		v := NodeView{
			ID:          id,
			Name:        n.cat.Name,
			Slug:        n.cat.Slug,
			Icon:        n.cat.Icon,
			Depth:       depth,
			HasChildren: len(n.children) > 0,
			Expanded:    e.Has(id),
			Selected:    id == selected,
		}
		if v.HasChildren && v.Expanded {
			v.Children = t.render(n.children, depth+1, e, selected)
		}
		views = append(views, v)
	}
	return views
}
