package domain

// Category is a node of the category forest. Roots have an empty ParentID.
// Children are kept in display order.
type Category struct {
	ID       ID         `json:"id"`
	Name     string     `json:"name"`
	Slug     string     `json:"slug"`
	Icon     string     `json:"icon,omitempty"`
	ParentID ID         `json:"parent_id,omitempty"`
	Children []Category `json:"children,omitempty"`
}

// IsRoot reports whether the category has no parent.
func (c Category) IsRoot() bool {
	return c.ParentID.IsZero()
}

// Brand is a flat brand entry.
type Brand struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
