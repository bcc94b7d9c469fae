package model

// Category is a family-scoped spending or income bucket. Names are unique per family.
type Category struct {
	ParentID       *string
	ID             string
	FamilyID       string
	Name           string
	Classification Classification
}

// IsSubcategory reports whether the category has a parent.
func (c Category) IsSubcategory() bool {
	return c.ParentID != nil && *c.ParentID != ""
}
