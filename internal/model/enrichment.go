package model

import "time"

// EnrichmentSource identifies who wrote an enriched attribute.
type EnrichmentSource string

// Enrichment sources.
const (
	SourceUser           EnrichmentSource = "user"
	SourceAI             EnrichmentSource = "ai"
	SourceLearnedPattern EnrichmentSource = "learned_pattern"
	SourceSync           EnrichmentSource = "sync"
)

// AttributeCategoryID is the enrichable category attribute of a transaction.
const AttributeCategoryID = "category_id"

// EnrichmentRecord is the provenance of one attribute of one entity.
type EnrichmentRecord struct {
	UpdatedAt time.Time
	Value     *string
	EntityID  string
	Attribute string
	Source    EnrichmentSource
	Locked    bool
}

// Apply writes value from source if the record allows it and reports whether
// the stored value changed. Locked records only accept user writes, and writing
// the value that is already stored is a no-op.
func (r *EnrichmentRecord) Apply(value *string, source EnrichmentSource) bool {
	if r.Locked && source != SourceUser {
		return false
	}
	if equalValues(r.Value, value) {
		return false
	}

	r.Value = copyValue(value)
	r.Source = source
	return true
}

func equalValues(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyValue(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
