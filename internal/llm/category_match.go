package llm

import (
	"strings"

	"github.com/thinkdifferentdot/maybe/internal/model"
)

// categorySynonyms groups names models commonly use for the same category.
// A group key is a member of its own group.
var categorySynonyms = map[string][]string{
	"gas":         {"gas & fuel", "gas and fuel", "fuel", "gasoline"},
	"restaurants": {"restaurant", "dining", "food"},
	"groceries":   {"grocery", "supermarket", "food store"},
	"streaming":   {"streaming services", "streaming service"},
	"rideshare":   {"ride share", "ride-share", "uber", "lyft"},
	"coffee":      {"coffee shops", "coffee shop", "cafe"},
	"fast food":   {"fastfood", "quick service"},
	"gym":         {"gym & fitness", "fitness", "gym and fitness"},
	"flights":     {"flight", "airline", "airlines", "airfare"},
	"hotels":      {"hotel", "lodging", "accommodation"},
}

// matchCategoryName maps a provider's category name onto one of the family's
// categories. It returns nil when the provider declined, the canonical name
// on an exact, case-insensitive, fuzzy or synonym match, and the trimmed raw
// name otherwise.
func matchCategoryName(name *string, categories []model.Category) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		return nil
	}

	for _, c := range categories {
		if c.Name == trimmed {
			return strPtr(c.Name)
		}
	}

	for _, c := range categories {
		if strings.EqualFold(c.Name, trimmed) {
			return strPtr(c.Name)
		}
	}

	if match, ok := fuzzyCategory(trimmed, categories); ok {
		return strPtr(match)
	}

	return strPtr(trimmed)
}

func fuzzyCategory(name string, categories []model.Category) (string, bool) {
	lower := strings.ToLower(name)
	compact := alphanumeric(lower)

	for _, c := range categories {
		catLower := strings.ToLower(c.Name)
		catCompact := alphanumeric(catLower)

		if compact != "" && catCompact != "" &&
			(strings.Contains(catCompact, compact) || strings.Contains(compact, catCompact)) {
			return c.Name, true
		}
		if synonymous(lower, catLower) {
			return c.Name, true
		}
	}
	return "", false
}

func synonymous(a, b string) bool {
	for key, group := range categorySynonyms {
		if inGroup(a, key, group) && inGroup(b, key, group) {
			return true
		}
	}
	return false
}

func inGroup(s, key string, group []string) bool {
	if s == key {
		return true
	}
	for _, member := range group {
		if s == member {
			return true
		}
	}
	return false
}

func alphanumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func strPtr(s string) *string { return &s }
