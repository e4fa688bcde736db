package forum

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category is the classifier label assigned to a post. The zero value means
// the post has not been categorized yet.
type Category string

const (
	CategoryNone          Category = ""
	CategoryPerformance   Category = "Performance"
	CategoryIndoorCycling Category = "IndoorCycling"

	otherPrefix = "Other:"
)

// CategoryFallback is assigned when classification fails for a post.
var CategoryFallback = Other("General")

// Other builds an Other:<label> category with a normalized label.
func Other(label string) Category {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		label = "General"
	}
	return Category(otherPrefix + cases.Title(language.Und).String(label))
}

// IsOther reports whether c is an Other:<label> category.
func (c Category) IsOther() bool {
	return strings.HasPrefix(string(c), otherPrefix)
}

// Label returns the free-form label of an Other category, or the category
// name itself for fixed categories.
func (c Category) Label() string {
	if c.IsOther() {
		return strings.TrimPrefix(string(c), otherPrefix)
	}
	return string(c)
}

// ParseCategory maps a raw classifier or config label onto a Category.
// Unknown labels become Other:<label>; empty input yields CategoryNone.
func ParseCategory(raw string) Category {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CategoryNone
	}
	compact := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(trimmed))
	switch compact {
	case "performance":
		return CategoryPerformance
	case "indoorcycling", "indoor":
		return CategoryIndoorCycling
	}
	if len(trimmed) > len(otherPrefix) && strings.EqualFold(trimmed[:len(otherPrefix)], otherPrefix) {
		return Other(trimmed[len(otherPrefix):])
	}
	if strings.EqualFold(trimmed, "other") {
		return CategoryFallback
	}
	return Other(trimmed)
}
