// Package titles renders user-configurable entry titles from tracked items.
package titles

import (
	"strconv"
	"strings"

	"github.com/tabwarden/tabwarden/internal/items"
)

// Placeholders recognized in a name-format template.
const (
	PlaceholderRepository = "%repository%"
	PlaceholderName       = "%name%"
	PlaceholderNumber     = "%number%"
)

// Render substitutes every occurrence of the known placeholders with the
// item's fields. Unknown text, including unrecognized placeholders, passes
// through untouched.
func Render(template string, it items.TrackedItem) string {
	out := strings.ReplaceAll(template, PlaceholderRepository, it.Repository)
	out = strings.ReplaceAll(out, PlaceholderName, it.Title)
	out = strings.ReplaceAll(out, PlaceholderNumber, strconv.Itoa(it.Number))
	return out
}

// Renderer binds a template into the reconciler's render callback.
func Renderer(template string) func(items.TrackedItem) string {
	return func(it items.TrackedItem) string {
		return Render(template, it)
	}
}
