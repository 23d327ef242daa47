// Package textmatch implements the case-insensitive matching used by the
// template and dropdown searches.
package textmatch

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ContainsFold reports whether substr occurs in s after Unicode case folding.
// An empty substr always matches.
func ContainsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	// A Caser must not be shared between goroutines.
	fold := cases.Fold()
	return strings.Contains(fold.String(s), fold.String(substr))
}

// Stringify renders a decoded JSON/YAML scalar the way it is displayed in the
// spreadsheet cells, so that searching "1200" finds a numeric price.
func Stringify(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		if typed == float64(int64(typed)) {
			return fmt.Sprintf("%d", int64(typed))
		}
		return fmt.Sprint(typed)
	default:
		return fmt.Sprint(typed)
	}
}

// Title upper-cases the first letter of every word ("products" -> "Products").
func Title(s string) string {
	return cases.Title(language.Und).String(s)
}
