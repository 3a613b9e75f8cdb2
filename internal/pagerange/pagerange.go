// Package pagerange turns user-typed page range expressions such as "1, 3-5"
// into sets of 0-based page indices.
package pagerange

import (
	"strconv"
	"strings"
)

// Parse resolves expr against a document of n pages. Tokens are separated by
// commas; a token is either a single 1-based page number or an inclusive range
// "a-b" given in either order. Tokens that do not parse or fall outside [1, n]
// contribute nothing. The caller decides what an empty result means.
func Parse(expr string, n int) Selection {
	sel, _ := ParseDetailed(expr, n)
	return sel
}

// ParseDetailed is Parse that also reports the tokens which selected nothing,
// so a UI can show them as a non-blocking note. Blank tokens are not reported.
func ParseDetailed(expr string, n int) (Selection, []string) {
	sel := NewSelection(n)
	var ignored []string

	for _, raw := range strings.Split(expr, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}
		if !sel.addToken(token) {
			ignored = append(ignored, token)
		}
	}
	return sel, ignored
}

// addToken applies one token and reports whether it selected at least one page.
func (s *Selection) addToken(token string) bool {
	if strings.Contains(token, "-") {
		start, end, ok := parseRange(token)
		if !ok {
			return false
		}
		if start > end {
			start, end = end, start
		}
		// clamp before iterating so "1-1000000000" costs at most n steps
		if start < 1 {
			start = 1
		}
		if end > s.n {
			end = s.n
		}
		added := false
		for i := start; i <= end; i++ {
			s.Set(i-1, true)
			added = true
		}
		return added
	}

	page, err := strconv.Atoi(token)
	if err != nil || page < 1 || page > s.n {
		return false
	}
	s.Set(page-1, true)
	return true
}

// parseRange splits "a-b" on its first hyphen. Both sides must be integers,
// so "-3" and "1-2-3" are rejected.
func parseRange(token string) (int, int, bool) {
	left, right, _ := strings.Cut(token, "-")
	start, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return 0, 0, false
	}
	end, err := strconv.Atoi(strings.TrimSpace(right))
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// Normalize strips all whitespace from a range expression. Export bundles are
// named after the normalized text.
func Normalize(expr string) string {
	return strings.Join(strings.Fields(expr), "")
}
