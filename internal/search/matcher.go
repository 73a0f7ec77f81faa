// Package search evaluates complaint list filters in memory. Both store
// backings scan every record and run it through a Matcher, so category,
// status and free-text matching behave identically regardless of whether the
// backing could have filtered server-side.
//
// Matching is case-insensitive using Unicode full case folding
// (golang.org/x/text/cases), which SQL LOWER() does not provide portably.
package search

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// Matcher is a compiled ListFilter. A Matcher holds a stateful Caser and is
// therefore not safe for concurrent use; compile one per listing.
type Matcher struct {
	category string
	status   string
	search   string
	fold     cases.Caser
}

// Compile folds the non-empty filter fields once so that Match only folds
// record values.
func Compile(f domain.ListFilter) *Matcher {
	m := &Matcher{fold: cases.Fold()}
	if f.Category != "" {
		m.category = m.fold.String(f.Category)
	}
	if f.Status != "" {
		m.status = m.fold.String(f.Status)
	}
	if f.Search != "" {
		m.search = m.fold.String(f.Search)
	}
	return m
}

// Match reports whether c satisfies every constraint of the filter.
//   - category and status: folded equality
//   - search: folded substring of title or description
func (m *Matcher) Match(c *domain.Complaint) bool {
	if m.category != "" && m.fold.String(c.Category) != m.category {
		return false
	}
	if m.status != "" && m.fold.String(c.Status) != m.status {
		return false
	}
	if m.search != "" &&
		!strings.Contains(m.fold.String(c.Title), m.search) &&
		!strings.Contains(m.fold.String(c.Description), m.search) {
		return false
	}
	return true
}

// Filter returns the complaints matching f, newest first. The input slice is
// not modified.
func Filter(items []domain.Complaint, f domain.ListFilter) []domain.Complaint {
	out := make([]domain.Complaint, 0, len(items))
	m := Compile(f)
	for i := range items {
		if m.Match(&items[i]) {
			out = append(out, items[i])
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders complaints by CreatedAt descending. Ties are broken
// by ID so both backings return the same order for the same data.
func SortNewestFirst(items []domain.Complaint) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
