package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/jmylchreest/compstack/internal/model"
)

// SortField represents a field to sort by.
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByOps       SortField = "ops"
	SortByDuration  SortField = "duration"
	SortByStrategy  SortField = "strategy"
)

// SortOrder represents ascending or descending order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortOptions specifies sorting criteria.
type SortOptions struct {
	Field SortField
	Order SortOrder
}

// DefaultSortOptions returns default sort options (newest first).
func DefaultSortOptions() SortOptions {
	return SortOptions{
		Field: SortByTimestamp,
		Order: SortDesc,
	}
}

// sortKeys compare two passes in ascending order.
var sortKeys = map[SortField]func(a, b *model.Pass) int{
	SortByTimestamp: func(a, b *model.Pass) int { return cmp.Compare(a.Timestamp, b.Timestamp) },
	SortByOps:       func(a, b *model.Pass) int { return cmp.Compare(len(a.Ops), len(b.Ops)) },
	SortByDuration:  func(a, b *model.Pass) int { return cmp.Compare(a.Duration, b.Duration) },
	SortByStrategy:  func(a, b *model.Pass) int { return strings.Compare(string(a.Strategy), string(b.Strategy)) },
}

// Sort sorts passes in place. Equal keys keep their relative order.
func Sort(passes []model.Pass, opts SortOptions) {
	compare, ok := sortKeys[opts.Field]
	if !ok {
		compare = sortKeys[SortByTimestamp]
	}
	slices.SortStableFunc(passes, func(a, b model.Pass) int {
		if opts.Order == SortDesc {
			return compare(&b, &a)
		}
		return compare(&a, &b)
	})
}

// ParseSortField parses a sort field name or its first letter. Unknown
// names give SortByTimestamp and an error.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "timestamp", "time", "t", "":
		return SortByTimestamp, nil
	case "ops", "o":
		return SortByOps, nil
	case "duration", "d":
		return SortByDuration, nil
	case "strategy", "s":
		return SortByStrategy, nil
	}
	return SortByTimestamp, fmt.Errorf("invalid sort field: %s (use timestamp, ops, duration, or strategy)", s)
}

// ParseSortOrder parses asc or desc. Unknown values give SortDesc and an
// error.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending", "a":
		return SortAsc, nil
	case "desc", "descending", "d", "":
		return SortDesc, nil
	}
	return SortDesc, fmt.Errorf("invalid sort order: %s (use asc or desc)", s)
}
