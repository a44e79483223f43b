package core

import (
	"slices"
	"strings"

	"github.com/jmylchreest/compstack/internal/model"
)

// LookupByID finds a pass by its id.
// Returns nil if not found.
func LookupByID(passes []model.Pass, id string) *model.Pass {
	for i := range passes {
		if passes[i].ID == id {
			return &passes[i]
		}
	}
	return nil
}

// LookupByIndex finds a pass by its index (1-based for user-friendliness).
// Returns nil if index is out of bounds.
func LookupByIndex(passes []model.Pass, index int) *model.Pass {
	idx := index - 1
	if idx < 0 || idx >= len(passes) {
		return nil
	}
	return &passes[idx]
}

// Search finds passes whose trigger or error contains term.
// Case-insensitive substring match.
func Search(passes []model.Pass, term string) []model.Pass {
	if term == "" {
		return passes
	}

	term = strings.ToLower(term)
	var result []model.Pass

	for _, p := range passes {
		if strings.Contains(strings.ToLower(p.Trigger), term) ||
			strings.Contains(strings.ToLower(p.Error), term) {
			result = append(result, p)
		}
	}

	return result
}

// UniqueTriggers returns the sorted set of triggers found in passes.
func UniqueTriggers(passes []model.Pass) []string {
	seen := make(map[string]bool)
	var triggers []string

	for _, p := range passes {
		if p.Trigger != "" && !seen[p.Trigger] {
			seen[p.Trigger] = true
			triggers = append(triggers, p.Trigger)
		}
	}

	slices.Sort(triggers)
	return triggers
}

// SurfaceHistory returns the passes that moved id, oldest first.
func SurfaceHistory(passes []model.Pass, id model.SurfaceID) []model.Pass {
	var result []model.Pass
	for _, p := range passes {
		for _, op := range p.Ops {
			if op.Below == id {
				result = append(result, p)
				break
			}
		}
	}
	Sort(result, SortOptions{Field: SortByTimestamp, Order: SortAsc})
	return result
}
