package tui

import (
	"github.com/jmylchreest/compstack/internal/core"
	"github.com/jmylchreest/compstack/internal/model"
)

// isFilterExpression reports whether query parses as a journal filter
// expression rather than plain search text.
func isFilterExpression(query string) bool {
	expr, err := core.ParseFilter(query)
	return err == nil && len(expr.Conditions) > 0
}

// applySearch narrows passes by a filter expression or, failing that, a
// case-insensitive search of triggers and errors.
func applySearch(passes []model.Pass, query string) []model.Pass {
	if query == "" {
		return passes
	}
	if isFilterExpression(query) {
		expr, _ := core.ParseFilter(query)
		return core.FilterWithExpr(passes, expr)
	}
	return core.Search(passes, query)
}
