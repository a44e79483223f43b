package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/compstack/internal/model"
)

func TestIsFilterExpression(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected bool
	}{
		// Valid filter expressions
		{"strategy_equal", "strategy=aggressive", true},
		{"strategy_not_equal", "strategy!=none", true},
		{"error_contains", "error~BadWindow", true},
		{"error_regex", "error~=(?i)badmatch", true},
		{"ops_greater", "ops>2", true},
		{"ops_less_eq", "ops<=1", true},
		{"failed", "failed=true", true},
		{"resynced", "resynced=yes", true},
		{"surface", "surface=0x1a00003", true},
		{"timestamp", "timestamp<1h", true},
		{"alias", "strat=conservative", true},
		{"multiple", "trigger=timer,ops>0", true},

		// Not filter expressions (plain text search)
		{"plain_word", "startup", false},
		{"plain_phrase", "bad window", false},
		{"unknown_field", "unknown=value", false},
		{"just_equals", "=value", false},
		{"bad_ops", "ops=many", false},
		{"bad_surface", "surface=window", false},
		{"empty", "", false},

		// Edge cases
		{"partial_field", "strate=aggressive", false},
		{"case_insensitive_field", "STRATEGY=aggressive", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isFilterExpression(tt.query)
			assert.Equal(t, tt.expected, result, "query: %q", tt.query)
		})
	}
}

func TestApplySearch(t *testing.T) {
	now := time.Now().Unix()
	passes := []model.Pass{
		{ID: "a", Timestamp: now, Trigger: "startup", Strategy: model.StrategyAggressive,
			Desired: []model.SurfaceID{1, 2}, Ops: []model.StackOp{{Below: 2, Above: 1}}},
		{ID: "b", Timestamp: now, Trigger: "timer", Strategy: model.StrategyConservative,
			Desired: []model.SurfaceID{1}, Error: "restack 0x2: BadWindow"},
		{ID: "c", Timestamp: now, Trigger: "reconcile", Strategy: model.StrategyNone},
	}

	ids := func(ps []model.Pass) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty", "", []string{"a", "b", "c"}},
		{"text trigger", "timer", []string{"b"}},
		{"text error", "badwindow", []string{"b"}},
		{"filter failed", "failed=true", []string{"b"}},
		{"filter ops", "ops>0", []string{"a"}},
		{"filter surface", "surface=0x2", []string{"a"}},
		{"no match", "nothing-here", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(applySearch(passes, tt.query)))
		})
	}
}
