// Package core provides filtering, sorting, and lookup logic over journal
// passes.
package core

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/compstack/internal/model"
)

// FilterOp represents a comparison operator.
type FilterOp string

const (
	FilterOpEqual     FilterOp = "="
	FilterOpNotEqual  FilterOp = "!="
	FilterOpContains  FilterOp = "~" // case-insensitive substring
	FilterOpRegex     FilterOp = "~="
	FilterOpGreater   FilterOp = ">"
	FilterOpLess      FilterOp = "<"
	FilterOpGreaterEq FilterOp = ">="
	FilterOpLessEq    FilterOp = "<="
)

// operators in match order; two-character operators first.
var operators = []FilterOp{
	FilterOpNotEqual, FilterOpGreaterEq, FilterOpLessEq, FilterOpRegex,
	FilterOpEqual, FilterOpContains, FilterOpGreater, FilterOpLess,
}

type predicate func(p *model.Pass) bool

// FilterCondition is one "field op value" term of a filter expression.
type FilterCondition struct {
	Field    string // canonical field name
	Operator FilterOp
	Value    string

	match predicate
}

// FilterExpr is a conjunction of conditions.
type FilterExpr struct {
	Conditions []FilterCondition
}

// FilterOptions specifies criteria for filtering passes.
type FilterOptions struct {
	Since    time.Duration  // Passes newer than now-since (0=all)
	Strategy model.Strategy // Exact strategy ("" = any)
	Failed   *bool          // Filter by failure (nil=any)
	Limit    int            // Maximum results (0=unlimited)
}

// Filter filters passes based on the provided options.
func Filter(passes []model.Pass, opts FilterOptions) []model.Pass {
	cutoff := time.Now().Add(-opts.Since).Unix()
	result := make([]model.Pass, 0, len(passes))

	for _, p := range passes {
		switch {
		case opts.Since > 0 && p.Timestamp < cutoff:
		case opts.Strategy != "" && p.Strategy != opts.Strategy:
		case opts.Failed != nil && p.Failed() != *opts.Failed:
		default:
			result = append(result, p)
		}
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result
}

// ParseDuration extends time.ParseDuration with day and week suffixes.
// "0" and "" mean no limit.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "0" || s == "" {
		return 0, nil
	}

	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if n, found := strings.CutSuffix(s, suffix); found {
			count, err := strconv.Atoi(n)
			if err != nil {
				return 0, fmt.Errorf("invalid duration: %s", s)
			}
			return time.Duration(count) * unit, nil
		}
	}
	return time.ParseDuration(s)
}

// ParseStrategy parses a planner strategy name or its first letter.
func ParseStrategy(s string) (model.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "n":
		return model.StrategyNone, nil
	case "conservative", "c":
		return model.StrategyConservative, nil
	case "aggressive", "a":
		return model.StrategyAggressive, nil
	default:
		return "", fmt.Errorf("invalid strategy: %s (use none, conservative, or aggressive)", s)
	}
}

// fieldCompiler turns an operator and value into a predicate for one field.
type fieldCompiler func(op FilterOp, value string) (predicate, error)

var filterFields = map[string]fieldCompiler{
	"strategy":    textField(func(p *model.Pass) string { return string(p.Strategy) }),
	"trigger":     textField(func(p *model.Pass) string { return p.Trigger }),
	"error":       textField(func(p *model.Pass) string { return p.Error }),
	"ops":         countField(func(p *model.Pass) int { return len(p.Ops) }),
	"dropped":     countField(func(p *model.Pass) int { return len(p.Dropped) }),
	"compositing": flagField(func(p *model.Pass) bool { return p.Compositing }),
	"failed":      flagField((*model.Pass).Failed),
	"resynced":    flagField(func(p *model.Pass) bool { return p.Resynced }),
	"surface":     surfaceField,
	"timestamp":   ageField,
	"duration":    durationField,
}

var fieldAliases = map[string]string{
	"strat":      "strategy",
	"reason":     "trigger",
	"err":        "error",
	"requests":   "ops",
	"composited": "compositing",
	"resync":     "resynced",
	"window":     "surface",
	"win":        "surface",
	"time":       "timestamp",
	"ts":         "timestamp",
	"took":       "duration",
}

// ParseFilter parses "field op value" terms separated by commas, all of
// which must hold.
//
// Fields: strategy, trigger, error (text: = != ~ ~=); ops, dropped
// (counts); compositing, failed, resynced (booleans: = !=); surface (id
// present in the desired or resulting order: = !=); timestamp (age, so
// "timestamp>1h" is newer than an hour); duration (time the pass took).
//
// Examples:
//   - "strategy=conservative,ops>=3"
//   - "failed=true,timestamp>1h"
//   - "surface=0x1a00003"
//   - "error~=(?i)badwindow"
func ParseFilter(expr string) (*FilterExpr, error) {
	f := &FilterExpr{Conditions: []FilterCondition{}}
	for part := range strings.SplitSeq(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cond, err := parseCondition(part)
		if err != nil {
			return nil, err
		}
		f.Conditions = append(f.Conditions, cond)
	}
	return f, nil
}

func parseCondition(s string) (FilterCondition, error) {
	for _, op := range operators {
		idx := strings.Index(s, string(op))
		if idx <= 0 {
			continue
		}

		name := strings.ToLower(strings.TrimSpace(s[:idx]))
		if canonical, ok := fieldAliases[name]; ok {
			name = canonical
		}
		compile, ok := filterFields[name]
		if !ok {
			return FilterCondition{}, fmt.Errorf("unknown filter field: %s", name)
		}

		cond := FilterCondition{Field: name, Operator: op, Value: strings.TrimSpace(s[idx+len(op):])}
		match, err := compile(op, cond.Value)
		if err != nil {
			return FilterCondition{}, fmt.Errorf("%s: %w", name, err)
		}
		cond.match = match
		return cond, nil
	}
	return FilterCondition{}, fmt.Errorf("invalid filter condition: %s (missing operator)", s)
}

func unsupported(op FilterOp) error {
	return fmt.Errorf("operator %s not supported", op)
}

// ordered applies a comparison operator to a cmp.Compare result.
func ordered(op FilterOp, c int) (bool, bool) {
	switch op {
	case FilterOpEqual:
		return c == 0, true
	case FilterOpNotEqual:
		return c != 0, true
	case FilterOpGreater:
		return c > 0, true
	case FilterOpLess:
		return c < 0, true
	case FilterOpGreaterEq:
		return c >= 0, true
	case FilterOpLessEq:
		return c <= 0, true
	}
	return false, false
}

func orderedField[T cmp.Ordered](op FilterOp, want T, get func(p *model.Pass) T) (predicate, error) {
	if _, ok := ordered(op, 0); !ok {
		return nil, unsupported(op)
	}
	return func(p *model.Pass) bool {
		ok, _ := ordered(op, cmp.Compare(get(p), want))
		return ok
	}, nil
}

func textField(get func(p *model.Pass) string) fieldCompiler {
	return func(op FilterOp, value string) (predicate, error) {
		switch op {
		case FilterOpEqual:
			return func(p *model.Pass) bool { return get(p) == value }, nil
		case FilterOpNotEqual:
			return func(p *model.Pass) bool { return get(p) != value }, nil
		case FilterOpContains:
			needle := strings.ToLower(value)
			return func(p *model.Pass) bool { return strings.Contains(strings.ToLower(get(p)), needle) }, nil
		case FilterOpRegex:
			re, err := regexp.Compile(value)
			if err != nil {
				return nil, fmt.Errorf("invalid regex: %w", err)
			}
			return func(p *model.Pass) bool { return re.MatchString(get(p)) }, nil
		}
		return nil, unsupported(op)
	}
}

func countField(get func(p *model.Pass) int) fieldCompiler {
	return func(op FilterOp, value string) (predicate, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid count: %s", value)
		}
		return orderedField(op, n, get)
	}
}

func flagField(get func(p *model.Pass) bool) fieldCompiler {
	return func(op FilterOp, value string) (predicate, error) {
		want := parseBool(value)
		switch op {
		case FilterOpEqual:
			return func(p *model.Pass) bool { return get(p) == want }, nil
		case FilterOpNotEqual:
			return func(p *model.Pass) bool { return get(p) != want }, nil
		}
		return nil, unsupported(op)
	}
}

// surfaceField matches passes whose desired or resulting order holds the
// surface; != matches its absence.
func surfaceField(op FilterOp, value string) (predicate, error) {
	id, err := model.ParseSurfaceID(value)
	if err != nil {
		return nil, err
	}
	present := func(p *model.Pass) bool {
		return slices.Contains(p.Desired, id) || slices.Contains(p.Result, id)
	}
	switch op {
	case FilterOpEqual:
		return present, nil
	case FilterOpNotEqual:
		return func(p *model.Pass) bool { return !present(p) }, nil
	}
	return nil, unsupported(op)
}

// ageField compares pass timestamps with now minus the value, so ">"
// selects passes newer than the age.
func ageField(op FilterOp, value string) (predicate, error) {
	age, err := ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp value: %w", err)
	}
	cutoff := time.Now().Add(-age).Unix()
	return orderedField(op, cutoff, func(p *model.Pass) int64 { return p.Timestamp })
}

func durationField(op FilterOp, value string) (predicate, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid duration: %w", err)
	}
	return orderedField(op, d, func(p *model.Pass) time.Duration { return p.Duration })
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "y", "t", "on":
		return true
	}
	return false
}

// Match reports whether p satisfies every condition.
func (f *FilterExpr) Match(p model.Pass) bool {
	for i := range f.Conditions {
		if !f.Conditions[i].Match(p) {
			return false
		}
	}
	return true
}

// Match reports whether p satisfies the condition. A condition not built
// by ParseFilter matches nothing.
func (c *FilterCondition) Match(p model.Pass) bool {
	return c.match != nil && c.match(&p)
}

// FilterWithExpr filters passes using a filter expression.
func FilterWithExpr(passes []model.Pass, expr *FilterExpr) []model.Pass {
	if expr == nil || len(expr.Conditions) == 0 {
		return passes
	}

	result := make([]model.Pass, 0, len(passes))
	for _, p := range passes {
		if expr.Match(p) {
			result = append(result, p)
		}
	}
	return result
}
