package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/compstack/internal/model"
)

func TestSort_Empty(t *testing.T) {
	var passes []model.Pass
	Sort(passes, DefaultSortOptions())
	assert.Len(t, passes, 0)
}

func TestSort_ByTimestampDesc(t *testing.T) {
	passes := []model.Pass{
		{ID: "1", Timestamp: 100},
		{ID: "2", Timestamp: 300},
		{ID: "3", Timestamp: 200},
	}

	Sort(passes, SortOptions{Field: SortByTimestamp, Order: SortDesc})

	assert.Equal(t, "2", passes[0].ID) // 300
	assert.Equal(t, "3", passes[1].ID) // 200
	assert.Equal(t, "1", passes[2].ID) // 100
}

func TestSort_ByTimestampAsc(t *testing.T) {
	passes := []model.Pass{
		{ID: "1", Timestamp: 100},
		{ID: "2", Timestamp: 300},
		{ID: "3", Timestamp: 200},
	}

	Sort(passes, SortOptions{Field: SortByTimestamp, Order: SortAsc})

	assert.Equal(t, "1", passes[0].ID)
	assert.Equal(t, "3", passes[1].ID)
	assert.Equal(t, "2", passes[2].ID)
}

func TestSort_ByOps(t *testing.T) {
	passes := []model.Pass{
		{ID: "1", Ops: []model.StackOp{{Below: 1}}},
		{ID: "2", Ops: []model.StackOp{{Below: 1}, {Below: 2}, {Below: 3}}},
		{ID: "3"},
	}

	Sort(passes, SortOptions{Field: SortByOps, Order: SortDesc})

	assert.Equal(t, "2", passes[0].ID)
	assert.Equal(t, "1", passes[1].ID)
	assert.Equal(t, "3", passes[2].ID)
}

func TestSort_ByDuration(t *testing.T) {
	passes := []model.Pass{
		{ID: "1", Duration: 3 * time.Millisecond},
		{ID: "2", Duration: time.Millisecond},
		{ID: "3", Duration: 2 * time.Millisecond},
	}

	Sort(passes, SortOptions{Field: SortByDuration, Order: SortAsc})

	assert.Equal(t, "2", passes[0].ID)
	assert.Equal(t, "3", passes[1].ID)
	assert.Equal(t, "1", passes[2].ID)
}

func TestSort_ByStrategy(t *testing.T) {
	passes := []model.Pass{
		{ID: "1", Strategy: model.StrategyNone},
		{ID: "2", Strategy: model.StrategyAggressive},
		{ID: "3", Strategy: model.StrategyConservative},
	}

	Sort(passes, SortOptions{Field: SortByStrategy, Order: SortAsc})

	assert.Equal(t, "2", passes[0].ID)
	assert.Equal(t, "3", passes[1].ID)
	assert.Equal(t, "1", passes[2].ID)
}

func TestSort_StableForEqualKeys(t *testing.T) {
	passes := []model.Pass{
		{ID: "a", Timestamp: 100},
		{ID: "b", Timestamp: 100},
		{ID: "c", Timestamp: 100},
	}

	Sort(passes, SortOptions{Field: SortByTimestamp, Order: SortDesc})

	assert.Equal(t, "a", passes[0].ID)
	assert.Equal(t, "b", passes[1].ID)
	assert.Equal(t, "c", passes[2].ID)
}

func TestParseSortField(t *testing.T) {
	tests := []struct {
		input    string
		expected SortField
	}{
		{"timestamp", SortByTimestamp},
		{"t", SortByTimestamp},
		{"ops", SortByOps},
		{"duration", SortByDuration},
		{"D", SortByDuration},
		{"strategy", SortByStrategy},
		{"", SortByTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSortField(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	got, err := ParseSortField("size")
	assert.Error(t, err)
	assert.Equal(t, SortByTimestamp, got)
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		input    string
		expected SortOrder
	}{
		{"asc", SortAsc},
		{"ascending", SortAsc},
		{"desc", SortDesc},
		{"d", SortDesc},
		{"", SortDesc},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSortOrder(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	got, err := ParseSortOrder("sideways")
	assert.Error(t, err)
	assert.Equal(t, SortDesc, got)
}
