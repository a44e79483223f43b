package planner

import (
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/stack"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids(v ...int) []model.SurfaceID {
	out := make([]model.SurfaceID, len(v))
	for i, x := range v {
		out[i] = model.SurfaceID(x)
	}
	return out
}

func stateOf(v ...int) *stack.State {
	return stack.FromSequence(ids(v...), nil, quietLogger())
}

// restackReference models XRestackWindows: walking desired top-down, each
// surface is removed and reinserted directly below the previous one.
func restackReference(order, desired []model.SurfaceID) []model.SurfaceID {
	out := slices.Clone(order)
	for i := len(desired) - 2; i >= 0; i-- {
		id, above := desired[i], desired[i+1]
		out = slices.DeleteFunc(out, func(x model.SurfaceID) bool { return x == id })
		j := slices.Index(out, above)
		out = slices.Insert(out, j, id)
	}
	return out
}

func isSubsequence(sub, seq []model.SurfaceID) bool {
	i := 0
	for _, id := range seq {
		if i < len(sub) && sub[i] == id {
			i++
		}
	}
	return i == len(sub)
}

func TestPlan_NothingToDo(t *testing.T) {
	tests := []struct {
		name    string
		desired []model.SurfaceID
		dropped []model.SurfaceID
	}{
		{name: "empty", desired: nil},
		{name: "single", desired: ids(1)},
		{name: "single known after dropping", desired: ids(42, 2, 43), dropped: ids(42, 43)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(quietLogger())
			state := stateOf(1, 2, 3)
			res := p.Plan(tt.desired, state)
			assert.Empty(t, res.Ops)
			assert.Equal(t, model.StrategyNone, res.Strategy)
			assert.Equal(t, tt.dropped, res.Dropped)
			require.NoError(t, res.State.Verify(ids(1, 2, 3)))
			assert.Empty(t, p.Stats())
		})
	}
}

func TestPlan_DropsUnknownAndDuplicates(t *testing.T) {
	p := New(quietLogger())
	res := p.Plan(ids(3, 9, 1, 3), stateOf(1, 2, 3))
	assert.Equal(t, ids(3, 1), res.Desired)
	assert.Equal(t, ids(9, 3), res.Dropped)
	assert.True(t, isSubsequence(ids(3, 1), res.State.Sequence()))
}

func TestPlan_DoesNotMutateState(t *testing.T) {
	p := New(quietLogger())
	state := stateOf(1, 2, 3, 4)
	res := p.Plan(ids(4, 3, 2, 1), state)
	require.NotEmpty(t, res.Ops)
	require.NoError(t, state.Verify(ids(1, 2, 3, 4)))
	require.NoError(t, res.State.Verify(ids(4, 3, 2, 1)))
}

func TestScenarioD(t *testing.T) {
	start := ids(5, 6, 7, 8, 9)
	desired := ids(7, 5, 9)
	want := restackReference(start, desired)
	require.Equal(t, ids(6, 8, 7, 5, 9), want)

	t.Run("conservative", func(t *testing.T) {
		ops, after := Conservative(desired, stateOf(5, 6, 7, 8, 9), quietLogger())
		assert.Equal(t, []model.StackOp{{Below: 5, Above: 9}, {Below: 7, Above: 5}}, ops)
		require.NoError(t, after.Verify(want))
	})

	t.Run("aggressive", func(t *testing.T) {
		ops, after := Aggressive(desired, stateOf(5, 6, 7, 8, 9), quietLogger())
		assert.Len(t, ops, 3)
		require.NoError(t, after.Verify(want))

		replayed := stateOf(5, 6, 7, 8, 9)
		require.NoError(t, Apply(replayed, ops))
		require.NoError(t, replayed.Verify(want))
	})

	t.Run("plan keeps the cheaper one", func(t *testing.T) {
		p := New(quietLogger())
		res := p.Plan(desired, stateOf(5, 6, 7, 8, 9))
		assert.Equal(t, model.StrategyConservative, res.Strategy)
		assert.Len(t, res.Ops, 2)
		require.NoError(t, res.State.Verify(want))
	})
}

func TestAggressive_ParksForeignSurfaceUnderRun(t *testing.T) {
	ops, after := Aggressive(ids(1, 3), stateOf(1, 2, 3), quietLogger())
	assert.Equal(t, []model.StackOp{{Below: 2, Above: 1}}, ops)
	require.NoError(t, after.Verify(ids(2, 1, 3)))

	p := New(quietLogger())
	res := p.Plan(ids(1, 3), stateOf(1, 2, 3))
	assert.Equal(t, model.StrategyAggressive, res.Strategy)
	assert.Equal(t, ops, res.Ops)
}

func TestNaiveOps(t *testing.T) {
	tests := []struct {
		name    string
		old     []model.SurfaceID
		desired []model.SurfaceID
	}{
		{name: "identity", old: ids(1, 2, 3), desired: ids(1, 2, 3)},
		{name: "reverse", old: ids(1, 2, 3, 4), desired: ids(4, 3, 2, 1)},
		{name: "bottom to top", old: ids(1, 2, 3, 4, 5), desired: ids(2, 3, 4, 5, 1)},
		{name: "top to bottom", old: ids(1, 2, 3, 4, 5), desired: ids(5, 1, 2, 3, 4)},
		{name: "swap pairs", old: ids(1, 2, 3, 4), desired: ids(2, 1, 4, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := naiveOps(tt.desired, tt.old)
			state := stack.FromSequence(tt.old, nil, quietLogger())
			require.NoError(t, Apply(state, ops))
			require.NoError(t, state.Verify(tt.desired))
		})
	}

	t.Run("one op for a single move", func(t *testing.T) {
		ops := naiveOps(ids(2, 3, 4, 5, 1), ids(1, 2, 3, 4, 5))
		assert.Equal(t, []model.StackOp{{Below: 1, Above: model.None}}, ops)
	})

	t.Run("different sets", func(t *testing.T) {
		assert.Nil(t, naiveOps(ids(1, 2), ids(1, 2, 3)))
	})
}

func TestPlan_Idempotent(t *testing.T) {
	p := New(quietLogger())
	first := p.Plan(ids(7, 5, 9), stateOf(5, 6, 7, 8, 9))
	require.NotEmpty(t, first.Ops)

	again := p.Plan(ids(7, 5, 9), first.State)
	assert.Empty(t, again.Ops)
	assert.Equal(t, first.State.Sequence(), again.State.Sequence())
}

func TestPlan_RandomizedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(4242))

	for round := 0; round < 500; round++ {
		n := 2 + rng.Intn(11)
		order := make([]model.SurfaceID, n)
		for i := range order {
			order[i] = model.SurfaceID(100 + i)
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		desired := slices.Clone(order)
		rng.Shuffle(n, func(i, j int) { desired[i], desired[j] = desired[j], desired[i] })
		if rng.Intn(3) > 0 {
			desired = desired[:rng.Intn(n+1)]
		}

		state := stack.FromSequence(order, nil, quietLogger())
		p := New(quietLogger())
		res := p.Plan(desired, state)

		require.NoError(t, state.Verify(order), "round %d: input mutated", round)
		require.NoError(t, res.State.Validate(), "round %d", round)
		require.True(t, isSubsequence(desired, res.State.Sequence()),
			"round %d: %v not in %v", round, desired, res.State.Sequence())

		replayed := stack.FromSequence(order, nil, quietLogger())
		require.NoError(t, Apply(replayed, res.Ops))
		require.Equal(t, res.State.Sequence(), replayed.Sequence(), "round %d: ops disagree with plan", round)

		conOps, conState := Conservative(desired, state, quietLogger())
		aggOps, aggState := Aggressive(desired, state, quietLogger())
		assert.LessOrEqual(t, len(res.Ops), len(conOps), "round %d", round)
		assert.LessOrEqual(t, len(res.Ops), len(aggOps), "round %d", round)

		if len(desired) >= 2 {
			require.Equal(t, restackReference(order, desired), conState.Sequence(), "round %d", round)
		}
		require.True(t, isSubsequence(desired, aggState.Sequence()), "round %d", round)

		again := p.Plan(desired, res.State)
		require.Empty(t, again.Ops, "round %d: not idempotent", round)
	}
}

func TestStats(t *testing.T) {
	p := New(quietLogger())
	p.Plan(ids(1, 3), stateOf(1, 2, 3))
	p.Plan(ids(1, 2, 3), stateOf(1, 2, 3))

	stats := p.Stats()
	agg := stats[model.StrategyAggressive]
	assert.Equal(t, 2, agg.Plans)
	assert.Equal(t, 5, agg.Windows)
	assert.Equal(t, 1, agg.Ops)
	assert.Equal(t, "plans: 2, ops: 1, avg savings: 75%", agg.String())

	p.ResetStats()
	assert.Empty(t, p.Stats())
	assert.Equal(t, "plans: 0, ops: 0, avg savings: 0%", Stats{}.String())
}
