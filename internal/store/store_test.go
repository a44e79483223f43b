package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/planner"
)

func TestNewStore(t *testing.T) {
	s := NewStore(nil)
	assert.NotNil(t, s)
	assert.Equal(t, 0, s.Count())
}

func TestStore_Add(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	p := testPass("01A", time.Now())
	require.NoError(t, s.Add(p))
	assert.Equal(t, 1, s.Count())

	// Duplicate id is skipped
	require.NoError(t, s.Add(p))
	assert.Equal(t, 1, s.Count())

	invalid := testPass("", time.Now())
	assert.ErrorIs(t, s.Add(invalid), model.ErrEmptyPassID)
}

func TestStore_AddBatch(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	now := time.Now()
	require.NoError(t, s.AddBatch([]model.Pass{testPass("01A", now), testPass("01B", now), testPass("01A", now)}))
	assert.Equal(t, 2, s.Count())

	require.NoError(t, s.AddBatch([]model.Pass{testPass("01B", now), testPass("01C", now)}))
	assert.Equal(t, 3, s.Count())
}

func TestStore_All(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	now := time.Now()
	require.NoError(t, s.Add(testPass("01OLD", now.Add(-100*time.Second))))
	require.NoError(t, s.Add(testPass("01NEW", now)))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "01NEW", all[0].ID)
	assert.Equal(t, "01OLD", all[1].ID)
}

func TestStore_Lookup(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	now := time.Now()
	require.NoError(t, s.AddBatch([]model.Pass{
		testPass("01HX0AAAA", now),
		testPass("01HX0AAAB", now),
		testPass("01HY0CCCC", now),
	}))

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "exact", input: "01HX0AAAB", want: "01HX0AAAB"},
		{name: "unique prefix", input: "01HY", want: "01HY0CCCC"},
		{name: "lower case prefix", input: "01hy0", want: "01HY0CCCC"},
		{name: "ambiguous prefix", input: "01HX0", want: ""},
		{name: "no match", input: "02", want: ""},
		{name: "empty", input: "  ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Lookup(tt.input)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}

}

func TestStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)

	s := NewStore(p)
	defer s.Close()

	now := time.Now()
	require.NoError(t, s.AddBatch([]model.Pass{testPass("01A", now), testPass("01B", now), testPass("01C", now)}))

	n, err := s.Delete("01A", "01C", "MISSING")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Count())
	assert.NotNil(t, s.Lookup("01B"))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "01B", loaded[0].ID)
}

func TestStore_Prune(t *testing.T) {
	now := time.Now()
	build := func() *Store {
		s := NewStore(nil)
		require.NoError(t, s.AddBatch([]model.Pass{
			testPass("01A", now.Add(-72*time.Hour)),
			testPass("01B", now.Add(-2*time.Hour)),
			testPass("01C", now.Add(-time.Hour)),
			testPass("01D", now),
		}))
		return s
	}

	t.Run("older than", func(t *testing.T) {
		s := build()
		defer s.Close()
		n, err := s.Prune(48*time.Hour, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Nil(t, s.Lookup("01A"))
	})

	t.Run("keep newest", func(t *testing.T) {
		s := build()
		defer s.Close()
		n, err := s.Prune(0, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NotNil(t, s.Lookup("01C"))
		assert.NotNil(t, s.Lookup("01D"))
	})

	t.Run("both limits", func(t *testing.T) {
		s := build()
		defer s.Close()
		candidates := s.PruneCandidates(90*time.Minute, 3)
		require.Len(t, candidates, 2)
		assert.Equal(t, "01B", candidates[0].ID)
		assert.Equal(t, "01A", candidates[1].ID)
	})

	t.Run("single prune event", func(t *testing.T) {
		s := build()
		defer s.Close()
		ch := s.Subscribe()
		_, err := s.Prune(0, 1)
		require.NoError(t, err)

		ev := <-ch
		assert.Equal(t, ChangeTypePrune, ev.Type)
		assert.Equal(t, 3, ev.Count)
		assert.Empty(t, ch)
	})

	t.Run("nothing to prune", func(t *testing.T) {
		s := build()
		defer s.Close()
		n, err := s.Prune(0, 0)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 4, s.Count())
	})
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore(nil)

	ch := s.Subscribe()
	require.NoError(t, s.Add(testPass("01A", time.Now())))

	select {
	case ev := <-ch:
		assert.Equal(t, ChangeTypeAdd, ev.Type)
		assert.Equal(t, 1, ev.Count)
		assert.Equal(t, "event", ev.Source)
	case <-time.After(time.Second):
		t.Fatal("no change event")
	}

	require.NoError(t, s.Clear())
	ev := <-ch
	assert.Equal(t, ChangeTypeClear, ev.Type)
	assert.Equal(t, 1, ev.Count)

	require.NoError(t, s.Close())
	_, ok := <-ch
	assert.False(t, ok, "channel closed with the store")

	assert.ErrorIs(t, s.Add(testPass("01B", time.Now())), ErrStoreClosed)
}

func TestSharedState_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	loaded, err := LoadSharedStateFrom(path)
	require.NoError(t, err)
	assert.Equal(t, PowerOn, loaded.Power)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)

	state := DefaultSharedState()
	state.Stacking = []model.SurfaceID{1, 2, 3}
	state.MappedStacking = []model.SurfaceID{2, 3}
	state.CurrentApp = 3
	state.Power = PowerDimmed
	state.Stats = map[model.Strategy]planner.Stats{
		model.StrategyConservative: {Plans: 2, Windows: 8, Ops: 1, Duty: 0.5},
	}

	pass := testPass("01A", time.Now())
	pass.Ops = []model.StackOp{{Below: 2, Above: 3}}
	pass.Compositing = true
	state.RecordPass(&pass)

	require.NoError(t, SaveSharedStateTo(path, state))
	assert.NotZero(t, state.UpdatedAt)

	loaded, err = LoadSharedStateFrom(path)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
	require.NotNil(t, loaded.LastPass)
	assert.Equal(t, 1, loaded.LastPass.Ops)
	assert.True(t, loaded.Compositing)
}

func TestSharedState_CorruptFileGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, SaveSharedStateTo(path, DefaultSharedState()))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	loaded, err := LoadSharedStateFrom(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSharedState(), loaded)
}

func TestSharedState_Running(t *testing.T) {
	assert.False(t, (&SharedState{}).Running())
	assert.True(t, (&SharedState{PID: os.Getpid()}).Running())
}
