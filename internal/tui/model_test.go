package tui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/compstack/internal/config"
	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/store"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(t *testing.T) Model {
	t.Helper()

	s := store.NewStore(nil)
	now := time.Now()
	require.NoError(t, s.Add(model.Pass{
		ID: "01HQGXK5P0000000000000000A", Timestamp: now.Add(-time.Minute).Unix(),
		Trigger: "startup", Strategy: model.StrategyAggressive,
		Desired: []model.SurfaceID{0x10, 0x20}, Result: []model.SurfaceID{0x10, 0x20},
		Ops: []model.StackOp{{Below: 0x20, Above: 0x10}},
	}))
	require.NoError(t, s.Add(model.Pass{
		ID: "01HQGXK5P0000000000000000B", Timestamp: now.Unix(),
		Trigger: "timer", Strategy: model.StrategyConservative,
		Error: "restack 0x30: BadWindow",
	}))

	m := New(config.DefaultConfig(), s, "")
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated, _ = updated.Update(loadPassesMsg{})
	return updated.(Model)
}

func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func TestModel_LoadsNewestFirst(t *testing.T) {
	m := newTestModel(t)

	items := m.list.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "timer", items[0].(passItem).pass.Trigger)
	assert.Equal(t, "startup", items[1].(passItem).pass.Trigger)
}

func TestModel_ToggleFailed(t *testing.T) {
	m := newTestModel(t)

	m = press(t, m, runes("f"))
	assert.True(t, m.failedOnly)
	require.Len(t, m.list.Items(), 1)
	item := m.list.Items()[0].(passItem)
	assert.True(t, item.pass.Failed())

	m = press(t, m, runes("f"))
	assert.Len(t, m.list.Items(), 2)
}

func TestModel_SearchAndDetail(t *testing.T) {
	m := newTestModel(t)

	m = press(t, m, runes("/"))
	require.Equal(t, ModeSearch, m.mode)

	for _, r := range "ops>0" {
		m = press(t, m, runes(string(r)))
	}
	assert.Equal(t, "ops>0", m.searchQuery)
	require.Len(t, m.list.Items(), 1)
	assert.Contains(t, m.View(), "filter, 1 matches")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, ModeDetail, m.mode)
	require.NotNil(t, m.selected)
	assert.Equal(t, "startup", m.selected.Trigger)

	detail := m.renderDetail(*m.selected)
	assert.Contains(t, detail, "0x20 below 0x10")
	assert.Contains(t, detail, "Requests (1):")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ModeList, m.mode)
	assert.Nil(t, m.selected)
}

func TestModel_HelpToggle(t *testing.T) {
	m := newTestModel(t)

	m = press(t, m, runes("?"))
	assert.Equal(t, ModeHelp, m.mode)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	m = press(t, m, runes("?"))
	assert.Equal(t, ModeList, m.mode)
}

func TestModel_Header(t *testing.T) {
	m := newTestModel(t)
	assert.Contains(t, m.renderHeader(), "no daemon state")

	m.statePath = "/nonexistent/state.json"
	updated, _ := m.Update(stateMsg{state: &store.SharedState{
		PID:         0,
		Stacking:    []model.SurfaceID{0x10, 0x20},
		CurrentApp:  0x20,
		Compositing: true,
		Power:       store.PowerOn,
	}})
	m = updated.(Model)

	header := m.renderHeader()
	assert.Contains(t, header, "stopped")
	assert.Contains(t, header, "0x20 0x10")
	assert.Contains(t, header, "current app")

	updated, _ = m.Update(stateMsg{err: errors.New("boom")})
	m = updated.(Model)
	assert.Contains(t, m.renderHeader(), "state: boom")
}

func TestKeybindBar_Width(t *testing.T) {
	m := newTestModel(t)

	full := ansi.Strip(m.keybindBar(0, ModeList))
	assert.Contains(t, full, "q quit")
	assert.Contains(t, full, "r refresh")
	assert.Contains(t, full, "R reconcile now")

	narrow := ansi.Strip(m.keybindBar(20, ModeList))
	assert.Contains(t, narrow, "q quit")
	assert.NotContains(t, narrow, "refresh")

	assert.Contains(t, ansi.Strip(m.keybindBar(0, ModeDetail)), "x hex/decimal ids")
}

func TestModel_ToggleMappedAndIDs(t *testing.T) {
	m := newTestModel(t)
	m.statePath = "/nonexistent/state.json"
	m.shared = &store.SharedState{
		Stacking:       []model.SurfaceID{0x10, 0x20},
		MappedStacking: []model.SurfaceID{0x10, 0x20, 0x30},
		Power:          store.PowerOn,
	}

	assert.Contains(t, m.renderHeader(), "stack (top first)")
	assert.NotContains(t, m.renderHeader(), "0x30")

	m = press(t, m, runes("m"))
	assert.True(t, m.showMapped)
	assert.Contains(t, m.renderHeader(), "mapped (top first)")
	assert.Contains(t, m.renderHeader(), "0x30 0x20 0x10")

	m = press(t, m, runes("x"))
	assert.True(t, m.decimal)
	assert.Contains(t, m.renderHeader(), "48 32 16")
	assert.True(t, m.list.Items()[1].(passItem).decimal)
}

func TestModel_Reconcile(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		m := newTestModel(t)
		_, cmd := m.Update(runes("R"))
		require.NotNil(t, cmd)
		msg, ok := cmd().(statusMsg)
		require.True(t, ok)
		assert.True(t, msg.isErr)
	})

	t.Run("requests a pass", func(t *testing.T) {
		called := 0
		m := newTestModel(t).WithReconciler(func(context.Context) error {
			called++
			return nil
		})
		_, cmd := m.Update(runes("R"))
		require.NotNil(t, cmd)
		msg, ok := cmd().(reconcileResultMsg)
		require.True(t, ok)
		assert.NoError(t, msg.err)
		assert.Equal(t, 1, called)
	})

	t.Run("reports failure", func(t *testing.T) {
		m := newTestModel(t)
		_, cmd := m.Update(reconcileResultMsg{err: errors.New("no daemon")})
		require.NotNil(t, cmd)
	})
}

func TestClipboard(t *testing.T) {
	t.Run("osc52 fallback", func(t *testing.T) {
		var buf bytes.Buffer
		c := clipboard{term: &buf}
		require.NoError(t, c.Copy("hi"))
		assert.Contains(t, buf.String(), "]52;c;aGk=")
	})

	t.Run("no terminal", func(t *testing.T) {
		assert.Error(t, clipboard{}.Copy("hi"))
	})

	t.Run("configured command", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Clipboard.Command = "false --flag"
		c := newClipboard(cfg)
		assert.Equal(t, []string{"false", "--flag"}, c.argv)
		assert.Error(t, c.Copy("hi"))
	})
}
