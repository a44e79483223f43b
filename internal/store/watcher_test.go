package store

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "state.json")
	other := filepath.Join(dir, "other.json")

	var calls atomic.Int32
	fw, err := NewFileWatcher(target, func() { calls.Add(1) }, nil)
	require.NoError(t, err)
	fw.SetDebounce(100 * time.Millisecond)
	require.NoError(t, fw.Start())
	defer fw.Stop()

	require.NoError(t, os.WriteFile(other, []byte("x"), 0600))
	require.NoError(t, os.WriteFile(target, []byte("1"), 0600))
	require.NoError(t, os.WriteFile(target, []byte("12"), 0600))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "a burst of writes should fire once")
}

func TestFileWatcher_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "journal.jsonl")

	fired := make(chan struct{}, 1)
	fw, err := NewWatcher(nil)
	require.NoError(t, err)
	require.NoError(t, fw.Watch(target, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}))
	fw.SetDebounce(0)
	require.NoError(t, fw.Start())
	defer fw.Stop()

	tmp := target + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("{}"), 0600))
	require.NoError(t, os.Rename(tmp, target))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("no callback after rename")
	}
}

func TestFileWatcher_StopDropsPending(t *testing.T) {
	target := filepath.Join(t.TempDir(), "state.json")

	var calls atomic.Int32
	fw, err := NewFileWatcher(target, func() { calls.Add(1) }, nil)
	require.NoError(t, err)
	fw.SetDebounce(time.Hour)
	require.NoError(t, fw.Start())

	require.NoError(t, os.WriteFile(target, []byte("1"), 0600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, fw.Stop())
	assert.Zero(t, calls.Load())
	assert.NoError(t, fw.Stop())
}
