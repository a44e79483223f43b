package store

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/planner"
)

// PowerState is the display power state reported by MCE.
type PowerState string

const (
	PowerOn     PowerState = "on"
	PowerDimmed PowerState = "dimmed"
	PowerOff    PowerState = "off"
)

// PassSummary is the part of the last pass shown by `compstack status`.
type PassSummary struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Trigger   string         `json:"trigger"`
	Strategy  model.Strategy `json:"strategy"`
	Ops       int            `json:"ops"`
	Error     string         `json:"error,omitempty"`
}

// SharedState is what compstackd publishes for the CLI and TUI, written
// to state.json in the data directory.
type SharedState struct {
	PID       int   `json:"pid,omitempty"`
	StartedAt int64 `json:"started_at,omitempty"`
	UpdatedAt int64 `json:"updated_at,omitempty"`

	Stacking       []model.SurfaceID `json:"stacking"`
	MappedStacking []model.SurfaceID `json:"mapped_stacking"`
	CurrentApp     model.SurfaceID   `json:"current_app,omitempty"`

	Compositing bool              `json:"compositing"`
	Direct      []model.SurfaceID `json:"direct,omitempty"`
	Power       PowerState        `json:"power"`
	Animating   bool              `json:"animating,omitempty"`

	LastPass *PassSummary                     `json:"last_pass,omitempty"`
	Stats    map[model.Strategy]planner.Stats `json:"stats,omitempty"`

	SchemaVersion int `json:"schema_version"`
}

const CurrentSchemaVersion = 1

// stateFileMutex orders reads and writes within one process; other
// processes rely on the atomic rename.
var stateFileMutex sync.RWMutex

// DefaultSharedState returns a new SharedState with default values.
func DefaultSharedState() *SharedState {
	return &SharedState{
		Power:         PowerOn,
		SchemaVersion: CurrentSchemaVersion,
	}
}

// LoadSharedStateFrom reads the state compstackd last published. A
// missing or unreadable file gives the defaults, as if no daemon ran.
func LoadSharedStateFrom(path string) (*SharedState, error) {
	stateFileMutex.RLock()
	data, err := os.ReadFile(path)
	stateFileMutex.RUnlock()

	switch {
	case errors.Is(err, os.ErrNotExist):
		return DefaultSharedState(), nil
	case err != nil:
		return nil, err
	}

	state := DefaultSharedState()
	if json.Unmarshal(data, state) != nil {
		return DefaultSharedState(), nil
	}
	state.SchemaVersion = cmp.Or(state.SchemaVersion, CurrentSchemaVersion)
	state.Power = cmp.Or(state.Power, PowerOn)
	return state, nil
}

// SaveSharedStateTo publishes state at path through a rename, so readers
// never see a partial file.
func SaveSharedStateTo(path string, state *SharedState) error {
	state.SchemaVersion = cmp.Or(state.SchemaVersion, CurrentSchemaVersion)
	state.UpdatedAt = time.Now().Unix()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	stateFileMutex.Lock()
	defer stateFileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RecordPass updates the summary fields from a finished pass.
func (s *SharedState) RecordPass(p *model.Pass) {
	s.LastPass = &PassSummary{
		ID:        p.ID,
		Timestamp: p.Timestamp,
		Trigger:   p.Trigger,
		Strategy:  p.Strategy,
		Ops:       len(p.Ops),
		Error:     p.Error,
	}
	s.Compositing = p.Compositing
	s.Direct = append([]model.SurfaceID(nil), p.Direct...)
}

// Running reports whether the daemon that wrote the state is still alive.
func (s *SharedState) Running() bool {
	if s.PID <= 0 {
		return false
	}
	proc, err := os.FindProcess(s.PID)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
