package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Strategy names which planner variant produced a batch.
type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategyConservative Strategy = "conservative"
	StrategyAggressive   Strategy = "aggressive"
)

// Pass records one reconciliation: policy, plan, execute and gate.
// Passes are appended to the journal and summarised in the shared state.
type Pass struct {
	ID          string        `json:"id" yaml:"id"`
	Timestamp   int64         `json:"timestamp" yaml:"timestamp"`
	Trigger     string        `json:"trigger" yaml:"trigger"`
	Strategy    Strategy      `json:"strategy" yaml:"strategy"`
	Desired     []SurfaceID   `json:"desired" yaml:"desired"`
	Ops         []StackOp     `json:"ops,omitempty" yaml:"ops,omitempty"`
	Result      []SurfaceID   `json:"result" yaml:"result"`
	Dropped     []SurfaceID   `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	Resynced    bool          `json:"resynced,omitempty" yaml:"resynced,omitempty"`
	Compositing bool          `json:"compositing" yaml:"compositing"`
	Direct      []SurfaceID   `json:"direct,omitempty" yaml:"direct,omitempty"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// Validation errors.
var (
	ErrEmptyPassID      = errors.New("pass id cannot be empty")
	ErrInvalidTimestamp = errors.New("timestamp must be greater than 0")
	ErrInvalidStrategy  = errors.New("strategy must be none, conservative or aggressive")
)

// NewPass creates a Pass with a fresh ULID and the current time.
func NewPass(trigger string) (*Pass, error) {
	now := time.Now()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ULID: %w", err)
	}
	return &Pass{
		ID:        id.String(),
		Timestamp: now.Unix(),
		Trigger:   trigger,
		Strategy:  StrategyNone,
	}, nil
}

// Validate checks that the pass has the fields the journal relies on.
func (p *Pass) Validate() error {
	if p.ID == "" {
		return ErrEmptyPassID
	}
	if p.Timestamp <= 0 {
		return ErrInvalidTimestamp
	}
	switch p.Strategy {
	case StrategyNone, StrategyConservative, StrategyAggressive:
	default:
		return ErrInvalidStrategy
	}
	return nil
}

// Failed reports whether the pass ended with a batch error.
func (p *Pass) Failed() bool {
	return p.Error != ""
}

// TimestampTime returns the timestamp as a time.Time.
func (p *Pass) TimestampTime() time.Time {
	return time.Unix(p.Timestamp, 0)
}

// ULIDTime extracts the creation time encoded in the pass id.
func (p *Pass) ULIDTime() (time.Time, error) {
	id, err := ulid.ParseStrict(p.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse pass id: %w", err)
	}
	return ulid.Time(id.Time()), nil
}

// Clone creates a deep copy of the pass.
func (p *Pass) Clone() *Pass {
	clone := *p
	clone.Desired = append([]SurfaceID(nil), p.Desired...)
	clone.Ops = append([]StackOp(nil), p.Ops...)
	clone.Result = append([]SurfaceID(nil), p.Result...)
	clone.Dropped = append([]SurfaceID(nil), p.Dropped...)
	clone.Direct = append([]SurfaceID(nil), p.Direct...)
	return &clone
}
