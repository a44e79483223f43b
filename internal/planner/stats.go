package planner

import (
	"fmt"

	"github.com/jmylchreest/compstack/internal/model"
)

// Stats accumulates planner figures for one strategy.
type Stats struct {
	Plans   int     `json:"plans" yaml:"plans"`
	Windows int     `json:"windows" yaml:"windows"`
	Ops     int     `json:"ops" yaml:"ops"`
	Duty    float64 `json:"duty" yaml:"duty"` // sum of ops/windows over all plans
}

// Savings is the average share of surfaces that did not need an operation,
// as a percentage.
func (s Stats) Savings() int {
	if s.Plans == 0 {
		return 0
	}
	return int(100.0 - 100.0*s.Duty/float64(s.Plans))
}

func (s Stats) String() string {
	return fmt.Sprintf("plans: %d, ops: %d, avg savings: %d%%", s.Plans, s.Ops, s.Savings())
}

// Stats returns a copy of the statistics of the strategies chosen so far.
func (p *Planner) Stats() map[model.Strategy]Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[model.Strategy]Stats, len(p.stats))
	for k, v := range p.stats {
		out[k] = v
	}
	return out
}

// ResetStats forgets all statistics.
func (p *Planner) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.stats)
}
