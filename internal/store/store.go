// Package store provides the pass journal and the state shared between
// compstackd and the compstack CLI.
package store

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/compstack/internal/model"
)

// ErrStoreClosed is returned by writes after Close.
var ErrStoreClosed = errors.New("store is closed")

// ChangeType indicates the type of store change.
type ChangeType int

const (
	ChangeTypeAdd ChangeType = iota
	ChangeTypeClear
	ChangeTypePrune
	ChangeTypeDelete
)

// ChangeEvent signals store content changes. Source is the trigger of
// the first added pass, or "persistence" for a rehydrate.
type ChangeEvent struct {
	Type   ChangeType
	Count  int
	Source string
}

// Store is the in-memory pass journal, optionally backed by Persistence.
// It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	passes      []model.Pass
	index       map[string]int
	persistence Persistence
	subscribers []chan ChangeEvent
	closed      bool
}

// NewStore creates a Store. A nil persistence keeps passes in memory only.
func NewStore(persistence Persistence) *Store {
	return &Store{
		index:       make(map[string]int),
		persistence: persistence,
	}
}

// Add records a single pass. Invalid passes are rejected; an id already
// present is ignored.
func (s *Store) Add(p model.Pass) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.AddBatch([]model.Pass{p})
}

// AddBatch records passes with one journal write. Invalid and duplicate
// passes are skipped.
func (s *Store) AddBatch(ps []model.Pass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	added := s.insert(ps, func(p *model.Pass) bool { return p.Validate() == nil })
	if len(added) == 0 {
		return nil
	}
	if s.persistence != nil {
		if err := s.persistence.AppendBatch(added); err != nil {
			return err
		}
	}
	s.notifyChange(ChangeEvent{Type: ChangeTypeAdd, Count: len(added), Source: added[0].Trigger})
	return nil
}

// insert appends the passes accepted by keep whose ids are new and returns
// them. Callers hold mu.
func (s *Store) insert(ps []model.Pass, keep func(p *model.Pass) bool) []model.Pass {
	var added []model.Pass
	for i := range ps {
		p := &ps[i]
		if _, exists := s.index[p.ID]; exists || !keep(p) {
			continue
		}
		s.index[p.ID] = len(s.passes)
		s.passes = append(s.passes, *p)
		added = append(added, *p)
	}
	return added
}

// All returns a copy of every pass, newest first. Equal timestamps fall
// back to id order, which is creation order for ULIDs.
func (s *Store) All() []model.Pass {
	s.mu.RLock()
	result := slices.Clone(s.passes)
	s.mu.RUnlock()

	slices.SortStableFunc(result, func(a, b model.Pass) int {
		return cmp.Or(cmp.Compare(b.Timestamp, a.Timestamp), strings.Compare(b.ID, a.ID))
	})
	return result
}

// Lookup finds a pass by id or by an unambiguous, case-insensitive id
// prefix.
func (s *Store) Lookup(input string) *model.Pass {
	s.mu.RLock()
	defer s.mu.RUnlock()

	input = strings.ToUpper(strings.TrimSpace(input))
	if input == "" {
		return nil
	}
	if idx, exists := s.index[input]; exists {
		p := s.passes[idx]
		return &p
	}

	var match *model.Pass
	for i := range s.passes {
		if !strings.HasPrefix(s.passes[i].ID, input) {
			continue
		}
		if match != nil {
			return nil
		}
		p := s.passes[i]
		match = &p
	}
	return match
}

// Delete removes passes by id with a single journal rewrite and returns
// how many were removed.
func (s *Store) Delete(ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(ChangeTypeDelete, ids)
}

func (s *Store) remove(kind ChangeType, ids []string) (int, error) {
	if s.closed {
		return 0, ErrStoreClosed
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, exists := s.index[id]; exists {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}

	s.passes = slices.DeleteFunc(s.passes, func(p model.Pass) bool {
		_, gone := drop[p.ID]
		return gone
	})
	s.index = make(map[string]int, len(s.passes))
	for i, p := range s.passes {
		s.index[p.ID] = i
	}

	if s.persistence != nil {
		if err := s.persistence.Rewrite(s.passes); err != nil {
			return 0, err
		}
	}
	s.notifyChange(ChangeEvent{Type: kind, Count: len(drop)})
	return len(drop), nil
}

// PruneCandidates returns the passes a prune with the given limits would
// remove: those older than olderThan (0 = no age limit) and those beyond
// the keep newest (0 = unlimited).
func (s *Store) PruneCandidates(olderThan time.Duration, keep int) []model.Pass {
	cutoff := time.Now().Add(-olderThan).Unix()

	var out []model.Pass
	for i, p := range s.All() {
		if (olderThan > 0 && p.Timestamp < cutoff) || (keep > 0 && i >= keep) {
			out = append(out, p)
		}
	}
	return out
}

// Prune removes the passes selected by PruneCandidates.
func (s *Store) Prune(olderThan time.Duration, keep int) (int, error) {
	candidates := s.PruneCandidates(olderThan, keep)
	if len(candidates) == 0 {
		return 0, nil
	}
	ids := make([]string, len(candidates))
	for i, p := range candidates {
		ids[i] = p.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(ChangeTypePrune, ids)
}

// Clear removes every pass.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	count := len(s.passes)
	s.passes = nil
	s.index = make(map[string]int)

	if s.persistence != nil {
		if err := s.persistence.Clear(); err != nil {
			return err
		}
	}
	s.notifyChange(ChangeEvent{Type: ChangeTypeClear, Count: count})
	return nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passes)
}

// Subscribe returns a channel of change events. Events are dropped while
// the channel is full; it is closed by Unsubscribe or Close.
func (s *Store) Subscribe() <-chan ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ChangeEvent, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

func (s *Store) Unsubscribe(ch <-chan ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = slices.Delete(s.subscribers, i, i+1)
			close(sub)
			return
		}
	}
}

// Close closes subscriber channels and the persistence.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil

	if s.persistence != nil {
		return s.persistence.Close()
	}
	return nil
}

// Hydrate merges passes from persistence that the store does not hold yet,
// so it can be repeated when another process appends to the journal.
func (s *Store) Hydrate() error {
	if s.persistence == nil {
		return nil
	}

	passes, err := s.persistence.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := s.insert(passes, func(*model.Pass) bool { return true })
	if len(added) > 0 {
		s.notifyChange(ChangeEvent{Type: ChangeTypeAdd, Count: len(added), Source: "persistence"})
	}
	return nil
}

func (s *Store) notifyChange(event ChangeEvent) {
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// OpenJournal opens and hydrates the JSONL journal at path. A journal
// holding undecodable records is recovered first and the number of
// dropped records returned. A hydrate error leaves a usable, possibly
// partial, store.
func OpenJournal(path string) (*Store, int, error) {
	p, err := NewJSONLPersistence(path)
	if err != nil {
		return nil, 0, err
	}
	s := NewStore(p)
	if err := s.Hydrate(); err != nil {
		return s, 0, err
	}

	dropped := p.Skipped()
	if dropped == 0 {
		return s, 0, nil
	}
	if err := s.Close(); err != nil {
		return nil, 0, err
	}
	if _, err := RecoverFromCorruption(path); err != nil {
		return nil, 0, fmt.Errorf("failed to recover journal: %w", err)
	}

	p, err = NewJSONLPersistence(path)
	if err != nil {
		return nil, 0, err
	}
	s = NewStore(p)
	return s, dropped, s.Hydrate()
}
