package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/stack"
)

// Errors returned by FakeServer requests, named after the X errors they
// stand in for.
var (
	ErrBadWindow = errors.New("BadWindow")
	ErrBadMatch  = errors.New("BadMatch")
)

type fakeRequest struct{ err error }

func (r fakeRequest) Check() error { return r.err }

// FakeServer is an in-memory display server holding the true stacking
// order of root's children. It numbers requests like X does and reports
// structural changes to an optional sink, tagged with the serial of the
// request that caused them.
type FakeServer struct {
	mu       sync.Mutex
	state    *stack.State
	serial   uint64
	sink     func(model.Event)
	failures map[model.SurfaceID]error
	requests []model.StackOp
}

// NewFakeServer creates a server whose children are seq, bottom-first.
func NewFakeServer(seq []model.SurfaceID, logger *slog.Logger) *FakeServer {
	return &FakeServer{
		state:    stack.FromSequence(seq, nil, logger),
		failures: make(map[model.SurfaceID]error),
	}
}

// SetSink installs the notification callback. It is called synchronously,
// without the server lock held.
func (f *FakeServer) SetSink(fn func(model.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = fn
}

// FailOn makes every restack request moving id fail with err.
func (f *FakeServer) FailOn(id model.SurfaceID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = err
}

// ClearFailures removes all injected failures.
func (f *FakeServer) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.failures)
}

// Restack applies op immediately; the result is available from Check.
func (f *FakeServer) Restack(op model.StackOp) Request {
	f.mu.Lock()
	f.serial++
	serial := f.serial
	f.requests = append(f.requests, op)

	var err error
	switch {
	case f.failures[op.Below] != nil:
		err = f.failures[op.Below]
	case !f.state.Contains(op.Below):
		err = fmt.Errorf("%w: 0x%x", ErrBadWindow, uint32(op.Below))
	case op.Above != model.None && !f.state.Contains(op.Above):
		err = fmt.Errorf("%w: sibling 0x%x", ErrBadMatch, uint32(op.Above))
	case op.Below == op.Above:
		err = fmt.Errorf("%w: window is its own sibling", ErrBadMatch)
	}
	if err != nil {
		f.mu.Unlock()
		return fakeRequest{err: err}
	}

	_ = f.state.Move(op.Below, op.Above)
	_, below, _ := f.state.Neighbors(op.Below)
	ev := model.Event{Kind: model.EventConfigured, Window: op.Below, Sibling: below, Serial: serial}
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink(ev)
	}
	return fakeRequest{}
}

// QueryStack returns the children bottom-first and the query's serial.
func (f *FakeServer) QueryStack() ([]model.SurfaceID, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serial++
	return f.state.Sequence(), f.serial, nil
}

// Create maps a new child on top of the stack.
func (f *FakeServer) Create(id model.SurfaceID) {
	f.emit(func(serial uint64) (model.Event, bool) {
		if err := f.state.Insert(id, model.None); err != nil {
			return model.Event{}, false
		}
		return model.Event{Kind: model.EventCreated, Window: id, Serial: serial}, true
	})
}

// Destroy removes a child.
func (f *FakeServer) Destroy(id model.SurfaceID) {
	f.emit(func(serial uint64) (model.Event, bool) {
		if !f.state.Remove(id) {
			return model.Event{}, false
		}
		return model.Event{Kind: model.EventDestroyed, Window: id, Serial: serial}, true
	})
}

// Raise moves a child to the top on behalf of another client.
func (f *FakeServer) Raise(id model.SurfaceID) {
	f.emit(func(serial uint64) (model.Event, bool) {
		if !f.state.Contains(id) {
			return model.Event{}, false
		}
		_ = f.state.Move(id, model.None)
		_, below, _ := f.state.Neighbors(id)
		return model.Event{Kind: model.EventConfigured, Window: id, Sibling: below, Serial: serial}, true
	})
}

func (f *FakeServer) emit(change func(serial uint64) (model.Event, bool)) {
	f.mu.Lock()
	f.serial++
	ev, ok := change(f.serial)
	sink := f.sink
	f.mu.Unlock()

	if ok && sink != nil {
		sink(ev)
	}
}

// Sequence returns the true order, bottom-first.
func (f *FakeServer) Sequence() []model.SurfaceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Sequence()
}

// Requests returns every restack request received so far.
func (f *FakeServer) Requests() []model.StackOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.StackOp(nil), f.requests...)
}
