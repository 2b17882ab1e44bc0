package spot

import (
	"context"
	"sync"
)

// Gate is the two-state pause signal shared by the transition loop and the
// ambient loop.  The zero value is not usable; call NewGate.
type Gate struct {
	mu        sync.Mutex
	suspended bool
	resumed   chan struct{} // closed while running
}

// NewGate returns a running gate.
func NewGate() *Gate {
	g := &Gate{resumed: make(chan struct{})}
	close(g.resumed)
	return g
}

// Suspend pauses waiters.  Suspending a suspended gate is a no-op.
func (g *Gate) Suspend() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.suspended {
		g.suspended = true
		g.resumed = make(chan struct{})
	}
}

// Resume releases every waiter.  Resuming a running gate is a no-op.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.suspended {
		g.suspended = false
		close(g.resumed)
	}
}

// Suspended reports the current state.
func (g *Gate) Suspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended
}

// Wait blocks while the gate is suspended.  It returns ctx.Err() if ctx ends
// first.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.resumed
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
