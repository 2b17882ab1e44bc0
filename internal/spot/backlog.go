package spot

import (
	"slices"
	"sync"
	"time"

	"github.com/iliyamo/smart-parking/internal/model"
)

// Backlog is a spot's queue of upcoming reservation windows, kept sorted by
// start time.  Each Backlog belongs to exactly one Machine.
type Backlog struct {
	mu      sync.Mutex
	windows []model.Window
}

// Insert adds w and restores start order.  Redelivered duplicates and windows
// that already ended at now are dropped; the result reports whether w was
// kept.
func (b *Backlog) Insert(w model.Window, now time.Time) bool {
	if !w.End.After(now) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, have := range b.windows {
		if have.Start.Equal(w.Start) && have.End.Equal(w.End) {
			return false
		}
	}
	b.windows = append(b.windows, w)
	slices.SortStableFunc(b.windows, func(a, c model.Window) int {
		return a.Start.Compare(c.Start)
	})
	return true
}

// Head returns the earliest window.
func (b *Backlog) Head() (model.Window, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.windows) == 0 {
		return model.Window{}, false
	}
	return b.windows[0], true
}

// Remove deletes w.  Removing by value keeps the call correct even if an
// earlier window was inserted after the caller read the head.
func (b *Backlog) Remove(w model.Window) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, have := range b.windows {
		if have.Start.Equal(w.Start) && have.End.Equal(w.End) {
			b.windows = slices.Delete(b.windows, i, i+1)
			return true
		}
	}
	return false
}

// Len returns the number of queued windows.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

// Windows returns a copy of the queued windows in start order.
func (b *Backlog) Windows() []model.Window {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.windows)
}
