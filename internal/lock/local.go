package lock

import (
    "context"
    "fmt"
    "sync"
)

// Local is an in-process Locker.  It is used when Redis is unavailable and
// only protects admissions handled by this process.
type Local struct {
    mu    sync.Mutex
    slots map[string]*slot
}

type slot struct {
    ch   chan struct{} // capacity 1; holding the token means holding the lock
    refs int
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
    return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
    l.mu.Lock()
    s, ok := l.slots[key]
    if !ok {
        s = &slot{ch: make(chan struct{}, 1)}
        l.slots[key] = s
    }
    s.refs++
    l.mu.Unlock()

    select {
    case s.ch <- struct{}{}:
    case <-ctx.Done():
        l.unref(key, s)
        return nil, fmt.Errorf("%w: %s: %v", ErrTimeout, key, ctx.Err())
    }

    var once sync.Once
    return func() {
        once.Do(func() {
            <-s.ch
            l.unref(key, s)
        })
    }, nil
}

func (l *Local) unref(key string, s *slot) {
    l.mu.Lock()
    defer l.mu.Unlock()
    s.refs--
    if s.refs == 0 {
        delete(l.slots, key)
    }
}
