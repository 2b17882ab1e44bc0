package lock

import (
    "context"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestLocalSerialisesSameKey(t *testing.T) {
    l := NewLocal()
    var inside, peak atomic.Int32
    var wg sync.WaitGroup
    for i := 0; i < 20; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            release, err := l.Acquire(context.Background(), SpotKey("1"))
            if !assert.NoError(t, err) {
                return
            }
            n := inside.Add(1)
            for {
                p := peak.Load()
                if n <= p || peak.CompareAndSwap(p, n) {
                    break
                }
            }
            time.Sleep(time.Millisecond)
            inside.Add(-1)
            release()
        }()
    }
    wg.Wait()
    require.Equal(t, int32(1), peak.Load())
    require.Zero(t, l.size(), "idle keys are forgotten")
}

func TestLocalKeysAreIndependent(t *testing.T) {
    l := NewLocal()
    r1, err := l.Acquire(context.Background(), SpotKey("1"))
    require.NoError(t, err)
    defer r1()

    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    r2, err := l.Acquire(ctx, SpotKey("2"))
    require.NoError(t, err)
    r2()
}

func TestLocalAcquireTimesOut(t *testing.T) {
    l := NewLocal()
    release, err := l.Acquire(context.Background(), "k")
    require.NoError(t, err)

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
    defer cancel()
    _, err = l.Acquire(ctx, "k")
    require.ErrorIs(t, err, ErrTimeout)

    release()
    release() // second call is a no-op
    require.Zero(t, l.size())
}

// size reports how many keys are tracked.
func (l *Local) size() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return len(l.slots)
}
