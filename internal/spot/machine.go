// Package spot runs the occupancy state machine of a single parking spot.
//
// A Machine owns a Backlog fed by the spot's queue consumer, a transition loop
// that drives vacant -> reserved -> occupied -> vacant from the backlog head,
// and an ambient loop that emulates organic traffic while no reservation is
// imminent.  The two loops share a Gate: the transition loop suspends it while
// a reservation owns the spot and the ambient loop only acts while it runs.
package spot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/smart-parking/internal/logging"
	"github.com/iliyamo/smart-parking/internal/metrics"
	"github.com/iliyamo/smart-parking/internal/model"
)

const (
	DefaultPollInterval = time.Second
	DefaultLeadTime     = 50 * time.Second
)

const (
	sourceReservation = "reservation"
	sourceAmbient     = "ambient"
	sourceStartup     = "startup"
)

// Machine is the state machine of one spot.
type Machine struct {
	spotID   string
	reporter Reporter
	clock    Clock
	poll     time.Duration
	lead     time.Duration
	ambient  AmbientConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics

	backlog *Backlog
	gate    *Gate

	// mu serialises status changes and their reports so the central API
	// sees them in the order they happened.
	mu       sync.Mutex
	statusMu sync.RWMutex // status is also read by Status without mu
	status   model.SpotStatus
	stale    bool          // last report failed
	active   *model.Window // window the transition loop is acting on
}

// Option customises a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithPollInterval sets how often the transition loop re-checks the backlog.
func WithPollInterval(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.poll = d
		}
	}
}

// WithLeadTime sets how long before a window starts the spot turns reserved.
func WithLeadTime(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.lead = d
		}
	}
}

// WithAmbient configures the ambient loop.
func WithAmbient(cfg AmbientConfig) Option {
	return func(m *Machine) { m.ambient = cfg.withDefaults() }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = logging.Component(l, "spot") }
}

// WithMetrics records transitions, report failures and backlog depth.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// NewMachine returns a machine for s that reports through r.  Nothing runs
// until Run is called, but Enqueue may be used immediately.
func NewMachine(s model.Spot, r Reporter, opts ...Option) *Machine {
	if r == nil {
		panic("nil reporter passed to NewMachine")
	}
	status := s.Status
	if !status.Valid() {
		status = model.StatusVacant
	}
	m := &Machine{
		spotID:   s.ID,
		reporter: r,
		clock:    SystemClock(),
		poll:     DefaultPollInterval,
		lead:     DefaultLeadTime,
		ambient:  DefaultAmbientConfig(),
		logger:   logging.Component(nil, "spot"),
		backlog:  &Backlog{},
		gate:     NewGate(),
		status:   status,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("spot", s.ID))
	return m
}

// SpotID returns the id of the spot this machine drives.
func (m *Machine) SpotID() string { return m.spotID }

// Status returns the live status.
func (m *Machine) Status() model.SpotStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// Backlog exposes the machine's queue of upcoming windows.
func (m *Machine) Backlog() *Backlog { return m.backlog }

// Gate exposes the pause signal shared by the loops.
func (m *Machine) Gate() *Gate { return m.gate }

// Enqueue accepts a reservation window from the spot's queue.  It has the
// signature of queue.Handler.
func (m *Machine) Enqueue(ctx context.Context, w model.Window) error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("spot %s: window start %s not before end %s", m.spotID, w.Start, w.End)
	}
	if m.backlog.Insert(w, m.clock.Now()) {
		m.logger.Info("reservation queued",
			slog.Time("start", w.Start), slog.Time("end", w.End), slog.Int("backlog", m.backlog.Len()))
	} else {
		m.logger.Debug("reservation ignored (duplicate or already over)",
			slog.Time("start", w.Start), slog.Time("end", w.End))
	}
	m.metrics.Backlog(m.spotID, m.backlog.Len())
	return nil
}

// Run drives the transition loop and, when enabled, the ambient loop until
// ctx is cancelled.  It returns nil on cancellation.
func (m *Machine) Run(ctx context.Context) error {
	// Simulator state is not persisted; a reserved status left over from a
	// previous run has no window behind it.
	m.mu.Lock()
	if m.status == model.StatusReserved {
		m.applyLocked(ctx, model.StatusVacant, sourceStartup)
	}
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.transitionLoop(ctx) })
	if m.ambient.Enabled {
		g.Go(func() error { return m.ambientLoop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (m *Machine) transitionLoop(ctx context.Context) error {
	for {
		m.step(ctx, m.clock.Now())
		if err := m.sleep(ctx, m.poll); err != nil {
			return err
		}
	}
}

// step evaluates the backlog head once at instant now.
func (m *Machine) step(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stale {
		m.reportLocked(ctx, m.Status())
	}

	head, ok := m.backlog.Head()
	if !ok {
		return
	}
	switch {
	case !now.Before(head.End):
		m.backlog.Remove(head)
		m.metrics.Backlog(m.spotID, m.backlog.Len())
		if m.active == nil {
			m.logger.Warn("dropping reservation that ended unobserved",
				slog.Time("start", head.Start), slog.Time("end", head.End))
			return
		}
		m.active = nil
		m.applyLocked(ctx, model.StatusVacant, sourceReservation)
		if next, ok := m.backlog.Head(); ok && m.imminent(next, now) {
			return // stays suspended for the next window
		}
		m.gate.Resume()
		m.logger.Info("reservation finished", slog.Time("end", head.End))

	case !now.Before(head.Start):
		m.claimLocked(head)
		if m.Status() != model.StatusOccupied {
			m.applyLocked(ctx, model.StatusOccupied, sourceReservation)
		}

	case m.imminent(head, now):
		m.claimLocked(head)
		if m.Status() != model.StatusReserved {
			m.applyLocked(ctx, model.StatusReserved, sourceReservation)
		}
	}
}

func (m *Machine) imminent(w model.Window, now time.Time) bool {
	return !now.Add(m.lead).Before(w.Start)
}

func (m *Machine) claimLocked(w model.Window) {
	m.gate.Suspend()
	if m.active == nil || !m.active.Start.Equal(w.Start) || !m.active.End.Equal(w.End) {
		m.active = &w
	}
}

// applyLocked records a status change and reports it.  Callers hold mu.
func (m *Machine) applyLocked(ctx context.Context, status model.SpotStatus, source string) {
	m.statusMu.Lock()
	prev := m.status
	m.status = status
	m.statusMu.Unlock()

	m.metrics.Transition(string(status), source)
	m.logger.Info("status changed",
		slog.String("from", string(prev)), slog.String("to", string(status)), slog.String("source", source))
	m.reportLocked(ctx, status)
}

func (m *Machine) reportLocked(ctx context.Context, status model.SpotStatus) {
	if err := m.reporter.SetSpotStatus(ctx, m.spotID, status); err != nil {
		m.stale = true
		m.metrics.ReportFailed()
		if ctx.Err() == nil {
			m.logger.Warn("status report failed", slog.String("status", string(status)), slog.Any("error", err))
		}
		return
	}
	m.stale = false
}

func (m *Machine) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(d):
		return nil
	}
}
