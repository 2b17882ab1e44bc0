package simulator

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
	"github.com/iliyamo/smart-parking/internal/queue"
	"github.com/iliyamo/smart-parking/internal/spot"
)

// Config is shared by every spot of a fleet.
type Config struct {
	RabbitURL      string
	Exchange       string
	PollInterval   time.Duration
	LeadTime       time.Duration
	Ambient        spot.AmbientConfig
	ReconnectTries uint64
	ReconnectWait  time.Duration
	ReconnectMax   time.Duration
}

// Fleet runs a set of independent spot instances.  A spot whose consumer
// gives up stops on its own; the others keep running.
type Fleet struct {
	cfg      Config
	reporter spot.Reporter
	dial     queue.Dialer
	clock    spot.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	machines map[string]*spot.Machine
}

// Option customises a Fleet.
type Option func(*Fleet)

// WithDialer replaces the AMQP dialer of every consumer.
func WithDialer(d queue.Dialer) Option {
	return func(f *Fleet) { f.dial = d }
}

// WithClock replaces the clock of every machine.
func WithClock(c spot.Clock) Option {
	return func(f *Fleet) { f.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fleet) { f.logger = logging.Component(l, "fleet") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fleet) { f.metrics = m }
}

// NewFleet returns a fleet that reports status through reporter.
func NewFleet(cfg Config, reporter spot.Reporter, opts ...Option) *Fleet {
	if reporter == nil {
		panic("nil reporter passed to NewFleet")
	}
	f := &Fleet{
		cfg:      cfg,
		reporter: reporter,
		logger:   logging.Component(nil, "fleet"),
		machines: make(map[string]*spot.Machine),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Machine returns the running machine of spotID, if any.
func (f *Fleet) Machine(spotID string) (*spot.Machine, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machines[spotID]
	return m, ok
}

// Run starts every spot and blocks until all of them have stopped.  It
// returns nil after a clean shutdown, or the joined fatal errors of the
// spots that failed.
func (f *Fleet) Run(ctx context.Context, spots []model.Spot) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range spots {
		wg.Add(1)
		go func(s model.Spot) {
			defer wg.Done()
			if err := f.runSpot(ctx, s); err != nil {
				f.metrics.SpotFailed()
				f.logger.Error("spot stopped", slog.String("spot", s.ID), slog.Any("error", err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("spot %s: %w", s.ID, err))
				mu.Unlock()
			}
		}(s)
	}
	f.logger.Info("fleet started", slog.Int("spots", len(spots)))
	wg.Wait()
	return errors.Join(errs...)
}

func (f *Fleet) runSpot(ctx context.Context, s model.Spot) error {
	opts := []spot.Option{
		spot.WithPollInterval(f.cfg.PollInterval),
		spot.WithLeadTime(f.cfg.LeadTime),
		spot.WithAmbient(f.cfg.Ambient),
		spot.WithLogger(f.logger),
		spot.WithMetrics(f.metrics),
	}
	if f.clock != nil {
		opts = append(opts, spot.WithClock(f.clock))
	}
	m := spot.NewMachine(s, f.reporter, opts...)

	f.mu.Lock()
	f.machines[s.ID] = m
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.machines, s.ID)
		f.mu.Unlock()
	}()

	copts := []queue.ConsumerOption{
		queue.WithConsumerLogger(f.logger),
		queue.WithConsumerMetrics(f.metrics),
	}
	if f.dial != nil {
		copts = append(copts, queue.WithConsumerDialer(f.dial))
	}
	c := queue.NewConsumer(queue.ConsumerConfig{
		URL:             f.cfg.RabbitURL,
		Exchange:        f.cfg.Exchange,
		SpotID:          s.ID,
		MaxRetries:      f.cfg.ReconnectTries,
		InitialInterval: f.cfg.ReconnectWait,
		MaxInterval:     f.cfg.ReconnectMax,
	}, m.Enqueue, copts...)

	// A consumer failure cancels the machine through the group context.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error { return m.Run(gctx) })
	return g.Wait()
}
