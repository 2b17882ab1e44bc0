package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/smart-parking/internal/logging"
	"github.com/iliyamo/smart-parking/internal/metrics"
	"github.com/iliyamo/smart-parking/internal/model"
)

// ErrResubscribeExhausted is returned by Consumer.Run when the broker stayed
// unreachable for every reconnect attempt.  It is fatal for the spot.
var ErrResubscribeExhausted = errors.New("resubscribe attempts exhausted")

var errDeliveriesClosed = errors.New("deliveries channel closed")

// Handler receives each decoded reservation window.  A non-nil error rejects
// the message without requeueing it.
type Handler func(ctx context.Context, w model.Window) error

// ConsumerConfig describes one spot's subscription.
type ConsumerConfig struct {
	URL             string
	Exchange        string
	SpotID          string
	Prefetch        int
	MaxRetries      uint64        // reconnect attempts after a lost connection
	InitialInterval time.Duration // first reconnect wait
	MaxInterval     time.Duration // cap on reconnect wait
}

// Consumer binds the spot's durable queue to spot_<id> and feeds every
// delivery to a Handler.  A lost connection triggers a bounded
// reconnect-and-resubscribe sequence.
type Consumer struct {
	cfg     ConsumerConfig
	handle  Handler
	dial    Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerDialer replaces DialAMQP.
func WithConsumerDialer(d Dialer) ConsumerOption {
	return func(c *Consumer) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(l *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logging.Component(l, "consumer") }
}

// WithConsumerMetrics records delivery outcomes and reconnects.
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

// NewConsumer returns a consumer for cfg.SpotID.
func NewConsumer(cfg ConsumerConfig, handle Handler, opts ...ConsumerOption) *Consumer {
	if handle == nil {
		panic("nil handler passed to NewConsumer")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	c := &Consumer{
		cfg:    cfg,
		handle: handle,
		dial:   DialAMQP,
		logger: logging.Component(nil, "consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("spot", cfg.SpotID))
	return c
}

type subscription struct {
	ch         Channel
	conn       io.Closer
	deliveries <-chan amqp.Delivery
}

func (s *subscription) close() {
	_ = s.ch.Close()
	_ = s.conn.Close()
}

// Run consumes until ctx is cancelled, returning nil, or until reconnecting
// fails MaxRetries times in a row, returning ErrResubscribeExhausted.  The
// subscription is always closed before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		sub, err := c.subscribeWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("giving up on broker", slog.Any("error", err))
			return err
		}
		c.logger.Info("subscribed", slog.String("queue", model.QueueName(c.cfg.SpotID)))

		err = c.consume(ctx, sub)
		sub.close()
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.Reconnect(c.cfg.SpotID)
		c.logger.Warn("consume loop ended; resubscribing", slog.Any("error", err))
	}
}

func (c *Consumer) subscribeWithRetry(ctx context.Context) (*subscription, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialInterval
	exp.MaxInterval = c.cfg.MaxInterval
	exp.MaxElapsedTime = 0 // bounded by MaxRetries instead
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.cfg.MaxRetries), ctx)

	var sub *subscription
	op := func() error {
		s, err := c.subscribe(ctx)
		if err != nil {
			return err
		}
		sub = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("subscribe failed; retrying", slog.Any("error", err), slog.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: spot %s: %v", ErrResubscribeExhausted, c.cfg.SpotID, err)
	}
	return sub, nil
}

func (c *Consumer) subscribe(ctx context.Context) (*subscription, error) {
	ch, conn, err := c.dial(ctx, c.cfg.URL)
	if err != nil {
		return nil, err
	}
	sub := &subscription{ch: ch, conn: conn}
	fail := func(err error) (*subscription, error) {
		sub.close()
		return nil, err
	}

	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		return fail(err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		c.logger.Warn("set QoS failed", slog.Any("error", err))
	}
	queue := model.QueueName(c.cfg.SpotID)
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("queue declare: %w", err))
	}
	if err := ch.QueueBind(queue, model.RoutingKey(c.cfg.SpotID), c.cfg.Exchange, false, nil); err != nil {
		return fail(fmt.Errorf("queue bind: %w", err))
	}
	tag := "spot-" + c.cfg.SpotID + "-" + uuid.NewString()[:8]
	msgs, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("queue consume: %w", err))
	}
	sub.deliveries = msgs
	return sub, nil
}

func (c *Consumer) consume(ctx context.Context, sub *subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-sub.deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	w, err := DecodeEnvelope(d.Body)
	if err == nil {
		err = c.handle(ctx, w)
	}
	if err != nil {
		c.metrics.ConsumerEvent("rejected")
		c.logger.Warn("rejecting message", slog.Any("error", err))
		_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
		return
	}
	c.metrics.ConsumerEvent("accepted")
	_ = d.Ack(false)
}
