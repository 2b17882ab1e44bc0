package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/smart-parking/internal/logging"
	"github.com/iliyamo/smart-parking/internal/metrics"
)

var (
	// ErrPublishFailure is returned when a publish failed, the connection was
	// rebuilt, and the single retry failed as well.
	ErrPublishFailure = errors.New("publish failure")
	// ErrBrokerClosed is returned by Publish after Close.
	ErrBrokerClosed = errors.New("broker closed")

	errNotOpen = errors.New("broker channel not open")
)

// Broker owns the process-wide publishing connection.  It is opened once at
// start-up and closed at shutdown.  Publish serialises callers on a mutex
// because an AMQP channel must not be used by several goroutines at once.
type Broker struct {
	url      string
	exchange string
	dial     Dialer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	ch     Channel
	conn   io.Closer
	closed bool
}

// BrokerOption customises a Broker.
type BrokerOption func(*Broker)

// WithDialer replaces DialAMQP, mainly for tests.
func WithDialer(d Dialer) BrokerOption {
	return func(b *Broker) {
		if d != nil {
			b.dial = d
		}
	}
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) { b.logger = logging.Component(l, "broker") }
}

// WithMetrics records publish outcomes.
func WithMetrics(m *metrics.Metrics) BrokerOption {
	return func(b *Broker) { b.metrics = m }
}

// NewBroker returns an unopened broker for url.  An empty exchange selects
// DefaultExchange.
func NewBroker(url, exchange string, opts ...BrokerOption) *Broker {
	if exchange == "" {
		exchange = DefaultExchange
	}
	b := &Broker{
		url:      url,
		exchange: exchange,
		dial:     DialAMQP,
		logger:   logging.Component(nil, "broker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Exchange returns the exchange name messages are published to.
func (b *Broker) Exchange() string { return b.exchange }

// Open dials the broker and declares the exchange.  Calling Open on an open
// broker is a no-op.
func (b *Broker) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	return b.openLocked(ctx)
}

func (b *Broker) openLocked(ctx context.Context) error {
	if b.ch != nil {
		return nil
	}
	ch, conn, err := b.dial(ctx, b.url)
	if err != nil {
		return err
	}
	if err := declareExchange(ch, b.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	b.ch, b.conn = ch, conn
	b.logger.Info("broker connected", slog.String("exchange", b.exchange))
	return nil
}

func (b *Broker) teardownLocked() {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.ch, b.conn = nil, nil
}

// Close tears the connection down.  The broker cannot be reopened.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
	b.closed = true
	return nil
}

// Publish delivers body to routingKey as a persistent JSON message.  If the
// first attempt fails the connection is torn down and rebuilt once and the
// publish is retried once.  A second failure is returned wrapped in
// ErrPublishFailure; nothing is retried after that.
func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	first := b.publishLocked(ctx, routingKey, msg)
	if first == nil {
		b.metrics.Publish("ok")
		return nil
	}
	b.logger.Warn("publish failed, rebuilding connection",
		slog.String("routing_key", routingKey), slog.Any("error", first))

	b.teardownLocked()
	if err := b.openLocked(ctx); err != nil {
		b.metrics.Publish("failed")
		b.logger.Error("publish failed: reconnect failed",
			slog.String("routing_key", routingKey), slog.Any("error", err))
		return fmt.Errorf("%w: reconnect: %v (first attempt: %v)", ErrPublishFailure, err, first)
	}
	if err := b.publishLocked(ctx, routingKey, msg); err != nil {
		b.metrics.Publish("failed")
		b.logger.Error("publish failed on second attempt",
			slog.String("routing_key", routingKey), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrPublishFailure, err)
	}
	b.metrics.Publish("retried")
	return nil
}

func (b *Broker) publishLocked(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if b.ch == nil {
		return errNotOpen
	}
	return b.ch.PublishWithContext(ctx,
		b.exchange, // durable direct exchange
		routingKey, // spot_<id>
		false,      // mandatory
		false,      // immediate
		msg,
	)
}
