package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/smart-parking/internal/logging"
	"github.com/iliyamo/smart-parking/internal/metrics"
	"github.com/iliyamo/smart-parking/internal/model"
	"github.com/iliyamo/smart-parking/internal/queue"
)

type windowSink struct {
	mu      sync.Mutex
	windows []model.Window
}

func (s *windowSink) handle(ctx context.Context, w model.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, w)
	return nil
}

func (s *windowSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func newTestConsumer(net *fakeNet, h queue.Handler, m *metrics.Metrics, retries uint64) *queue.Consumer {
	return queue.NewConsumer(queue.ConsumerConfig{
		URL:             "amqp://test",
		SpotID:          "42",
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, h,
		queue.WithConsumerDialer(net.dial),
		queue.WithConsumerLogger(logging.Discard()),
		queue.WithConsumerMetrics(m),
	)
}

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
}

func runConsumer(t *testing.T, c *queue.Consumer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestConsumerBindsSpotQueueAndAcksValidEnvelopes(t *testing.T) {
	net := &fakeNet{}
	sink := &windowSink{}
	m := metrics.New(prometheus.NewRegistry())
	cancel, done := runConsumer(t, newTestConsumer(net, sink.handle, m, 3))

	waitFor(t, func() bool { return net.channel(0) != nil })
	ch := net.channel(0)
	ack := &fakeAck{}
	ch.deliveries <- delivery(ack, 1, `{"start_time":"2030-03-08T16:30:00Z","end_time":"2030-03-08T17:30:00Z"}`)
	ch.deliveries <- delivery(ack, 2, `not json`)
	ch.deliveries <- delivery(ack, 3, `{"start_time":"2030-03-08T18:00:00Z","end_time":"2030-03-08T17:00:00Z"}`)

	waitFor(t, func() bool { a, n := ack.counts(); return a+n == 3 })
	acks, nacks := ack.counts()
	require.Equal(t, 1, acks)
	require.Equal(t, 2, nacks)
	require.Equal(t, 1, sink.count())
	require.Equal(t, time.Date(2030, 3, 8, 16, 30, 0, 0, time.UTC), sink.windows[0].Start)

	ch.mu.Lock()
	require.Equal(t, []string{"Reservation_42"}, ch.queues)
	require.Equal(t, []string{"Reservation_42|spot_42|res_exchange"}, ch.bindings)
	ch.mu.Unlock()

	cancel()
	require.NoError(t, <-done)
	_, closed := ch.snapshot()
	require.True(t, closed, "subscription closed on shutdown")
	require.Equal(t, 2.0, testutil.ToFloat64(m.ConsumerEvents.WithLabelValues("rejected")))
}

func TestConsumerNacksWhenHandlerFails(t *testing.T) {
	net := &fakeNet{}
	cancel, done := runConsumer(t, newTestConsumer(net, func(context.Context, model.Window) error {
		return errors.New("backlog full")
	}, nil, 3))

	waitFor(t, func() bool { return net.channel(0) != nil })
	ack := &fakeAck{}
	net.channel(0).deliveries <- delivery(ack, 1, `{"start_time":"2030-03-08T16:30:00Z","end_time":"2030-03-08T17:30:00Z"}`)
	waitFor(t, func() bool { _, n := ack.counts(); return n == 1 })

	cancel()
	require.NoError(t, <-done)
}

func TestConsumerResubscribesAfterConnectionLoss(t *testing.T) {
	net := &fakeNet{}
	sink := &windowSink{}
	m := metrics.New(prometheus.NewRegistry())
	cancel, done := runConsumer(t, newTestConsumer(net, sink.handle, m, 3))

	waitFor(t, func() bool { return net.channel(0) != nil })
	close(net.channel(0).deliveries) // broker dropped the connection

	waitFor(t, func() bool { return net.channel(1) != nil })
	ack := &fakeAck{}
	net.channel(1).deliveries <- delivery(ack, 1, `{"start_time":"2030-03-08T16:30:00Z","end_time":"2030-03-08T17:30:00Z"}`)
	waitFor(t, func() bool { return sink.count() == 1 })
	require.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects.WithLabelValues("42")))

	cancel()
	require.NoError(t, <-done)
}

func TestConsumerFailsAfterBoundedRetries(t *testing.T) {
	net := &fakeNet{failDials: -1}
	_, done := runConsumer(t, newTestConsumer(net, (&windowSink{}).handle, nil, 2))

	select {
	case err := <-done:
		require.ErrorIs(t, err, queue.ErrResubscribeExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer kept retrying")
	}
	require.Equal(t, 3, net.dialCount(), "one attempt plus two retries")
}

func TestConsumerStopsWhileRetrying(t *testing.T) {
	net := &fakeNet{failDials: -1}
	c := queue.NewConsumer(queue.ConsumerConfig{
		SpotID:          "1",
		MaxRetries:      100,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}, (&windowSink{}).handle, queue.WithConsumerDialer(net.dial), queue.WithConsumerLogger(logging.Discard()))
	cancel, done := runConsumer(t, c)

	waitFor(t, func() bool { return net.dialCount() >= 2 })
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer ignored cancellation")
	}
}
