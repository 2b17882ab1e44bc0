package queue_test

import (
	"context"
	"errors"
	"io"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/smart-parking/internal/queue"
)

var errTransport = errors.New("transport down")

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	publishErr error
	published  []published
	exchanges  []string
	queues     []string
	bindings   []string
	deliveries chan amqp.Delivery
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if durable && kind == amqp.ExchangeDirect {
		f.exchanges = append(f.exchanges, name)
	}
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues = append(f.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, name+"|"+key+"|"+exchange)
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return nil }

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) snapshot() (pubs []published, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...), f.closed
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fakeNet hands out channels in order.  While failDials > 0 every dial fails;
// a negative failDials fails forever.
type fakeNet struct {
	mu         sync.Mutex
	dials      int
	failDials  int
	newChannel func(n int) *fakeChannel
	channels   []*fakeChannel
}

func (n *fakeNet) dial(ctx context.Context, url string) (queue.Channel, io.Closer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials++
	if n.failDials != 0 {
		if n.failDials > 0 {
			n.failDials--
		}
		return nil, nil, errTransport
	}
	ch := newFakeChannel()
	if n.newChannel != nil {
		ch = n.newChannel(len(n.channels))
	}
	n.channels = append(n.channels, ch)
	return ch, nopCloser{}, nil
}

func (n *fakeNet) dialCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials
}

func (n *fakeNet) channel(i int) *fakeChannel {
	n.mu.Lock()
	defer n.mu.Unlock()
	if i >= len(n.channels) {
		return nil
	}
	return n.channels[i]
}

type fakeAck struct {
	mu    sync.Mutex
	acks  []uint64
	nacks []uint64
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, tag)
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func (a *fakeAck) counts() (acks, nacks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks), len(a.nacks)
}
