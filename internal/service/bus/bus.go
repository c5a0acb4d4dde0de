// Package bus fans engine events out to subscribers through bounded per-subscriber queues.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"QuantWatch/internal/domain/models"
	"QuantWatch/internal/domain/repository"
	"QuantWatch/pkg/logger"
)

const (
	DefaultQueueSize      = 256
	DefaultDeliverTimeout = 5 * time.Second
)

type message struct {
	update *models.InstrumentUpdate
	alert  *models.AlertEvent
}

type subscription struct {
	sub     repository.Subscriber
	queue   chan message
	done    chan struct{}
	drain   bool
	dropped atomic.Int64
}

// Stats describes one subscriber queue.
type Stats struct {
	Pending int   `json:"pending"`
	Dropped int64 `json:"dropped"`
}

// Bus delivers at most once, best effort. Publishing never blocks: a full
// queue loses its oldest pending message.
type Bus struct {
	mu             sync.RWMutex
	subs           map[string]*subscription
	queueSize      int
	deliverTimeout time.Duration
	closed         bool
	wg             sync.WaitGroup

	log     *logger.Logger
	metrics repository.Metrics
}

// Option configures Bus.
type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

func WithDeliverTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.deliverTimeout = d
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) { b.log = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs:           make(map[string]*subscription),
		queueSize:      DefaultQueueSize,
		deliverTimeout: DefaultDeliverTimeout,
		log:            logger.Nop(),
		metrics:        repository.NopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers s and starts its delivery goroutine. Names must be unique.
func (b *Bus) Subscribe(s repository.Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("subscribe %s: bus closed", s.Name())
	}
	if _, ok := b.subs[s.Name()]; ok {
		return fmt.Errorf("subscribe %s: already subscribed", s.Name())
	}
	sub := &subscription{
		sub:   s,
		queue: make(chan message, b.queueSize),
		done:  make(chan struct{}),
	}
	b.subs[s.Name()] = sub

	b.wg.Add(1)
	go b.deliver(sub)

	b.log.Info("bus subscriber added", logger.String("subscriber", s.Name()))
	return nil
}

// Unsubscribe stops delivery to name. Pending messages are discarded.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	sub, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
	}
	b.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// PublishUpdate broadcasts an instrument update.
func (b *Bus) PublishUpdate(u models.InstrumentUpdate) {
	b.publish(message{update: &u})
}

// PublishAlert broadcasts an alert.
func (b *Bus) PublishAlert(a models.AlertEvent) {
	b.publish(message{alert: &a})
}

func (b *Bus) publish(m message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for name, sub := range b.subs {
		b.offer(name, sub, m)
	}
}

func (b *Bus) offer(name string, sub *subscription, m message) {
	for {
		select {
		case sub.queue <- m:
			return
		default:
		}
		select {
		case <-sub.queue:
			sub.dropped.Add(1)
			b.metrics.RecordDrop(name)
			b.log.Debug("bus queue full, dropped oldest",
				logger.String("subscriber", name),
				logger.Error(models.ErrSubscriberBackpressure))
		default:
		}
	}
}

func (b *Bus) deliver(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.done:
			if sub.drain {
				b.flush(sub)
			}
			return
		case m := <-sub.queue:
			b.handle(sub.sub, m)
		}
	}
}

// flush delivers what is left in the queue without waiting for more.
func (b *Bus) flush(sub *subscription) {
	for {
		select {
		case m := <-sub.queue:
			b.handle(sub.sub, m)
		default:
			return
		}
	}
}

func (b *Bus) handle(s repository.Subscriber, m message) {
	ctx, cancel := context.WithTimeout(context.Background(), b.deliverTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bus subscriber panic",
				logger.String("subscriber", s.Name()),
				logger.Any("panic", r))
			b.metrics.RecordError("subscriber_panic")
		}
	}()

	var err error
	switch {
	case m.update != nil:
		err = s.OnInstrumentUpdate(ctx, *m.update)
	case m.alert != nil:
		err = s.OnAlert(ctx, *m.alert)
	}
	if err != nil {
		b.log.Warn("bus subscriber failed",
			logger.String("subscriber", s.Name()),
			logger.Error(err))
		b.metrics.RecordError("subscriber")
	}
}

// Stats reports queue depth and drops per subscriber.
func (b *Bus) Stats() map[string]Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Stats, len(b.subs))
	for name, sub := range b.subs {
		out[name] = Stats{Pending: len(sub.queue), Dropped: sub.dropped.Load()}
	}
	return out
}

// Close stops accepting messages, lets every subscriber work off its queue
// and waits for the delivery goroutines.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.drain = true
		close(sub.done)
	}
	b.wg.Wait()
}
