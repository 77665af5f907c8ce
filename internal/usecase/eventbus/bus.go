package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"askbox/internal/domain"
)

// Bus carries pipeline lifecycle events to observers such as the metrics
// collector. Every subscriber has its own queue and delivery goroutine, so a
// subscriber sees one run's events in publish order (stream.started before
// its deltas, deltas before stream.completed) and a slow subscriber never
// blocks the stream read loop.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	closed bool
	nextID atomic.Uint64
	logger *slog.Logger

	workers sync.WaitGroup

	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int // queued deliveries not yet handled

	published atomic.Uint64
	rejected  atomic.Uint64
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{logger: logger}
	b.idle = sync.NewCond(&b.pendingMu)
	return b
}

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscriber struct {
	id      uint64
	only    domain.EventType // empty: every event type
	handler domain.EventHandler

	mu      sync.Mutex
	queue   []delivery
	stopped bool
	wake    chan struct{}
}

func (s *subscriber) wants(t domain.EventType) bool {
	return s.only == "" || s.only == t
}

func (s *subscriber) push(d delivery) {
	s.mu.Lock()
	s.queue = append(s.queue, d)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next returns the oldest queued delivery. It reports false once the
// subscriber is stopped and its queue is empty.
func (s *subscriber) next() (delivery, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			d := s.queue[0]
			s.queue[0] = delivery{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return d, true
		}
		if s.stopped {
			s.mu.Unlock()
			return delivery{}, false
		}
		s.mu.Unlock()
		<-s.wake
	}
}

// Publish queues event for every matching subscriber and returns at once.
// Handlers see ctx without its cancellation: a cancelled run still reports
// its final events. Publishing on a closed bus is counted and ignored.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.rejected.Add(1)
		return
	}
	b.published.Add(1)

	d := delivery{ctx: context.WithoutCancel(ctx), event: event}
	for _, s := range b.subs {
		if !s.wants(event.Type) {
			continue
		}
		b.addPending(1)
		s.push(d)
	}
}

// Subscribe registers a handler for one event type. Returns an unsubscribe
// function; events already queued for the handler are still delivered.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.subscribe(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.subscribe("", handler)
}

func (b *Bus) subscribe(only domain.EventType, handler domain.EventHandler) func() {
	s := &subscriber{
		id:      b.nextID.Add(1),
		only:    only,
		handler: handler,
		wake:    make(chan struct{}, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, s)
	b.workers.Add(1)
	b.mu.Unlock()

	go b.run(s)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			for i, cur := range b.subs {
				if cur.id == s.id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			s.stop()
		})
	}
}

func (b *Bus) run(s *subscriber) {
	defer b.workers.Done()
	for {
		d, ok := s.next()
		if !ok {
			return
		}
		b.deliver(s, d)
		b.addPending(-1)
	}
}

func (b *Bus) deliver(s *subscriber, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"subscriber", s.id,
				"panic", r,
			)
		}
	}()
	s.handler(d.ctx, d.event)
}

func (b *Bus) addPending(n int) {
	b.pendingMu.Lock()
	b.pending += n
	if b.pending == 0 {
		b.idle.Broadcast()
	}
	b.pendingMu.Unlock()
}

// Drain waits until every event published so far has been handled. Unlike
// Close the bus stays open.
func (b *Bus) Drain() {
	b.pendingMu.Lock()
	for b.pending > 0 {
		b.idle.Wait()
	}
	b.pendingMu.Unlock()
}

// Published returns how many events were accepted and how many were
// rejected because the bus was closed.
func (b *Bus) Published() (accepted, rejected uint64) {
	return b.published.Load(), b.rejected.Load()
}

// Close rejects further publishes, delivers what is already queued and
// stops every subscriber. It is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	b.workers.Wait()
}
