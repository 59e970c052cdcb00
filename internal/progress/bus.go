package progress

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Publish after Stop.
var ErrStopped = errors.New("progress bus stopped")

// Handler receives events. Handlers run on the subscriber's own delivery
// goroutine, in publish order, and may block without stalling publishers
// until the subscriber's buffer fills. Handlers must not Publish.
type Handler func(Event)

// Bus fans progress events out to subscribers. It has an explicit lifecycle:
// Start before the first Publish, Stop at shutdown. Each subscriber gets a
// buffered queue drained by its own goroutine, so a slow subscriber drops
// intermediate events rather than blocking the download that produced
// them. Terminal events are never dropped.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	started bool
	stopped bool
	bufSize int
}

type subscriber struct {
	id   uint64
	ch   chan Event
	done chan struct{}
}

// NewBus returns a Bus whose subscribers each buffer up to bufSize events.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		subs:    make(map[uint64]*subscriber),
		bufSize: bufSize,
	}
}

// Start opens the bus for publishing.
func (b *Bus) Start() {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
	slog.Debug("progress bus started")
}

// Stop closes every subscription and waits for their handlers to return.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	subs := b.subs
	b.subs = make(map[uint64]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		close(s.ch)
		<-s.done
	}
	slog.Debug("progress bus stopped", "subscribers", len(subs))
}

// Subscribe registers h and returns a function that removes it. The
// returned function is idempotent and waits for in-flight deliveries.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	s := &subscriber{
		ch:   make(chan Event, b.bufSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		close(s.done)
		return func() {}
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	total := len(b.subs)
	b.mu.Unlock()

	go func() {
		defer close(s.done)
		for ev := range s.ch {
			h(ev)
		}
	}()

	slog.Debug("progress subscriber registered", "subscriber", s.id, "total", total)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			_, live := b.subs[s.id]
			delete(b.subs, s.id)
			b.mu.Unlock()
			if live {
				close(s.ch)
			}
			<-s.done
		})
	}
}

// Publish delivers ev to every subscriber. Intermediate events are dropped
// for a subscriber whose queue is full; a terminal event waits for room,
// since a subscriber that misses one keeps tracking a finished request.
func (b *Bus) Publish(ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrStopped
	}
	if !b.started {
		slog.Warn("progress published before bus start", "request_id", ev.RequestID)
	}
	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			if ev.Status.Terminal() {
				slog.Debug("progress subscriber queue full, waiting",
					"subscriber", s.id,
					"request_id", ev.RequestID,
					"status", ev.Status,
				)
				s.ch <- ev
				continue
			}
			slog.Warn("progress subscriber queue full, dropping",
				"subscriber", s.id,
				"request_id", ev.RequestID,
				"status", ev.Status,
			)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
