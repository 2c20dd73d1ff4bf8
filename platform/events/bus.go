package events

import (
	"context"
	"errors"
	"sync"

	"shopfloor_backend/platform/logger"
)

// InMemoryBus is a process-local Bus. Handlers for one event name run in
// subscription order, and asynchronous events are handled one at a time in
// the order they were published.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger

	qmu      sync.Mutex
	queue    []pending
	draining bool
	wg       sync.WaitGroup
}

type pending struct {
	ctx      context.Context
	event    Event
	handlers []Handler
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	if log == nil {
		log = logger.Discard()
	}
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

func (b *InMemoryBus) handlersFor(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := b.handlers[name]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// Publish queues the event for the bus goroutine and returns without
// waiting. Handler errors are logged.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	handlers := b.handlersFor(event.EventName())
	if len(handlers) == 0 {
		return
	}

	// Detach from request cancellation; the request may finish first.
	b.wg.Add(1)
	b.qmu.Lock()
	b.queue = append(b.queue, pending{ctx: context.WithoutCancel(ctx), event: event, handlers: handlers})
	start := !b.draining
	b.draining = true
	b.qmu.Unlock()
	if start {
		go b.drain()
	}
}

func (b *InMemoryBus) drain() {
	for {
		b.qmu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.qmu.Unlock()
			return
		}
		next := b.queue[0]
		b.queue[0] = pending{}
		b.queue = b.queue[1:]
		b.qmu.Unlock()

		for _, h := range next.handlers {
			if err := h.Handle(next.ctx, next.event); err != nil {
				b.log.Error("event handler failed", "event", next.event.EventName(), "error", err)
			}
		}
		b.wg.Done()
	}
}

// PublishSync runs the handlers inline and returns their joined errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	for _, h := range b.handlersFor(event.EventName()) {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every asynchronously published event has been handled.
func (b *InMemoryBus) Wait() {
	b.wg.Wait()
}

var _ Bus = (*InMemoryBus)(nil)
