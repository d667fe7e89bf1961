// Package emitter is a typed publish/subscribe registry. Handlers run
// sequentially in registration order on the emitting goroutine.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrTimeout = errors.New("timed out waiting for event")

// Topic names an event channel carrying payloads of type T.
type Topic[T any] struct {
	name string
}

func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

func (t Topic[T]) Name() string { return t.name }

type Handler[T any] func(ctx context.Context, payload T) error

// Handle identifies a single registration and is used to remove it again.
type Handle struct {
	topic string
	id    uint64
}

type entry struct {
	id uint64
	fn func(ctx context.Context, payload any) error
}

type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]entry
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{
		handlers: make(map[string][]entry),
		logger:   logger,
	}
}

// On appends h to the handlers of topic.
func On[T any](e *Emitter, topic Topic[T], h Handler[T]) Handle {
	handle := e.newHandle(topic.name)
	e.insert(handle, wrap(topic, h))
	return handle
}

func wrap[T any](topic Topic[T], h Handler[T]) func(context.Context, any) error {
	return func(ctx context.Context, payload any) error {
		v, ok := payload.(T)
		if !ok {
			return fmt.Errorf("unexpected payload %T for topic %s", payload, topic.name)
		}
		return h(ctx, v)
	}
}

func (e *Emitter) newHandle(topic string) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	return Handle{topic: topic, id: e.nextID}
}

func (e *Emitter) insert(h Handle, fn func(context.Context, any) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[h.topic] = append(e.handlers[h.topic], entry{id: h.id, fn: fn})
}

// Off removes a registration. Unknown handles are ignored.
func (e *Emitter) Off(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.handlers[h.topic]
	for i, en := range list {
		if en.id == h.id {
			e.handlers[h.topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Clear drops every handler registered for topic.
func (e *Emitter) Clear(topic string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, topic)
}

func (e *Emitter) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = make(map[string][]entry)
}

// Len reports how many handlers are registered for topic.
func (e *Emitter) Len(topic string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[topic])
}

// Emit invokes every handler of topic in registration order. A failing or
// panicking handler is logged and the remaining handlers still run.
func Emit[T any](ctx context.Context, e *Emitter, topic Topic[T], payload T) {
	e.emit(ctx, topic.name, payload)
}

func (e *Emitter) emit(ctx context.Context, topic string, payload any) {
	e.mu.Lock()
	list := e.handlers[topic]
	snapshot := make([]entry, len(list))
	copy(snapshot, list)
	e.mu.Unlock()

	for _, en := range snapshot {
		if err := e.invoke(ctx, en, payload); err != nil {
			e.logger.Error("event handler failed", slog.String("topic", topic), slog.Any("err", err))
		}
	}
}

func (e *Emitter) invoke(ctx context.Context, en entry, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return en.fn(ctx, payload)
}

// Waiter is a one-shot registration created by Expect.
type Waiter[T any] struct {
	e      *Emitter
	topic  string
	handle Handle
	ch     chan T
	once   sync.Once
}

// Expect installs a one-shot handler for the next event on topic. Installing
// it before triggering the event avoids missing a fast reply.
func Expect[T any](e *Emitter, topic Topic[T]) *Waiter[T] {
	w := &Waiter[T]{
		e:      e,
		topic:  topic.name,
		handle: e.newHandle(topic.name),
		ch:     make(chan T, 1),
	}
	e.insert(w.handle, wrap(topic, func(_ context.Context, payload T) error {
		select {
		case w.ch <- payload:
		default:
		}
		w.Cancel()
		return nil
	}))
	return w
}

// Cancel removes the one-shot handler.
func (w *Waiter[T]) Cancel() {
	w.once.Do(func() {
		w.e.Off(w.handle)
	})
}

// Wait blocks until the event fires, the timeout elapses or ctx ends. A
// timeout <= 0 waits without a deadline. The handler is removed on return.
func (w *Waiter[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	defer w.Cancel()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case v := <-w.ch:
		return v, nil
	case <-expired:
		return zero, fmt.Errorf("%w: %s after %s", ErrTimeout, w.topic, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// WaitFor waits for the next event on topic.
func WaitFor[T any](ctx context.Context, e *Emitter, topic Topic[T], timeout time.Duration) (T, error) {
	return Expect(e, topic).Wait(ctx, timeout)
}
