// Package retry runs fallible operations with exponential backoff and keeps
// per-category failure statistics.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

type Option func(*Handler)

// WithMaxRetries sets the number of additional attempts after the first.
func WithMaxRetries(n int) Option {
	return func(h *Handler) {
		h.maxRetries = max(n, 0)
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(h *Handler) {
		h.baseDelay = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

type Handler struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	counts map[string]int
}

func New(opts ...Option) *Handler {
	h := &Handler{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		logger:     slog.New(slog.DiscardHandler),
		counts:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.baseDelay <= 0 {
		h.baseDelay = time.Nanosecond
	}
	return h
}

// Do runs op until it succeeds or the retries are used up. Attempt n (0 based)
// is followed by a delay of baseDelay * 2^n. The last failure is returned.
// Errors marked with Permanent end the loop right away.
func (h *Handler) Do(ctx context.Context, op func(ctx context.Context) error) error {
	b := goretry.WithMaxRetries(uint64(h.maxRetries), goretry.NewExponential(h.baseDelay))

	attempt := 0
	err := goretry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}

		h.record(err)
		if IsPermanent(err) {
			return err
		}
		if attempt <= h.maxRetries {
			h.logger.Warn("operation failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", h.baseDelay<<(attempt-1)),
				slog.Any("err", err),
			)
		}
		return goretry.RetryableError(err)
	})
	if err != nil {
		h.logger.Error("operation failed", slog.Int("attempts", attempt), slog.Any("err", err))
	}
	return err
}

// Value is Do for operations producing a result.
func Value[T any](ctx context.Context, h *Handler, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := h.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (h *Handler) record(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[Category(err)]++
}

// Stats returns the number of failures per category.
func (h *Handler) Stats() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts = make(map[string]int)
}

type permanent struct {
	err error
}

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as one that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

func IsPermanent(err error) bool {
	var p *permanent
	return errors.As(err, &p)
}

type categorized struct {
	category string
	err      error
}

func (c *categorized) Error() string    { return c.err.Error() }
func (c *categorized) Unwrap() error    { return c.err }
func (c *categorized) Category() string { return c.category }

// Categorize tags err with a category used in the failure statistics.
func Categorize(category string, err error) error {
	if err == nil {
		return nil
	}
	return &categorized{category: category, err: err}
}

// Category reports the category of err: the innermost explicit category, or
// the dynamic type name of err.
func Category(err error) string {
	var c interface{ Category() string }
	if errors.As(err, &c) {
		return c.Category()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
