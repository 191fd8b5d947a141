// Package coordinator provides keyed mutual exclusion for sync entry points.
//
// SingleFlight collapses concurrent callers of the same key onto one running operation.
// Queued runs operations for the same key strictly one at a time without collapsing them.
// Distinct keys never wait on each other.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrConcurrencyViolation is returned in strict mode when an operation re-enters its own key
var ErrConcurrencyViolation = errors.New("reentrant call on a held coordinator key")

const (
	flightPrefix = "flight:"
	queuePrefix  = "queue:"
)

// Coordinator holds the per-key state. The zero value is not usable; call New.
type Coordinator struct {
	flights singleflight.Group
	logger  *slog.Logger
	strict  bool

	mu       sync.Mutex
	slots    map[string]*slot
	inflight map[string]*flight
}

// flight is the shared context of a single-flight key. It is cancelled once
// every caller registered on the key has left.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStrictReentrancy makes reentrant calls fail with ErrConcurrencyViolation
// instead of rejoining the held key. Builds tagged "debug" default to strict.
func WithStrictReentrancy(strict bool) Option {
	return func(c *Coordinator) { c.strict = strict }
}

// WithLogger sets the logger used to report reentrant calls
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Coordinator
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:  slog.Default(),
		strict:  strictDefault,
		slots:    make(map[string]*slot),
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SingleFlight runs op for key unless an operation for key is already running, in which case the
// caller waits for that operation and receives its result. Every joined caller sees the same error.
// The running operation keeps the values of the context that started it and is cancelled only
// when every waiting caller has given up.
func SingleFlight[T any](ctx context.Context, c *Coordinator, key string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if holds(ctx, flightPrefix+key) {
		if err := c.reentrant("single-flight", key); err != nil {
			return zero, err
		}
		return op(ctx)
	}

	ch := c.join(ctx, key, func(opCtx context.Context) (any, error) {
		return op(withHeld(opCtx, flightPrefix+key))
	})
	defer c.leave(key)

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// join registers the caller on key and returns the channel of the running flight
func (c *Coordinator) join(ctx context.Context, key string, fn func(context.Context) (any, error)) <-chan singleflight.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.inflight[key]
	if !ok {
		opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: opCtx, cancel: cancel}
		c.inflight[key] = f
	}
	f.refs++
	return c.flights.DoChan(key, func() (any, error) { return fn(f.ctx) })
}

// leave drops the caller. The last one out cancels the shared context and
// forgets the flight so later callers start afresh.
func (c *Coordinator) leave(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.inflight[key]
	f.refs--
	if f.refs > 0 {
		return
	}
	f.cancel()
	delete(c.inflight, key)
	c.flights.Forget(key)
}

// Queued runs op once the key is free and holds the key until op returns.
// Calls are never collapsed, so op should re-check any state it depends on.
func Queued[T any](ctx context.Context, c *Coordinator, key string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if holds(ctx, queuePrefix+key) {
		if err := c.reentrant("queued", key); err != nil {
			return zero, err
		}
		return op(ctx)
	}

	release, err := c.acquire(ctx, key)
	if err != nil {
		return zero, err
	}
	defer release()
	return op(withHeld(ctx, queuePrefix+key))
}

// Waiters returns how many callers are currently registered on the single-flight for key
func (c *Coordinator) Waiters(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inflight[key]; ok {
		return f.refs
	}
	return 0
}

// Busy reports whether a queued operation holds or waits for key
func (c *Coordinator) Busy(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[key]
	return ok
}

func (c *Coordinator) reentrant(mode, key string) error {
	if c.strict {
		return fmt.Errorf("%w: %s %q", ErrConcurrencyViolation, mode, key)
	}
	c.logger.Warn("reentrant coordinator call, running inline", "mode", mode, "key", key)
	return nil
}

func (c *Coordinator) acquire(ctx context.Context, key string) (func(), error) {
	c.mu.Lock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		c.slots[key] = s
	}
	s.refs++
	c.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		c.unref(key, s)
		return nil, ctx.Err()
	}

	return func() {
		<-s.ch
		c.unref(key, s)
	}, nil
}

func (c *Coordinator) unref(key string, s *slot) {
	c.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(c.slots, key)
	}
	c.mu.Unlock()
}

type heldKeyCtx struct{}

type held struct {
	key    string
	parent *held
}

func withHeld(ctx context.Context, key string) context.Context {
	parent, _ := ctx.Value(heldKeyCtx{}).(*held)
	return context.WithValue(ctx, heldKeyCtx{}, &held{key: key, parent: parent})
}

func holds(ctx context.Context, key string) bool {
	for h, _ := ctx.Value(heldKeyCtx{}).(*held); h != nil; h = h.parent {
		if h.key == key {
			return true
		}
	}
	return false
}
