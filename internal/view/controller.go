package view

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/events"
	"example.com/fitnessclient/internal/observability"
)

// ErrClosed is returned by operations on a discarded view.
var ErrClosed = errors.New("view: closed")

// Fetcher loads a view's data through the gateway.
type Fetcher[T any] func(ctx context.Context) (T, error)

type options struct {
	invalidation *Invalidation
	logger       *logrus.Entry
}

// Option customises controllers and mutations.
type Option func(*options)

// WithInvalidation makes a read controller reload when inv moves.
func WithInvalidation(inv *Invalidation) Option {
	return func(o *options) {
		o.invalidation = inv
	}
}

// Invalidates makes a mutation bump inv after every successful submit.
func Invalidates(inv *Invalidation) Option {
	return WithInvalidation(inv)
}

// WithLogger overrides the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{logger: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithField("view", name)
	return o
}

// Controller drives one view's read lifecycle.
// Subscribers are called in order outside the state lock; they may read State but must not
// Trigger or Refresh synchronously.
type Controller[T any] struct {
	name   string
	fetch  Fetcher[T]
	inv    *Invalidation
	logger *logrus.Entry

	lifetime    context.Context
	endLifetime context.CancelFunc
	stopInv     func()

	mu         sync.Mutex
	notifyMu   sync.Mutex
	pending    []notification[T]
	state      FetchState[T]
	generation uint64
	cancelLoad context.CancelFunc
	done       chan struct{}
	seen       uint64
	closed     bool
	subs       []stateSub[T]
	nextSubID  int
}

type stateSub[T any] struct {
	id int
	fn func(FetchState[T])
}

type notification[T any] struct {
	state FetchState[T]
	subs  []func(FetchState[T])
}

// NewController builds an idle controller whose lifetime is bounded by ctx and Close.
func NewController[T any](ctx context.Context, name string, fetch Fetcher[T], opts ...Option) *Controller[T] {
	o := buildOptions(name, opts)
	lifetime, cancel := context.WithCancel(ctx)
	c := &Controller[T]{
		name:        name,
		fetch:       fetch,
		inv:         o.invalidation,
		logger:      o.logger,
		lifetime:    lifetime,
		endLifetime: cancel,
		state:       FetchState[T]{Status: StatusIdle},
	}
	if c.inv != nil {
		c.seen = c.inv.Version()
		c.stopInv = c.inv.Subscribe(c.invalidated)
	}
	context.AfterFunc(lifetime, c.Close)
	return c
}

// Name returns the view name.
func (c *Controller[T]) Name() string { return c.name }

// State returns the current FetchState.
func (c *Controller[T]) State() FetchState[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change and returns a function that removes it.
func (c *Controller[T]) Subscribe(fn func(FetchState[T])) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, stateSub[T]{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subs {
			if sub.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Trigger loads when the view is idle or errored, or when its data is stale relative to
// the invalidation channel; it joins a load already in flight. It blocks until the view
// settles or ctx ends and returns the state at that point. The load itself is bound to
// the view's lifetime, so a caller giving up does not cancel it for others.
func (c *Controller[T]) Trigger(ctx context.Context) FetchState[T] {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.state
	}
	switch c.state.Status {
	case StatusIdle, StatusError:
		c.startLocked()
	case StatusSuccess:
		if c.inv != nil && c.inv.Version() != c.seen {
			c.startLocked()
		} else {
			defer c.mu.Unlock()
			return c.state
		}
	default:
		c.mu.Unlock()
	}
	return c.wait(ctx)
}

// Refresh reloads unconditionally, superseding any load in flight, and waits like Trigger.
func (c *Controller[T]) Refresh(ctx context.Context) FetchState[T] {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.state
	}
	c.startLocked()
	return c.wait(ctx)
}

// Close discards the view: the load in flight is cancelled and any late result ignored.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	stopInv := c.stopInv
	c.stopInv = nil
	c.mu.Unlock()

	if stopInv != nil {
		stopInv()
	}
	c.endLifetime()
	c.logger.Debug("view closed")
}

// startLocked begins a new generation; it must be called with c.mu held and releases it.
func (c *Controller[T]) startLocked() {
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.generation++
	gen := c.generation
	if c.inv != nil {
		c.seen = c.inv.Version()
	}

	loadCtx, cancel := context.WithCancel(c.lifetime)
	c.cancelLoad = cancel
	done := make(chan struct{})
	c.done = done
	c.state = c.state.loading()
	c.logger.WithField("generation", gen).Debug("load started")

	go c.run(loadCtx, gen, done, cancel)
	c.publishLocked()
}

func (c *Controller[T]) run(ctx context.Context, gen uint64, done chan struct{}, release func()) {
	defer close(done)
	defer release()

	data, err := c.fetch(ctx)

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		observability.RecordStaleResult(c.name)
		c.logger.WithField("generation", gen).Debug("discarding stale result")
		return
	}
	c.cancelLoad = nil
	if err != nil {
		c.state = c.state.fail(err)
		observability.RecordViewResolved(c.name, string(StatusError), string(c.state.Kind()))
		c.logger.WithError(err).WithField("kind", c.state.Kind()).Warn("load failed")
	} else {
		c.state = c.state.succeed(data)
		observability.RecordViewResolved(c.name, string(StatusSuccess), "")
	}
	c.publishLocked()
}

// wait must be called with c.mu released; it follows superseding loads until the view settles.
func (c *Controller[T]) wait(ctx context.Context) FetchState[T] {
	for {
		c.mu.Lock()
		if c.closed || c.state.Status != StatusLoading {
			state := c.state
			c.mu.Unlock()
			// subscribers see state before the caller does
			c.flush()
			return state
		}
		done := c.done
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return c.State()
		}
	}
}

func (c *Controller[T]) invalidated(ev events.ActivitiesInvalidated) {
	c.mu.Lock()
	if c.closed || c.state.Status == StatusIdle {
		c.mu.Unlock()
		return
	}
	c.logger.WithField("version", ev.Version).Debug("refreshing after invalidation")
	c.startLocked()
}

// publishLocked queues the current state for subscribers, releases c.mu and flushes.
func (c *Controller[T]) publishLocked() {
	subs := make([]func(FetchState[T]), len(c.subs))
	for i, sub := range c.subs {
		subs[i] = sub.fn
	}
	c.pending = append(c.pending, notification[T]{state: c.state, subs: subs})
	c.mu.Unlock()
	c.flush()
}

// flush delivers queued notifications in order. c.mu is never held while waiting on
// notifyMu, so subscribers can read State.
func (c *Controller[T]) flush() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, n := range batch {
			for _, fn := range n.subs {
				fn(n.state)
			}
		}
	}
}
