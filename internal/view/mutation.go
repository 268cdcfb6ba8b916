package view

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/domain"
	"example.com/fitnessclient/internal/events"
	"example.com/fitnessclient/internal/observability"
)

// ErrBusy is returned when a submit is attempted while another is in flight.
var ErrBusy = errors.New("view: submit already in progress")

// Submitter performs a mutation through the gateway.
type Submitter[In, Out any] func(ctx context.Context, in In) (Out, error)

// Validator rejects input before anything is sent.
type Validator[In any] func(in In) error

// Mutation drives a write lifecycle and announces successful writes on its invalidation channel.
type Mutation[In, Out any] struct {
	name     string
	submit   Submitter[In, Out]
	validate Validator[In]
	inv      *Invalidation
	logger   *logrus.Entry
	lifetime context.Context
	end      context.CancelFunc

	mu         sync.Mutex
	state      FetchState[Out]
	generation uint64
	cancel     context.CancelFunc
	closed     bool
}

// NewMutation builds an idle mutation whose lifetime is bounded by ctx and Close.
func NewMutation[In, Out any](ctx context.Context, name string, submit Submitter[In, Out], validate Validator[In], opts ...Option) *Mutation[In, Out] {
	o := buildOptions(name, opts)
	lifetime, end := context.WithCancel(ctx)
	return &Mutation[In, Out]{
		name:     name,
		submit:   submit,
		validate: validate,
		inv:      o.invalidation,
		logger:   o.logger,
		lifetime: lifetime,
		end:      end,
		state:    FetchState[Out]{Status: StatusIdle},
	}
}

// State returns the current FetchState.
func (m *Mutation[In, Out]) State() FetchState[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Submit validates in, then runs the mutation. A validation failure is returned as the
// error and leaves the lifecycle untouched; gateway failures land in the returned state.
func (m *Mutation[In, Out]) Submit(ctx context.Context, in In) (FetchState[Out], error) {
	if m.validate != nil {
		if err := m.validate(in); err != nil {
			m.logger.WithError(err).Debug("rejected invalid input")
			return m.State(), err
		}
	}

	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.state, ErrClosed
	}
	if m.state.Status == StatusLoading {
		defer m.mu.Unlock()
		return m.state, ErrBusy
	}
	m.generation++
	gen := m.generation
	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.lifetime, cancel)
	m.cancel = cancel
	m.state = m.state.loading()
	m.mu.Unlock()

	out, err := m.submit(runCtx, in)
	stop()
	cancel()

	m.mu.Lock()
	if m.closed || gen != m.generation {
		state := m.state
		m.mu.Unlock()
		observability.RecordStaleResult(m.name)
		return state, ErrClosed
	}
	m.cancel = nil
	if err != nil {
		m.state = m.state.fail(err)
		state := m.state
		m.mu.Unlock()
		observability.RecordViewResolved(m.name, string(StatusError), string(state.Kind()))
		m.logger.WithError(err).WithField("kind", state.Kind()).Warn("submit failed")
		return state, nil
	}
	m.state = m.state.succeed(out)
	state := m.state
	m.mu.Unlock()
	observability.RecordViewResolved(m.name, string(StatusSuccess), "")

	if m.inv != nil {
		ev := m.inv.Bump(describe(m.name, out))
		m.logger.WithField("version", ev.Version).Debug("announced invalidation")
	}
	return state, nil
}

// Close discards the mutation and cancels a submit in flight.
func (m *Mutation[In, Out]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	m.end()
}

func describe(reason string, out any) events.ActivitiesInvalidated {
	ev := events.ActivitiesInvalidated{Reason: reason}
	switch v := out.(type) {
	case *domain.Activity:
		if v != nil {
			ev.ActivityID = v.ID
			ev.ActivityType = string(v.Type)
		}
	case domain.Activity:
		ev.ActivityID = v.ID
		ev.ActivityType = string(v.Type)
	}
	return ev
}
