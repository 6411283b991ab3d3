// Package listener implements the cache's per-cache listener set and its
// synchronous / asynchronous-timed dispatch policy.
package listener

import (
	"context"
	"errors"
	"sync"

	"github.com/meridiancache/meridiancache/internal/asyncdispatch"
	"github.com/meridiancache/meridiancache/internal/logging"
)

// EventType identifies the kind of mutation a Listener observed.
type EventType int

const (
	// Created fires when a put introduces a new mapping.
	Created EventType = iota
	// Updated fires when a put/replace changes an existing mapping's value.
	Updated
	// Removed fires when a remove deletes a mapping.
	Removed
	// Expired fires when the expiration sweeper releases an expired holder.
	Expired
)

func (t EventType) String() string {
	switch t {
	case Created:
		return "CREATED"
	case Updated:
		return "UPDATED"
	case Removed:
		return "REMOVED"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Event describes one cache mutation delivered to listeners.
type Event[K comparable, V any] struct {
	Type     EventType
	Key      K
	OldValue V
	NewValue V
	HasOld   bool
	HasNew   bool
}

// Listener is the user callback invoked for each delivered Event.
type Listener[K comparable, V any] func(Event[K, V])

// Filter decides whether an Event should be delivered to a Listener. A nil
// Filter delivers every event.
type Filter[K comparable, V any] func(Event[K, V]) bool

// Dispatch selects how a registration's events are delivered.
type Dispatch int

const (
	// Sync runs the listener on the caller's goroutine, in registration
	// order, before the mutating operation returns.
	Sync Dispatch = iota
	// Async enqueues the event to a dedicated bounded worker.
	Async
)

// Registration describes one listener's configuration. Name identifies the
// configuration for duplicate-registration detection (spec: "Duplicate
// registration of the same configuration is an error").
type Registration[K comparable, V any] struct {
	Name     string
	Listener Listener[K, V]
	Dispatch Dispatch
	Filter   Filter[K, V]
}

// ErrDuplicateListener is returned by Register when Name is already
// registered.
var ErrDuplicateListener = errors.New("listener: duplicate registration")

type entry[K comparable, V any] struct {
	reg  Registration[K, V]
	pool *asyncdispatch.Pool[Event[K, V]]
}

// Dispatcher owns an ordered set of listener registrations for one cache and
// dispatches events to them per their Dispatch mode.
type Dispatcher[K comparable, V any] struct {
	mu     sync.Mutex
	order  []string
	byName map[string]*entry[K, V]
	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger
}

// New creates an empty Dispatcher. logger is used to report listener panics;
// a nil logger falls back to logging.Default().
func New[K comparable, V any](logger logging.Logger) *Dispatcher[K, V] {
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher[K, V]{
		byName: make(map[string]*entry[K, V]),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Register adds a new listener registration. It returns ErrDuplicateListener
// if reg.Name is already registered.
func (d *Dispatcher[K, V]) Register(reg Registration[K, V]) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byName[reg.Name]; exists {
		return ErrDuplicateListener
	}

	e := &entry[K, V]{reg: reg}
	if reg.Dispatch == Async {
		e.pool = asyncdispatch.New(d.ctx, func(_ context.Context, ev Event[K, V]) {
			d.invoke(reg, ev)
		})
	}

	d.byName[reg.Name] = e
	d.order = append(d.order, reg.Name)

	return nil
}

// Deregister removes a registration by name. A no-op if Name is unknown.
func (d *Dispatcher[K, V]) Deregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.byName[name]
	if !ok {
		return
	}

	if e.pool != nil {
		e.pool.Shutdown()
	}

	delete(d.byName, name)

	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Dispatch delivers ev to every matching registration in registration order.
// Synchronous listeners run before Dispatch returns; asynchronous listeners
// are enqueued and may still be running after Dispatch returns.
func (d *Dispatcher[K, V]) Dispatch(ev Event[K, V]) {
	d.mu.Lock()
	closed := d.ctx.Err() != nil
	regs := make([]*entry[K, V], 0, len(d.order))
	for _, name := range d.order {
		regs = append(regs, d.byName[name])
	}
	d.mu.Unlock()

	for _, e := range regs {
		if e.reg.Filter != nil && !e.reg.Filter(ev) {
			continue
		}

		switch e.reg.Dispatch {
		case Sync:
			d.invoke(e.reg, ev)
		case Async:
			if !closed {
				e.pool.Submit(ev)
			}
		}
	}
}

// invoke runs the listener, recovering from and logging a panic so one
// listener can never prevent others from running or fail the originating
// cache operation.
func (d *Dispatcher[K, V]) invoke(reg Registration[K, V], ev Event[K, V]) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("listener %q panicked on %s event for key %v: %v", reg.Name, ev.Type, ev.Key, r)
		}
	}()

	reg.Listener(ev)
}

// Close shuts down every async registration's worker pool. Safe to call
// once; further Dispatch calls after Close are no-ops for async listeners.
func (d *Dispatcher[K, V]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range d.byName {
		if e.pool != nil {
			e.pool.Shutdown()
		}
	}

	d.cancel()
}
