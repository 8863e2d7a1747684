// Package observer holds the stateful core of coinwatch: a tracker that keeps
// a freshness-gated view of one market and a listener registry that fans
// derived events out to subscribers.
package observer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/google/uuid"
)

// ListenerID identifies one registration on a topic. Go functions are not
// comparable, so unsubscribing is done by id rather than by callback.
type ListenerID string

// Hooks are invoked when an event gains its first listener or loses its
// last one. Either hook may be nil.
type Hooks struct {
	OnActivate   func(event string) error
	OnDeactivate func(event string) error
}

// Subject is implemented by *Topic[T]. It lets the Registry manage topics of
// different payload types behind one name-keyed API.
type Subject interface {
	Name() string
	Len() int
	add(fn any) (ListenerID, int, error)
	remove(id ListenerID) (int, error)
	attach(r *Registry)
}

// Registry maps event names to typed topics and runs the activation hooks on
// the zero-to-one and one-to-zero listener transitions.
type Registry struct {
	mu     sync.Mutex
	topics map[string]Subject
	hooks  Hooks
}

// NewRegistry creates a Registry with the given hooks and topics.
func NewRegistry(hooks Hooks, topics ...Subject) *Registry {
	r := &Registry{
		topics: make(map[string]Subject, len(topics)),
		hooks:  hooks,
	}
	for _, t := range topics {
		r.topics[t.Name()] = t
		t.attach(r)
	}
	return r
}

// Events returns the registered event names in sorted order.
func (r *Registry) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.topics))
	for name := range r.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Listen registers fn for event. fn must be a non-nil func(T) where T is the
// topic's payload type; anything else, or an unknown event name, fails with
// domain.ErrInvalidArgument and leaves the listener set untouched.
func (r *Registry) Listen(event string, fn any) (ListenerID, error) {
	r.mu.Lock()
	t, ok := r.topics[event]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("observer: listen: %w: unknown event %q", domain.ErrInvalidArgument, event)
	}
	return r.listen(t, fn)
}

// Unlisten removes the listener registered under id. It fails with
// domain.ErrNotFound if id was never registered for event.
func (r *Registry) Unlisten(event string, id ListenerID) error {
	r.mu.Lock()
	t, ok := r.topics[event]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("observer: unlisten: %w: unknown event %q", domain.ErrInvalidArgument, event)
	}
	return r.unlisten(t, id)
}

// Listeners returns the number of listeners currently registered for event.
func (r *Registry) Listeners(event string) int {
	r.mu.Lock()
	t, ok := r.topics[event]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return t.Len()
}

func (r *Registry) listen(t Subject, fn any) (ListenerID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, n, err := t.add(fn)
	if err != nil {
		return "", err
	}
	if n == 1 && r.hooks.OnActivate != nil {
		if err := r.hooks.OnActivate(t.Name()); err != nil {
			_, _ = t.remove(id)
			return "", fmt.Errorf("observer: activate %q: %w", t.Name(), err)
		}
	}
	return id, nil
}

func (r *Registry) unlisten(t Subject, id ListenerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := t.remove(id)
	if err != nil {
		return err
	}
	if n == 0 && r.hooks.OnDeactivate != nil {
		if err := r.hooks.OnDeactivate(t.Name()); err != nil {
			return fmt.Errorf("observer: deactivate %q: %w", t.Name(), err)
		}
	}
	return nil
}

type listener[T any] struct {
	id ListenerID
	fn func(T)
}

// Topic is a named stream of T values. Listeners are kept in insertion order
// and invoked synchronously by Notify. Listeners must not block: they run on
// the goroutine that produced the event.
type Topic[T any] struct {
	name string

	mu        sync.RWMutex
	listeners []listener[T]
	reg       *Registry
}

// NewTopic creates an unattached topic.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name}
}

// Name returns the event name.
func (t *Topic[T]) Name() string { return t.name }

// Len returns the number of registered listeners.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.listeners)
}

// Listen registers fn. When the topic belongs to a Registry the registry's
// activation hook runs on the first registration.
func (t *Topic[T]) Listen(fn func(T)) (ListenerID, error) {
	if t.reg != nil {
		return t.reg.listen(t, fn)
	}
	id, _, err := t.add(fn)
	return id, err
}

// Unlisten removes the listener registered under id.
func (t *Topic[T]) Unlisten(id ListenerID) error {
	if t.reg != nil {
		return t.reg.unlisten(t, id)
	}
	_, err := t.remove(id)
	return err
}

// Notify invokes every listener with v, in registration order, and returns
// how many were called. The listener list is snapshotted first so listeners
// may unlisten themselves.
func (t *Topic[T]) Notify(v T) int {
	t.mu.RLock()
	snapshot := make([]listener[T], len(t.listeners))
	copy(snapshot, t.listeners)
	t.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(v)
	}
	return len(snapshot)
}

func (t *Topic[T]) attach(r *Registry) { t.reg = r }

func (t *Topic[T]) add(fn any) (ListenerID, int, error) {
	f, ok := fn.(func(T))
	if !ok || f == nil {
		var zero T
		return "", 0, fmt.Errorf("observer: listen %q: %w: listener must be a non-nil func(%T), got %T",
			t.name, domain.ErrInvalidArgument, zero, fn)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := ListenerID(uuid.NewString())
	t.listeners = append(t.listeners, listener[T]{id: id, fn: f})
	return id, len(t.listeners), nil
}

func (t *Topic[T]) remove(id ListenerID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, l := range t.listeners {
		if l.id == id {
			t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
			return len(t.listeners), nil
		}
	}
	return len(t.listeners), fmt.Errorf("observer: unlisten %q: listener %s: %w", t.name, id, domain.ErrNotFound)
}
