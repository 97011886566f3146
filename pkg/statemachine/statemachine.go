package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Guard decides at fire time whether a transition may proceed.
type Guard[S, E comparable] func(ctx context.Context, from S, event E) bool

// Action runs before the state changes. A non-nil error aborts the transition.
type Action[S, E comparable] func(ctx context.Context, from, to S, event E) error

// Observer is notified after every successful transition.
type Observer[S, E comparable] func(ctx context.Context, from, to S, event E)

// Transition describes how event moves the machine out of any of From into To.
type Transition[S, E comparable] struct {
	From    []S
	To      S
	On      E
	Guards  []Guard[S, E]
	Actions []Action[S, E]
}

// Machine is a thread-safe finite state machine. Transitions for the same
// (state, event) pair are tried in registration order; the first one whose
// guards all pass wins.
type Machine[S, E comparable] struct {
	mu          sync.RWMutex
	initial     S
	current     S
	transitions map[S]map[E][]Transition[S, E]
	observers   []Observer[S, E]
}

// New builds a machine starting in initial.
func New[S, E comparable](initial S, transitions ...Transition[S, E]) (*Machine[S, E], error) {
	m := &Machine[S, E]{
		initial:     initial,
		current:     initial,
		transitions: make(map[S]map[E][]Transition[S, E]),
	}
	for _, t := range transitions {
		if err := m.Add(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New that panics on an invalid transition table.
func MustNew[S, E comparable](initial S, transitions ...Transition[S, E]) *Machine[S, E] {
	m, err := New(initial, transitions...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return m
}

// Add registers a transition.
func (m *Machine[S, E]) Add(t Transition[S, E]) error {
	if len(t.From) == 0 {
		return ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, from := range t.From {
		if _, ok := m.transitions[from]; !ok {
			m.transitions[from] = make(map[E][]Transition[S, E])
		}
		m.transitions[from][t.On] = append(m.transitions[from][t.On], t)
	}
	return nil
}

// Observe registers fn to run after each successful transition.
func (m *Machine[S, E]) Observe(fn Observer[S, E]) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire applies event to the current state.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) error {
	m.mu.Lock()

	from := m.current
	t, err := m.match(ctx, from, event)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, t.To, event); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("statemachine: action failed: %w", err)
		}
	}

	m.current = t.To
	observers := m.observers
	m.mu.Unlock()

	for _, fn := range observers {
		fn(ctx, from, t.To, event)
	}
	return nil
}

// CanFire reports whether Fire(event) would succeed right now, ignoring actions.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.match(ctx, m.current, event)
	return err == nil
}

// Reset returns the machine to its initial state without running actions.
func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}

// match must be called with mu held.
func (m *Machine[S, E]) match(ctx context.Context, from S, event E) (*Transition[S, E], error) {
	candidates := m.transitions[from][event]
	if len(candidates) == 0 {
		return nil, &NoTransitionError{State: fmt.Sprint(from), Event: fmt.Sprint(event)}
	}

	for i := range candidates {
		if guardsPass(ctx, candidates[i].Guards, from, event) {
			return &candidates[i], nil
		}
	}
	return nil, &RejectedError{State: fmt.Sprint(from), Event: fmt.Sprint(event)}
}

func guardsPass[S, E comparable](ctx context.Context, guards []Guard[S, E], from S, event E) bool {
	for _, g := range guards {
		if g != nil && !g(ctx, from, event) {
			return false
		}
	}
	return true
}
