package boundary

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of a single-use worker.
type State string

const (
	StateCreated    State = "CREATED"
	StateRunning    State = "RUNNING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
	StateTerminated State = "TERMINATED"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTerminated
}

// Lifecycle guards the state of one worker.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateCreated}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Transition moves to target or returns an error if the edge is not allowed.
func (l *Lifecycle) Transition(target State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !isValidTransition(l.state, target) {
		return fmt.Errorf("invalid worker state transition: %s -> %s", l.state, target)
	}
	l.state = target
	return nil
}

// isValidTransition defines the permitted state machine edges.
// A worker runs at most one request, so every terminal state is final.
func isValidTransition(current, target State) bool {
	switch current {
	case StateCreated:
		return target == StateRunning || target == StateTerminated
	case StateRunning:
		return target == StateSucceeded || target == StateFailed || target == StateTerminated
	default:
		return false
	}
}
