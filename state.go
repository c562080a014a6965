package executor

import (
	"sync/atomic"
)

// State represents the lifecycle state of an Executor.
//
// State Machine:
//
//	StateNotStarted (1) → StateStarted (2)      [first submission, worker started]
//	StateNotStarted (1) → StateShuttingDown (3) [ShutdownGracefully before start]
//	StateNotStarted (1) → StateShutdown (4)     [Shutdown before start]
//	StateStarted (2) → StateShuttingDown (3)    [ShutdownGracefully]
//	StateStarted (2) → StateShutdown (4)        [Shutdown]
//	StateShuttingDown (3) → StateShutdown (4)   [Shutdown, or quiet period confirmed]
//	StateShutdown (4) → StateTerminated (5)     [worker exit, after cleanup]
//	StateTerminated (5) → (terminal)
//
// Transitions only ever move to a numerically greater state.
type State uint32

const (
	// StateNotStarted indicates the executor was created but has no worker.
	StateNotStarted State = iota + 1
	// StateStarted indicates the worker is running tasks.
	StateStarted
	// StateShuttingDown indicates a graceful shutdown is in progress, tasks
	// are still accepted and run until the quiet period is confirmed.
	StateShuttingDown
	// StateShutdown indicates no further submissions are accepted.
	StateShutdown
	// StateTerminated indicates the worker has exited and all cleanup is done.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateStarted:
		return "Started"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateShutdown:
		return "Shutdown"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// canTransition reports whether from → to is an edge of the state machine.
func canTransition(from, to State) bool {
	switch from {
	case StateNotStarted:
		return to == StateStarted || to == StateShuttingDown || to == StateShutdown
	case StateStarted:
		return to == StateShuttingDown || to == StateShutdown
	case StateShuttingDown:
		return to == StateShutdown
	case StateShutdown:
		return to == StateTerminated
	default:
		return false
	}
}

// fastState is a lock-free state machine with cache-line padding.
type fastState struct { // betteralign:ignore
	_ [64]byte      //nolint:unused
	v atomic.Uint32 // State value
	_ [60]byte      //nolint:unused
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(StateNotStarted))
	return s
}

// Load returns the current state atomically.
func (s *fastState) Load() State {
	return State(s.v.Load())
}

// TryTransition attempts a single CAS from → to. Edges absent from the state
// machine are refused without touching the value.
func (s *fastState) TryTransition(from, to State) bool {
	if !canTransition(from, to) {
		return false
	}
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// Advance moves the state forward to target, following any sequence of
// edges, and returns the state observed before the successful CAS. If the
// current state is already at or past target, it is left unchanged and
// returned with false.
func (s *fastState) Advance(target State) (State, bool) {
	for {
		cur := s.Load()
		if cur >= target {
			return cur, false
		}
		if !canTransition(cur, target) {
			// e.g. ShuttingDown cannot skip Shutdown on the way to Terminated
			return cur, false
		}
		if s.v.CompareAndSwap(uint32(cur), uint32(target)) {
			return cur, true
		}
	}
}
