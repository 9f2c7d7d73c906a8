package scheduler

import "sync/atomic"

// LoopState is the lifecycle of a Loop.
//
//	StateAwake       -> StateRunning       [Run()]
//	StateRunning     -> StateSleeping      [select() blocks]
//	StateSleeping    -> StateRunning       [select() returns]
//	StateRunning     -> StateTerminating   [Shutdown() or Run's ctx cancelled]
//	StateSleeping    -> StateTerminating   [Shutdown() or Run's ctx cancelled]
//	StateTerminating -> StateTerminated    [drain complete]
//
// Adapted from the teacher's FastState (eventloop/state.go): a lock-free CAS
// state machine with no validation of transition legality beyond the CAS
// itself, relying on callers to only attempt valid transitions.
type LoopState uint32

const (
	StateAwake LoopState = iota
	StateRunning
	StateSleeping
	StateTerminating
	StateTerminated
)

func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// atomicState is a lock-free state machine.
type atomicState struct {
	v atomic.Uint32
}

func newAtomicState() *atomicState {
	s := &atomicState{}
	s.v.Store(uint32(StateAwake))
	return s
}

func (s *atomicState) Load() LoopState { return LoopState(s.v.Load()) }

func (s *atomicState) Store(state LoopState) { s.v.Store(uint32(state)) }

func (s *atomicState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
