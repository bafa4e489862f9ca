package query

import (
	"github.com/tidestore/tidestore-go/tidestore"
)

type iterStateKind int8

const (
	stateOpen iterStateKind = iota
	stateRunning
	stateDone
	stateClosed
)

func (k iterStateKind) String() string {
	switch k {
	case stateOpen:
		return "OPEN"
	case stateRunning:
		return "RUNNING"
	case stateDone:
		return "DONE"
	case stateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// planIterState is the execution state every iterator keeps in its RCB
// slot. Iterators with extra per-execution memory embed it.
//
// Legal transitions:
//
//	OPEN    -> OPEN, RUNNING, DONE, CLOSED
//	RUNNING -> OPEN, RUNNING, DONE, CLOSED
//	DONE    -> OPEN, CLOSED
//	CLOSED  terminal (close on a closed state is a no-op)
//
// OPEN may jump straight to DONE for iterators that finish on the first
// next() after open() or reset(), skipping the RUNNING hop.
type planIterState struct {
	kind iterStateKind
}

// iterState is what an RCB state slot holds. Composite states embed
// planIterState and get stateBase for free.
type iterState interface {
	stateBase() *planIterState
}

func (s *planIterState) stateBase() *planIterState { return s }

func (s *planIterState) isOpen() bool    { return s.kind == stateOpen }
func (s *planIterState) isRunning() bool { return s.kind == stateRunning }
func (s *planIterState) isDone() bool    { return s.kind == stateDone }
func (s *planIterState) isClosed() bool  { return s.kind == stateClosed }

func (s *planIterState) setState(to iterStateKind) error {
	switch s.kind {
	case stateOpen, stateRunning:
		s.kind = to
		return nil
	case stateDone:
		if to == stateClosed || to == stateOpen {
			s.kind = to
			return nil
		}
	case stateClosed:
		if to == stateClosed {
			return nil
		}
	}
	return tidestore.NewQueryState(
		"wrong state transition for iterator: current state %v, new state %v", s.kind, to)
}

// close moves to CLOSED. Always legal; CLOSED is terminal and close is
// idempotent.
func (s *planIterState) close() {
	s.kind = stateClosed
}

func (s *planIterState) done() error {
	return s.setState(stateDone)
}

func (s *planIterState) running() error {
	return s.setState(stateRunning)
}

func (s *planIterState) reset() error {
	return s.setState(stateOpen)
}
