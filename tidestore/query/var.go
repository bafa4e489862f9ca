package query

import (
	"fmt"
	"strings"

	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// varRefIter references an internal variable of the plan. The variable's
// producer writes straight into the shared register, so next() just
// reports that a value is there.
type varRefIter struct {
	planIterBase
	name string
}

func readVarRefIter(r *wire.Reader) (*varRefIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	name, _, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &varRefIter{planIterBase: b, name: name}, nil
}

func (it *varRefIter) getKind() int { return kindVarRef }

func (it *varRefIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &planIterState{})
	return nil
}

func (it *varRefIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).stateBase()
	if state.isDone() {
		return false, nil
	}
	if err := state.done(); err != nil {
		return false, err
	}
	return true, nil
}

func (it *varRefIter) reset(rcb *runtimeControlBlock) error {
	return rcb.getState(it.statePos).stateBase().reset()
}

func (it *varRefIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	state.stateBase().close()
	return nil
}

func (it *varRefIter) displayName() string { return "VAR_REF" }

func (it *varRefIter) displayContent(sb *strings.Builder, f *planFormatter) {
	f.printIndent(sb)
	fmt.Fprintf(sb, "%q", it.name)
}

// externalVarRefIter references a bind variable supplied by the
// application. The value is looked up from the RCB at execution time.
type externalVarRefIter struct {
	planIterBase
	name  string
	varID int
}

func readExternalVarRefIter(r *wire.Reader) (*externalVarRefIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	name, _, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	id, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	return &externalVarRefIter{planIterBase: b, name: name, varID: id}, nil
}

func (it *externalVarRefIter) getKind() int { return kindExternalVarRef }

func (it *externalVarRefIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &planIterState{})
	return nil
}

func (it *externalVarRefIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).stateBase()
	if state.isDone() {
		return false, nil
	}
	if err := state.done(); err != nil {
		return false, err
	}
	rcb.setRegVal(it.resultReg, rcb.getExternalVar(it.varID))
	return true, nil
}

func (it *externalVarRefIter) reset(rcb *runtimeControlBlock) error {
	return rcb.getState(it.statePos).stateBase().reset()
}

func (it *externalVarRefIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	state.stateBase().close()
	return nil
}

func (it *externalVarRefIter) displayName() string { return "EXTERNAL_VAR_REF" }

func (it *externalVarRefIter) displayContent(sb *strings.Builder, f *planFormatter) {
	f.printIndent(sb)
	fmt.Fprintf(sb, "%q (id %d)", it.name, it.varID)
}
