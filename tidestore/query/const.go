package query

import (
	"fmt"
	"strings"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// constIter produces a single compile-time constant.
type constIter struct {
	planIterBase
	value tidestore.Value
}

func readConstIter(r *wire.Reader) (*constIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	v, err := r.ReadFieldValue()
	if err != nil {
		return nil, err
	}
	return &constIter{planIterBase: b, value: v}, nil
}

func (it *constIter) getKind() int { return kindConst }

func (it *constIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &planIterState{})
	rcb.setRegVal(it.resultReg, it.value)
	return nil
}

func (it *constIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).stateBase()
	if state.isDone() {
		return false, nil
	}
	if err := state.done(); err != nil {
		return false, err
	}
	return true, nil
}

func (it *constIter) reset(rcb *runtimeControlBlock) error {
	return rcb.getState(it.statePos).stateBase().reset()
}

func (it *constIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	state.stateBase().close()
	return nil
}

func (it *constIter) displayName() string { return "CONST" }

func (it *constIter) displayContent(sb *strings.Builder, f *planFormatter) {
	f.printIndent(sb)
	fmt.Fprintf(sb, "%v", it.value)
}
