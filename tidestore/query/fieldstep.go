package query

import (
	"fmt"
	"strings"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// fieldStepIter selects a named field from each record produced by its
// input. Non-record inputs and records without the field are skipped.
type fieldStepIter struct {
	planIterBase
	input     planIter
	fieldName string
}

func readFieldStepIter(r *wire.Reader) (*fieldStepIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	input, err := deserializeIter(r)
	if err != nil {
		return nil, err
	}
	name, _, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &fieldStepIter{planIterBase: b, input: input, fieldName: name}, nil
}

func (it *fieldStepIter) getKind() int { return kindFieldStep }

func (it *fieldStepIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &planIterState{})
	return it.input.open(rcb)
}

func (it *fieldStepIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).stateBase()
	if state.isDone() {
		return false, nil
	}
	for {
		more, err := it.input.next(rcb)
		if err != nil {
			return false, err
		}
		if !more {
			if err := state.done(); err != nil {
				return false, err
			}
			return false, nil
		}
		ctx := rcb.getRegVal(it.input.getResultReg())
		rec, ok := ctx.(map[string]tidestore.Value)
		if !ok {
			continue
		}
		v, ok := rec[it.fieldName]
		if !ok {
			continue
		}
		rcb.setRegVal(it.resultReg, v)
		return true, nil
	}
}

func (it *fieldStepIter) reset(rcb *runtimeControlBlock) error {
	if err := it.input.reset(rcb); err != nil {
		return err
	}
	return rcb.getState(it.statePos).stateBase().reset()
}

func (it *fieldStepIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	if err := it.input.close(rcb); err != nil {
		return err
	}
	state.stateBase().close()
	return nil
}

func (it *fieldStepIter) displayName() string { return "FIELD_STEP" }

func (it *fieldStepIter) displayContent(sb *strings.Builder, f *planFormatter) {
	displayIter(sb, f, it.input)
	sb.WriteByte('\n')
	f.printIndent(sb)
	fmt.Fprintf(sb, ".%s", it.fieldName)
}
