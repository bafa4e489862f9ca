package query

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// funcSumIter re-aggregates partial SUM or AVG-sum results arriving from
// the shards. It drains its input and exposes the running total through
// getAggrValue.
type funcSumIter struct {
	planIterBase
	input planIter
}

type funcSumState struct {
	planIterState
	sum tidestore.Value

	// gotNumericInput distinguishes a zero sum from a group whose
	// inputs were all non-numeric. The latter yields NULL.
	gotNumericInput bool
}

func readFuncSumIter(r *wire.Reader) (*funcSumIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	input, err := deserializeIter(r)
	if err != nil {
		return nil, err
	}
	return &funcSumIter{planIterBase: b, input: input}, nil
}

func (it *funcSumIter) getKind() int { return kindFuncSum }

func (it *funcSumIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &funcSumState{sum: 0})
	return it.input.open(rcb)
}

func (it *funcSumIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).(*funcSumState)
	if state.isDone() {
		return false, nil
	}
	for {
		more, err := it.input.next(rcb)
		if err != nil {
			return false, err
		}
		if !more {
			return true, nil
		}
		v := rcb.getRegVal(it.input.getResultReg())
		rcb.trace(3, "summing value %v", v)
		if tidestore.IsNumeric(v) {
			var err error
			state.sum, err = sumNewValue(state.sum, v)
			if err != nil {
				return false, err
			}
			state.gotNumericInput = true
		}
	}
}

func sumNewValue(sum, v tidestore.Value) (tidestore.Value, error) {
	return applyArithOp(sum, '+', v, tidestore.Location{})
}

// getAggrValue returns the accumulated sum, or NULL when no numeric
// value was seen. When reset is true the accumulator is reinitialized
// for the next group.
func (it *funcSumIter) getAggrValue(rcb *runtimeControlBlock,
	reset bool) (tidestore.Value, error) {

	state := rcb.getState(it.statePos).(*funcSumState)
	var res tidestore.Value
	if state.gotNumericInput {
		res = state.sum
	}
	if reset {
		state.sum = 0
		state.gotNumericInput = false
	}
	return res, nil
}

// reset restarts the input but keeps the accumulator. Losing the
// partial sum here would defeat re-aggregation; the accumulator is
// cleared only through getAggrValue with reset set.
func (it *funcSumIter) reset(rcb *runtimeControlBlock) error {
	return it.input.reset(rcb)
}

func (it *funcSumIter) close(rcb *runtimeControlBlock) error {
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

func (it *funcSumIter) displayName() string { return "FN_SUM" }

func (it *funcSumIter) displayContent(sb *strings.Builder, f *planFormatter) {
	displayIter(sb, f, it.input)
}

// funcMinMaxIter re-aggregates partial MIN or MAX results from the
// shards. Values that do not participate in ordering comparisons, such
// as records, arrays, binaries, NULLs and EMPTY, are skipped.
type funcMinMaxIter struct {
	planIterBase
	fnCode int
	input  planIter
}

type funcMinMaxState struct {
	planIterState
	minMax tidestore.Value
	hasVal bool
}

func readFuncMinMaxIter(r *wire.Reader) (*funcMinMaxIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	fnCode, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	if fnCode != fnMin && fnCode != fnMax {
		return nil, tidestore.NewQueryState("unexpected min/max function code %d", fnCode)
	}
	input, err := deserializeIter(r)
	if err != nil {
		return nil, err
	}
	return &funcMinMaxIter{planIterBase: b, fnCode: fnCode, input: input}, nil
}

func (it *funcMinMaxIter) getKind() int { return kindFuncMinMax }

func (it *funcMinMaxIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &funcMinMaxState{})
	return it.input.open(rcb)
}

func (it *funcMinMaxIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).(*funcMinMaxState)
	if state.isDone() {
		return false, nil
	}
	for {
		more, err := it.input.next(rcb)
		if err != nil {
			return false, err
		}
		if !more {
			return true, nil
		}
		v := rcb.getRegVal(it.input.getResultReg())
		if err := it.minMaxNewValue(rcb, state, v); err != nil {
			return false, err
		}
	}
}

func (it *funcMinMaxIter) minMaxNewValue(rcb *runtimeControlBlock,
	state *funcMinMaxState, v tidestore.Value) error {

	switch v.(type) {
	case nil, tidestore.EmptyValue, tidestore.JSONNull, []byte,
		map[string]tidestore.Value, []tidestore.Value:
		return nil
	}
	if !state.hasVal {
		state.minMax = v
		state.hasVal = true
		return nil
	}
	cmp, err := tidestore.CompareAtomics(state.minMax, v, true)
	if err != nil {
		return err
	}
	rcb.trace(3, "compared min/max %v with %v: %d", state.minMax, v, cmp)
	if (it.fnCode == fnMin && cmp > 0) || (it.fnCode == fnMax && cmp < 0) {
		state.minMax = v
	}
	return nil
}

func (it *funcMinMaxIter) getAggrValue(rcb *runtimeControlBlock,
	reset bool) (tidestore.Value, error) {

	state := rcb.getState(it.statePos).(*funcMinMaxState)
	var res tidestore.Value
	if state.hasVal {
		res = state.minMax
	}
	if reset {
		state.minMax = nil
		state.hasVal = false
	}
	return res, nil
}

// reset restarts the input but keeps the running min/max, same as the
// sum iterator.
func (it *funcMinMaxIter) reset(rcb *runtimeControlBlock) error {
	return it.input.reset(rcb)
}

func (it *funcMinMaxIter) close(rcb *runtimeControlBlock) error {
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

func (it *funcMinMaxIter) displayName() string {
	if it.fnCode == fnMin {
		return "FN_MIN"
	}
	return "FN_MAX"
}

func (it *funcMinMaxIter) displayContent(sb *strings.Builder, f *planFormatter) {
	displayIter(sb, f, it.input)
}

// sizeOfAggr estimates the heap footprint of an aggregate accumulator
// for memory accounting.
func sizeOfAggr(v tidestore.Value) int64 {
	switch n := v.(type) {
	case nil:
		return 8
	case time.Time:
		return int64(len(n.String()))
	case decimal.Decimal:
		return int64(len(n.String()))
	}
	return tidestore.SizeOf(v)
}

var _ aggrIter = (*funcSumIter)(nil)
var _ aggrIter = (*funcMinMaxIter)(nil)
