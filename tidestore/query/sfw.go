package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// sfwIter is the select-from-where node sitting at or near the top of a
// driver-side plan. It builds result records from its column
// expressions, applies OFFSET and LIMIT, and when the query groups, it
// performs sort-based grouping: the input arrives ordered by the
// grouping columns, so a change in the grouping tuple closes the
// current group.
type sfwIter struct {
	planIterBase
	columnNames  []string
	numGBColumns int
	fromVarName  string
	isSelectStar bool
	columnIters  []planIter
	fromIter     planIter
	offsetIter   planIter
	limitIter    planIter
}

type sfwIterState struct {
	planIterState
	offset     int64
	limit      int64
	numResults int64

	// gbTuple holds the grouping tuple of the currently open group, nil
	// until the first input tuple of a grouping query arrives.
	gbTuple []tidestore.Value
}

func readSFWIter(r *wire.Reader) (*sfwIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	names, err := r.ReadStringArray()
	if err != nil {
		return nil, err
	}
	numGB, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	fromVar, _, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	selectStar, err := r.ReadBoolean()
	if err != nil {
		return nil, err
	}
	colIters, err := deserializeIters(r)
	if err != nil {
		return nil, err
	}
	fromIter, err := deserializeIter(r)
	if err != nil {
		return nil, err
	}
	offsetIter, err := deserializeIter(r)
	if err != nil {
		return nil, err
	}
	limitIter, err := deserializeIter(r)
	if err != nil {
		return nil, err
	}
	if numGB >= 0 {
		for i := numGB; i < len(colIters); i++ {
			if _, ok := colIters[i].(aggrIter); !ok {
				return nil, tidestore.NewQueryState(
					"column %d of a grouping select is not an aggregate", i)
			}
		}
	}
	return &sfwIter{
		planIterBase: b,
		columnNames:  names,
		numGBColumns: numGB,
		fromVarName:  fromVar,
		isSelectStar: selectStar,
		columnIters:  colIters,
		fromIter:     fromIter,
		offsetIter:   offsetIter,
		limitIter:    limitIter,
	}, nil
}

func (it *sfwIter) getKind() int { return kindSFW }

func (it *sfwIter) open(rcb *runtimeControlBlock) error {
	state := &sfwIterState{offset: 0, limit: math.MaxInt64}
	rcb.setState(it.statePos, state)
	if err := it.fromIter.open(rcb); err != nil {
		return err
	}
	for _, ci := range it.columnIters {
		if err := ci.open(rcb); err != nil {
			return err
		}
	}
	var err error
	state.offset, err = it.computeOffsetLimit(rcb, it.offsetIter, "offset", 0)
	if err != nil {
		return err
	}
	state.limit, err = it.computeOffsetLimit(rcb, it.limitIter, "limit", math.MaxInt64)
	if err != nil {
		return err
	}
	return nil
}

func (it *sfwIter) computeOffsetLimit(rcb *runtimeControlBlock, iter planIter,
	what string, dflt int64) (int64, error) {

	if iter == nil {
		return dflt, nil
	}
	if err := iter.open(rcb); err != nil {
		return 0, err
	}
	if _, err := iter.next(rcb); err != nil {
		return 0, err
	}
	val := rcb.getRegVal(iter.getResultReg())
	var n int64
	switch tv := val.(type) {
	case int:
		n = int64(tv)
	case int64:
		n = tv
	default:
		return 0, tidestore.NewQueryError(iter.getLocation(),
			"%s must be an integer", what)
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, tidestore.NewQueryError(iter.getLocation(),
			"%s must be a non-negative integer within the int range", what)
	}
	return n, nil
}

func (it *sfwIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).(*sfwIterState)
	if state.isDone() {
		return false, nil
	}
	if state.numResults >= state.limit {
		if err := state.done(); err != nil {
			return false, err
		}
		return false, nil
	}
	for {
		more, err := it.computeNextResult(rcb, state)
		if err != nil {
			return false, err
		}
		if !more {
			return false, nil
		}
		// The result may be the last group of a grouping query, which
		// also finishes the iterator. While still inside the offset it
		// is skipped, with nothing left to produce after it.
		if state.isDone() && state.offset > 0 {
			return false, nil
		}
		if state.offset == 0 {
			break
		}
		state.offset--
	}
	state.numResults++
	return true, nil
}

func (it *sfwIter) computeNextResult(rcb *runtimeControlBlock,
	state *sfwIterState) (bool, error) {

	for {
		more, err := it.fromIter.next(rcb)
		if err != nil {
			return false, err
		}
		if !more {
			if it.numGBColumns >= 0 {
				return it.produceLastGroup(rcb, state)
			}
			// At a batch boundary the input resumes later; only a true
			// end of input finishes the iterator.
			if !rcb.reachedLimit {
				if err := state.done(); err != nil {
					return false, err
				}
			}
			return false, nil
		}

		if it.numGBColumns >= 0 {
			produced, err := it.groupInputTuple(rcb, state)
			if err != nil {
				return false, err
			}
			if produced {
				return true, nil
			}
			continue
		}

		if it.isSelectStar {
			return true, nil
		}
		result := make(map[string]tidestore.Value, len(it.columnIters))
		for i, ci := range it.columnIters {
			colMore, err := ci.next(rcb)
			if err != nil {
				return false, err
			}
			var val tidestore.Value
			if colMore {
				val = rcb.getRegVal(ci.getResultReg())
			}
			result[it.columnNames[i]] = val
			if err := ci.reset(rcb); err != nil {
				return false, err
			}
		}
		rcb.setRegVal(it.resultReg, result)
		return true, nil
	}
}

// groupInputTuple folds the current input tuple into the open group. It
// returns true when the tuple starts a new group and a result row for
// the previous group was produced.
func (it *sfwIter) groupInputTuple(rcb *runtimeControlBlock,
	state *sfwIterState) (bool, error) {

	gbTuple := make([]tidestore.Value, it.numGBColumns)
	j := 0
	for ; j < it.numGBColumns; j++ {
		ci := it.columnIters[j]
		more, err := ci.next(rcb)
		if err != nil {
			return false, err
		}
		if !more {
			break
		}
		gbTuple[j] = rcb.getRegVal(ci.getResultReg())
	}
	for i := 0; i <= j && i < it.numGBColumns; i++ {
		if err := it.columnIters[i].reset(rcb); err != nil {
			return false, err
		}
	}
	if j < it.numGBColumns {
		// A grouping expression returned no value; skip the tuple.
		return false, nil
	}

	if state.gbTuple == nil {
		state.gbTuple = gbTuple
		rcb.trace(2, "started group %v", gbTuple)
		return false, it.aggregateColumns(rcb)
	}

	equal := true
	for i := 0; i < it.numGBColumns; i++ {
		if !tidestore.ValuesEqual(state.gbTuple[i], gbTuple[i]) {
			equal = false
			break
		}
	}
	if equal {
		return false, it.aggregateColumns(rcb)
	}

	// Group boundary: emit the finished group, then fold the current
	// tuple into the accumulators that getAggrValue just reset.
	res, err := it.makeGroupResult(rcb, state)
	if err != nil {
		return false, err
	}
	state.gbTuple = gbTuple
	if err := it.aggregateColumns(rcb); err != nil {
		return false, err
	}
	rcb.setRegVal(it.resultReg, res)
	rcb.trace(2, "closed group, started group %v", gbTuple)
	return true, nil
}

// aggregateColumns advances each aggregate column over the current input
// tuple. The aggregate iterators keep their accumulators across reset.
func (it *sfwIter) aggregateColumns(rcb *runtimeControlBlock) error {
	for i := it.numGBColumns; i < len(it.columnIters); i++ {
		ci := it.columnIters[i]
		if _, err := ci.next(rcb); err != nil {
			return err
		}
		if err := ci.reset(rcb); err != nil {
			return err
		}
	}
	return nil
}

func (it *sfwIter) makeGroupResult(rcb *runtimeControlBlock,
	state *sfwIterState) (map[string]tidestore.Value, error) {

	res := make(map[string]tidestore.Value, len(it.columnNames))
	for i := 0; i < it.numGBColumns; i++ {
		res[it.columnNames[i]] = state.gbTuple[i]
	}
	for i := it.numGBColumns; i < len(it.columnIters); i++ {
		aggr := it.columnIters[i].(aggrIter)
		val, err := aggr.getAggrValue(rcb, true)
		if err != nil {
			return nil, err
		}
		res[it.columnNames[i]] = val
	}
	return res, nil
}

// produceLastGroup closes the final group once the input is truly
// exhausted. If the batch merely hit its size limit, more input for the
// group may arrive in the next batch, so nothing is emitted.
func (it *sfwIter) produceLastGroup(rcb *runtimeControlBlock,
	state *sfwIterState) (bool, error) {

	if rcb.reachedLimit {
		return false, nil
	}
	if state.gbTuple == nil {
		if err := state.done(); err != nil {
			return false, err
		}
		return false, nil
	}
	res, err := it.makeGroupResult(rcb, state)
	if err != nil {
		return false, err
	}
	rcb.setRegVal(it.resultReg, res)
	state.gbTuple = nil
	if err := state.done(); err != nil {
		return false, err
	}
	return true, nil
}

// reset restarts the input while keeping offset, limit and group
// progress, so a query continues correctly across batches.
func (it *sfwIter) reset(rcb *runtimeControlBlock) error {
	if err := it.fromIter.reset(rcb); err != nil {
		return err
	}
	for _, ci := range it.columnIters {
		if err := ci.reset(rcb); err != nil {
			return err
		}
	}
	if it.offsetIter != nil {
		if err := it.offsetIter.reset(rcb); err != nil {
			return err
		}
	}
	if it.limitIter != nil {
		if err := it.limitIter.reset(rcb); err != nil {
			return err
		}
	}
	return rcb.getState(it.statePos).stateBase().reset()
}

func (it *sfwIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	if err := it.fromIter.close(rcb); err != nil {
		return err
	}
	for _, ci := range it.columnIters {
		if err := ci.close(rcb); err != nil {
			return err
		}
	}
	if it.offsetIter != nil {
		if err := it.offsetIter.close(rcb); err != nil {
			return err
		}
	}
	if it.limitIter != nil {
		if err := it.limitIter.close(rcb); err != nil {
			return err
		}
	}
	state.stateBase().close()
	return nil
}

func (it *sfwIter) displayName() string { return "SFW" }

func (it *sfwIter) displayContent(sb *strings.Builder, f *planFormatter) {
	f.printIndent(sb)
	fmt.Fprintf(sb, "FROM:\n")
	displayIter(sb, f, it.fromIter)
	fmt.Fprintf(sb, " as %s\n\n", it.fromVarName)
	if it.numGBColumns >= 0 {
		f.printIndent(sb)
		fmt.Fprintf(sb, "GROUP BY: first %d columns\n\n", it.numGBColumns)
	}
	f.printIndent(sb)
	sb.WriteString("SELECT:\n")
	if it.isSelectStar {
		f.printIndent(sb)
		sb.WriteString("*")
	}
	for i, ci := range it.columnIters {
		displayIter(sb, f, ci)
		if i < len(it.columnIters)-1 {
			sb.WriteString(",\n")
		}
	}
	if it.offsetIter != nil {
		sb.WriteString("\n\n")
		f.printIndent(sb)
		sb.WriteString("OFFSET:\n")
		displayIter(sb, f, it.offsetIter)
	}
	if it.limitIter != nil {
		sb.WriteString("\n\n")
		f.printIndent(sb)
		sb.WriteString("LIMIT:\n")
		displayIter(sb, f, it.limitIter)
	}
}
