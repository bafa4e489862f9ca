package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// sortIter caches all of its input, sorts it, then emits the rows. Two
// wire kinds map here; the newer one carries a flag to charge the cached
// rows against the query's memory budget.
type sortIter struct {
	planIterBase
	kind        int
	input       planIter
	sortFields  []string
	sortSpecs   []tidestore.SortSpec
	countMemory bool
}

type sortIterState struct {
	planIterState
	rows              []map[string]tidestore.Value
	pos               int
	memoryConsumption int64
}

func readSortIter(r *wire.Reader, kind int) (*sortIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	input, err := deserializeIter(r)
	if err != nil {
		return nil, err
	}
	fields, err := r.ReadStringArray()
	if err != nil {
		return nil, err
	}
	specs, err := readSortSpecs(r)
	if err != nil {
		return nil, err
	}
	if len(fields) != len(specs) {
		return nil, tidestore.NewQueryState(
			"sort field count %d does not match sort spec count %d",
			len(fields), len(specs))
	}
	it := &sortIter{
		planIterBase: b, kind: kind, input: input,
		sortFields: fields, sortSpecs: specs,
	}
	if kind == kindSort2 {
		it.countMemory, err = r.ReadBoolean()
		if err != nil {
			return nil, err
		}
	}
	return it, nil
}

func (it *sortIter) getKind() int { return it.kind }

func (it *sortIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &sortIterState{})
	return it.input.open(rcb)
}

func (it *sortIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).(*sortIterState)
	if state.isDone() {
		return false, nil
	}

	if state.isOpen() {
		for {
			more, err := it.input.next(rcb)
			if err != nil {
				return false, err
			}
			if !more {
				// Input may resume after the batch boundary; sort only
				// once it is truly exhausted.
				if rcb.reachedLimit {
					return false, nil
				}
				break
			}
			row, ok := rcb.getRegVal(it.input.getResultReg()).(map[string]tidestore.Value)
			if !ok {
				return false, tidestore.NewQueryError(it.loc,
					"input to order-by is not a record")
			}
			for _, field := range it.sortFields {
				v, present := row[field]
				if present && !tidestore.IsAtomic(v) {
					return false, tidestore.NewQueryError(it.loc,
						"sort expression does not return a single atomic value")
				}
			}
			state.rows = append(state.rows, row)
			if it.countMemory {
				sz := tidestore.SizeOf(row)
				state.memoryConsumption += sz
				if err := rcb.incMemoryConsumption(sz); err != nil {
					return false, err
				}
			}
		}
		var sortErr error
		sort.SliceStable(state.rows, func(i, j int) bool {
			c, err := tidestore.SortRows(state.rows[i], state.rows[j],
				it.sortFields, it.sortSpecs)
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return c < 0
		})
		if sortErr != nil {
			return false, sortErr
		}
		if err := state.running(); err != nil {
			return false, err
		}
	}

	if state.pos < len(state.rows) {
		row := state.rows[state.pos]
		state.rows[state.pos] = nil
		state.pos++
		rcb.setRegVal(it.resultReg, tidestore.ConvertToNull(row).(map[string]tidestore.Value))
		return true, nil
	}
	if err := state.done(); err != nil {
		return false, err
	}
	return false, nil
}

func (it *sortIter) reset(rcb *runtimeControlBlock) error {
	if err := it.input.reset(rcb); err != nil {
		return err
	}
	state := rcb.getState(it.statePos).(*sortIterState)
	if state.memoryConsumption > 0 {
		rcb.decMemoryConsumption(state.memoryConsumption)
		state.memoryConsumption = 0
	}
	state.rows = nil
	state.pos = 0
	return state.planIterState.reset()
}

func (it *sortIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	if err := it.input.close(rcb); err != nil {
		return err
	}
	ss := state.(*sortIterState)
	if ss.memoryConsumption > 0 {
		rcb.decMemoryConsumption(ss.memoryConsumption)
		ss.memoryConsumption = 0
	}
	ss.rows = nil
	ss.close()
	return nil
}

func (it *sortIter) displayName() string {
	if it.kind == kindSort2 {
		return "SORT2"
	}
	return "SORT"
}

func (it *sortIter) displayContent(sb *strings.Builder, f *planFormatter) {
	f.printIndent(sb)
	fmt.Fprintf(sb, "order by: %v\n", it.sortFields)
	displayIter(sb, f, it.input)
}
