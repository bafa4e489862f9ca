package query

import (
	"fmt"
	"strings"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// groupIter implements grouping and duplicate elimination over its
// input, and re-aggregates partial aggregate values computed by the
// shards. Groups live in a hash table keyed by the grouping tuple and
// survive reset(), which is what lets aggregation span multiple remote
// batches. Rows are emitted only once the input is exhausted; with
// removeProducedResult set, an emitted group is dropped from the table
// so it cannot be emitted again after a reset.
type groupIter struct {
	planIterBase
	input        planIter
	numGBColumns int
	columnNames  []string
	aggrFuncs    []int
	isDistinct   bool

	removeProducedResult bool
	countMemory          bool
}

type groupEntry struct {
	key     []tidestore.Value
	hash    uint64
	aggrs   []*aggrValue
	size    int64
	removed bool
}

// aggrValue is one aggregate accumulator inside a group entry.
type aggrValue struct {
	value    tidestore.Value
	gotInput bool
}

type groupIterState struct {
	planIterState
	buckets map[uint64][]*groupEntry

	// entries preserves insertion order for emission.
	entries []*groupEntry

	emitting bool
	emitList []*groupEntry
	emitPos  int

	memoryConsumption int64

	// gbTuple is scratch space for probing the hash table.
	gbTuple []tidestore.Value
}

func readGroupIter(r *wire.Reader) (*groupIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	input, err := deserializeIter(r)
	if err != nil {
		return nil, err
	}
	numGB, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	names, err := r.ReadStringArray()
	if err != nil {
		return nil, err
	}
	funcs, err := r.ReadPackedIntArray()
	if err != nil {
		return nil, err
	}
	isDistinct, err := r.ReadBoolean()
	if err != nil {
		return nil, err
	}
	removeProduced, err := r.ReadBoolean()
	if err != nil {
		return nil, err
	}
	countMem, err := r.ReadBoolean()
	if err != nil {
		return nil, err
	}
	if numGB < 0 || numGB > len(names) {
		return nil, tidestore.NewQueryState(
			"grouping column count %d out of range for %d columns", numGB, len(names))
	}
	if len(funcs) != len(names)-numGB {
		return nil, tidestore.NewQueryState(
			"aggregate function count %d does not match aggregate column count %d",
			len(funcs), len(names)-numGB)
	}
	return &groupIter{
		planIterBase:         b,
		input:                input,
		numGBColumns:         numGB,
		columnNames:          names,
		aggrFuncs:            funcs,
		isDistinct:           isDistinct,
		removeProducedResult: removeProduced,
		countMemory:          countMem,
	}, nil
}

func (it *groupIter) getKind() int { return kindGroup }

func (it *groupIter) numAggrColumns() int {
	return len(it.columnNames) - it.numGBColumns
}

func (it *groupIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &groupIterState{
		buckets: make(map[uint64][]*groupEntry),
		gbTuple: make([]tidestore.Value, it.numGBColumns),
	})
	return it.input.open(rcb)
}

func (it *groupIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).(*groupIterState)
	if state.isDone() {
		return false, nil
	}
	for {
		if state.emitting {
			return it.produceResult(rcb, state)
		}
		more, err := it.input.next(rcb)
		if err != nil {
			return false, err
		}
		if !more {
			// A batch boundary is not the end of the input; emitting
			// now would surface half-aggregated groups.
			if rcb.reachedLimit {
				return false, nil
			}
			if it.numAggrColumns() == 0 {
				if err := state.done(); err != nil {
					return false, err
				}
				return false, nil
			}
			state.emitting = true
			state.emitList = state.liveEntries()
			state.emitPos = 0
			continue
		}

		inTuple, ok := rcb.getRegVal(it.input.getResultReg()).(map[string]tidestore.Value)
		if !ok {
			return false, tidestore.NewQueryState(
				"input to grouping is not a record: %T",
				rcb.getRegVal(it.input.getResultReg()))
		}

		skip := false
		for i := 0; i < it.numGBColumns; i++ {
			colVal, present := inTuple[it.columnNames[i]]
			if !present {
				colVal = tidestore.Empty
			}
			if _, isEmpty := colVal.(tidestore.EmptyValue); isEmpty {
				if !it.isDistinct {
					skip = true
					break
				}
				colVal = nil
			}
			state.gbTuple[i] = colVal
		}
		if skip {
			continue
		}

		hash := hashTuple(state.gbTuple)
		entry := state.lookup(hash, state.gbTuple)
		if entry == nil {
			entry, err = it.newEntry(rcb, state, hash)
			if err != nil {
				return false, err
			}
			if err := it.aggregateTuple(rcb, entry, inTuple); err != nil {
				return false, err
			}
			rcb.trace(3, "started group %v", entry.key)
			if it.numAggrColumns() == 0 {
				rcb.setRegVal(it.resultReg, it.makeResult(entry))
				return true, nil
			}
			continue
		}
		if err := it.aggregateTuple(rcb, entry, inTuple); err != nil {
			return false, err
		}
	}
}

func (it *groupIter) produceResult(rcb *runtimeControlBlock,
	state *groupIterState) (bool, error) {

	for state.emitPos < len(state.emitList) {
		entry := state.emitList[state.emitPos]
		state.emitPos++
		if entry.removed {
			continue
		}
		res := it.makeResult(entry)
		if it.removeProducedResult {
			state.remove(entry)
			if it.countMemory {
				rcb.decMemoryConsumption(entry.size)
				state.memoryConsumption -= entry.size
			}
		}
		rcb.setRegVal(it.resultReg, res)
		return true, nil
	}
	state.emitting = false
	state.emitList = nil
	if err := state.done(); err != nil {
		return false, err
	}
	return false, nil
}

func (it *groupIter) makeResult(entry *groupEntry) map[string]tidestore.Value {
	res := make(map[string]tidestore.Value, len(it.columnNames))
	for i := 0; i < it.numGBColumns; i++ {
		res[it.columnNames[i]] = entry.key[i]
	}
	for i, aggr := range entry.aggrs {
		res[it.columnNames[it.numGBColumns+i]] = it.aggrResult(it.aggrFuncs[i], aggr)
	}
	return tidestore.ConvertToNull(res).(map[string]tidestore.Value)
}

func (it *groupIter) aggrResult(fnCode int, aggr *aggrValue) tidestore.Value {
	switch fnCode {
	case fnSum:
		if !aggr.gotInput {
			return nil
		}
	case fnMin, fnMax:
		if !aggr.gotInput {
			return nil
		}
	}
	return aggr.value
}

func (it *groupIter) newEntry(rcb *runtimeControlBlock, state *groupIterState,
	hash uint64) (*groupEntry, error) {

	key := make([]tidestore.Value, it.numGBColumns)
	copy(key, state.gbTuple)
	aggrs := make([]*aggrValue, it.numAggrColumns())
	for i := range aggrs {
		aggrs[i] = newAggrValue(it.aggrFuncs[i])
	}
	entry := &groupEntry{key: key, hash: hash, aggrs: aggrs}
	state.buckets[hash] = append(state.buckets[hash], entry)
	state.entries = append(state.entries, entry)

	if it.countMemory {
		sz := int64(0)
		for _, v := range key {
			sz += tidestore.SizeOf(v)
		}
		for _, a := range aggrs {
			sz += 16 + sizeOfAggr(a.value)
		}
		entry.size = sz
		state.memoryConsumption += sz
		if err := rcb.incMemoryConsumption(sz); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func newAggrValue(fnCode int) *aggrValue {
	switch fnCode {
	case fnCountStar, fnCount, fnCountNumbers:
		return &aggrValue{value: int64(0), gotInput: true}
	}
	return &aggrValue{}
}

// aggregateTuple folds one input row into a group's accumulators. The
// incoming values are partial aggregates computed by a shard, so COUNT
// variants sum their partial counts the same way SUM does.
func (it *groupIter) aggregateTuple(rcb *runtimeControlBlock,
	entry *groupEntry, inTuple map[string]tidestore.Value) error {

	for i, aggr := range entry.aggrs {
		val, present := inTuple[it.columnNames[it.numGBColumns+i]]
		if !present {
			continue
		}
		switch it.aggrFuncs[i] {
		case fnCountStar, fnCount, fnCountNumbers, fnSum:
			if !tidestore.IsNumeric(val) {
				continue
			}
			sum, err := sumNewValue(aggr.value, val)
			if err != nil {
				return err
			}
			aggr.value = sum
			aggr.gotInput = true
		case fnMin, fnMax:
			switch val.(type) {
			case nil, tidestore.EmptyValue, tidestore.JSONNull, []byte,
				map[string]tidestore.Value, []tidestore.Value:
				continue
			}
			if !aggr.gotInput {
				aggr.value = val
				aggr.gotInput = true
				continue
			}
			cmp, err := tidestore.CompareAtomics(aggr.value, val, true)
			if err != nil {
				return err
			}
			if (it.aggrFuncs[i] == fnMin && cmp > 0) ||
				(it.aggrFuncs[i] == fnMax && cmp < 0) {
				aggr.value = val
			}
		default:
			return tidestore.NewQueryState(
				"unexpected aggregate function code %d", it.aggrFuncs[i])
		}
	}
	return nil
}

func hashTuple(vals []tidestore.Value) uint64 {
	var h uint64 = 1
	for _, v := range vals {
		h = h*31 + tidestore.HashValue(v)
	}
	return h
}

func (s *groupIterState) lookup(hash uint64, key []tidestore.Value) *groupEntry {
	for _, e := range s.buckets[hash] {
		if e.removed {
			continue
		}
		if tuplesEqual(e.key, key) {
			return e
		}
	}
	return nil
}

func (s *groupIterState) remove(entry *groupEntry) {
	entry.removed = true
	bucket := s.buckets[entry.hash]
	for i, e := range bucket {
		if e == entry {
			s.buckets[entry.hash] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
}

func (s *groupIterState) liveEntries() []*groupEntry {
	live := make([]*groupEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.removed {
			live = append(live, e)
		}
	}
	s.entries = live
	return live
}

func tuplesEqual(a, b []tidestore.Value) bool {
	for i := range a {
		if !tidestore.ValuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// reset keeps the group table so aggregation continues across batches.
func (it *groupIter) reset(rcb *runtimeControlBlock) error {
	if err := it.input.reset(rcb); err != nil {
		return err
	}
	state := rcb.getState(it.statePos).(*groupIterState)
	state.emitting = false
	state.emitList = nil
	state.emitPos = 0
	return state.planIterState.reset()
}

func (it *groupIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	if err := it.input.close(rcb); err != nil {
		return err
	}
	gs := state.(*groupIterState)
	if gs.memoryConsumption > 0 {
		rcb.decMemoryConsumption(gs.memoryConsumption)
		gs.memoryConsumption = 0
	}
	gs.buckets = nil
	gs.entries = nil
	gs.emitList = nil
	gs.close()
	return nil
}

func (it *groupIter) displayName() string { return "GROUP" }

func (it *groupIter) displayContent(sb *strings.Builder, f *planFormatter) {
	f.printIndent(sb)
	fmt.Fprintf(sb, "grouping columns: %v\n", it.columnNames[:it.numGBColumns])
	f.printIndent(sb)
	fmt.Fprintf(sb, "aggregate columns: %v\n", it.columnNames[it.numGBColumns:])
	displayIter(sb, f, it.input)
}
