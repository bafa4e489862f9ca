package query

import (
	"fmt"

	"github.com/tidestore/tidestore-go/tidestore"
)

// runtimeControlBlock holds all mutable state for one execution of a
// query plan: the register bank, the per-iterator state slots, bind
// values and the consumption counters. The plan tree itself stays
// immutable and shareable.
type runtimeControlBlock struct {
	driver *QueryDriver

	rootIter planIter

	// externalVars is indexed by variable id from the compiled plan.
	externalVars []tidestore.Value

	registers []tidestore.Value
	states    []iterState

	reachedLimit bool

	readKB    int
	readUnits int
	writeKB   int

	memoryConsumption int64
}

func newRCB(driver *QueryDriver, rootIter planIter, numIters, numRegs int,
	externalVars []tidestore.Value) *runtimeControlBlock {

	return &runtimeControlBlock{
		driver:       driver,
		rootIter:     rootIter,
		externalVars: externalVars,
		registers:    make([]tidestore.Value, numRegs),
		states:       make([]iterState, numIters),
	}
}

func (rcb *runtimeControlBlock) getRequest() *QueryRequest {
	return rcb.driver.request
}

func (rcb *runtimeControlBlock) getExecutor() Executor {
	return rcb.driver.executor
}

func (rcb *runtimeControlBlock) getTopology() *tidestore.TopologyInfo {
	return rcb.driver.topology
}

func (rcb *runtimeControlBlock) setTopology(ti *tidestore.TopologyInfo) {
	rcb.driver.topology = ti
}

func (rcb *runtimeControlBlock) getRegVal(reg int) tidestore.Value {
	return rcb.registers[reg]
}

func (rcb *runtimeControlBlock) setRegVal(reg int, v tidestore.Value) {
	rcb.registers[reg] = v
}

func (rcb *runtimeControlBlock) getState(pos int) iterState {
	return rcb.states[pos]
}

func (rcb *runtimeControlBlock) setState(pos int, s iterState) {
	rcb.states[pos] = s
}

func (rcb *runtimeControlBlock) getExternalVar(id int) tidestore.Value {
	if rcb.externalVars == nil || id >= len(rcb.externalVars) {
		return nil
	}
	return rcb.externalVars[id]
}

func (rcb *runtimeControlBlock) setReachedLimit(v bool) { rcb.reachedLimit = v }

func (rcb *runtimeControlBlock) tallyReadKB(v int)    { rcb.readKB += v }
func (rcb *runtimeControlBlock) tallyReadUnits(v int) { rcb.readUnits += v }
func (rcb *runtimeControlBlock) tallyWriteKB(v int)   { rcb.writeKB += v }

// incMemoryConsumption charges v bytes against the request's memory cap.
// v may be negative to release.
func (rcb *runtimeControlBlock) incMemoryConsumption(v int64) error {
	rcb.memoryConsumption += v
	max := rcb.getRequest().maxMemoryBytes()
	if rcb.memoryConsumption > max {
		return &tidestore.MemoryLimitError{Limit: max}
	}
	return nil
}

func (rcb *runtimeControlBlock) decMemoryConsumption(v int64) {
	rcb.memoryConsumption -= v
}

// trace emits a client-side trace line when the request's trace level is
// at or above level.
func (rcb *runtimeControlBlock) trace(level int, format string, args ...any) {
	if rcb.getRequest().TraceLevel >= level {
		fmt.Printf("QUERY "+format+"\n", args...)
	}
}
