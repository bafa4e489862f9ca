package query

import (
	"fmt"

	"github.com/tidestore/tidestore-go/tidestore"
)

// dummyContKey marks an application request as "not done" while the
// driver-side plan holds the real continuation state in memory.
var dummyContKey = []byte{0}

// QueryDriver runs the driver-side plan of an advanced query. One
// driver belongs to one QueryRequest and lives until that query is done
// or closed. Each Compute call produces one batch of results.
type QueryDriver struct {
	executor Executor
	request  *QueryRequest
	topology *tidestore.TopologyInfo

	// prepCost is charged to the first batch when the statement was
	// prepared implicitly as part of this execution.
	prepCost int

	rcb       *runtimeControlBlock
	batchSize int

	// results buffers a batch that could not be delivered because a
	// retryable error interrupted the fetch that followed it.
	results []tidestore.Row

	err error
}

// NewQueryDriver attaches a driver to a request whose prepared
// statement carries a driver-side plan.
func NewQueryDriver(executor Executor, request *QueryRequest) (*QueryDriver, error) {
	prep := request.Prepared
	if prep == nil || !prep.requiresDriver() {
		return nil, tidestore.NewIllegalArgument(
			"query does not require driver-side processing")
	}
	d := &QueryDriver{
		executor:  executor,
		request:   request,
		topology:  prep.topology,
		batchSize: request.batchSize(),
	}
	request.driver = d
	return d, nil
}

// SetPrepCost records the read cost of an implicit prepare so the first
// batch reports it.
func (d *QueryDriver) SetPrepCost(readKB int) { d.prepCost = readKB }

// Compute produces the next batch of results into result.
//
// A non-retryable error is terminal: the plan is closed, the error is
// cached, and every later Compute fails with it. A retryable error
// leaves the plan untouched; rows already produced for the batch are
// kept and delivered by the Compute call that follows a successful
// retry.
func (d *QueryDriver) Compute(result *QueryResult) error {
	prep := d.request.Prepared
	if prep == nil || !prep.requiresDriver() {
		return tidestore.NewQueryState("driver invoked without a driver-side plan")
	}
	if d.err != nil {
		return d.err
	}
	if d.results != nil {
		d.setQueryResult(result)
		return nil
	}

	if d.rcb == nil {
		vars, err := prep.externalVarValues()
		if err != nil {
			return err
		}
		d.rcb = newRCB(d, prep.driverPlan, prep.numIterators, prep.numRegisters, vars)
		if err := prep.driverPlan.open(d.rcb); err != nil {
			return d.terminal(err)
		}
		d.request.setContKey(dummyContKey)
		d.rcb.tallyReadKB(d.prepCost)
		d.rcb.tallyReadUnits(d.prepCost)
	}

	rcb := d.rcb
	rcb.setReachedLimit(false)
	plan := prep.driverPlan

	more := false
	for len(d.results) < d.batchSize {
		var err error
		more, err = plan.next(rcb)
		if err != nil {
			if tidestore.IsRetryable(err) {
				rcb.trace(1, "batch interrupted by retryable error: %v", err)
				return err
			}
			return d.terminal(err)
		}
		if !more {
			break
		}
		res, ok := rcb.getRegVal(plan.getResultReg()).(tidestore.Row)
		if !ok {
			return d.terminal(tidestore.NewQueryState(
				"top-level query result is not a record: %T",
				rcb.getRegVal(plan.getResultReg())))
		}
		d.results = append(d.results, res)
	}

	if more || rcb.reachedLimit {
		d.request.setContKey(dummyContKey)
	} else {
		d.request.setContKey(nil)
	}
	if d.results == nil {
		d.results = []tidestore.Row{}
	}
	d.setQueryResult(result)
	return nil
}

// terminal caches err as the permanent outcome of this query and closes
// the plan. The original error is returned once; later calls see the
// cached wrapper.
func (d *QueryDriver) terminal(err error) error {
	d.err = fmt.Errorf("query failed: %w", err)
	d.results = nil
	if d.rcb != nil {
		d.request.Prepared.driverPlan.close(d.rcb)
	}
	return err
}

func (d *QueryDriver) setQueryResult(result *QueryResult) {
	result.rows = d.results
	result.continuationKey = d.request.contKey
	if d.rcb != nil {
		result.readKB = d.rcb.readKB
		result.readUnits = d.rcb.readUnits
		result.writeKB = d.rcb.writeKB
		d.rcb.readKB = 0
		d.rcb.readUnits = 0
		d.rcb.writeKB = 0
	}
	d.results = nil
}

func (d *QueryDriver) close() {
	if d.rcb != nil && d.request.Prepared != nil {
		d.request.Prepared.driverPlan.close(d.rcb)
	}
	d.results = nil
}
