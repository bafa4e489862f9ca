package query

import (
	"sync"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// PreparedStatement is the compiled form of a query. The store keeps
// the shard-side plan opaque to the client; when the query needs
// client-side processing the response also carries a driver-side plan,
// which is deserialized here and interpreted by QueryDriver.
//
// A PreparedStatement is immutable apart from its bind variables and
// can back many executions. CopyStatement gives an independent set of
// binds for concurrent use.
type PreparedStatement struct {
	sqlText string

	// statement is the opaque shard-side portion, echoed back to the
	// store with every fetch.
	statement []byte

	driverPlan   planIter
	planString   string
	numIterators int
	numRegisters int
	externalVars map[string]int
	topology     *tidestore.TopologyInfo

	lock      sync.Mutex
	boundVars map[string]tidestore.Value
}

// DeserializePreparedStatement reads a prepare response payload.
func DeserializePreparedStatement(r *wire.Reader, sqlText string) (*PreparedStatement, error) {
	stmt, err := r.ReadByteArray()
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, tidestore.NewIllegalState("prepare response has no statement")
	}
	hasPlan, err := r.ReadBoolean()
	if err != nil {
		return nil, err
	}
	ps := &PreparedStatement{sqlText: sqlText, statement: stmt}
	if hasPlan {
		ps.driverPlan, err = deserializeIter(r)
		if err != nil {
			return nil, err
		}
		ps.planString = displayPlan(ps.driverPlan)
		ps.numIterators, err = r.ReadInt()
		if err != nil {
			return nil, err
		}
		ps.numRegisters, err = r.ReadInt()
		if err != nil {
			return nil, err
		}
		numVars, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		if numVars > 0 {
			ps.externalVars = make(map[string]int, numVars)
			for i := 0; i < numVars; i++ {
				name, _, err := r.ReadString()
				if err != nil {
					return nil, err
				}
				id, err := r.ReadInt()
				if err != nil {
					return nil, err
				}
				ps.externalVars[name] = id
			}
		}
	}
	ps.topology, err = r.ReadTopologyInfo()
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// SQLText returns the statement text this plan was compiled from.
func (ps *PreparedStatement) SQLText() string { return ps.sqlText }

// QueryPlan returns a human-readable rendering of the driver-side plan,
// or the empty string when the query runs entirely in the store.
func (ps *PreparedStatement) QueryPlan() string { return ps.planString }

// Statement returns the opaque shard-side plan bytes.
func (ps *PreparedStatement) Statement() []byte { return ps.statement }

// Topology returns the store topology captured at prepare time.
func (ps *PreparedStatement) Topology() *tidestore.TopologyInfo { return ps.topology }

func (ps *PreparedStatement) requiresDriver() bool { return ps.driverPlan != nil }

// SetVariable binds an external variable for the next execution.
func (ps *PreparedStatement) SetVariable(name string, value tidestore.Value) error {
	if ps.externalVars != nil {
		if _, ok := ps.externalVars[name]; !ok {
			return tidestore.NewIllegalArgument(
				"query does not contain the variable %q", name)
		}
	}
	ps.lock.Lock()
	defer ps.lock.Unlock()
	if ps.boundVars == nil {
		ps.boundVars = make(map[string]tidestore.Value)
	}
	ps.boundVars[name] = value
	return nil
}

// ClearVariables removes all binds.
func (ps *PreparedStatement) ClearVariables() {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.boundVars = nil
}

// CopyStatement returns a copy sharing the compiled plan but with its
// own, empty set of bind variables.
func (ps *PreparedStatement) CopyStatement() *PreparedStatement {
	return &PreparedStatement{
		sqlText:      ps.sqlText,
		statement:    ps.statement,
		driverPlan:   ps.driverPlan,
		planString:   ps.planString,
		numIterators: ps.numIterators,
		numRegisters: ps.numRegisters,
		externalVars: ps.externalVars,
		topology:     ps.topology,
	}
}

// externalVarValues lays the binds out by variable id for the RCB. All
// declared variables must be bound.
func (ps *PreparedStatement) externalVarValues() ([]tidestore.Value, error) {
	if len(ps.externalVars) == 0 {
		return nil, nil
	}
	ps.lock.Lock()
	defer ps.lock.Unlock()
	vals := make([]tidestore.Value, len(ps.externalVars))
	for name, id := range ps.externalVars {
		v, ok := ps.boundVars[name]
		if !ok {
			return nil, tidestore.NewIllegalArgument(
				"variable %q has not been bound", name)
		}
		if id < 0 || id >= len(vals) {
			return nil, tidestore.NewQueryState(
				"variable %q has id %d out of range", name, id)
		}
		vals[id] = v
	}
	return vals, nil
}
