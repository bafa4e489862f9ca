package query

import (
	"strings"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// Plan node kind codes as they appear on the wire.
const (
	kindConst          = 0
	kindVarRef         = 1
	kindExternalVarRef = 2
	kindArithOp        = 8
	kindFieldStep      = 11
	kindSFW            = 14
	kindReceive        = 17
	kindFuncSum        = 39
	kindFuncMinMax     = 41
	kindSort           = 47
	kindGroup          = 65
	kindSort2          = 66
)

// Function codes carried by aggregate and arithmetic nodes.
const (
	fnOpAddSub     = 14
	fnOpMultDiv    = 15
	fnCountStar    = 42
	fnCount        = 43
	fnCountNumbers = 44
	fnSum          = 45
	fnMin          = 47
	fnMax          = 48
)

// planIter is a node of the deserialized query plan. A plan is a tree
// of iterators; execution interleaves their next() calls, with all
// mutable state held in the runtime control block so a single plan can
// back concurrent executions.
type planIter interface {
	open(rcb *runtimeControlBlock) error

	// next computes the iterator's next result, placing it in the
	// iterator's result register. It returns false when the input is
	// exhausted or an output limit is reached.
	next(rcb *runtimeControlBlock) (bool, error)

	reset(rcb *runtimeControlBlock) error

	// close releases execution state. Idempotent; after close the
	// iterator cannot be reopened on the same RCB.
	close(rcb *runtimeControlBlock) error

	getKind() int
	getResultReg() int
	getStatePos() int
	getLocation() tidestore.Location

	displayName() string
	displayContent(sb *strings.Builder, f *planFormatter)
}

// aggrIter is implemented by the aggregate-function iterators. getAggrValue
// returns the running aggregate and, when reset is true, reinitializes it
// for the next group.
type aggrIter interface {
	planIter
	getAggrValue(rcb *runtimeControlBlock, reset bool) (tidestore.Value, error)
}

// planIterBase carries the fields common to every iterator: the register
// its results go to, its slot in the RCB state array, and the source
// location used in error messages.
type planIterBase struct {
	resultReg int
	statePos  int
	loc       tidestore.Location
}

func (b *planIterBase) getResultReg() int               { return b.resultReg }
func (b *planIterBase) getStatePos() int                { return b.statePos }
func (b *planIterBase) getLocation() tidestore.Location { return b.loc }

// readBase deserializes the common prefix of every plan node.
func readBase(r *wire.Reader) (planIterBase, error) {
	var b planIterBase
	reg, err := r.ReadInt()
	if err != nil {
		return b, err
	}
	pos, err := r.ReadInt()
	if err != nil {
		return b, err
	}
	sl, err := r.ReadInt()
	if err != nil {
		return b, err
	}
	sc, err := r.ReadInt()
	if err != nil {
		return b, err
	}
	el, err := r.ReadInt()
	if err != nil {
		return b, err
	}
	ec, err := r.ReadInt()
	if err != nil {
		return b, err
	}
	if reg < 0 || pos < 0 {
		return b, tidestore.NewQueryState(
			"negative register or state position in plan node: reg=%d pos=%d", reg, pos)
	}
	b.resultReg = reg
	b.statePos = pos
	b.loc = tidestore.Location{
		StartLine: sl, StartColumn: sc, EndLine: el, EndColumn: ec,
	}
	return b, nil
}

// deserializeIter reads one plan node. A single byte of -1 in the kind
// position means "no iterator here" and yields nil.
func deserializeIter(r *wire.Reader) (planIter, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	kind := int(int8(b))
	if kind == -1 {
		return nil, nil
	}
	switch kind {
	case kindConst:
		return readConstIter(r)
	case kindVarRef:
		return readVarRefIter(r)
	case kindExternalVarRef:
		return readExternalVarRefIter(r)
	case kindArithOp:
		return readArithOpIter(r)
	case kindFieldStep:
		return readFieldStepIter(r)
	case kindSFW:
		return readSFWIter(r)
	case kindReceive:
		return readReceiveIter(r)
	case kindFuncSum:
		return readFuncSumIter(r)
	case kindFuncMinMax:
		return readFuncMinMaxIter(r)
	case kindSort:
		return readSortIter(r, kindSort)
	case kindSort2:
		return readSortIter(r, kindSort2)
	case kindGroup:
		return readGroupIter(r)
	}
	return nil, tidestore.NewQueryState("unknown query plan node kind %d", kind)
}

// deserializeIters reads a length-prefixed array of plan nodes.
func deserializeIters(r *wire.Reader) ([]planIter, error) {
	n, err := r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	iters := make([]planIter, n)
	for i := 0; i < n; i++ {
		iters[i], err = deserializeIter(r)
		if err != nil {
			return nil, err
		}
	}
	return iters, nil
}

// readSortSpecs reads the per-field ordering flags that accompany
// sort field names.
func readSortSpecs(r *wire.Reader) ([]tidestore.SortSpec, error) {
	n, err := r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	specs := make([]tidestore.SortSpec, n)
	for i := 0; i < n; i++ {
		desc, err := r.ReadBoolean()
		if err != nil {
			return nil, err
		}
		nf, err := r.ReadBoolean()
		if err != nil {
			return nil, err
		}
		specs[i] = tidestore.SortSpec{IsDesc: desc, NullsFirst: nf}
	}
	return specs, nil
}
