package shardsim

import (
	"fmt"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// Plan node kinds and function codes of the wire protocol. The
// simulator is the serializing side; the query package is the reader.
const (
	nkConst          = 0
	nkVarRef         = 1
	nkExternalVarRef = 2
	nkArithOp        = 8
	nkFieldStep      = 11
	nkSFW            = 14
	nkReceive        = 17
	nkFuncSum        = 39
	nkFuncMinMax     = 41
	nkGroup          = 65
	nkSort2          = 66

	opAddSub  = 14
	opMultDiv = 15

	fnCodeCountStar = 42
	fnCodeCount     = 43
	fnCodeSum       = 45
	fnCodeMin       = 47
	fnCodeMax       = 48

	distSingle        = 0
	distAllPartitions = 1
	distAllShards     = 2
)

const fromVarName = "$from"

// projField is one column of the shard-side projection. Exactly one of
// field, literal, or countNonNull+field applies.
type projField struct {
	name string

	mode  byte // 0 copy field, 1 literal, 2 count-non-null of field
	field string
	lit   tidestore.Value
}

const (
	projCopy    = 0
	projLiteral = 1
	projCountNN = 2
)

// shardPlan is what each shard executes: scan, filter, project, sort,
// paginate. It rides in the opaque statement bytes of the prepared
// statement and comes back with every internal fetch.
type shardPlan struct {
	table      string
	distKind   int
	targetPID  int
	dupElim    bool
	filter     *whereCond
	projection []projField
	sortFields []string
	sortSpecs  []tidestore.SortSpec
}

func (sp *shardPlan) encode() []byte {
	w := wire.NewWriter()
	w.WriteString(sp.table, true)
	w.WritePackedInt(sp.distKind)
	w.WritePackedInt(sp.targetPID)
	w.WriteBoolean(sp.dupElim)

	w.WriteBoolean(sp.filter != nil)
	if sp.filter != nil {
		w.WriteString(sp.filter.field, true)
		w.WriteString(sp.filter.op, true)
		w.WriteFieldValue(sp.filter.val)
	}

	if sp.projection == nil {
		w.WriteSequenceLength(-1)
	} else {
		w.WriteSequenceLength(len(sp.projection))
		for _, pf := range sp.projection {
			w.WriteString(pf.name, true)
			w.WriteByte(pf.mode)
			switch pf.mode {
			case projLiteral:
				w.WriteFieldValue(pf.lit)
			default:
				w.WriteString(pf.field, true)
			}
		}
	}

	w.WriteStringArray(sp.sortFields)
	writeSortSpecs(w, sp.sortSpecs)
	return w.Bytes()
}

func decodeShardPlan(b []byte) (*shardPlan, error) {
	r := wire.NewReader(b)
	sp := &shardPlan{}
	var err error
	if sp.table, _, err = r.ReadString(); err != nil {
		return nil, err
	}
	if sp.distKind, err = r.ReadPackedInt(); err != nil {
		return nil, err
	}
	if sp.targetPID, err = r.ReadPackedInt(); err != nil {
		return nil, err
	}
	if sp.dupElim, err = r.ReadBoolean(); err != nil {
		return nil, err
	}

	hasFilter, err := r.ReadBoolean()
	if err != nil {
		return nil, err
	}
	if hasFilter {
		f := &whereCond{}
		if f.field, _, err = r.ReadString(); err != nil {
			return nil, err
		}
		if f.op, _, err = r.ReadString(); err != nil {
			return nil, err
		}
		if f.val, err = r.ReadFieldValue(); err != nil {
			return nil, err
		}
		sp.filter = f
	}

	n, err := r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if n >= 0 {
		sp.projection = make([]projField, n)
		for i := 0; i < n; i++ {
			pf := &sp.projection[i]
			if pf.name, _, err = r.ReadString(); err != nil {
				return nil, err
			}
			if pf.mode, err = r.ReadByte(); err != nil {
				return nil, err
			}
			switch pf.mode {
			case projLiteral:
				if pf.lit, err = r.ReadFieldValue(); err != nil {
					return nil, err
				}
			default:
				if pf.field, _, err = r.ReadString(); err != nil {
					return nil, err
				}
			}
		}
	}

	if sp.sortFields, err = r.ReadStringArray(); err != nil {
		return nil, err
	}
	if sp.sortSpecs, err = readSortSpecs(r); err != nil {
		return nil, err
	}
	return sp, nil
}

func writeSortSpecs(w *wire.Writer, specs []tidestore.SortSpec) {
	if specs == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(specs))
	for _, s := range specs {
		w.WriteBoolean(s.IsDesc)
		w.WriteBoolean(s.NullsFirst)
	}
}

func readSortSpecs(r *wire.Reader) ([]tidestore.SortSpec, error) {
	n, err := r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	specs := make([]tidestore.SortSpec, n)
	for i := range specs {
		if specs[i].IsDesc, err = r.ReadBoolean(); err != nil {
			return nil, err
		}
		if specs[i].NullsFirst, err = r.ReadBoolean(); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// planWriter serializes a driver-side plan tree, allocating registers
// and state slots along the way.
type planWriter struct {
	w        *wire.Writer
	numIters int
	numRegs  int
	varIDs   map[string]int
	varNames []string
}

func newPlanWriter() *planWriter {
	return &planWriter{w: wire.NewWriter(), varIDs: make(map[string]int)}
}

func (pw *planWriter) allocReg() int {
	r := pw.numRegs
	pw.numRegs++
	return r
}

func (pw *planWriter) internVar(name string) int {
	if id, ok := pw.varIDs[name]; ok {
		return id
	}
	id := len(pw.varNames)
	pw.varIDs[name] = id
	pw.varNames = append(pw.varNames, name)
	return id
}

func (pw *planWriter) writeBase(kind, resultReg int) {
	pw.w.WriteByte(byte(kind))
	pw.w.WriteInt(resultReg)
	pw.w.WriteInt(pw.numIters)
	pw.numIters++
	// Source locations of generated plans all point at the statement
	// start.
	pw.w.WriteInt(1)
	pw.w.WriteInt(1)
	pw.w.WriteInt(1)
	pw.w.WriteInt(1)
}

func (pw *planWriter) writeNilIter() {
	pw.w.WriteByte(0xff)
}

func (pw *planWriter) emitConst(val tidestore.Value, reg int) error {
	pw.writeBase(nkConst, reg)
	return pw.w.WriteFieldValue(val)
}

func (pw *planWriter) emitVarRef(name string, reg int) {
	pw.writeBase(nkVarRef, reg)
	pw.w.WriteString(name, true)
}

func (pw *planWriter) emitExternalVarRef(name string, reg int) {
	pw.writeBase(nkExternalVarRef, reg)
	pw.w.WriteString(name, true)
	pw.w.WriteInt(pw.internVar(name))
}

// emitFieldStep selects field from the from-variable, which shares the
// register fromReg with its producer.
func (pw *planWriter) emitFieldStep(field string, fromReg, reg int) {
	pw.writeBase(nkFieldStep, reg)
	pw.emitVarRef(fromVarName, fromReg)
	pw.w.WriteString(field, true)
}

// emitExpr serializes one select expression, returning its register.
func (pw *planWriter) emitExpr(e expr, fromReg int) (int, error) {
	switch t := e.(type) {
	case *colRef:
		reg := pw.allocReg()
		pw.emitFieldStep(t.name, fromReg, reg)
		return reg, nil
	case *literal:
		reg := pw.allocReg()
		return reg, pw.emitConst(t.val, reg)
	case *bindRef:
		reg := pw.allocReg()
		pw.emitExternalVarRef(t.name, reg)
		return reg, nil
	case *arithExpr:
		reg := pw.allocReg()
		pw.writeBase(nkArithOp, reg)
		var fnCode int
		var ops string
		switch t.op {
		case '+':
			fnCode, ops = opAddSub, "++"
		case '-':
			fnCode, ops = opAddSub, "+-"
		case '*':
			fnCode, ops = opMultDiv, "**"
		case '/':
			fnCode, ops = opMultDiv, "*/"
		}
		pw.w.WriteShort(fnCode)
		pw.w.WriteSequenceLength(2)
		if _, err := pw.emitExpr(t.left, fromReg); err != nil {
			return 0, err
		}
		if _, err := pw.emitExpr(t.right, fromReg); err != nil {
			return 0, err
		}
		pw.w.WriteString(ops, true)
		return reg, nil
	}
	return 0, tidestore.NewIllegalArgument("expression %T cannot be computed at the driver", e)
}

// emitAggrColumn serializes the re-aggregation iterator for one
// aggregate output column whose shard-side partials arrive under
// srcName.
func (pw *planWriter) emitAggrColumn(fn, srcName string, fromReg int) int {
	reg := pw.allocReg()
	switch fn {
	case "MIN":
		pw.writeBase(nkFuncMinMax, reg)
		pw.w.WriteShort(fnCodeMin)
	case "MAX":
		pw.writeBase(nkFuncMinMax, reg)
		pw.w.WriteShort(fnCodeMax)
	default:
		// SUM; COUNT partials re-aggregate by summing too.
		pw.writeBase(nkFuncSum, reg)
	}
	argReg := pw.allocReg()
	pw.emitFieldStep(srcName, fromReg, argReg)
	return reg
}

func (pw *planWriter) emitReceive(reg, distKind int, sortFields []string,
	specs []tidestore.SortSpec, pkFields []string) {

	pw.writeBase(nkReceive, reg)
	pw.w.WriteShort(distKind)
	pw.w.WriteStringArray(sortFields)
	writeSortSpecs(pw.w, specs)
	pw.w.WriteStringArray(pkFields)
}

func (pw *planWriter) emitGroup(reg int, emitInput func() error, numGB int,
	names []string, funcs []int) error {

	pw.writeBase(nkGroup, reg)
	if err := emitInput(); err != nil {
		return err
	}
	pw.w.WriteInt(numGB)
	pw.w.WriteStringArray(names)
	pw.w.WritePackedIntArray(funcs)
	pw.w.WriteBoolean(false) // not a DISTINCT rewrite
	pw.w.WriteBoolean(true)  // produced groups leave the table
	pw.w.WriteBoolean(true)  // charge the memory budget
	return nil
}

func (pw *planWriter) emitSort2(reg int, emitInput func() error,
	fields []string, specs []tidestore.SortSpec) error {

	pw.writeBase(nkSort2, reg)
	if err := emitInput(); err != nil {
		return err
	}
	pw.w.WriteStringArray(fields)
	writeSortSpecs(pw.w, specs)
	pw.w.WriteBoolean(true) // charge the memory budget
	return nil
}

// compiled is the outcome of preparing one statement.
type compiled struct {
	sp      *shardPlan
	payload []byte // wire-encoded prepared statement
}

// outCol pairs an output column name with the select item behind it.
type outCol struct {
	name string
	item selectItem
}

// compile analyzes a statement, splits it into the shard plan and the
// driver plan, and serializes the prepared-statement payload.
func (c *Cluster) compile(statement string) (*compiled, error) {
	stmt, err := parseSelect(statement)
	if err != nil {
		return nil, err
	}
	meta, err := c.table(stmt.table)
	if err != nil {
		return nil, err
	}
	if stmt.where != nil {
		if !tidestore.IsAtomic(stmt.where.val) {
			return nil, tidestore.NewIllegalArgument("WHERE literal must be atomic")
		}
	}

	cols, err := outputColumns(stmt)
	if err != nil {
		return nil, err
	}
	hasAggr := false
	for _, col := range cols {
		if _, ok := col.item.expr.(*aggrExpr); ok {
			hasAggr = true
		}
	}
	grouping := len(stmt.groupBy) > 0 || hasAggr

	sp := &shardPlan{
		table:     stmt.table,
		targetPID: -1,
		dupElim:   c.opts.InjectDuplicates,
		filter:    stmt.where,
	}

	var payload []byte
	switch {
	case grouping:
		payload, err = c.compileGrouping(stmt, meta, sp, cols)
	case len(stmt.orderBy) > 0:
		payload, err = c.compileOrderBy(stmt, meta, sp, cols)
	default:
		payload, err = c.compileScan(stmt, meta, sp, cols)
	}
	if err != nil {
		return nil, err
	}
	return &compiled{sp: sp, payload: payload}, nil
}

func outputColumns(stmt *selectStmt) ([]outCol, error) {
	if stmt.star {
		return nil, nil
	}
	cols := make([]outCol, len(stmt.items))
	for i, item := range stmt.items {
		name := item.alias
		if name == "" {
			switch t := item.expr.(type) {
			case *colRef:
				name = t.name
			default:
				name = fmt.Sprintf("Column_%d", i+1)
			}
		}
		cols[i] = outCol{name: name, item: item}
	}
	return cols, nil
}

// compileScan handles queries without ordering or grouping. When every
// expression can run on the shards and there is no OFFSET/LIMIT, no
// driver plan is needed at all.
func (c *Cluster) compileScan(stmt *selectStmt, meta *tableMeta, sp *shardPlan,
	cols []outCol) ([]byte, error) {

	sp.distKind = distAllPartitions
	if pid, ok := c.singlePartitionTarget(stmt, meta); ok {
		sp.distKind = distSingle
		sp.targetPID = pid
	}

	driverExprs := false
	for _, col := range cols {
		switch col.item.expr.(type) {
		case *colRef:
		default:
			driverExprs = true
		}
	}

	if !driverExprs && stmt.limit < 0 && stmt.offset < 0 && !sp.dupElim {
		// Shard-side projection, no driver plan.
		for _, col := range cols {
			cr := col.item.expr.(*colRef)
			sp.projection = append(sp.projection,
				projField{name: col.name, mode: projCopy, field: cr.name})
		}
		return c.writePayload(sp, nil)
	}

	// Shards stream full rows; the driver projects and pages.
	pw := newPlanWriter()
	recvReg := pw.allocReg()
	sfwReg := recvReg
	if !stmt.star {
		sfwReg = pw.allocReg()
	}
	pw.writeBase(nkSFW, sfwReg)
	pw.w.WriteStringArray(colNames(cols))
	pw.w.WriteInt(-1)
	pw.w.WriteString(fromVarName, true)
	pw.w.WriteBoolean(stmt.star)
	pw.w.WriteSequenceLength(len(cols))
	for _, col := range cols {
		if _, err := pw.emitExpr(col.item.expr, recvReg); err != nil {
			return nil, err
		}
	}
	pw.emitReceive(recvReg, sp.distKind, nil, nil, c.dupElimFields(meta))
	if err := pw.emitOffsetLimit(stmt); err != nil {
		return nil, err
	}
	return c.writePayload(sp, pw)
}

// compileOrderBy handles ORDER BY without grouping. The shards sort
// their own slices; the driver merges. When the ordering is an
// ascending prefix of the primary key the merge runs per partition with
// a discovery phase, otherwise per shard.
func (c *Cluster) compileOrderBy(stmt *selectStmt, meta *tableMeta, sp *shardPlan,
	cols []outCol) ([]byte, error) {

	fields := make([]string, len(stmt.orderBy))
	specs := make([]tidestore.SortSpec, len(stmt.orderBy))
	for i, t := range stmt.orderBy {
		fields[i] = t.field
		specs[i] = t.spec
	}
	sp.sortFields = fields
	sp.sortSpecs = specs
	sp.distKind = distAllShards
	if isPrimKeyOrder(fields, specs, meta) {
		sp.distKind = distAllPartitions
	}

	pw := newPlanWriter()
	recvReg := pw.allocReg()
	sfwReg := recvReg
	if !stmt.star {
		sfwReg = pw.allocReg()
	}
	pw.writeBase(nkSFW, sfwReg)
	pw.w.WriteStringArray(colNames(cols))
	pw.w.WriteInt(-1)
	pw.w.WriteString(fromVarName, true)
	pw.w.WriteBoolean(stmt.star)
	pw.w.WriteSequenceLength(len(cols))
	for _, col := range cols {
		if _, err := pw.emitExpr(col.item.expr, recvReg); err != nil {
			return nil, err
		}
	}
	pw.emitReceive(recvReg, sp.distKind, fields, specs, c.dupElimFields(meta))
	if err := pw.emitOffsetLimit(stmt); err != nil {
		return nil, err
	}
	return c.writePayload(sp, pw)
}

// compileGrouping handles GROUP BY and aggregates. Shards project the
// aggregate inputs; the driver re-aggregates. Grand aggregates run
// through the select node's sorted-grouping path, grouped queries
// through the hash-grouping node, with an ORDER BY adding a sort above
// the groups.
func (c *Cluster) compileGrouping(stmt *selectStmt, meta *tableMeta, sp *shardPlan,
	cols []outCol) ([]byte, error) {

	if stmt.star {
		return nil, tidestore.NewIllegalArgument("SELECT * cannot be grouped")
	}
	sp.distKind = distAllPartitions

	numGB := len(stmt.groupBy)
	ordered, err := orderGroupingColumns(stmt, cols)
	if err != nil {
		return nil, err
	}
	names := colNames(ordered)
	funcs := make([]int, 0, len(ordered)-numGB)
	for _, col := range ordered[numGB:] {
		a := col.item.expr.(*aggrExpr)
		switch {
		case a.star:
			funcs = append(funcs, fnCodeCountStar)
			sp.projection = append(sp.projection,
				projField{name: col.name, mode: projLiteral, lit: int64(1)})
		case a.fn == "COUNT":
			funcs = append(funcs, fnCodeCount)
			sp.projection = append(sp.projection,
				projField{name: col.name, mode: projCountNN, field: a.arg})
		case a.fn == "SUM":
			funcs = append(funcs, fnCodeSum)
			sp.projection = append(sp.projection,
				projField{name: col.name, mode: projCopy, field: a.arg})
		case a.fn == "MIN":
			funcs = append(funcs, fnCodeMin)
			sp.projection = append(sp.projection,
				projField{name: col.name, mode: projCopy, field: a.arg})
		case a.fn == "MAX":
			funcs = append(funcs, fnCodeMax)
			sp.projection = append(sp.projection,
				projField{name: col.name, mode: projCopy, field: a.arg})
		}
	}
	// Prepend the grouping columns to the shard projection.
	gbProj := make([]projField, 0, numGB)
	for i := 0; i < numGB; i++ {
		gbProj = append(gbProj, projField{
			name: names[i], mode: projCopy, field: stmt.groupBy[i],
		})
	}
	sp.projection = append(gbProj, sp.projection...)

	pw := newPlanWriter()
	recvReg := pw.allocReg()

	if numGB == 0 {
		// Grand aggregate: the select node drives the aggregation.
		sfwReg := pw.allocReg()
		pw.writeBase(nkSFW, sfwReg)
		pw.w.WriteStringArray(names)
		pw.w.WriteInt(0)
		pw.w.WriteString(fromVarName, true)
		pw.w.WriteBoolean(false)
		pw.w.WriteSequenceLength(len(ordered))
		for _, col := range ordered {
			a := col.item.expr.(*aggrExpr)
			pw.emitAggrColumn(a.fn, col.name, recvReg)
		}
		pw.emitReceive(recvReg, sp.distKind, nil, nil, c.dupElimFields(meta))
		if err := pw.emitOffsetLimit(stmt); err != nil {
			return nil, err
		}
		return c.writePayload(sp, pw)
	}

	groupReg := pw.allocReg()
	topReg := groupReg
	var sortFields []string
	var sortSpecs []tidestore.SortSpec
	if len(stmt.orderBy) > 0 {
		topReg = pw.allocReg()
		sortFields = make([]string, len(stmt.orderBy))
		sortSpecs = make([]tidestore.SortSpec, len(stmt.orderBy))
		for i, t := range stmt.orderBy {
			if !contains(names, t.field) {
				return nil, tidestore.NewIllegalArgument(
					"ORDER BY column %q is not in the select list", t.field)
			}
			sortFields[i] = t.field
			sortSpecs[i] = t.spec
		}
	}

	pw.writeBase(nkSFW, topReg)
	pw.w.WriteStringArray(names)
	pw.w.WriteInt(-1)
	pw.w.WriteString(fromVarName, true)
	pw.w.WriteBoolean(true)
	pw.w.WriteSequenceLength(0)

	emitGroup := func() error {
		return pw.emitGroup(groupReg, func() error {
			pw.emitReceive(recvReg, sp.distKind, nil, nil, c.dupElimFields(meta))
			return nil
		}, numGB, names, funcs)
	}
	if sortFields != nil {
		if err := pw.emitSort2(topReg, emitGroup, sortFields, sortSpecs); err != nil {
			return nil, err
		}
	} else {
		if err := emitGroup(); err != nil {
			return nil, err
		}
	}
	if err := pw.emitOffsetLimit(stmt); err != nil {
		return nil, err
	}
	return c.writePayload(sp, pw)
}

// orderGroupingColumns arranges the output columns as grouping columns
// first, in GROUP BY order, then aggregates; it also validates the
// select list against the GROUP BY clause.
func orderGroupingColumns(stmt *selectStmt, cols []outCol) ([]outCol, error) {
	ordered := make([]outCol, 0, len(cols))
	for _, gb := range stmt.groupBy {
		found := false
		for _, col := range cols {
			if cr, ok := col.item.expr.(*colRef); ok && cr.name == gb {
				ordered = append(ordered, col)
				found = true
				break
			}
		}
		if !found {
			return nil, tidestore.NewIllegalArgument(
				"GROUP BY column %q must appear in the select list", gb)
		}
	}
	for _, col := range cols {
		switch col.item.expr.(type) {
		case *aggrExpr:
			ordered = append(ordered, col)
		case *colRef:
			if !contains(stmt.groupBy, col.item.expr.(*colRef).name) {
				return nil, tidestore.NewIllegalArgument(
					"column %q is neither grouped nor aggregated",
					col.item.expr.(*colRef).name)
			}
		default:
			return nil, tidestore.NewIllegalArgument(
				"only columns and aggregates may appear in a grouping select")
		}
	}
	if len(ordered) != len(cols) {
		return nil, tidestore.NewIllegalArgument(
			"duplicate or missing columns in grouping select")
	}
	return ordered, nil
}

func (pw *planWriter) emitOffsetLimit(stmt *selectStmt) error {
	if stmt.offset >= 0 {
		reg := pw.allocReg()
		if err := pw.emitConst(stmt.offset, reg); err != nil {
			return err
		}
	} else {
		pw.writeNilIter()
	}
	if stmt.limit >= 0 {
		reg := pw.allocReg()
		if err := pw.emitConst(stmt.limit, reg); err != nil {
			return err
		}
	} else {
		pw.writeNilIter()
	}
	return nil
}

// writePayload assembles the prepared-statement payload: shard plan
// bytes, optional driver plan, counts, variables, topology.
func (c *Cluster) writePayload(sp *shardPlan, pw *planWriter) ([]byte, error) {
	w := wire.NewWriter()
	w.WriteByteArray(sp.encode())
	if pw == nil {
		w.WriteBoolean(false)
	} else {
		w.WriteBoolean(true)
		w.WriteBytes(pw.w.Bytes())
		w.WriteInt(pw.numIters)
		w.WriteInt(pw.numRegs)
		w.WriteInt(len(pw.varNames))
		for id, name := range pw.varNames {
			w.WriteString(name, true)
			w.WriteInt(id)
		}
	}
	w.WriteTopologyInfo(c.Topology())
	return w.Bytes(), nil
}

func (c *Cluster) dupElimFields(meta *tableMeta) []string {
	if !c.opts.InjectDuplicates {
		return nil
	}
	return meta.primKey
}

// singlePartitionTarget reports whether the WHERE clause pins the whole
// primary key with equality, and if so which partition holds it.
func (c *Cluster) singlePartitionTarget(stmt *selectStmt, meta *tableMeta) (int, bool) {
	if stmt.where == nil || stmt.where.op != "=" {
		return 0, false
	}
	if len(meta.primKey) != 1 || meta.primKey[0] != stmt.where.field {
		return 0, false
	}
	pk, err := encodePrimKey(meta.primKey,
		tidestore.Row{stmt.where.field: stmt.where.val})
	if err != nil {
		return 0, false
	}
	return partitionOf(pk, c.opts.NumPartitions), true
}

func isPrimKeyOrder(fields []string, specs []tidestore.SortSpec, meta *tableMeta) bool {
	if len(fields) > len(meta.primKey) {
		return false
	}
	for i, f := range fields {
		if f != meta.primKey[i] || specs[i].IsDesc {
			return false
		}
	}
	return true
}

func colNames(cols []outCol) []string {
	if cols == nil {
		return nil
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.name
	}
	return names
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
