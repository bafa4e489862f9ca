package shardsim

import (
	"sort"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/query"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// Continuation key tags. The keys are opaque to the client; their
// layout is private to the simulator.
const (
	ckShard     byte = 'S' // packed offset into the shard's sorted rows
	ckPartition byte = 'P' // packed offset into the partition's rows
	ckWalk      byte = 'W' // packed partition id, packed offset
	ckDiscover  byte = 'D' // packed next partition id of the phase-1 walk
)

// Prepare compiles a statement and returns its prepared form, the same
// payload the HTTP endpoint serves.
func (c *Cluster) Prepare(statement string) (*query.PreparedStatement, error) {
	cp, err := c.compile(statement)
	if err != nil {
		return nil, err
	}
	return query.DeserializePreparedStatement(wire.NewReader(cp.payload), statement)
}

// fetchSpec is one batch fetch, decoded from either an in-process
// request or the HTTP envelope.
type fetchSpec struct {
	sp          *shardPlan
	shardID     int
	partitionID int
	contKey     []byte
	limit       int
}

// Execute runs one batch fetch against the simulated store.
func (c *Cluster) Execute(req *query.QueryRequest) (*query.BatchResult, error) {
	var sp *shardPlan
	var err error
	if req.Prepared != nil {
		sp, err = decodeShardPlan(req.Prepared.Statement())
	} else {
		var cp *compiled
		cp, err = c.compile(req.Statement)
		if err == nil {
			sp = cp.sp
		}
	}
	if err != nil {
		return nil, err
	}
	return c.execute(&fetchSpec{
		sp:          sp,
		shardID:     req.ShardID(),
		partitionID: req.PartitionID(),
		contKey:     req.ContinuationKey(),
		limit:       req.Limit,
	})
}

func (c *Cluster) execute(fs *fetchSpec) (*query.BatchResult, error) {
	sp := fs.sp
	limit := fs.limit
	if limit <= 0 {
		limit = c.opts.BatchSize
	}

	var res *query.BatchResult
	var err error
	switch {
	case fs.shardID >= 0:
		res, err = c.shardFetch(sp, fs.shardID, fs.contKey, limit)
	case fs.partitionID >= 0:
		res, err = c.partitionFetch(sp, fs.partitionID, fs.contKey, limit)
	case sp.distKind == distSingle:
		res, err = c.partitionFetch(sp, sp.targetPID, fs.contKey, limit)
	case sp.distKind == distAllPartitions && sp.sortFields != nil:
		res, err = c.discoverPartitions(sp, fs.contKey, limit)
	default:
		res, err = c.spanningScan(sp, fs.contKey, limit)
	}
	if err != nil {
		return nil, err
	}
	res.Topology = c.Topology()
	tallyFakeConsumption(res)
	return res, nil
}

// shardFetch serves one batch of a sorting all-shards query: the
// shard's matching rows, fully ordered, paged by offset.
func (c *Cluster) shardFetch(sp *shardPlan, shardID int, contKey []byte,
	limit int) (*query.BatchResult, error) {

	raw, err := c.shardRows(sp.table, shardID)
	if err != nil {
		return nil, err
	}
	rows, err := c.pipeline(sp, raw)
	if err != nil {
		return nil, err
	}
	return c.pageSorted(sp, rows, ckShard, contKey, limit)
}

// partitionFetch serves one batch from a single partition, sorted when
// the plan sorts and in key order otherwise.
func (c *Cluster) partitionFetch(sp *shardPlan, pid int, contKey []byte,
	limit int) (*query.BatchResult, error) {

	raw, err := c.partitionRows(sp.table, pid)
	if err != nil {
		return nil, err
	}
	rows, err := c.pipeline(sp, raw)
	if err != nil {
		return nil, err
	}
	return c.pageSorted(sp, rows, ckPartition, contKey, limit)
}

// pageSorted slices one batch out of a fully materialized row list,
// re-delivering the previous batch's last row first when duplicate
// injection is on.
func (c *Cluster) pageSorted(sp *shardPlan, rows []tidestore.Row, tag byte,
	contKey []byte, limit int) (*query.BatchResult, error) {

	off := 0
	if contKey != nil {
		var err error
		if off, err = decodeOffsetKey(tag, contKey); err != nil {
			return nil, err
		}
	}
	if off > len(rows) {
		off = len(rows)
	}

	var batch []tidestore.Row
	if sp.dupElim && off > 0 {
		batch = append(batch, rows[off-1])
	}
	end := off + limit
	if end > len(rows) {
		end = len(rows)
	}
	batch = append(batch, rows[off:end]...)

	res := &query.BatchResult{Rows: batch}
	if end < len(rows) {
		res.ContinuationKey = encodeOffsetKey(tag, end)
		res.ReachedLimit = true
	}
	return res, nil
}

// discoverPartitions runs one step of phase 1 of a sorting
// all-partitions query: walk the partitions in id order and collect the
// smallest matching row of each, with a per-partition continuation for
// the rest.
func (c *Cluster) discoverPartitions(sp *shardPlan, contKey []byte,
	limit int) (*query.BatchResult, error) {

	pid := 0
	if ck := contKey; ck != nil {
		var err error
		if pid, err = decodeOffsetKey(ckDiscover, ck); err != nil {
			return nil, err
		}
	}

	res := &query.BatchResult{InPhase1: true}
	for ; pid < c.opts.NumPartitions; pid++ {
		if len(res.Rows) >= limit {
			res.ContinuationKey = encodeOffsetKey(ckDiscover, pid)
			res.ReachedLimit = true
			return res, nil
		}
		raw, err := c.partitionRows(sp.table, pid)
		if err != nil {
			return nil, err
		}
		rows, err := c.pipeline(sp, raw)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		res.Rows = append(res.Rows, rows[0])
		res.PartitionIDs = append(res.PartitionIDs, pid)
		res.NumResultsPerPID = append(res.NumResultsPerPID, 1)
		var partKey []byte
		if len(rows) > 1 {
			partKey = encodeOffsetKey(ckPartition, 1)
		}
		res.PartitionContKeys = append(res.PartitionContKeys, partKey)
	}
	res.InPhase1 = false
	return res, nil
}

// spanningScan serves non-sorting queries: walk the partitions in id
// order, streaming matching rows until the batch fills.
func (c *Cluster) spanningScan(sp *shardPlan, contKey []byte,
	limit int) (*query.BatchResult, error) {

	pid, off := 0, 0
	if ck := contKey; ck != nil {
		var err error
		if pid, off, err = decodeWalkKey(ck); err != nil {
			return nil, err
		}
	}

	res := &query.BatchResult{}
	injected := !sp.dupElim || off == 0
	for ; pid < c.opts.NumPartitions; pid, off = pid+1, 0 {
		raw, err := c.partitionRows(sp.table, pid)
		if err != nil {
			return nil, err
		}
		rows, err := c.pipeline(sp, raw)
		if err != nil {
			return nil, err
		}
		if !injected && off > 0 && off <= len(rows) {
			res.Rows = append(res.Rows, rows[off-1])
			injected = true
		}
		for ; off < len(rows); off++ {
			if len(res.Rows) >= limit {
				res.ContinuationKey = encodeWalkKey(pid, off)
				res.ReachedLimit = true
				return res, nil
			}
			res.Rows = append(res.Rows, rows[off])
		}
	}
	return res, nil
}

// pipeline applies the shard plan's filter, projection, and sort to one
// slice of raw rows.
func (c *Cluster) pipeline(sp *shardPlan, raw []tidestore.Row) ([]tidestore.Row, error) {
	rows := make([]tidestore.Row, 0, len(raw))
	for _, row := range raw {
		if sp.filter != nil && !matchFilter(sp.filter, row) {
			continue
		}
		rows = append(rows, projectRow(sp, row))
	}
	if sp.sortFields == nil {
		return rows, nil
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		cmp, err := tidestore.SortRows(rows[i], rows[j], sp.sortFields, sp.sortSpecs)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return cmp < 0
	})
	return rows, sortErr
}

func matchFilter(f *whereCond, row tidestore.Row) bool {
	v, ok := row[f.field]
	if !ok {
		return false
	}
	cmp, err := tidestore.CompareAtomics(v, f.val, false)
	if err != nil {
		return false
	}
	switch f.op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func projectRow(sp *shardPlan, row tidestore.Row) tidestore.Row {
	if sp.projection == nil {
		return row
	}
	out := make(tidestore.Row, len(sp.projection))
	for _, pf := range sp.projection {
		switch pf.mode {
		case projLiteral:
			out[pf.name] = pf.lit
		case projCountNN:
			v, ok := row[pf.field]
			if ok && v != nil {
				if _, isNull := v.(tidestore.JSONNull); !isNull {
					out[pf.name] = int64(1)
					continue
				}
			}
			out[pf.name] = int64(0)
		default:
			if v, ok := row[pf.field]; ok {
				out[pf.name] = v
			} else {
				out[pf.name] = tidestore.EmptyValue{}
			}
		}
	}
	return out
}

func tallyFakeConsumption(res *query.BatchResult) {
	var size int64
	for _, row := range res.Rows {
		size += tidestore.SizeOf(row)
	}
	res.ReadKB = int(size/1024) + 1
	res.ReadUnits = res.ReadKB * 2
}

func encodeOffsetKey(tag byte, off int) []byte {
	w := wire.NewWriter()
	w.WriteByte(tag)
	w.WritePackedInt(off)
	return w.Bytes()
}

func decodeOffsetKey(tag byte, key []byte) (int, error) {
	r := wire.NewReader(key)
	got, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if got != tag {
		return 0, tidestore.NewIllegalArgument(
			"continuation key tag %q does not match fetch kind %q", got, tag)
	}
	return r.ReadPackedInt()
}

func encodeWalkKey(pid, off int) []byte {
	w := wire.NewWriter()
	w.WriteByte(ckWalk)
	w.WritePackedInt(pid)
	w.WritePackedInt(off)
	return w.Bytes()
}

func decodeWalkKey(key []byte) (int, int, error) {
	r := wire.NewReader(key)
	got, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	if got != ckWalk {
		return 0, 0, tidestore.NewIllegalArgument(
			"continuation key tag %q does not match a spanning scan", got)
	}
	pid, err := r.ReadPackedInt()
	if err != nil {
		return 0, 0, err
	}
	off, err := r.ReadPackedInt()
	if err != nil {
		return 0, 0, err
	}
	return pid, off, nil
}
