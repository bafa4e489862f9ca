package query

import (
	"container/heap"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// Distribution kinds of a receive node.
const (
	distSinglePartition = 0
	distAllPartitions   = 1
	distAllShards       = 2
)

// receiveIter is the only plan node that talks to the store. It fetches
// row batches from the shards and feeds them to the driver-side plan
// above it. Depending on the distribution kind of the query it either
// streams from a single scanner, merge-sorts one scanner per shard, or
// merge-sorts one scanner per partition after a discovery phase that
// obtains at least one row from every partition.
//
// It never spreads a single client batch over two round trips: after a
// remote fetch issued under sorting, the reached-limit flag is raised so
// control returns to the application before any further fetch.
type receiveIter struct {
	planIterBase
	distKind   int
	sortFields []string
	sortSpecs  []tidestore.SortSpec

	// primKeyFields, when set, enable elimination of duplicate rows that
	// index scans may return after a topology change.
	primKeyFields []string
}

type receiveIterState struct {
	planIterState

	// scanner streams results for non-sorting queries.
	scanner *remoteScanner

	// sortedScanners is a min-heap on the scanners' next row.
	sortedScanners scannerHeap

	// contKey continues the phase-1 walk of a sorting all-partitions
	// query.
	contKey  []byte
	inPhase1 bool

	primKeySet    map[string]struct{}
	dupElimMemory int64

	totalNumResults  int64
	totalResultsSize int64

	memoryConsumption int64
}

func readReceiveIter(r *wire.Reader) (*receiveIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	distKind, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	if distKind < distSinglePartition || distKind > distAllShards {
		return nil, tidestore.NewQueryState("unknown distribution kind %d", distKind)
	}
	sortFields, err := r.ReadStringArray()
	if err != nil {
		return nil, err
	}
	sortSpecs, err := readSortSpecs(r)
	if err != nil {
		return nil, err
	}
	primKeyFields, err := r.ReadStringArray()
	if err != nil {
		return nil, err
	}
	return &receiveIter{
		planIterBase:  b,
		distKind:      distKind,
		sortFields:    sortFields,
		sortSpecs:     sortSpecs,
		primKeyFields: primKeyFields,
	}, nil
}

func (it *receiveIter) getKind() int { return kindReceive }

func (it *receiveIter) doesSort() bool { return it.sortFields != nil }

func (it *receiveIter) doesDupElim() bool { return it.primKeyFields != nil }

func (it *receiveIter) open(rcb *runtimeControlBlock) error {
	state := &receiveIterState{inPhase1: true}
	rcb.setState(it.statePos, state)
	if it.doesDupElim() {
		state.primKeySet = make(map[string]struct{})
	}
	if !it.doesSort() {
		state.scanner = it.newScanner(state, false, -1)
		return nil
	}
	if it.distKind == distAllShards {
		topo := rcb.getTopology()
		if topo == nil {
			return tidestore.NewQueryState("no topology at query start")
		}
		for i := 0; i < topo.NumShards(); i++ {
			heap.Push(&state.sortedScanners, it.newScanner(state, true, topo.ShardID(i)))
		}
	}
	return nil
}

func (it *receiveIter) newScanner(state *receiveIterState, isForShard bool,
	id int) *remoteScanner {

	return &remoteScanner{
		iter:          it,
		state:         state,
		isForShard:    isForShard,
		shardOrPartID: id,
		moreRemote:    true,
	}
}

func (it *receiveIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).(*receiveIterState)
	if state.isDone() {
		return false, nil
	}
	if !it.doesSort() {
		return it.simpleNext(rcb, state)
	}
	return it.sortingNext(rcb, state)
}

func (it *receiveIter) simpleNext(rcb *runtimeControlBlock,
	state *receiveIterState) (bool, error) {

	for {
		res, err := state.scanner.next(rcb)
		if err != nil {
			return false, err
		}
		if res == nil {
			break
		}
		dup, err := it.checkDuplicate(rcb, state, res)
		if err != nil {
			return false, err
		}
		if dup {
			continue
		}
		rcb.setRegVal(it.resultReg, tidestore.ConvertToNull(res).(tidestore.Row))
		return true, nil
	}
	if state.scanner.isDone() {
		if err := state.done(); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (it *receiveIter) sortingNext(rcb *runtimeControlBlock,
	state *receiveIterState) (bool, error) {

	if it.distKind == distAllPartitions && state.inPhase1 {
		if err := it.initPartitionSort(rcb, state); err != nil {
			return false, err
		}
		return false, nil
	}

	for state.sortedScanners.Len() > 0 {
		scanner := state.sortedScanners[0]

		if !scanner.hasLocalRows() {
			heap.Pop(&state.sortedScanners)
			if scanner.isDone() {
				continue
			}
			if err := scanner.fetch(rcb); err != nil {
				if tidestore.IsRetryable(err) {
					// Untouched, so the retry resumes exactly here.
					heap.Push(&state.sortedScanners, scanner)
				}
				return false, err
			}
			if !scanner.isDone() {
				heap.Push(&state.sortedScanners, scanner)
			}
			rcb.setReachedLimit(true)
			return false, nil
		}

		res := scanner.nextLocal()
		if scanner.isDone() && !scanner.hasLocalRows() {
			heap.Pop(&state.sortedScanners)
		} else {
			heap.Fix(&state.sortedScanners, 0)
		}
		dup, err := it.checkDuplicate(rcb, state, res)
		if err != nil {
			return false, err
		}
		if dup {
			continue
		}
		rcb.setRegVal(it.resultReg, tidestore.ConvertToNull(res).(tidestore.Row))
		return true, nil
	}

	if err := state.done(); err != nil {
		return false, err
	}
	return false, nil
}

// initPartitionSort performs one step of the discovery phase of a
// sorting all-partitions query. Each step is one remote fetch; the walk
// is over when every partition with matching rows has contributed at
// least one row, at which point per-partition scanners take over.
func (it *receiveIter) initPartitionSort(rcb *runtimeControlBlock,
	state *receiveIterState) error {

	req := rcb.getRequest().copyInternal()
	req.setContKey(state.contKey)
	result, err := rcb.getExecutor().Execute(req)
	if err != nil {
		return err
	}
	it.tallyConsumption(rcb, state, result)

	off := 0
	for i, pid := range result.PartitionIDs {
		n := result.NumResultsPerPID[i]
		scanner := it.newScanner(state, false, pid)
		if err := scanner.addRows(rcb, result.Rows[off:off+n],
			result.PartitionContKeys[i]); err != nil {
			return err
		}
		off += n
		heap.Push(&state.sortedScanners, scanner)
		rcb.trace(1, "phase 1: partition %d contributed %d rows", pid, n)
	}
	state.contKey = result.ContinuationKey
	state.inPhase1 = result.InPhase1
	// A discovery step always ends the batch, even when the store had
	// capacity left; each batch holds at most one remote fetch.
	rcb.setReachedLimit(true)
	return nil
}

func (it *receiveIter) tallyConsumption(rcb *runtimeControlBlock,
	state *receiveIterState, result *BatchResult) {

	rcb.tallyReadKB(result.ReadKB)
	rcb.tallyReadUnits(result.ReadUnits)
	rcb.tallyWriteKB(result.WriteKB)
	state.totalNumResults += int64(len(result.Rows))
	for _, row := range result.Rows {
		state.totalResultsSize += tidestore.SizeOf(row)
	}
}

// handleTopologyChange reconciles the shard scanners with a new
// topology. New shards get fresh scanners; scanners of removed shards
// stop fetching but still drain the rows they already hold.
func (it *receiveIter) handleTopologyChange(rcb *runtimeControlBlock,
	state *receiveIterState, newTopo *tidestore.TopologyInfo) {

	prev := rcb.getTopology()
	rcb.setTopology(newTopo)
	if it.distKind != distAllShards || !it.doesSort() {
		return
	}
	rcb.trace(1, "topology change: seq %d -> %d", prev.SeqNum, newTopo.SeqNum)

	current := make(map[int]bool, newTopo.NumShards())
	for i := 0; i < newTopo.NumShards(); i++ {
		current[newTopo.ShardID(i)] = true
	}
	known := make(map[int]bool, state.sortedScanners.Len())
	for _, scanner := range state.sortedScanners {
		known[scanner.shardOrPartID] = true
		if !current[scanner.shardOrPartID] {
			scanner.moreRemote = false
		}
	}
	for id := range current {
		if !known[id] {
			heap.Push(&state.sortedScanners, it.newScanner(state, true, id))
		}
	}
}

// checkDuplicate reports whether res was already returned for this
// query, keyed by its binary-encoded primary key. Keys are retained for
// the life of the execution; a row seen once must never surface again.
func (it *receiveIter) checkDuplicate(rcb *runtimeControlBlock,
	state *receiveIterState, res tidestore.Row) (bool, error) {

	if !it.doesDupElim() {
		return false, nil
	}
	w := wire.NewWriter()
	for _, field := range it.primKeyFields {
		v, ok := res[field]
		if !ok {
			return false, tidestore.NewQueryState(
				"primary key field %q missing from result row", field)
		}
		if err := writePrimKeyValue(w, v); err != nil {
			return false, err
		}
	}
	key := string(w.Bytes())
	if _, dup := state.primKeySet[key]; dup {
		rcb.trace(1, "eliminated duplicate row with key %x", key)
		return true, nil
	}
	state.primKeySet[key] = struct{}{}
	sz := int64(len(key)) + 16
	state.dupElimMemory += sz
	state.memoryConsumption += sz
	if err := rcb.incMemoryConsumption(sz); err != nil {
		return false, err
	}
	return false, nil
}

func writePrimKeyValue(w *wire.Writer, v tidestore.Value) error {
	switch tv := v.(type) {
	case int:
		w.WritePackedInt(tv)
	case int64:
		w.WritePackedLong(tv)
	case float64:
		w.WriteDouble(tv)
	case string:
		w.WriteString(tv, true)
	case time.Time:
		w.WriteTimestamp(tv)
	case decimal.Decimal:
		w.WriteNumber(tv)
	default:
		return tidestore.NewQueryState("unexpected type %T for primary key field", v)
	}
	return nil
}

// reset is never legal on a receive node; the driver stops the batch
// loop below it instead.
func (it *receiveIter) reset(rcb *runtimeControlBlock) error {
	return tidestore.NewQueryState("receive node cannot be reset")
}

func (it *receiveIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	rs := state.(*receiveIterState)
	if rs.memoryConsumption > 0 {
		rcb.decMemoryConsumption(rs.memoryConsumption)
		rs.memoryConsumption = 0
	}
	rs.scanner = nil
	rs.sortedScanners = nil
	rs.primKeySet = nil
	rs.close()
	return nil
}

func (it *receiveIter) displayName() string { return "RECV" }

func (it *receiveIter) displayContent(sb *strings.Builder, f *planFormatter) {
	f.printIndent(sb)
	switch it.distKind {
	case distSinglePartition:
		sb.WriteString("distribution kind: SINGLE_PARTITION")
	case distAllPartitions:
		sb.WriteString("distribution kind: ALL_PARTITIONS")
	case distAllShards:
		sb.WriteString("distribution kind: ALL_SHARDS")
	}
	if it.doesSort() {
		sb.WriteByte('\n')
		f.printIndent(sb)
		fmt.Fprintf(sb, "order by: %v", it.sortFields)
	}
	if it.doesDupElim() {
		sb.WriteByte('\n')
		f.printIndent(sb)
		fmt.Fprintf(sb, "primary key: %v", it.primKeyFields)
	}
}

// remoteScanner pulls row batches for one shard, one partition, or the
// whole store, and buffers them for local consumption.
type remoteScanner struct {
	iter  *receiveIter
	state *receiveIterState

	isForShard    bool
	shardOrPartID int

	rows     []tidestore.Row
	rowsSize int64
	nextPos  int

	contKey    []byte
	moreRemote bool
}

func (s *remoteScanner) isDone() bool {
	return !s.moreRemote && s.nextPos >= len(s.rows)
}

func (s *remoteScanner) hasLocalRows() bool {
	return s.nextPos < len(s.rows)
}

func (s *remoteScanner) nextLocal() tidestore.Row {
	res := s.rows[s.nextPos]
	s.rows[s.nextPos] = nil
	s.nextPos++
	return res
}

// next returns the next buffered row, fetching remotely at most once
// when the buffer is exhausted. It returns nil when no row can be
// produced without a second fetch or without exceeding the batch limit.
func (s *remoteScanner) next(rcb *runtimeControlBlock) (tidestore.Row, error) {
	if s.hasLocalRows() {
		return s.nextLocal(), nil
	}
	if s.moreRemote && !rcb.reachedLimit {
		if err := s.fetch(rcb); err != nil {
			return nil, err
		}
		if s.hasLocalRows() {
			return s.nextLocal(), nil
		}
	}
	return nil, nil
}

// addRows replaces the buffer, releasing the memory of any rows the
// previous batch left behind and charging the new batch against the
// memory budget.
func (s *remoteScanner) addRows(rcb *runtimeControlBlock, rows []tidestore.Row,
	contKey []byte) error {

	if s.rowsSize > 0 {
		rcb.decMemoryConsumption(s.rowsSize)
		s.state.memoryConsumption -= s.rowsSize
	}
	s.rows = rows
	s.nextPos = 0
	s.rowsSize = 0
	for _, row := range rows {
		s.rowsSize += tidestore.SizeOf(row)
	}
	s.state.memoryConsumption += s.rowsSize
	s.contKey = contKey
	s.moreRemote = contKey != nil
	return rcb.incMemoryConsumption(s.rowsSize)
}

func (s *remoteScanner) fetch(rcb *runtimeControlBlock) error {
	req := rcb.getRequest().copyInternal()
	req.setContKey(s.contKey)
	if s.isForShard {
		req.setShardID(s.shardOrPartID)
	} else if s.shardOrPartID >= 0 {
		req.setPartitionID(s.shardOrPartID)
		req.Limit = s.partitionFetchLimit(rcb)
	}
	rcb.trace(1, "fetching from %s %d", s.target(), s.shardOrPartID)

	result, err := rcb.getExecutor().Execute(req)
	if err != nil {
		return err
	}
	s.iter.tallyConsumption(rcb, s.state, result)
	if err := s.addRows(rcb, result.Rows, result.ContinuationKey); err != nil {
		return err
	}
	if result.ReachedLimit {
		rcb.setReachedLimit(true)
	}
	newTopo := result.Topology
	if newTopo != nil && !newTopo.Same(rcb.getTopology()) {
		s.iter.handleTopologyChange(rcb, s.state, newTopo)
	}
	return nil
}

// partitionFetchLimit sizes a phase-2 partition fetch so that the
// buffers of all partition scanners together stay within the memory
// budget, assuming rows near the average size seen so far.
func (s *remoteScanner) partitionFetchLimit(rcb *runtimeControlBlock) int {
	state := s.state
	if state.totalNumResults == 0 {
		return 2048
	}
	avg := state.totalResultsSize / state.totalNumResults
	if avg <= 0 {
		avg = 1
	}
	budget := rcb.getRequest().maxMemoryBytes() - state.dupElimMemory
	limit := budget / (int64(state.sortedScanners.Len()+1) * avg)
	if limit > 2048 {
		return 2048
	}
	if limit < 1 {
		return 1
	}
	return int(limit)
}

func (s *remoteScanner) target() string {
	if s.isForShard {
		return "shard"
	}
	return "partition"
}

// compareTo orders scanners for the merge heap. A scanner without
// buffered rows sorts after all scanners that have rows, because it must
// not be consulted until its fetch happens. Ties break on the shard or
// partition id to keep the order deterministic.
func (s *remoteScanner) compareTo(other *remoteScanner) int {
	if !s.hasLocalRows() {
		if !other.hasLocalRows() {
			return s.shardOrPartID - other.shardOrPartID
		}
		return 1
	}
	if !other.hasLocalRows() {
		return -1
	}
	cmp, err := tidestore.SortRows(s.rows[s.nextPos], other.rows[other.nextPos],
		s.iter.sortFields, s.iter.sortSpecs)
	if err != nil || cmp == 0 {
		return s.shardOrPartID - other.shardOrPartID
	}
	return cmp
}

type scannerHeap []*remoteScanner

func (h scannerHeap) Len() int           { return len(h) }
func (h scannerHeap) Less(i, j int) bool { return h[i].compareTo(h[j]) < 0 }
func (h scannerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scannerHeap) Push(x any) {
	*h = append(*h, x.(*remoteScanner))
}

func (h *scannerHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return s
}
