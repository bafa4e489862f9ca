// Package shardsim simulates a sharded, partitioned Tidestore cluster
// in a single process. Rows live in badger, one keyspace per table with
// keys ordered by partition and primary key. The simulator serves query
// batches either in-process through query.Executor or over HTTP through
// the transport envelope, and can mutate its topology between batches,
// which is what the driver-side merge and dedup logic is tested
// against.
package shardsim

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// Options configures a simulated cluster.
type Options struct {
	// NumShards is the initial shard count. Shard ids start at 0.
	NumShards int

	// NumPartitions is the fixed partition count. Partitions are
	// assigned to shards round-robin; removing or adding a shard
	// reassigns them.
	NumPartitions int

	// Dir is the badger directory. Empty runs fully in memory.
	Dir string

	// BatchSize caps rows per shard-side batch when the request does
	// not carry its own limit.
	BatchSize int

	// InjectDuplicates makes every shard scan re-deliver the last row
	// of the previous batch, the way a multi-shard index scan can after
	// a topology change. Compiled plans then carry the primary key
	// fields so the driver eliminates the duplicates.
	InjectDuplicates bool
}

const defaultShardBatchSize = 100

type tableMeta struct {
	name    string
	primKey []string
}

// Cluster is one simulated store.
type Cluster struct {
	opts Options
	db   *badger.DB

	mu     sync.Mutex
	topo   *tidestore.TopologyInfo
	tables map[string]*tableMeta
}

// Open creates or reopens a cluster.
func Open(opts Options) (*Cluster, error) {
	if opts.NumShards <= 0 {
		return nil, tidestore.NewIllegalArgument("NumShards must be positive")
	}
	if opts.NumPartitions <= 0 {
		opts.NumPartitions = opts.NumShards * 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultShardBatchSize
	}

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	shardIDs := make([]int, opts.NumShards)
	for i := range shardIDs {
		shardIDs[i] = i
	}
	c := &Cluster{
		opts:   opts,
		db:     db,
		topo:   &tidestore.TopologyInfo{SeqNum: 1, ShardIDs: shardIDs},
		tables: make(map[string]*tableMeta),
	}
	if err := c.loadTables(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the store.
func (c *Cluster) Close() error {
	return c.db.Close()
}

// Topology returns a snapshot of the current topology.
func (c *Cluster) Topology() *tidestore.TopologyInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, len(c.topo.ShardIDs))
	copy(ids, c.topo.ShardIDs)
	return &tidestore.TopologyInfo{SeqNum: c.topo.SeqNum, ShardIDs: ids}
}

// AddShard grows the cluster by one shard and bumps the topology
// sequence number. Partition ownership shifts accordingly.
func (c *Cluster) AddShard() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := 0
	for _, s := range c.topo.ShardIDs {
		if s >= id {
			id = s + 1
		}
	}
	c.topo.ShardIDs = append(c.topo.ShardIDs, id)
	c.topo.SeqNum++
	return id
}

// RemoveShard drops a shard and bumps the topology sequence number.
func (c *Cluster) RemoveShard(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.topo.ShardIDs {
		if s == id {
			if len(c.topo.ShardIDs) == 1 {
				return tidestore.NewIllegalState("cannot remove the last shard")
			}
			c.topo.ShardIDs = append(c.topo.ShardIDs[:i], c.topo.ShardIDs[i+1:]...)
			c.topo.SeqNum++
			return nil
		}
	}
	return tidestore.NewIllegalArgument("no shard with id %d", id)
}

// shardOfPartition maps a partition to its current owner.
func (c *Cluster) shardOfPartition(pid int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topo.ShardIDs[pid%len(c.topo.ShardIDs)]
}

// partitionsOfShard lists the partitions a shard currently owns.
func (c *Cluster) partitionsOfShard(shardID int) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pids []int
	for pid := 0; pid < c.opts.NumPartitions; pid++ {
		if c.topo.ShardIDs[pid%len(c.topo.ShardIDs)] == shardID {
			pids = append(pids, pid)
		}
	}
	return pids
}

// CreateTable registers a table with its primary key fields. Idempotent
// when the definition matches.
func (c *Cluster) CreateTable(name string, primKey []string) error {
	if name == "" || len(primKey) == 0 {
		return tidestore.NewIllegalArgument("table needs a name and a primary key")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.tables[name]; ok {
		if !sameFields(existing.primKey, primKey) {
			return tidestore.NewIllegalArgument(
				"table %q already exists with a different primary key", name)
		}
		return nil
	}
	w := wire.NewWriter()
	w.WriteStringArray(primKey)
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(name), w.Bytes())
	})
	if err != nil {
		return fmt.Errorf("storing table metadata: %w", err)
	}
	c.tables[name] = &tableMeta{name: name, primKey: primKey}
	return nil
}

func (c *Cluster) table(name string) (*tableMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, tidestore.NewIllegalArgument("table %q not found", name)
	}
	return t, nil
}

func (c *Cluster) loadTables() error {
	return c.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = []byte("m/")
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := string(item.Key()[len("m/"):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			primKey, err := wire.NewReader(val).ReadStringArray()
			if err != nil {
				return err
			}
			c.tables[name] = &tableMeta{name: name, primKey: primKey}
		}
		return nil
	})
}

// Put stores one row, routed to its partition by primary-key hash.
func (c *Cluster) Put(table string, row tidestore.Row) error {
	meta, err := c.table(table)
	if err != nil {
		return err
	}
	pkBytes, err := encodePrimKey(meta.primKey, row)
	if err != nil {
		return err
	}
	pid := partitionOf(pkBytes, c.opts.NumPartitions)

	w := wire.NewWriter()
	if err := w.WriteFieldValue(row); err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rowKey(table, pid, pkBytes), w.Bytes())
	})
}

// partitionRows returns all rows of one partition in primary-key order.
func (c *Cluster) partitionRows(table string, pid int) ([]tidestore.Row, error) {
	var rows []tidestore.Row
	err := c.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = partitionPrefix(table, pid)
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			v, err := wire.NewReader(val).ReadFieldValue()
			if err != nil {
				return err
			}
			row, ok := v.(tidestore.Row)
			if !ok {
				return tidestore.NewIllegalState("stored row decodes to %T", v)
			}
			rows = append(rows, row)
		}
		return nil
	})
	return rows, err
}

// shardRows returns all rows a shard currently owns, in partition then
// primary-key order.
func (c *Cluster) shardRows(table string, shardID int) ([]tidestore.Row, error) {
	var rows []tidestore.Row
	for _, pid := range c.partitionsOfShard(shardID) {
		prows, err := c.partitionRows(table, pid)
		if err != nil {
			return nil, err
		}
		rows = append(rows, prows...)
	}
	return rows, nil
}

func metaKey(table string) []byte {
	return []byte("m/" + table)
}

func partitionPrefix(table string, pid int) []byte {
	prefix := []byte("r/" + table + "/")
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], uint32(pid))
	return append(prefix, p[:]...)
}

func rowKey(table string, pid int, pkBytes []byte) []byte {
	return append(partitionPrefix(table, pid), pkBytes...)
}

// encodePrimKey builds the order-preserving binary image of a row's
// primary key.
func encodePrimKey(primKey []string, row tidestore.Row) ([]byte, error) {
	w := wire.NewWriter()
	for _, field := range primKey {
		v, ok := row[field]
		if !ok {
			return nil, tidestore.NewIllegalArgument(
				"row is missing primary key field %q", field)
		}
		switch tv := v.(type) {
		case int:
			w.WritePackedInt(tv)
		case int64:
			w.WritePackedLong(tv)
		case string:
			w.WriteString(tv, true)
		default:
			return nil, tidestore.NewIllegalArgument(
				"primary key field %q has unsupported type %T", field, v)
		}
	}
	return w.Bytes(), nil
}

func partitionOf(pkBytes []byte, numPartitions int) int {
	h := fnv.New32a()
	h.Write(pkBytes)
	return int(h.Sum32()) % numPartitions
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
