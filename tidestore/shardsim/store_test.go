package shardsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore-go/tidestore"
)

func openCluster(t *testing.T, opts Options) *Cluster {
	t.Helper()
	c, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func seedItems(t *testing.T, c *Cluster, n int) {
	t.Helper()
	require.NoError(t, c.CreateTable("items", []string{"id"}))
	for i := 1; i <= n; i++ {
		require.NoError(t, c.Put("items", tidestore.Row{"id": i, "v": i * 10}))
	}
}

func TestPutRoutesRowsToPartitions(t *testing.T) {
	c := openCluster(t, Options{NumShards: 2, NumPartitions: 4})
	seedItems(t, c, 20)

	seen := map[int]bool{}
	for pid := 0; pid < c.opts.NumPartitions; pid++ {
		rows, err := c.partitionRows("items", pid)
		require.NoError(t, err)
		for _, row := range rows {
			id := row["id"].(int)
			assert.False(t, seen[id], "row %d stored in two partitions", id)
			seen[id] = true
			assert.Equal(t, id*10, row["v"])
		}
	}
	assert.Len(t, seen, 20)
}

func TestShardRowsCoverAllPartitions(t *testing.T) {
	c := openCluster(t, Options{NumShards: 3, NumPartitions: 6})
	seedItems(t, c, 15)

	total := 0
	for _, shardID := range c.Topology().ShardIDs {
		rows, err := c.shardRows("items", shardID)
		require.NoError(t, err)
		total += len(rows)
	}
	assert.Equal(t, 15, total)
}

func TestCreateTableIdempotent(t *testing.T) {
	c := openCluster(t, Options{NumShards: 1})

	require.NoError(t, c.CreateTable("t", []string{"id"}))
	assert.NoError(t, c.CreateTable("t", []string{"id"}))
	assert.Error(t, c.CreateTable("t", []string{"other"}),
		"redefining the primary key must fail")
	assert.Error(t, c.CreateTable("", []string{"id"}))
	assert.Error(t, c.CreateTable("x", nil))
}

func TestPutValidation(t *testing.T) {
	c := openCluster(t, Options{NumShards: 1})
	require.NoError(t, c.CreateTable("t", []string{"id"}))

	assert.Error(t, c.Put("missing", tidestore.Row{"id": 1}))
	assert.Error(t, c.Put("t", tidestore.Row{"v": 1}), "row without its key must fail")
}

func TestTopologyChangesReassignPartitions(t *testing.T) {
	c := openCluster(t, Options{NumShards: 2, NumPartitions: 6})
	before := c.Topology()
	assert.Equal(t, []int{0, 1}, before.ShardIDs)

	id := c.AddShard()
	assert.Equal(t, 2, id)
	after := c.Topology()
	assert.Greater(t, after.SeqNum, before.SeqNum)
	assert.Equal(t, []int{0, 1, 2}, after.ShardIDs)

	// Every partition has exactly one owner.
	owned := map[int]int{}
	for _, shardID := range after.ShardIDs {
		for _, pid := range c.partitionsOfShard(shardID) {
			owned[pid]++
		}
	}
	require.Len(t, owned, 6)
	for pid, n := range owned {
		assert.Equal(t, 1, n, "partition %d has %d owners", pid, n)
	}

	require.NoError(t, c.RemoveShard(1))
	assert.NotContains(t, c.Topology().ShardIDs, 1)
	assert.Error(t, c.RemoveShard(99))
}

func TestRemoveLastShardFails(t *testing.T) {
	c := openCluster(t, Options{NumShards: 1})
	assert.Error(t, c.RemoveShard(0))
}

func TestSpanningScanPaginates(t *testing.T) {
	c := openCluster(t, Options{NumShards: 1, NumPartitions: 3})
	seedItems(t, c, 10)
	sp := &shardPlan{table: "items"}

	var rows []tidestore.Row
	var contKey []byte
	batches := 0
	for {
		res, err := c.spanningScan(sp, contKey, 3)
		require.NoError(t, err)
		rows = append(rows, res.Rows...)
		batches++
		require.Less(t, batches, 20)
		if res.ContinuationKey == nil {
			assert.False(t, res.ReachedLimit)
			break
		}
		assert.True(t, res.ReachedLimit)
		contKey = res.ContinuationKey
	}
	assert.Len(t, rows, 10)
	assert.GreaterOrEqual(t, batches, 4)
}

func TestSpanningScanReDeliversBoundaryRow(t *testing.T) {
	c := openCluster(t, Options{NumShards: 1, NumPartitions: 1})
	seedItems(t, c, 5)
	sp := &shardPlan{table: "items", dupElim: true}

	first, err := c.spanningScan(sp, nil, 2)
	require.NoError(t, err)
	require.Len(t, first.Rows, 2)
	require.NotNil(t, first.ContinuationKey)

	second, err := c.spanningScan(sp, first.ContinuationKey, 2)
	require.NoError(t, err)
	require.NotEmpty(t, second.Rows)
	assert.Equal(t, first.Rows[1], second.Rows[0],
		"the previous batch's last row must come back first")
}

func TestPageSortedOrdersAndPages(t *testing.T) {
	c := openCluster(t, Options{NumShards: 2, NumPartitions: 4})
	seedItems(t, c, 7)
	sp := &shardPlan{
		table:      "items",
		distKind:   distAllShards,
		sortFields: []string{"id"},
		sortSpecs:  []tidestore.SortSpec{{IsDesc: true}},
	}

	var ids []int
	var contKey []byte
	for _, shardID := range c.Topology().ShardIDs {
		contKey = nil
		for {
			res, err := c.shardFetch(sp, shardID, contKey, 2)
			require.NoError(t, err)
			for _, row := range res.Rows {
				ids = append(ids, row["id"].(int))
			}
			if res.ContinuationKey == nil {
				break
			}
			contKey = res.ContinuationKey
		}
	}
	assert.Len(t, ids, 7)
}

func TestPipelineFilterProjectSort(t *testing.T) {
	c := openCluster(t, Options{NumShards: 1})
	sp := &shardPlan{
		filter: &whereCond{field: "v", op: ">=", val: 20},
		projection: []projField{
			{name: "v", mode: projCopy, field: "v"},
			{name: "one", mode: projLiteral, lit: int64(1)},
			{name: "nn", mode: projCountNN, field: "nick"},
		},
		sortFields: []string{"v"},
		sortSpecs:  []tidestore.SortSpec{{}},
	}
	raw := []tidestore.Row{
		{"id": 1, "v": 30, "nick": "a"},
		{"id": 2, "v": 10},
		{"id": 3, "v": 20},
	}

	rows, err := c.pipeline(sp, raw)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, tidestore.Row{"v": 20, "one": int64(1), "nn": int64(0)}, rows[0])
	assert.Equal(t, tidestore.Row{"v": 30, "one": int64(1), "nn": int64(1)}, rows[1])
}

func TestProjectRowMissingFieldYieldsEmpty(t *testing.T) {
	sp := &shardPlan{projection: []projField{{name: "x", mode: projCopy, field: "x"}}}
	out := projectRow(sp, tidestore.Row{"y": 1})
	assert.Equal(t, tidestore.EmptyValue{}, out["x"])
}

func TestDiscoverPartitionsWalk(t *testing.T) {
	c := openCluster(t, Options{NumShards: 2, NumPartitions: 4})
	seedItems(t, c, 9)
	sp := &shardPlan{
		table:      "items",
		distKind:   distAllPartitions,
		sortFields: []string{"id"},
		sortSpecs:  []tidestore.SortSpec{{}},
	}

	res, err := c.discoverPartitions(sp, nil, 100)
	require.NoError(t, err)
	assert.False(t, res.InPhase1, "a complete walk ends phase 1")
	require.Equal(t, len(res.Rows), len(res.PartitionIDs))
	require.Equal(t, len(res.Rows), len(res.PartitionContKeys))
	for i, n := range res.NumResultsPerPID {
		assert.Equal(t, 1, n, "partition %d contributed %d rows", res.PartitionIDs[i], n)
	}

	// A tight limit pauses the walk with a discovery continuation.
	res, err = c.discoverPartitions(sp, nil, 1)
	require.NoError(t, err)
	assert.True(t, res.InPhase1)
	assert.True(t, res.ReachedLimit)
	require.NotNil(t, res.ContinuationKey)
	assert.Equal(t, ckDiscover, res.ContinuationKey[0])
}

func TestShardPlanRoundTrip(t *testing.T) {
	sp := &shardPlan{
		table:     "users",
		distKind:  distAllShards,
		targetPID: -1,
		dupElim:   true,
		filter:    &whereCond{field: "age", op: ">=", val: 30},
		projection: []projField{
			{name: "city", mode: projCopy, field: "city"},
			{name: "cnt", mode: projLiteral, lit: int64(1)},
			{name: "nn", mode: projCountNN, field: "nick"},
		},
		sortFields: []string{"city", "age"},
		sortSpecs:  []tidestore.SortSpec{{}, {IsDesc: true, NullsFirst: true}},
	}

	got, err := decodeShardPlan(sp.encode())
	require.NoError(t, err)
	assert.Equal(t, sp, got)
}

func TestShardPlanMinimalRoundTrip(t *testing.T) {
	sp := &shardPlan{table: "t", distKind: distSingle, targetPID: 2}
	got, err := decodeShardPlan(sp.encode())
	require.NoError(t, err)
	assert.Equal(t, sp, got)
}

func TestContinuationKeyTagMismatch(t *testing.T) {
	key := encodeOffsetKey(ckShard, 5)

	off, err := decodeOffsetKey(ckShard, key)
	require.NoError(t, err)
	assert.Equal(t, 5, off)

	_, err = decodeOffsetKey(ckPartition, key)
	assert.Error(t, err)

	_, _, err = decodeWalkKey(key)
	assert.Error(t, err)
}

func TestWalkKeyRoundTrip(t *testing.T) {
	pid, off, err := decodeWalkKey(encodeWalkKey(3, 17))
	require.NoError(t, err)
	assert.Equal(t, 3, pid)
	assert.Equal(t, 17, off)
}
