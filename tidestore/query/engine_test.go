package query_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/query"
	"github.com/tidestore/tidestore-go/tidestore/shardsim"
)

// Seed data: ids 1..9 with ages and a city cycling A, B, C.
var seedAges = []int64{30, 25, 35, 28, 41, 33, 29, 52, 24}

func newTestCluster(t *testing.T, injectDups bool) (*shardsim.Cluster, *query.Client) {
	t.Helper()
	cluster, err := shardsim.Open(shardsim.Options{
		NumShards:        3,
		InjectDuplicates: injectDups,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cluster.Close() })

	require.NoError(t, cluster.CreateTable("users", []string{"id"}))
	cities := []string{"A", "B", "C"}
	for i, age := range seedAges {
		id := i + 1
		require.NoError(t, cluster.Put("users", tidestore.Row{
			"id":   id,
			"name": "u" + string(rune('0'+id)),
			"age":  age,
			"city": cities[i%3],
		}))
	}
	return cluster, query.NewClient(cluster, cluster)
}

// drain runs req to completion, gathering all rows.
func drain(t *testing.T, client *query.Client, req *query.QueryRequest) ([]tidestore.Row, int) {
	t.Helper()
	var rows []tidestore.Row
	batches := 0
	for !req.IsDone() {
		require.Less(t, batches, 200, "query did not terminate")
		res, err := client.Query(req)
		require.NoError(t, err)
		rows = append(rows, res.Rows()...)
		batches++
	}
	return rows, batches
}

func rowIDs(t *testing.T, rows []tidestore.Row) []int {
	t.Helper()
	ids := make([]int, len(rows))
	for i, row := range rows {
		id, ok := row["id"].(int)
		require.True(t, ok, "id column missing or wrong type in %v", row)
		ids[i] = id
	}
	return ids
}

func TestOrderByAscendingMergesPartitions(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id")
	req.Limit = 2
	rows, batches := drain(t, client, req)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, rowIDs(t, rows))
	assert.Greater(t, batches, 1, "a 2-row batch limit must split the result")
}

func TestOrderByDescendingMergesShards(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id DESC")
	req.Limit = 2
	rows, _ := drain(t, client, req)

	assert.Equal(t, []int{9, 8, 7, 6, 5, 4, 3, 2, 1}, rowIDs(t, rows))
}

func TestSimpleProjectionWithFilter(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest("SELECT name FROM users WHERE age >= 30")
	req.Limit = 2
	rows, batches := drain(t, client, req)

	names := map[string]bool{}
	for _, row := range rows {
		require.Len(t, row, 1, "projection must keep only the name column")
		names[row["name"].(string)] = true
	}
	assert.Equal(t, map[string]bool{
		"u1": true, "u3": true, "u5": true, "u6": true, "u8": true,
	}, names)
	assert.Greater(t, batches, 1)
}

func TestOrderByOffsetLimit(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id LIMIT 3 OFFSET 2")
	rows, _ := drain(t, client, req)

	assert.Equal(t, []int{3, 4, 5}, rowIDs(t, rows))
}

func TestGroupBySumAndCount(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest(
		"SELECT city, SUM(age) AS total, COUNT(*) AS cnt FROM users GROUP BY city")
	req.Limit = 2
	rows, _ := drain(t, client, req)

	require.Len(t, rows, 3)
	totals := map[string]int64{}
	counts := map[string]int64{}
	for _, row := range rows {
		city := row["city"].(string)
		totals[city] = asInt64(t, row["total"])
		counts[city] = asInt64(t, row["cnt"])
	}
	assert.Equal(t, map[string]int64{"A": 87, "B": 118, "C": 92}, totals)
	assert.Equal(t, map[string]int64{"A": 3, "B": 3, "C": 3}, counts)
}

func TestGroupByWithOrderBy(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest(
		"SELECT city, SUM(age) AS total FROM users GROUP BY city ORDER BY total DESC")
	rows, _ := drain(t, client, req)

	require.Len(t, rows, 3)
	assert.Equal(t, "B", rows[0]["city"])
	assert.Equal(t, "C", rows[1]["city"])
	assert.Equal(t, "A", rows[2]["city"])
	assert.EqualValues(t, 118, asInt64(t, rows[0]["total"]))
}

func TestGrandAggregates(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest(
		"SELECT SUM(age) AS total, MIN(age) AS lo, MAX(age) AS hi, COUNT(*) AS cnt FROM users")
	req.Limit = 2
	rows, _ := drain(t, client, req)

	require.Len(t, rows, 1)
	assert.EqualValues(t, 297, asInt64(t, rows[0]["total"]))
	assert.EqualValues(t, 24, asInt64(t, rows[0]["lo"]))
	assert.EqualValues(t, 52, asInt64(t, rows[0]["hi"]))
	assert.EqualValues(t, 9, asInt64(t, rows[0]["cnt"]))
}

func TestOffsetPastTheLastGroup(t *testing.T) {
	_, client := newTestCluster(t, false)

	// A grand aggregate produces one row; skipping it must end the
	// query cleanly with an empty result.
	req := query.NewQueryRequest("SELECT SUM(age) AS total FROM users OFFSET 1")
	rows, _ := drain(t, client, req)
	assert.Empty(t, rows)

	req = query.NewQueryRequest(
		"SELECT city, SUM(age) AS total FROM users GROUP BY city OFFSET 5")
	rows, _ = drain(t, client, req)
	assert.Empty(t, rows)
}

func TestGrandAggregateOverEmptyTableYieldsNoRow(t *testing.T) {
	cluster, client := newTestCluster(t, false)
	require.NoError(t, cluster.CreateTable("nothing", []string{"id"}))

	req := query.NewQueryRequest("SELECT SUM(id) AS s FROM nothing")
	rows, _ := drain(t, client, req)
	assert.Empty(t, rows)
}

func TestSumWithoutNumericInputIsNull(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest("SELECT SUM(name) AS s FROM users")
	rows, _ := drain(t, client, req)

	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["s"])
}

func TestExternalVariableArithmetic(t *testing.T) {
	cluster, client := newTestCluster(t, false)

	prep, err := cluster.Prepare("SELECT id, age + $delta AS bumped FROM users ORDER BY id")
	require.NoError(t, err)
	require.NoError(t, prep.SetVariable("delta", 100))

	req := query.NewPreparedQueryRequest(prep)
	rows, _ := drain(t, client, req)

	require.Len(t, rows, 9)
	for i, row := range rows {
		assert.Equal(t, i+1, row["id"])
		assert.EqualValues(t, seedAges[i]+100, asInt64(t, row["bumped"]))
	}
}

func TestSetVariableRejectsUndeclaredName(t *testing.T) {
	cluster, _ := newTestCluster(t, false)
	prep, err := cluster.Prepare("SELECT id, age + $delta AS bumped FROM users ORDER BY id")
	require.NoError(t, err)
	assert.Error(t, prep.SetVariable("nope", 1))
}

func TestDuplicateEliminationOnInjectedDuplicates(t *testing.T) {
	_, client := newTestCluster(t, true)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id")
	req.Limit = 2
	rows, _ := drain(t, client, req)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, rowIDs(t, rows),
		"re-delivered boundary rows must be eliminated")
}

func TestTopologyChangeMidQuery(t *testing.T) {
	cluster, client := newTestCluster(t, true)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id DESC")
	req.Limit = 2

	// Pull one batch, then grow the cluster under the running query.
	res, err := client.Query(req)
	require.NoError(t, err)
	rows := res.Rows()
	cluster.AddShard()

	batches := 0
	for !req.IsDone() {
		require.Less(t, batches, 200)
		res, err := client.Query(req)
		require.NoError(t, err)
		rows = append(rows, res.Rows()...)
		batches++
	}

	seen := map[int]bool{}
	for _, id := range rowIDs(t, rows) {
		assert.False(t, seen[id], "row %d surfaced twice", id)
		seen[id] = true
		assert.GreaterOrEqual(t, id, 1)
		assert.LessOrEqual(t, id, 9)
	}
}

// flakyExecutor fails the nth Execute call and delegates otherwise.
type flakyExecutor struct {
	inner     query.Executor
	failAt    int
	retryable bool
	calls     int
	failErr   error
}

func (f *flakyExecutor) Execute(req *query.QueryRequest) (*query.BatchResult, error) {
	f.calls++
	if f.calls == f.failAt {
		if f.retryable {
			return nil, tidestore.NewRetryable(nil, "transient store hiccup")
		}
		return nil, f.failErr
	}
	return f.inner.Execute(req)
}

func TestTerminalErrorIsCachedAndRaisedAgain(t *testing.T) {
	cluster, _ := newTestCluster(t, false)
	boom := errors.New("boom")
	flaky := &flakyExecutor{inner: cluster, failAt: 1, failErr: boom}
	client := query.NewClient(flaky, cluster)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id")
	_, err := client.Query(req)
	require.ErrorIs(t, err, boom)
	callsAfterFailure := flaky.calls

	// The driver must re-raise the failure without touching the store.
	_, err = client.Query(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "query failed")
	assert.Equal(t, callsAfterFailure, flaky.calls)
}

func TestRetryableErrorResumesWithNoLoss(t *testing.T) {
	cluster, _ := newTestCluster(t, false)
	flaky := &flakyExecutor{inner: cluster, failAt: 2, retryable: true}
	client := query.NewClient(flaky, cluster)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id")
	req.Limit = 2

	var rows []tidestore.Row
	sawRetryable := false
	for i := 0; !req.IsDone(); i++ {
		require.Less(t, i, 200)
		res, err := client.Query(req)
		if err != nil {
			require.True(t, tidestore.IsRetryable(err), "unexpected error: %v", err)
			sawRetryable = true
			continue
		}
		rows = append(rows, res.Rows()...)
	}

	assert.True(t, sawRetryable)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, rowIDs(t, rows))
}

// countingExecutor tallies remote fetches on behalf of its delegate.
type countingExecutor struct {
	inner query.Executor
	calls int
}

func (c *countingExecutor) Execute(req *query.QueryRequest) (*query.BatchResult, error) {
	c.calls++
	return c.inner.Execute(req)
}

func TestOneRemoteFetchPerSortingBatch(t *testing.T) {
	cluster, _ := newTestCluster(t, false)
	counting := &countingExecutor{inner: cluster}
	client := query.NewClient(counting, cluster)

	// Ascending primary-key order runs the all-partitions discovery
	// phase first; each application batch issues exactly one fetch.
	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id")
	res, err := client.Query(req)
	require.NoError(t, err)
	assert.Equal(t, 1, counting.calls)

	rows := res.Rows()
	for i := 0; !req.IsDone(); i++ {
		require.Less(t, i, 200)
		before := counting.calls
		res, err := client.Query(req)
		require.NoError(t, err)
		rows = append(rows, res.Rows()...)
		assert.LessOrEqual(t, counting.calls-before, 1)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, rowIDs(t, rows))
}

func TestMemoryCapStopsBufferedSort(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id")
	req.MaxMemoryConsumption = 1

	var memErr *tidestore.MemoryLimitError
	var err error
	for i := 0; i < 200; i++ {
		_, err = client.Query(req)
		if err != nil {
			break
		}
		require.False(t, req.IsDone(), "a one-byte budget cannot fit the result")
	}
	require.Error(t, err)
	require.ErrorAs(t, err, &memErr)
	assert.EqualValues(t, 1, memErr.Limit)
	assert.False(t, tidestore.IsRetryable(err))

	// The failure is terminal; later calls re-raise it.
	_, err = client.Query(req)
	require.Error(t, err)
	assert.ErrorAs(t, err, &memErr)
}

func TestCloseEndsExecution(t *testing.T) {
	_, client := newTestCluster(t, false)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id")
	req.Limit = 2
	_, err := client.Query(req)
	require.NoError(t, err)
	require.False(t, req.IsDone())

	req.Close()
	assert.True(t, req.IsDone())

	// Closing again is a no-op.
	req.Close()
	assert.True(t, req.IsDone())

	_, err = client.Query(req)
	assert.Error(t, err, "a closed execution accepts no further batches")
}

func TestQueryPlanDisplay(t *testing.T) {
	cluster, _ := newTestCluster(t, false)

	prep, err := cluster.Prepare(
		"SELECT city, SUM(age) AS total FROM users GROUP BY city ORDER BY total DESC")
	require.NoError(t, err)

	plan := prep.QueryPlan()
	assert.Contains(t, plan, "RECV")
	assert.Contains(t, plan, "GROUP")
	assert.Contains(t, plan, "SORT2")
	assert.Contains(t, plan, "SFW")
}

func asInt64(t *testing.T, v tidestore.Value) int64 {
	t.Helper()
	switch tv := v.(type) {
	case int:
		return int64(tv)
	case int64:
		return tv
	}
	t.Fatalf("value %v (%T) is not integral", v, v)
	return 0
}
