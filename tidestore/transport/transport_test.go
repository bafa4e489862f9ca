package transport_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/query"
	"github.com/tidestore/tidestore-go/tidestore/shardsim"
	"github.com/tidestore/tidestore-go/tidestore/transport"
)

func newEndpoint(t *testing.T) (*shardsim.Cluster, *transport.HTTPExecutor) {
	t.Helper()
	cluster, err := shardsim.Open(shardsim.Options{NumShards: 2})
	require.NoError(t, err)
	t.Cleanup(func() { cluster.Close() })

	srv := httptest.NewServer(shardsim.NewServer(cluster).Handler())
	t.Cleanup(srv.Close)

	exec, err := transport.New(transport.DefaultConfig(srv.URL))
	require.NoError(t, err)
	return cluster, exec
}

func seedUsers(t *testing.T, cluster *shardsim.Cluster) {
	t.Helper()
	require.NoError(t, cluster.CreateTable("users", []string{"id"}))
	for i := 1; i <= 6; i++ {
		require.NoError(t, cluster.Put("users", tidestore.Row{
			"id": i, "name": "u" + string(rune('0'+i)), "age": int64(20 + i),
		}))
	}
}

func TestQueryOverHTTP(t *testing.T) {
	cluster, exec := newEndpoint(t)
	seedUsers(t, cluster)
	client := query.NewClient(exec, exec)

	req := query.NewQueryRequest("SELECT * FROM users ORDER BY id")
	req.Limit = 2

	var ids []int
	for i := 0; !req.IsDone(); i++ {
		require.Less(t, i, 100)
		res, err := client.Query(req)
		require.NoError(t, err)
		for _, row := range res.Rows() {
			ids = append(ids, row["id"].(int))
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ids)
}

func TestGroupByOverHTTP(t *testing.T) {
	cluster, exec := newEndpoint(t)
	seedUsers(t, cluster)
	client := query.NewClient(exec, exec)

	req := query.NewQueryRequest("SELECT SUM(age) AS total FROM users")
	var rows []tidestore.Row
	for i := 0; !req.IsDone(); i++ {
		require.Less(t, i, 100)
		res, err := client.Query(req)
		require.NoError(t, err)
		rows = append(rows, res.Rows()...)
	}
	require.Len(t, rows, 1)
	assert.EqualValues(t, int64(141), rows[0]["total"])
}

func TestPrepareOverHTTP(t *testing.T) {
	cluster, exec := newEndpoint(t)
	seedUsers(t, cluster)

	prep, err := exec.Prepare("SELECT * FROM users ORDER BY id DESC")
	require.NoError(t, err)
	assert.NotEmpty(t, prep.Statement())
	assert.Contains(t, prep.QueryPlan(), "RECV")

	client := query.NewClient(exec, exec)
	req := query.NewPreparedQueryRequest(prep)
	var ids []int
	for i := 0; !req.IsDone(); i++ {
		require.Less(t, i, 100)
		res, err := client.Query(req)
		require.NoError(t, err)
		for _, row := range res.Rows() {
			ids = append(ids, row["id"].(int))
		}
	}
	assert.Equal(t, []int{6, 5, 4, 3, 2, 1}, ids)
}

func TestStoreErrorsCrossTheWire(t *testing.T) {
	cluster, exec := newEndpoint(t)
	require.NoError(t, cluster.CreateTable("users", []string{"id"}))

	_, err := exec.Prepare("SELECT * FROM missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.False(t, tidestore.IsRetryable(err))
}

func TestBusyStatusIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exec, err := transport.New(transport.DefaultConfig(srv.URL))
	require.NoError(t, err)

	_, err = exec.Execute(query.NewQueryRequest("SELECT * FROM t"))
	require.Error(t, err)
	assert.True(t, tidestore.IsRetryable(err))

	_, err = exec.Prepare("SELECT * FROM t")
	require.Error(t, err)
	assert.True(t, tidestore.IsRetryable(err))
}

func TestUnreachableEndpointIsRetryable(t *testing.T) {
	exec, err := transport.New(transport.DefaultConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = exec.Execute(query.NewQueryRequest("SELECT * FROM t"))
	require.Error(t, err)
	assert.True(t, tidestore.IsRetryable(err))
}

func TestNewRejectsEmptyEndpoint(t *testing.T) {
	_, err := transport.New(transport.Config{})
	assert.Error(t, err)
}

func TestDecodeBatchRejectsNonRecordRow(t *testing.T) {
	blob, err := transport.EncodeRow(tidestore.Row{"a": 1})
	require.NoError(t, err)

	res, err := transport.DecodeBatch(&transport.BatchEnvelope{
		Rows:     [][]byte{blob},
		ShardIDs: []int{0, 1},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Rows[0]["a"])
	require.NotNil(t, res.Topology)
	assert.Equal(t, []int{0, 1}, res.Topology.ShardIDs)

	_, err = transport.DecodeBatch(&transport.BatchEnvelope{Rows: [][]byte{{0x00}}})
	assert.Error(t, err)
}
