package wire

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore-go/tidestore"
)

func TestPackedIntBoundaries(t *testing.T) {
	values := []int{
		0, 1, -1, 119, 120, 121, -119, -120, -121,
		0xFF, 0x100, -0x100,
		math.MaxInt32, math.MinInt32,
	}
	w := NewWriter()
	for _, v := range values {
		w.WritePackedInt(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.ReadPackedInt()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, r.Remaining())
}

func TestPackedLongBoundaries(t *testing.T) {
	values := []int64{
		0, 1, -1, 119, 120, -120, 1 << 32, -(1 << 40),
		math.MaxInt64, math.MinInt64,
	}
	w := NewWriter()
	for _, v := range values {
		w.WritePackedLong(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.ReadPackedLong()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSmallPackedIntsAreOneByte(t *testing.T) {
	for v := -119; v <= 120; v++ {
		w := NewWriter()
		w.WritePackedInt(v)
		assert.Equal(t, 1, w.Len(), "value %d", v)
	}
}

func TestAbsentSequences(t *testing.T) {
	w := NewWriter()
	w.WriteStringArray(nil)
	w.WriteByteArray(nil)
	w.WritePackedIntArray(nil)
	w.WriteString("", false)
	w.WriteTopologyInfo(nil)

	r := NewReader(w.Bytes())

	sa, err := r.ReadStringArray()
	require.NoError(t, err)
	assert.Nil(t, sa)

	ba, err := r.ReadByteArray()
	require.NoError(t, err)
	assert.Nil(t, ba)

	ia, err := r.ReadPackedIntArray()
	require.NoError(t, err)
	assert.Nil(t, ia)

	s, present, err := r.ReadString()
	require.NoError(t, err)
	assert.False(t, present)
	assert.Equal(t, "", s)

	topo, err := r.ReadTopologyInfo()
	require.NoError(t, err)
	assert.Nil(t, topo)
}

func TestEmptyVersusAbsentArrays(t *testing.T) {
	w := NewWriter()
	w.WriteStringArray([]string{})
	r := NewReader(w.Bytes())
	sa, err := r.ReadStringArray()
	require.NoError(t, err)
	require.NotNil(t, sa)
	assert.Len(t, sa, 0)
}

func TestFieldValueRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	row := tidestore.Row{
		"null":   nil,
		"int":    42,
		"long":   int64(1) << 40,
		"double": 2.75,
		"number": decimal.RequireFromString("12345678901234567890.5"),
		"string": "héllo",
		"bool":   true,
		"binary": []byte{0, 1, 2},
		"ts":     ts,
		"empty":  tidestore.Empty,
		"jnull":  tidestore.JSONNullValue,
		"nested": map[string]any{"arr": []any{1, "a", nil}},
	}

	w := NewWriter()
	require.NoError(t, w.WriteFieldValue(row))

	v, err := NewReader(w.Bytes()).ReadFieldValue()
	require.NoError(t, err)
	got, ok := v.(tidestore.Row)
	require.True(t, ok)

	assert.Nil(t, got["null"])
	assert.Equal(t, 42, got["int"])
	assert.Equal(t, int64(1)<<40, got["long"])
	assert.Equal(t, 2.75, got["double"])
	assert.True(t, row["number"].(decimal.Decimal).Equal(got["number"].(decimal.Decimal)))
	assert.Equal(t, "héllo", got["string"])
	assert.Equal(t, true, got["bool"])
	assert.Equal(t, []byte{0, 1, 2}, got["binary"])
	assert.True(t, ts.Equal(got["ts"].(time.Time)))
	assert.Equal(t, tidestore.Empty, got["empty"])
	assert.Equal(t, tidestore.JSONNullValue, got["jnull"])
	assert.Equal(t, map[string]any{"arr": []any{1, "a", nil}}, got["nested"])
}

func TestTopologyInfoRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteTopologyInfo(&tidestore.TopologyInfo{SeqNum: 7, ShardIDs: []int{0, 2, 5}})
	topo, err := NewReader(w.Bytes()).ReadTopologyInfo()
	require.NoError(t, err)
	require.NotNil(t, topo)
	assert.Equal(t, 7, topo.SeqNum)
	assert.Equal(t, []int{0, 2, 5}, topo.ShardIDs)
}

func TestTruncatedInput(t *testing.T) {
	w := NewWriter()
	w.WriteString("hello world", true)
	buf := w.Bytes()
	_, _, err := NewReader(buf[:len(buf)-3]).ReadString()
	assert.Error(t, err)
}
