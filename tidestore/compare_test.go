package tidestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAtomics(t *testing.T) {
	t.Run("NumericKindsMix", func(t *testing.T) {
		cases := []struct {
			name   string
			v0, v1 Value
			want   int
		}{
			{"IntInt", 1, 2, -1},
			{"IntLong", 5, int64(5), 0},
			{"LongDouble", int64(3), 2.5, 1},
			{"DoubleNumber", 1.5, decimal.NewFromFloat(1.5), 0},
			{"NumberLong", decimal.NewFromInt(10), int64(9), 1},
			{"LargeLongsStayExact", int64(1) << 60, int64(1)<<60 + 1, -1},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				got, err := CompareAtomics(tc.v0, tc.v1, false)
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			})
		}
	})

	t.Run("CrossKindNeedsForSort", func(t *testing.T) {
		_, err := CompareAtomics(1, "one", false)
		assert.Error(t, err)

		got, err := CompareAtomics(1, "one", true)
		require.NoError(t, err)
		assert.Equal(t, -1, got, "numerics sort before strings")
	})

	t.Run("KindRankOrder", func(t *testing.T) {
		// numerics < timestamps < strings < booleans < EMPTY < json null < NULL
		ordered := []Value{
			1.5, time.Unix(0, 0), "a", true, Empty, JSONNullValue, nil,
		}
		for i := 0; i < len(ordered)-1; i++ {
			got, err := CompareAtomics(ordered[i], ordered[i+1], true)
			require.NoError(t, err)
			assert.Equal(t, -1, got, "rank %d vs %d", i, i+1)
		}
	})

	t.Run("NonAtomicFails", func(t *testing.T) {
		_, err := CompareAtomics(map[string]any{}, 1, true)
		assert.Error(t, err)
		_, err = CompareAtomics(1, []any{1}, true)
		assert.Error(t, err)
	})
}

func TestSortAtomics(t *testing.T) {
	t.Run("Descending", func(t *testing.T) {
		got, err := SortAtomics(1, 2, SortSpec{IsDesc: true})
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	})

	t.Run("NullsLastByDefaultSpec", func(t *testing.T) {
		got, err := SortAtomics(nil, 1, SortSpec{})
		require.NoError(t, err)
		assert.Equal(t, 1, got, "NULL after values when NullsFirst is false")

		got, err = SortAtomics(nil, 1, SortSpec{NullsFirst: true})
		require.NoError(t, err)
		assert.Equal(t, -1, got)
	})

	t.Run("NullClassKeepsInternalOrder", func(t *testing.T) {
		// EMPTY < json null < NULL regardless of NullsFirst.
		got, err := SortAtomics(Empty, JSONNullValue, SortSpec{NullsFirst: true})
		require.NoError(t, err)
		assert.Equal(t, -1, got)

		got, err = SortAtomics(JSONNullValue, nil, SortSpec{})
		require.NoError(t, err)
		assert.Equal(t, -1, got)
	})
}

func TestSortRows(t *testing.T) {
	fields := []string{"a", "b"}
	specs := []SortSpec{{}, {IsDesc: true}}

	r0 := Row{"a": 1, "b": "x"}
	r1 := Row{"a": 1, "b": "y"}
	got, err := SortRows(r0, r1, fields, specs)
	require.NoError(t, err)
	assert.Equal(t, 1, got, "tie on a, b descending")

	r2 := Row{"a": 0, "b": "z"}
	got, err = SortRows(r2, r0, fields, specs)
	require.NoError(t, err)
	assert.Equal(t, -1, got)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(1, int64(1)))
	assert.True(t, ValuesEqual(2.0, decimal.NewFromInt(2)))
	assert.False(t, ValuesEqual(1, "1"))
	assert.True(t, ValuesEqual(nil, nil))
	assert.False(t, ValuesEqual(nil, Empty))
	assert.True(t, ValuesEqual(
		map[string]any{"k": []any{1, "a"}},
		map[string]any{"k": []any{int64(1), "a"}},
	))
}

func TestHashValueMatchesEquality(t *testing.T) {
	pairs := [][2]Value{
		{1, int64(1)},
		{2.5, decimal.NewFromFloat(2.5)},
		{[]any{1, "a"}, []any{int64(1), "a"}},
	}
	for _, p := range pairs {
		require.True(t, ValuesEqual(p[0], p[1]))
		assert.Equal(t, HashValue(p[0]), HashValue(p[1]))
	}
	assert.NotEqual(t, HashValue(nil), HashValue(JSONNullValue))
}

func TestConvertToNull(t *testing.T) {
	row := Row{
		"a": Empty,
		"b": JSONNullValue,
		"c": []any{Empty, 1},
		"d": map[string]any{"x": JSONNullValue},
	}
	out := ConvertToNull(row).(Row)
	assert.Nil(t, out["a"])
	assert.Nil(t, out["b"])
	assert.Nil(t, out["c"].([]any)[0])
	assert.Nil(t, out["d"].(map[string]any)["x"])

	// Conversion mutates the row rather than copying it.
	assert.Nil(t, row["a"])
}
