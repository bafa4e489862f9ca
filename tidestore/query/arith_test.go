package query

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore-go/tidestore"
)

func TestApplyArithOp(t *testing.T) {
	loc := tidestore.Location{}

	t.Run("IntegerPairsStayIntegral", func(t *testing.T) {
		got, err := applyArithOp(6, '+', 7, loc)
		require.NoError(t, err)
		assert.Equal(t, 13, got)

		got, err = applyArithOp(7, '/', 2, loc)
		require.NoError(t, err)
		assert.Equal(t, 3, got, "integer division truncates")

		got, err = applyArithOp(2, '+', int64(3), loc)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got, "mixed widths widen to LONG")
	})

	t.Run("LongOverflowWraps", func(t *testing.T) {
		got, err := applyArithOp(int64(math.MaxInt64), '+', 1, loc)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MinInt64), got)
	})

	t.Run("DoublePromotion", func(t *testing.T) {
		got, err := applyArithOp(1, '+', 0.5, loc)
		require.NoError(t, err)
		assert.Equal(t, 1.5, got)
	})

	t.Run("FloatingDivisionOp", func(t *testing.T) {
		got, err := applyArithOp(7, 'd', 2, loc)
		require.NoError(t, err)
		assert.Equal(t, 3.5, got)
	})

	t.Run("NumberPromotion", func(t *testing.T) {
		got, err := applyArithOp(decimal.NewFromInt(2), '*', 3, loc)
		require.NoError(t, err)
		d, ok := got.(decimal.Decimal)
		require.True(t, ok)
		assert.True(t, d.Equal(decimal.NewFromInt(6)))

		got, err = applyArithOp(10, '-', decimal.NewFromFloat(0.5), loc)
		require.NoError(t, err)
		d, ok = got.(decimal.Decimal)
		require.True(t, ok)
		assert.True(t, d.Equal(decimal.RequireFromString("9.5")))
	})

	t.Run("IntegerDivisionByZero", func(t *testing.T) {
		_, err := applyArithOp(1, '/', 0, loc)
		assert.Error(t, err)
	})
}

func TestSumNewValueAccumulatesAcrossKinds(t *testing.T) {
	var sum tidestore.Value = 0
	var err error
	for _, v := range []tidestore.Value{1, int64(2), 3.5} {
		sum, err = sumNewValue(sum, v)
		require.NoError(t, err)
	}
	assert.Equal(t, 6.5, sum)
}
