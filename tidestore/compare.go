package tidestore

import (
	"bytes"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// SortSpec is the per-column sort declaration from an ORDER BY clause:
// direction plus the position of NULLs relative to all other values.
type SortSpec struct {
	IsDesc     bool
	NullsFirst bool
}

// Rank of each atomic kind in the total sort order:
// numerics < timestamps < strings < booleans < EMPTY < json null < NULL.
const (
	rankNumeric = iota
	rankTimestamp
	rankString
	rankBoolean
	rankEmpty
	rankJSONNull
	rankNull
)

func sortRank(v Value) (int, bool) {
	switch v.(type) {
	case nil:
		return rankNull, true
	case JSONNull:
		return rankJSONNull, true
	case EmptyValue:
		return rankEmpty, true
	case bool:
		return rankBoolean, true
	case string:
		return rankString, true
	case time.Time:
		return rankTimestamp, true
	case int, int64, float64, decimal.Decimal:
		return rankNumeric, true
	}
	return 0, false
}

// CompareAtomics compares two atomic values, returning -1, 0 or 1.
//
// If forSort is false, values of different kinds are not comparable and
// an error is returned. If forSort is true, values of different kinds
// order by kind rank (see sortRank). Non-atomic values always fail.
func CompareAtomics(v0, v1 Value, forSort bool) (int, error) {
	r0, ok0 := sortRank(v0)
	r1, ok1 := sortRank(v1)
	if !ok0 || !ok1 {
		return 0, qsErrorf("cannot compare value of type %T with value of type %T", v0, v1)
	}
	if r0 != r1 {
		if !forSort {
			return 0, qsErrorf("cannot compare value of type %T with value of type %T", v0, v1)
		}
		if r0 < r1 {
			return -1, nil
		}
		return 1, nil
	}
	switch r0 {
	case rankNull, rankJSONNull, rankEmpty:
		return 0, nil
	case rankBoolean:
		b0, b1 := v0.(bool), v1.(bool)
		switch {
		case b0 == b1:
			return 0, nil
		case !b0:
			return -1, nil
		}
		return 1, nil
	case rankString:
		s0, s1 := v0.(string), v1.(string)
		switch {
		case s0 < s1:
			return -1, nil
		case s0 > s1:
			return 1, nil
		}
		return 0, nil
	case rankTimestamp:
		t0, t1 := v0.(time.Time), v1.(time.Time)
		switch {
		case t0.Before(t1):
			return -1, nil
		case t0.After(t1):
			return 1, nil
		}
		return 0, nil
	}
	return compareNumerics(v0, v1), nil
}

// compareNumerics compares two numeric values of possibly different
// kinds. When a NUMBER is involved the comparison goes through decimal
// to keep exactness; integer pairs stay in int64.
func compareNumerics(v0, v1 Value) int {
	d0, isDec0 := v0.(decimal.Decimal)
	d1, isDec1 := v1.(decimal.Decimal)
	if isDec0 || isDec1 {
		if !isDec0 {
			d0 = toDecimal(v0)
		}
		if !isDec1 {
			d1 = toDecimal(v1)
		}
		return d0.Cmp(d1)
	}
	i0, isInt0 := asInt64(v0)
	i1, isInt1 := asInt64(v1)
	if isInt0 && isInt1 {
		switch {
		case i0 < i1:
			return -1
		case i0 > i1:
			return 1
		}
		return 0
	}
	f0, _ := numericFloat(v0)
	f1, _ := numericFloat(v1)
	switch {
	case f0 < f1:
		return -1
	case f0 > f1:
		return 1
	}
	return 0
}

func asInt64(v Value) (int64, bool) {
	switch tv := v.(type) {
	case int:
		return int64(tv), true
	case int64:
		return tv, true
	}
	return 0, false
}

func toDecimal(v Value) decimal.Decimal {
	switch tv := v.(type) {
	case int:
		return decimal.NewFromInt(int64(tv))
	case int64:
		return decimal.NewFromInt(tv)
	case float64:
		return decimal.NewFromFloat(tv)
	case decimal.Decimal:
		return tv
	}
	return decimal.Decimal{}
}

// SortAtomics compares two values for one ORDER BY column. The NULL-ish
// kinds (NULL, EMPTY, json null) are placed as a class by NullsFirst;
// among themselves they keep the fixed order EMPTY < json null < NULL.
func SortAtomics(v0, v1 Value, spec SortSpec) (int, error) {
	if v0 == nil {
		if v1 == nil {
			return 0, nil
		}
		if isEmptyOrJSONNull(v1) {
			return descFlip(-1, spec.IsDesc), nil
		}
		return nullsPos(spec.NullsFirst), nil
	}
	if v1 == nil {
		if isEmptyOrJSONNull(v0) {
			return descFlip(1, spec.IsDesc), nil
		}
		return -nullsPos(spec.NullsFirst), nil
	}
	if _, ok := v0.(EmptyValue); ok {
		if _, ok := v1.(EmptyValue); ok {
			return 0, nil
		}
		if _, ok := v1.(JSONNull); ok {
			return descFlip(1, spec.IsDesc), nil
		}
		return nullsPos(spec.NullsFirst), nil
	}
	if _, ok := v1.(EmptyValue); ok {
		if _, ok := v0.(JSONNull); ok {
			return descFlip(-1, spec.IsDesc), nil
		}
		return -nullsPos(spec.NullsFirst), nil
	}
	if _, ok := v0.(JSONNull); ok {
		if _, ok := v1.(JSONNull); ok {
			return 0, nil
		}
		return nullsPos(spec.NullsFirst), nil
	}
	if _, ok := v1.(JSONNull); ok {
		return -nullsPos(spec.NullsFirst), nil
	}
	comp, err := CompareAtomics(v0, v1, true)
	if err != nil {
		return 0, err
	}
	return descFlip(-comp, spec.IsDesc), nil
}

// descFlip returns descVal when descending, its negation when ascending.
func descFlip(descVal int, isDesc bool) int {
	if isDesc {
		return descVal
	}
	return -descVal
}

// nullsPos returns the ordering of a NULL-ish left value against a
// normal right value.
func nullsPos(nullsFirst bool) int {
	if nullsFirst {
		return -1
	}
	return 1
}

func isEmptyOrJSONNull(v Value) bool {
	switch v.(type) {
	case EmptyValue, JSONNull:
		return true
	}
	return false
}

// SortRows compares two rows on the declared sort columns.
func SortRows(r0, r1 Row, fields []string, specs []SortSpec) (int, error) {
	for i, field := range fields {
		comp, err := SortAtomics(r0[field], r1[field], specs[i])
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp, nil
		}
	}
	return 0, nil
}

// ValuesEqual reports structural equality between two field values.
// Numerically equal values of different numeric kinds are equal, which
// matches how the server groups rows.
func ValuesEqual(v0, v1 Value) bool {
	if v0 == nil || v1 == nil {
		return v0 == nil && v1 == nil
	}
	if IsNumeric(v0) && IsNumeric(v1) {
		return compareNumerics(v0, v1) == 0
	}
	switch tv0 := v0.(type) {
	case EmptyValue:
		_, ok := v1.(EmptyValue)
		return ok
	case JSONNull:
		_, ok := v1.(JSONNull)
		return ok
	case string:
		tv1, ok := v1.(string)
		return ok && tv0 == tv1
	case bool:
		tv1, ok := v1.(bool)
		return ok && tv0 == tv1
	case time.Time:
		tv1, ok := v1.(time.Time)
		return ok && tv0.Equal(tv1)
	case []byte:
		tv1, ok := v1.([]byte)
		return ok && bytes.Equal(tv0, tv1)
	case []any:
		tv1, ok := v1.([]any)
		if !ok || len(tv0) != len(tv1) {
			return false
		}
		for i := range tv0 {
			if !ValuesEqual(tv0[i], tv1[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		tv1, ok := v1.(map[string]any)
		if !ok || len(tv0) != len(tv1) {
			return false
		}
		for k, e0 := range tv0 {
			e1, present := tv1[k]
			if !present || !ValuesEqual(e0, e1) {
				return false
			}
		}
		return true
	}
	return false
}

// HashValue computes the structural hash matching ValuesEqual: equal
// values hash equal across all kinds, including the markers.
func HashValue(v Value) uint64 {
	switch tv := v.(type) {
	case nil:
		return 0x7fffffffffffffff
	case JSONNull:
		return 0x8000000000000000
	case EmptyValue:
		return 0
	case bool:
		if tv {
			return 1231
		}
		return 1237
	case string:
		return hashString(tv)
	case time.Time:
		return uint64(tv.UnixNano())
	case []byte:
		code := uint64(1)
		for _, b := range tv {
			code = 31*code + uint64(b)
		}
		return code
	case []any:
		code := uint64(1)
		for _, e := range tv {
			code = 31*code + HashValue(e)
		}
		return code
	case map[string]any:
		code := uint64(1)
		for k, e := range tv {
			code += hashString(k) + HashValue(e)
		}
		return code
	}
	if f, ok := numericFloat(v); ok {
		return math.Float64bits(f + 0)
	}
	return 0
}

func hashString(s string) uint64 {
	code := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		code ^= uint64(s[i])
		code *= 1099511628211
	}
	return code
}
