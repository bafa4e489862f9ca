package tidestore

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field values are represented with Go natives tagged by dynamic type.
// The kinds, matching the wire type codes, are:
//
//	nil                SQL NULL
//	int                INTEGER
//	int64              LONG
//	float64            DOUBLE
//	decimal.Decimal    NUMBER
//	string             STRING
//	bool               BOOLEAN
//	[]byte             BINARY
//	time.Time          TIMESTAMP
//	map[string]any     MAP (a row is a map)
//	[]any              ARRAY
//	EmptyValue         EMPTY (absent field inside a row)
//	JSONNull           JSON NULL
type Value = any

// EmptyValue marks a field that was selected but absent from the row.
type EmptyValue struct{}

// JSONNull is the JSON null literal, distinct from SQL NULL.
type JSONNull struct{}

var (
	// Empty is the shared EMPTY marker.
	Empty = EmptyValue{}
	// JSONNullValue is the shared JSON null marker.
	JSONNullValue = JSONNull{}
)

func (EmptyValue) String() string { return "EMPTY" }
func (JSONNull) String() string   { return "null" }

// Row is one query result: field name to field value.
type Row = map[string]any

// IsNumeric reports whether v is one of the numeric kinds
// (INTEGER, LONG, DOUBLE, NUMBER).
func IsNumeric(v Value) bool {
	switch v.(type) {
	case int, int64, float64, decimal.Decimal:
		return true
	}
	return false
}

// IsAtomic reports whether v is an atomic value, i.e. not a MAP, ARRAY
// or BINARY. The EMPTY and JSON null markers count as atomic.
func IsAtomic(v Value) bool {
	switch v.(type) {
	case map[string]any, []any, []byte:
		return false
	}
	return true
}

// ConvertToNull rewrites EMPTY and JSON null markers to SQL NULL,
// recursing into maps and arrays. Rows handed to the application always
// go through this conversion.
func ConvertToNull(v Value) Value {
	switch tv := v.(type) {
	case map[string]any:
		for k, fv := range tv {
			tv[k] = ConvertToNull(fv)
		}
		return tv
	case []any:
		for i, fv := range tv {
			tv[i] = ConvertToNull(fv)
		}
		return tv
	case EmptyValue, JSONNull:
		return nil
	}
	return v
}

// SizeOf estimates the in-memory footprint of v in bytes. The estimate
// feeds the per-execution memory cap; it only needs to be stable and
// roughly proportional, not exact.
func SizeOf(v Value) int64 {
	switch tv := v.(type) {
	case nil, EmptyValue, JSONNull:
		return 8
	case bool:
		return 8
	case int, int64, float64:
		return 16
	case decimal.Decimal:
		return 48
	case string:
		return 16 + int64(len(tv))
	case []byte:
		return 24 + int64(len(tv))
	case time.Time:
		return 32
	case []any:
		sz := int64(24)
		for _, e := range tv {
			sz += SizeOf(e)
		}
		return sz
	case map[string]any:
		sz := int64(48)
		for k, e := range tv {
			sz += 16 + int64(len(k)) + SizeOf(e)
		}
		return sz
	}
	return 16
}

// numericFloat returns the canonical float64 image of a numeric value.
// Numerically equal values of different numeric kinds must produce the
// same image so that group keys built from them collide.
func numericFloat(v Value) (float64, bool) {
	switch tv := v.(type) {
	case int:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case float64:
		return tv, true
	case decimal.Decimal:
		f, _ := tv.Float64()
		return f, true
	}
	return 0, false
}
