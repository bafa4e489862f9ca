package wire

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidestore/tidestore-go/tidestore"
)

// Writer encodes the binary protocol into a growing byte buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteByte appends one byte. The error is always nil; the signature
// satisfies io.ByteWriter.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteBoolean appends a boolean as one byte.
func (w *Writer) WriteBoolean(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteShort appends a big-endian 16-bit value.
func (w *Writer) WriteShort(v int) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(int16(v)))
}

// WriteInt appends a big-endian 32-bit value.
func (w *Writer) WriteInt(v int) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(int32(v)))
}

// writeIntAt overwrites a previously reserved 4-byte slot.
func (w *Writer) writeIntAt(offset, v int) {
	binary.BigEndian.PutUint32(w.buf[offset:], uint32(int32(v)))
}

// WriteDouble appends a big-endian IEEE-754 double.
func (w *Writer) WriteDouble(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// WritePackedInt appends a sorted packed 32-bit integer.
func (w *Writer) WritePackedInt(v int) {
	w.buf = writeSortedInt(w.buf, v)
}

// WritePackedLong appends a sorted packed 64-bit integer.
func (w *Writer) WritePackedLong(v int64) {
	w.buf = writeSortedLong(w.buf, v)
}

// WriteSequenceLength appends a sequence length, -1 meaning absent.
func (w *Writer) WriteSequenceLength(n int) {
	w.WritePackedInt(n)
}

// WriteString appends a possibly absent string.
func (w *Writer) WriteString(s string, present bool) {
	if !present {
		w.WritePackedInt(-1)
		return
	}
	w.WritePackedInt(len(s))
	w.buf = append(w.buf, s...)
}

// WriteStringArray appends a possibly absent string array.
func (w *Writer) WriteStringArray(a []string) {
	if a == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(a))
	for _, s := range a {
		w.WriteString(s, true)
	}
}

// WritePackedIntArray appends a possibly absent packed int array.
func (w *Writer) WritePackedIntArray(a []int) {
	if a == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(a))
	for _, v := range a {
		w.WritePackedInt(v)
	}
}

// WriteByteArray appends a possibly absent byte array.
func (w *Writer) WriteByteArray(b []byte) {
	if b == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(b))
	w.buf = append(w.buf, b...)
}

// WriteBytes appends raw bytes with no length prefix.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteTimestamp appends a timestamp as an ISO-8601 UTC string.
func (w *Writer) WriteTimestamp(t time.Time) {
	w.WriteString(t.UTC().Format(time.RFC3339Nano), true)
}

// WriteNumber appends a NUMBER as its decimal string form.
func (w *Writer) WriteNumber(d decimal.Decimal) {
	w.WriteString(d.String(), true)
}

// WriteFieldValue appends one type-tagged field value.
func (w *Writer) WriteFieldValue(v tidestore.Value) error {
	switch tv := v.(type) {
	case nil:
		w.WriteByte(TypeNull)
	case tidestore.JSONNull:
		w.WriteByte(TypeJSONNull)
	case tidestore.EmptyValue:
		w.WriteByte(TypeEmpty)
	case bool:
		w.WriteByte(TypeBoolean)
		w.WriteBoolean(tv)
	case int:
		w.WriteByte(TypeInteger)
		w.WritePackedInt(tv)
	case int64:
		w.WriteByte(TypeLong)
		w.WritePackedLong(tv)
	case float64:
		w.WriteByte(TypeDouble)
		w.WriteDouble(tv)
	case decimal.Decimal:
		w.WriteByte(TypeNumber)
		w.WriteNumber(tv)
	case string:
		w.WriteByte(TypeString)
		w.WriteString(tv, true)
	case []byte:
		w.WriteByte(TypeBinary)
		w.WriteByteArray(tv)
	case time.Time:
		w.WriteByte(TypeTimestamp)
		w.WriteTimestamp(tv)
	case []any:
		w.WriteByte(TypeArray)
		return w.writeArray(tv)
	case map[string]any:
		w.WriteByte(TypeMap)
		return w.writeMap(tv)
	default:
		return tidestore.NewIllegalState("unknown value type %T", v)
	}
	return nil
}

// writeMap writes a MAP: reserved 4-byte total size, 4-byte entry
// count, then key/value pairs.
func (w *Writer) writeMap(m map[string]any) error {
	sizePos := len(w.buf)
	w.WriteInt(0)
	start := len(w.buf)
	w.WriteInt(len(m))
	for k, v := range m {
		w.WriteString(k, true)
		if err := w.WriteFieldValue(v); err != nil {
			return err
		}
	}
	w.writeIntAt(sizePos, len(w.buf)-start)
	return nil
}

func (w *Writer) writeArray(a []any) error {
	sizePos := len(w.buf)
	w.WriteInt(0)
	start := len(w.buf)
	w.WriteInt(len(a))
	for _, v := range a {
		if err := w.WriteFieldValue(v); err != nil {
			return err
		}
	}
	w.writeIntAt(sizePos, len(w.buf)-start)
	return nil
}

// WriteTopologyInfo appends a possibly absent topology.
func (w *Writer) WriteTopologyInfo(t *tidestore.TopologyInfo) {
	if t == nil {
		w.WritePackedInt(-1)
		return
	}
	w.WritePackedInt(t.SeqNum)
	w.WritePackedIntArray(t.ShardIDs)
}
