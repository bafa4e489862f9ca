package wire

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidestore/tidestore-go/tidestore"
)

// Field value type codes on the wire.
const (
	TypeArray     = 0
	TypeBinary    = 1
	TypeBoolean   = 2
	TypeDouble    = 3
	TypeInteger   = 4
	TypeLong      = 5
	TypeMap       = 6
	TypeString    = 7
	TypeTimestamp = 8
	TypeNumber    = 9
	TypeJSONNull  = 10
	TypeNull      = 11
	TypeEmpty     = 12
)

// Reader decodes the binary protocol from a byte slice. It is a plain
// cursor; decoding errors are IllegalArgumentErrors since they mean the
// server sent bytes the driver cannot understand.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.off+n > len(r.buf) {
		return tidestore.NewIllegalArgument(
			"unexpected end of stream: need %d bytes at offset %d of %d", n, r.off, len(r.buf))
	}
	return nil
}

// ReadByte reads one byte. Callers that need the signed value (the -1
// node-kind marker) convert through int8.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadBoolean reads one byte, any non-zero value being true.
func (r *Reader) ReadBoolean() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	b := r.buf[r.off]
	r.off++
	return b != 0, nil
}

// ReadShort reads a big-endian signed 16-bit value.
func (r *Reader) ReadShort() (int, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := int(int16(binary.BigEndian.Uint16(r.buf[r.off:])))
	r.off += 2
	return v, nil
}

// ReadInt reads a big-endian signed 32-bit value.
func (r *Reader) ReadInt() (int, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int(int32(binary.BigEndian.Uint32(r.buf[r.off:])))
	r.off += 4
	return v, nil
}

// ReadDouble reads a big-endian IEEE-754 double.
func (r *Reader) ReadDouble() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v, nil
}

func (r *Reader) readSorted() (int64, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	total := sortedLength(r.buf[r.off])
	if err := r.need(total); err != nil {
		return 0, err
	}
	v, n := readSortedLong(r.buf[r.off:])
	r.off += n
	return v, nil
}

// ReadPackedInt reads a sorted packed 32-bit integer.
func (r *Reader) ReadPackedInt() (int, error) {
	v, err := r.readSorted()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, tidestore.NewIllegalArgument("packed int out of range: %d", v)
	}
	return int(v), nil
}

// ReadPackedLong reads a sorted packed 64-bit integer.
func (r *Reader) ReadPackedLong() (int64, error) {
	return r.readSorted()
}

// ReadSequenceLength reads the length of a possibly absent sequence.
// -1 means absent; other negative values are invalid.
func (r *Reader) ReadSequenceLength() (int, error) {
	n, err := r.ReadPackedInt()
	if err != nil {
		return 0, err
	}
	if n < -1 {
		return 0, tidestore.NewIllegalArgument("invalid sequence length: %d", n)
	}
	return n, nil
}

// ReadString reads a possibly absent string: packed length (-1 for
// absent) then UTF-8 bytes. Absence is returned as (nil string, false).
func (r *Reader) ReadString() (string, bool, error) {
	n, err := r.ReadPackedInt()
	if err != nil {
		return "", false, err
	}
	if n < -1 {
		return "", false, tidestore.NewIllegalArgument("invalid string length: %d", n)
	}
	if n == -1 {
		return "", false, nil
	}
	if err := r.need(n); err != nil {
		return "", false, err
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s, true, nil
}

// ReadStringArray reads a possibly absent string array.
func (r *Reader) ReadStringArray() ([]string, error) {
	n, err := r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		s, _, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ReadPackedIntArray reads a possibly absent packed int array.
func (r *Reader) ReadPackedIntArray() ([]int, error) {
	n, err := r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := r.ReadPackedInt()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ReadByteArray reads a possibly absent byte array as a sequence length
// followed by the contents.
func (r *Reader) ReadByteArray() ([]byte, error) {
	n, err := r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:])
	r.off += n
	return out, nil
}

// ReadFieldValue reads one type-tagged field value.
func (r *Reader) ReadFieldValue() (tidestore.Value, error) {
	t, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch int(t) {
	case TypeArray:
		return r.readArray()
	case TypeBinary:
		return r.ReadByteArray()
	case TypeBoolean:
		return r.ReadBoolean()
	case TypeDouble:
		return r.ReadDouble()
	case TypeInteger:
		return r.ReadPackedInt()
	case TypeLong:
		return r.ReadPackedLong()
	case TypeMap:
		return r.readMap()
	case TypeString:
		s, _, err := r.ReadString()
		return s, err
	case TypeTimestamp:
		return r.readTimestamp()
	case TypeNumber:
		return r.readNumber()
	case TypeJSONNull:
		return tidestore.JSONNullValue, nil
	case TypeNull:
		return nil, nil
	case TypeEmpty:
		return tidestore.Empty, nil
	}
	return nil, tidestore.NewIllegalState("unknown value type code: %d", t)
}

// readMap reads a MAP: a 4-byte total size (skipped), a 4-byte entry
// count, then key/value pairs.
func (r *Reader) readMap() (map[string]any, error) {
	if _, err := r.ReadInt(); err != nil {
		return nil, err
	}
	size, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, size)
	for i := 0; i < size; i++ {
		key, _, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		val, err := r.ReadFieldValue()
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

func (r *Reader) readArray() ([]any, error) {
	if _, err := r.ReadInt(); err != nil {
		return nil, err
	}
	size, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	out := make([]any, size)
	for i := 0; i < size; i++ {
		val, err := r.ReadFieldValue()
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

// readTimestamp reads an ISO-8601 string in UTC.
func (r *Reader) readTimestamp() (time.Time, error) {
	s, ok, err := r.ReadString()
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, tidestore.NewIllegalArgument("absent timestamp value")
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, tidestore.NewIllegalArgument("bad timestamp %q: %v", s, err)
	}
	return ts, nil
}

func (r *Reader) readNumber() (decimal.Decimal, error) {
	s, ok, err := r.ReadString()
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !ok {
		return decimal.Decimal{}, tidestore.NewIllegalArgument("absent number value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, tidestore.NewIllegalArgument("bad number %q: %v", s, err)
	}
	return d, nil
}

// ReadTopologyInfo reads a possibly absent topology: packed sequence
// number (-1 for absent) then the shard id array.
func (r *Reader) ReadTopologyInfo() (*tidestore.TopologyInfo, error) {
	seq, err := r.ReadPackedInt()
	if err != nil {
		return nil, err
	}
	if seq < -1 {
		return nil, tidestore.NewIllegalArgument("invalid topology sequence number: %d", seq)
	}
	if seq == -1 {
		return nil, nil
	}
	ids, err := r.ReadPackedIntArray()
	if err != nil {
		return nil, err
	}
	return &tidestore.TopologyInfo{SeqNum: seq, ShardIDs: ids}, nil
}
