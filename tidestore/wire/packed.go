package wire

// Sorted packed integer encoding. Values in [-119,120] take a single
// byte (value+127). Outside that range the first byte encodes the
// count of additional bytes (0x08-n for negative, 0xF7+n for positive)
// and the additional bytes hold the adjusted value (value+119 for
// negative, value-121 for positive) big endian, most significant
// non-filler byte first. Byte-by-byte comparison of two encodings
// orders the same way as the integers themselves, which is what makes
// the encoding usable inside dedup keys and storage keys.

const (
	// maxPackedIntLength is the longest encoding of an int32.
	maxPackedIntLength = 5
	// maxPackedLongLength is the longest encoding of an int64.
	maxPackedLongLength = 9
)

// writeSortedInt appends the encoding of a 32-bit value to dst.
func writeSortedInt(dst []byte, value int) []byte {
	if value >= -119 && value <= 120 {
		return append(dst, byte(value+127))
	}
	if value < -119 {
		v := uint32(int32(value + 119))
		var body [4]byte
		n := 0
		if v|0x00FFFFFF != 0xFFFFFFFF {
			body[n] = byte(v >> 24)
			n++
		}
		if v|0x0000FFFF != 0xFFFFFFFF {
			body[n] = byte(v >> 16)
			n++
		}
		if v|0x000000FF != 0xFFFFFFFF {
			body[n] = byte(v >> 8)
			n++
		}
		body[n] = byte(v)
		n++
		dst = append(dst, byte(0x08-n))
		return append(dst, body[:n]...)
	}
	v := uint32(int32(value - 121))
	var body [4]byte
	n := 0
	if v&0xFF000000 != 0 {
		body[n] = byte(v >> 24)
		n++
	}
	if v&0xFFFF0000 != 0 {
		body[n] = byte(v >> 16)
		n++
	}
	if v&0xFFFFFF00 != 0 {
		body[n] = byte(v >> 8)
		n++
	}
	body[n] = byte(v)
	n++
	dst = append(dst, byte(0xF7+n))
	return append(dst, body[:n]...)
}

// writeSortedLong appends the encoding of a 64-bit value to dst.
func writeSortedLong(dst []byte, value int64) []byte {
	if value >= -119 && value <= 120 {
		return append(dst, byte(value+127))
	}
	if value < -119 {
		v := uint64(value + 119)
		var body [8]byte
		n := 0
		for shift := 56; shift > 0; shift -= 8 {
			filler := ^uint64(0) >> (64 - shift)
			if v|filler != ^uint64(0) {
				body[n] = byte(v >> uint(shift))
				n++
			}
		}
		body[n] = byte(v)
		n++
		dst = append(dst, byte(0x08-n))
		return append(dst, body[:n]...)
	}
	v := uint64(value - 121)
	var body [8]byte
	n := 0
	for shift := 56; shift > 0; shift -= 8 {
		if v&(uint64(0xFF)<<uint(shift)) != 0 || n > 0 {
			body[n] = byte(v >> uint(shift))
			n++
		}
	}
	body[n] = byte(v)
	n++
	dst = append(dst, byte(0xF7+n))
	return append(dst, body[:n]...)
}

// sortedLength returns the total encoded length implied by the first
// byte, including the first byte itself.
func sortedLength(b1 byte) int {
	if b1 < 0x08 {
		return 1 + 0x08 - int(b1)
	}
	if b1 > 0xF7 {
		return 1 + int(b1) - 0xF7
	}
	return 1
}

// readSortedLong decodes one packed value from buf and returns it with
// the number of bytes consumed. buf must hold at least sortedLength
// bytes; the caller checks that.
func readSortedLong(buf []byte) (int64, int) {
	b1 := buf[0]
	if b1 >= 0x08 && b1 <= 0xF7 {
		return int64(b1) - 127, 1
	}
	var byteLen int
	var value int64
	if b1 < 0x08 {
		byteLen = 0x08 - int(b1)
		value = -1
	} else {
		byteLen = int(b1) - 0xF7
		value = 0
	}
	for i := 1; i <= byteLen; i++ {
		value = value<<8 | int64(buf[i])
	}
	if b1 < 0x08 {
		return value - 119, byteLen + 1
	}
	return value + 121, byteLen + 1
}
