package arscedit

import "encoding/binary"

// Low-level byte helpers. All values on disk are little-endian; these
// routines are total on their input ranges, callers bounds-check first.

func getU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

func getU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func putU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:], v)
}

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

func appendU16(out []byte, v uint16) []byte {
	return append(out, byte(v), byte(v>>8))
}

func appendU32(out []byte, v uint32) []byte {
	return append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// pad4 zero-fills out to the next 4-byte boundary.
func pad4(out []byte) []byte {
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// appendUtf8Len emits a UTF-8 length prefix: one byte below 128,
// otherwise two bytes with the high bit of the first set and the
// remaining 15 bits carrying the length.
func appendUtf8Len(out []byte, n int) []byte {
	if n < 0x80 {
		return append(out, byte(n))
	}
	return append(out, byte(n>>8)|0x80, byte(n))
}

// appendUtf16Len emits a UTF-16 length prefix: one 16-bit unit below
// 0x8000, otherwise two units with the high bit of the first set.
func appendUtf16Len(out []byte, n int) []byte {
	if n < 0x8000 {
		return appendU16(out, uint16(n))
	}
	out = appendU16(out, uint16(n>>16)|0x8000)
	return appendU16(out, uint16(n))
}

// decodeUtf8Len reads a UTF-8 length prefix at off, returning the value
// and the number of bytes it occupied.
func decodeUtf8Len(b []byte, off int) (n, size int) {
	hi := b[off]
	if hi&0x80 == 0 {
		return int(hi), 1
	}
	return int(hi&0x7F)<<8 | int(b[off+1]), 2
}

// decodeUtf16Len reads a UTF-16 length prefix at off, returning the
// value in code units and the number of bytes it occupied.
func decodeUtf16Len(b []byte, off int) (n, size int) {
	hi := getU16(b, off)
	if hi&0x8000 == 0 {
		return int(hi), 2
	}
	return int(hi&0x7FFF)<<16 | int(getU16(b, off+2)), 4
}
