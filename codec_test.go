package arscedit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLengthPrefixes(t *testing.T) {
	for _, n := range []int{0, 1, 0x7F, 0x80, 200, 0x7FFF} {
		b := appendUtf8Len(nil, n)
		got, size := decodeUtf8Len(b, 0)
		require.Equal(t, n, got)
		require.Equal(t, len(b), size)
	}

	for _, n := range []int{0, 1, 0x7FFF, 0x8000, 70000} {
		b := appendUtf16Len(nil, n)
		got, size := decodeUtf16Len(b, 0)
		require.Equal(t, n, got)
		require.Equal(t, len(b), size)
	}

	// Boundary widths.
	require.Len(t, appendUtf8Len(nil, 0x7F), 1)
	require.Len(t, appendUtf8Len(nil, 0x80), 2)
	require.Len(t, appendUtf16Len(nil, 0x7FFF), 2)
	require.Len(t, appendUtf16Len(nil, 0x8000), 4)
}

func TestAlignment(t *testing.T) {
	require.Equal(t, 0, align4(0))
	require.Equal(t, 4, align4(1))
	require.Equal(t, 4, align4(4))
	require.Equal(t, 8, align4(5))

	b := pad4([]byte{1, 2, 3})
	require.Len(t, b, 4)
	require.EqualValues(t, 0, b[3])
	require.Len(t, pad4(b), 4)
}

func TestByteOrder(t *testing.T) {
	b := appendU16(nil, 0x1234)
	require.Equal(t, []byte{0x34, 0x12}, b)
	require.EqualValues(t, 0x1234, getU16(b, 0))

	b = appendU32(nil, 0xDEADBEEF)
	require.Equal(t, []byte{0xEF, 0xBE, 0xAD, 0xDE}, b)
	require.EqualValues(t, 0xDEADBEEF, getU32(b, 0))

	putU32(b, 0, 7)
	require.EqualValues(t, 7, getU32(b, 0))
}
