package arscedit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func configWith(set func(b []byte)) Config {
	b := make([]byte, 36)
	set(b)
	return NewConfig(b)
}

func TestConfigQualifiers(t *testing.T) {
	require.Equal(t, "default", DefaultConfig().Qualifiers())

	require.Equal(t, "land", landConfig().Qualifiers())

	cfg := configWith(func(b []byte) {
		putU16(b, cfgSmallestWidth, 600)
		b[cfgOrientation] = 2
		putU16(b, cfgDensity, 320)
		putU16(b, cfgSdkVersion, 21)
	})
	require.Equal(t, "sw600dp-land-xhdpi-v21", cfg.Qualifiers())

	cfg = configWith(func(b []byte) {
		b[cfgLanguage] = 'c'
		b[cfgLanguage+1] = 's'
		b[cfgCountry] = 'C'
		b[cfgCountry+1] = 'Z'
		b[cfgUiMode] = 0x20
	})
	require.Equal(t, "cs-rCZ-night", cfg.Qualifiers())

	cfg = configWith(func(b []byte) {
		putU16(b, cfgDensity, 0xFFFF)
	})
	require.Equal(t, "nodpi", cfg.Qualifiers())
}

func TestConfigEquivalentAcrossSizes(t *testing.T) {
	// 28-byte struct vs the same data in a 36-byte struct.
	short := make([]byte, 28)
	short[cfgOrientation] = 2
	long := make([]byte, 36)
	long[cfgOrientation] = 2

	a := NewConfig(short)
	b := NewConfig(long)
	require.True(t, a.Equivalent(b))
	require.True(t, b.Equivalent(a))

	// A non-zero byte past the shorter size breaks the equivalence.
	long[34] = 1
	c := NewConfig(long)
	require.False(t, a.Equivalent(c))

	// Same size, different content.
	other := make([]byte, 28)
	other[cfgOrientation] = 1
	require.False(t, a.Equivalent(NewConfig(other)))
}

func TestConfigIsDefault(t *testing.T) {
	require.True(t, DefaultConfig().IsDefault())
	require.False(t, landConfig().IsDefault())
}

func TestParseConfigBounds(t *testing.T) {
	_, err := parseConfig([]byte{1, 2})
	require.ErrorIs(t, err, ErrSizeOverrun)

	var b []byte
	b = appendU32(b, 64) // declares more than available
	_, err = parseConfig(b)
	require.ErrorIs(t, err, ErrSizeOverrun)

	b = make([]byte, 28)
	putU32(b, 0, 28)
	cfg, err := parseConfig(b)
	require.NoError(t, err)
	require.Equal(t, 28, cfg.Size())
}
