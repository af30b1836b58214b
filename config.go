package arscedit

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Config is one device-configuration descriptor embedded in a Type
// chunk. It is variable-sized and self-describing: the leading u32 is
// the byte size written by the creating toolchain, older toolchains
// wrote fewer fields. The raw bytes are kept verbatim and copied
// byte-for-byte at emission; only a few well-known fields are decoded
// for display.
type Config struct {
	data []byte
}

const configMinSize = 4

func parseConfig(b []byte) (Config, error) {
	if len(b) < configMinSize {
		return Config{}, errors.Wrap(ErrSizeOverrun, "config size field")
	}
	size := int(getU32(b, 0))
	if size < configMinSize || size > len(b) {
		return Config{}, errors.Wrapf(ErrSizeOverrun, "config declares %d bytes, %d available", size, len(b))
	}
	return Config{data: b[:size]}, nil
}

// DefaultConfig returns the all-zero configuration at the classic
// 28-byte struct size.
func DefaultConfig() Config {
	b := make([]byte, 28)
	putU32(b, 0, 28)
	return Config{data: b}
}

// NewConfig wraps raw configuration bytes; the size field is set to
// cover them.
func NewConfig(raw []byte) Config {
	b := make([]byte, len(raw))
	copy(b, raw)
	if len(b) >= 4 {
		putU32(b, 0, uint32(len(b)))
	}
	return Config{data: b}
}

func (c Config) Size() int     { return len(c.data) }
func (c Config) Bytes() []byte { return c.data }

func (c Config) byteAt(off int) byte {
	if off >= len(c.data) {
		return 0
	}
	return c.data[off]
}

func (c Config) u16At(off int) uint16 {
	if off+2 > len(c.data) {
		return 0
	}
	return getU16(c.data, off)
}

// Equivalent compares two configurations structurally: equal declared
// sizes byte-compare, otherwise the shorter side is promoted with zero
// padding to the longer side's size. Required to read files produced by
// older toolchains whose config struct was smaller.
func (c Config) Equivalent(o Config) bool {
	a, b := c.data, o.data
	if len(a) > len(b) {
		a, b = b, a
	}
	// Skip the size field itself, it legitimately differs.
	for i := 4; i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	for i := len(a); i < len(b); i++ {
		if b[i] != 0 {
			return false
		}
	}
	return true
}

func (c Config) IsDefault() bool {
	for _, b := range c.data[4:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// Well-known field offsets past the size prefix.
const (
	cfgMcc            = 4
	cfgMnc            = 6
	cfgLanguage       = 8
	cfgCountry        = 10
	cfgOrientation    = 12
	cfgDensity        = 14
	cfgSdkVersion     = 24
	cfgScreenLayout   = 28
	cfgUiMode         = 29
	cfgSmallestWidth  = 30
	cfgScreenWidthDp  = 32
	cfgScreenHeightDp = 34
)

func (c Config) Locale() string {
	l0, l1 := c.byteAt(cfgLanguage), c.byteAt(cfgLanguage+1)
	if l0 == 0 {
		return ""
	}
	c0, c1 := c.byteAt(cfgCountry), c.byteAt(cfgCountry+1)
	if c0 == 0 {
		return fmt.Sprintf("%c%c", l0, l1)
	}
	return fmt.Sprintf("%c%c-r%c%c", l0, l1, c0, c1)
}

// Qualifiers renders the configuration the way resource directories
// name it ("land", "sw600dp-land", ...), or "default".
func (c Config) Qualifiers() string {
	var parts []string

	if mcc := c.u16At(cfgMcc); mcc != 0 {
		parts = append(parts, fmt.Sprintf("mcc%d", mcc))
	}
	if mnc := c.u16At(cfgMnc); mnc != 0 {
		parts = append(parts, fmt.Sprintf("mnc%d", mnc))
	}
	if loc := c.Locale(); loc != "" {
		parts = append(parts, loc)
	}
	if sw := c.u16At(cfgSmallestWidth); sw != 0 {
		parts = append(parts, fmt.Sprintf("sw%ddp", sw))
	}
	if w := c.u16At(cfgScreenWidthDp); w != 0 {
		parts = append(parts, fmt.Sprintf("w%ddp", w))
	}
	if h := c.u16At(cfgScreenHeightDp); h != 0 {
		parts = append(parts, fmt.Sprintf("h%ddp", h))
	}
	if night := c.byteAt(cfgUiMode) & 0x30; night == 0x20 {
		parts = append(parts, "night")
	}
	switch c.byteAt(cfgOrientation) {
	case 1:
		parts = append(parts, "port")
	case 2:
		parts = append(parts, "land")
	case 3:
		parts = append(parts, "square")
	}
	switch d := c.u16At(cfgDensity); d {
	case 0:
	case 120:
		parts = append(parts, "ldpi")
	case 160:
		parts = append(parts, "mdpi")
	case 240:
		parts = append(parts, "hdpi")
	case 320:
		parts = append(parts, "xhdpi")
	case 480:
		parts = append(parts, "xxhdpi")
	case 640:
		parts = append(parts, "xxxhdpi")
	case 0xFFFE:
		parts = append(parts, "anydpi")
	case 0xFFFF:
		parts = append(parts, "nodpi")
	default:
		parts = append(parts, fmt.Sprintf("%ddpi", d))
	}
	if sdk := c.u16At(cfgSdkVersion); sdk != 0 {
		parts = append(parts, fmt.Sprintf("v%d", sdk))
	}

	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, "-")
}
