package arscedit

import (
	"unicode/utf16"

	"github.com/pkg/errors"
)

// StringPoolBuilder assembles a new string pool chunk. Strings keep
// their insertion order; all style-bearing strings must be added before
// any plain string, which makes the style offset array line up with the
// leading string indices.
type StringPoolBuilder struct {
	utf8   bool
	sorted bool

	strings []builderString
	styled  int
}

type builderString struct {
	s     string
	spans []Span
}

func NewStringPoolBuilder(utf8 bool) *StringPoolBuilder {
	return &StringPoolBuilder{utf8: utf8}
}

func (b *StringPoolBuilder) SetSorted(sorted bool) { b.sorted = sorted }

func (b *StringPoolBuilder) Count() int { return len(b.strings) }

// Add appends a plain string and returns its final pool index.
func (b *StringPoolBuilder) Add(s string) int {
	b.strings = append(b.strings, builderString{s: s})
	return len(b.strings) - 1
}

// AddStyled appends a style-bearing string. Span names reference other
// strings by their final pool index. Fails when a plain string was
// already added, style-bearing strings come first.
func (b *StringPoolBuilder) AddStyled(s string, spans []Span) (int, error) {
	if b.styled != len(b.strings) {
		return 0, errors.Errorf("styled string %q added after %d plain strings", s, len(b.strings)-b.styled)
	}
	b.strings = append(b.strings, builderString{s: s, spans: spans})
	b.styled++
	return len(b.strings) - 1, nil
}

// The UTF-8 length prefixes carry 15 bits each; longer strings are
// rejected rather than silently truncated.
func encodeUtf8String(out []byte, s string) ([]byte, error) {
	units := len(utf16.Encode([]rune(s)))
	if units > 0x7FFF || len(s) > 0x7FFF {
		return nil, errors.Errorf("utf8 string of %d bytes does not fit the length prefix", len(s))
	}
	out = appendUtf8Len(out, units)
	out = appendUtf8Len(out, len(s))
	out = append(out, s...)
	return append(out, 0), nil
}

func encodeUtf16String(out []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	out = appendUtf16Len(out, len(units))
	for _, u := range units {
		out = appendU16(out, u)
	}
	return appendU16(out, 0)
}

// Build serializes the pool: header, string offsets, style offsets,
// 4-byte aligned characters, then span lists each closed by a sentinel
// and the whole style region closed by two more.
func (b *StringPoolBuilder) Build() ([]byte, error) {
	count := len(b.strings)

	var chars []byte
	offsets := make([]uint32, count)
	for i, bs := range b.strings {
		offsets[i] = uint32(len(chars))
		if b.utf8 {
			var err error
			chars, err = encodeUtf8String(chars, bs.s)
			if err != nil {
				return nil, err
			}
		} else {
			chars = encodeUtf16String(chars, bs.s)
		}
	}
	chars = pad4(chars)

	var styles []byte
	styleOffsets := make([]uint32, b.styled)
	for i := 0; i < b.styled; i++ {
		styleOffsets[i] = uint32(len(styles))
		for _, sp := range b.strings[i].spans {
			styles = appendU32(styles, sp.Name)
			styles = appendU32(styles, sp.First)
			styles = appendU32(styles, sp.Last)
		}
		styles = appendU32(styles, NoEntry)
	}
	if b.styled > 0 {
		styles = appendU32(styles, NoEntry)
		styles = appendU32(styles, NoEntry)
	}

	stringsStart := stringPoolHeaderSize + 4*count + 4*b.styled
	stylesStart := 0
	if b.styled > 0 {
		stylesStart = stringsStart + len(chars)
	}

	var flags uint32
	if b.utf8 {
		flags |= stringFlagUtf8
	}
	if b.sorted {
		flags |= stringFlagSorted
	}

	out := make([]byte, 0, stringsStart+len(chars)+len(styles))
	out = appendU16(out, chunkStringPool)
	out = appendU16(out, stringPoolHeaderSize)
	out = appendU32(out, 0) // size, patched below
	out = appendU32(out, uint32(count))
	out = appendU32(out, uint32(b.styled))
	out = appendU32(out, flags)
	out = appendU32(out, uint32(stringsStart))
	out = appendU32(out, uint32(stylesStart))
	for _, off := range offsets {
		out = appendU32(out, off)
	}
	for _, off := range styleOffsets {
		out = appendU32(out, off)
	}
	out = append(out, chars...)
	out = append(out, styles...)
	putU32(out, 4, uint32(len(out)))
	return out, nil
}

// PoolSource feeds a pool to the table and XML builders: either a
// builder that emits a fresh chunk or a verbatim copy of an existing
// one. Exactly one of the two must be set.
type PoolSource struct {
	Builder *StringPoolBuilder
	Raw     []byte
}

func (s PoolSource) emit() ([]byte, error) {
	switch {
	case s.Builder != nil && s.Raw == nil:
		return s.Builder.Build()
	case s.Raw != nil && s.Builder == nil:
		return s.Raw, nil
	default:
		return nil, errors.New("pool source needs exactly one of builder or raw bytes")
	}
}
