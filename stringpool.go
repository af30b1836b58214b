package arscedit

import (
	"sort"
	"sync"
	"unicode/utf16"

	"github.com/pkg/errors"
)

const (
	stringFlagSorted = 0x00000001
	stringFlagUtf8   = 0x00000100

	stringPoolHeaderSize = 28
)

// Span is a styled region of a pool entry: the name references another
// string of the same pool, first/last are UTF-16 code unit positions.
type Span struct {
	Name  uint32
	First uint32
	Last  uint32
}

// StringPool is a read-only view of a RES_STRING_POOL chunk. It points
// into the caller-owned buffer; decoded strings are cached lazily under
// an internal mutex, so concurrent String calls are safe but contend.
type StringPool struct {
	data []byte // whole chunk

	stringCount  int
	styleCount   int
	flags        uint32
	stringsStart int
	stylesStart  int

	mu    sync.Mutex
	cache map[int]string
}

func parseStringPool(c Chunk) (*StringPool, error) {
	if c.Type != chunkStringPool {
		return nil, errors.Wrapf(ErrBadChunkType, "chunk 0x%04x, expected string pool", c.Type)
	}
	if err := c.checkHeaderMin(stringPoolHeaderSize); err != nil {
		return nil, err
	}

	p := &StringPool{
		data:         c.Data,
		stringCount:  int(getU32(c.Data, 8)),
		styleCount:   int(getU32(c.Data, 12)),
		flags:        getU32(c.Data, 16),
		stringsStart: int(getU32(c.Data, 20)),
		stylesStart:  int(getU32(c.Data, 24)),
		cache:        make(map[int]string),
	}

	if p.stringCount < 0 || p.styleCount < 0 || p.styleCount > p.stringCount {
		return nil, errors.Wrapf(ErrBadHeader, "string pool counts %d/%d", p.stringCount, p.styleCount)
	}
	offsetsEnd := int(c.HeaderSize) + 4*p.stringCount + 4*p.styleCount
	if offsetsEnd > len(c.Data) {
		return nil, errors.Wrap(ErrSizeOverrun, "string pool offset arrays")
	}
	if p.stringsStart < offsetsEnd || p.stringsStart > len(c.Data) {
		return nil, errors.Wrapf(ErrBadHeader, "stringsStart 0x%x outside chunk", p.stringsStart)
	}
	if p.styleCount == 0 {
		if p.stylesStart != 0 {
			return nil, errors.Wrapf(ErrBadHeader, "stylesStart 0x%x with no styles", p.stylesStart)
		}
	} else {
		if p.stylesStart < p.stringsStart || p.stylesStart > len(c.Data) {
			return nil, errors.Wrapf(ErrBadHeader, "stylesStart 0x%x outside chunk", p.stylesStart)
		}
		// Style region ends with two terminating sentinels.
		if len(c.Data)-p.stylesStart < 8 ||
			getU32(c.Data, len(c.Data)-4) != NoEntry || getU32(c.Data, len(c.Data)-8) != NoEntry {
			return nil, errors.Wrap(ErrBadHeader, "style region not sentinel-terminated")
		}
	}

	if p.stringCount > 0 {
		charsEnd := p.stylesStart
		if p.styleCount == 0 {
			charsEnd = len(c.Data)
		}
		if charsEnd <= p.stringsStart || c.Data[charsEnd-1] != 0 {
			return nil, errors.Wrap(ErrBadHeader, "string characters not NUL-terminated")
		}
	}

	return p, nil
}

func (p *StringPool) Count() int      { return p.stringCount }
func (p *StringPool) StyleCount() int { return p.styleCount }
func (p *StringPool) IsUTF8() bool    { return p.flags&stringFlagUtf8 != 0 }
func (p *StringPool) IsSorted() bool  { return p.flags&stringFlagSorted != 0 }

// Size is the total chunk size in bytes.
func (p *StringPool) Size() int { return len(p.data) }

// Bytes is the whole chunk, for verbatim copies.
func (p *StringPool) Bytes() []byte { return p.data }

func (p *StringPool) stringOffset(i int) (int, error) {
	if i < 0 || i >= p.stringCount {
		return 0, errors.Wrapf(ErrNotFound, "string index %d of %d", i, p.stringCount)
	}
	off := int(getU32(p.data, stringPoolHeaderSize+4*i))
	pos := p.stringsStart + off
	if pos < p.stringsStart || pos >= len(p.data) {
		return 0, errors.Wrapf(ErrSizeOverrun, "string %d offset 0x%x", i, off)
	}
	return pos, nil
}

// utf8Chars locates the UTF-8 payload of the entry at pos. Some
// historical pools store the UTF-16 length where the UTF-8 byte length
// belongs; walking back two bytes from the character pointer recovers
// the authoritative byte length on both legacy and conformant pools.
func utf8Chars(b []byte, pos int) (chars []byte, encLen int, err error) {
	if pos+2 > len(b) {
		return nil, 0, errors.Wrap(ErrSizeOverrun, "utf8 length prefix")
	}
	_, k1 := decodeUtf8Len(b, pos)
	lenOff := pos + k1
	if lenOff+2 > len(b) {
		return nil, 0, errors.Wrap(ErrSizeOverrun, "utf8 byte-length prefix")
	}
	_, k2 := decodeUtf8Len(b, lenOff)
	start := lenOff + k2

	var n int
	if b[start-2]&0x80 != 0 {
		n = int(b[start-2]&0x7F)<<8 | int(b[start-1])
	} else {
		n = int(b[start-1])
	}

	if start+n+1 > len(b) {
		return nil, 0, errors.Wrapf(ErrSizeOverrun, "utf8 string of %d bytes", n)
	}
	return b[start : start+n], k1 + k2 + n + 1, nil
}

func utf16Chars(b []byte, pos int) (units []byte, encLen int, err error) {
	if pos+2 > len(b) {
		return nil, 0, errors.Wrap(ErrSizeOverrun, "utf16 length prefix")
	}
	n, k := decodeUtf16Len(b, pos)
	start := pos + k
	if start+2*n+2 > len(b) {
		return nil, 0, errors.Wrapf(ErrSizeOverrun, "utf16 string of %d units", n)
	}
	return b[start : start+2*n], k + 2*n + 2, nil
}

// stringBytes returns the raw encoded region of string i: length
// prefixes, characters and the trailing NUL.
func (p *StringPool) stringBytes(i int) ([]byte, error) {
	pos, err := p.stringOffset(i)
	if err != nil {
		return nil, err
	}
	var encLen int
	if p.IsUTF8() {
		_, encLen, err = utf8Chars(p.data, pos)
	} else {
		_, encLen, err = utf16Chars(p.data, pos)
	}
	if err != nil {
		return nil, err
	}
	return p.data[pos : pos+encLen], nil
}

// String decodes entry i, converting UTF-8 entries on first access and
// caching the result.
func (p *StringPool) String(i int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.cache[i]; ok {
		return s, nil
	}

	pos, err := p.stringOffset(i)
	if err != nil {
		return "", err
	}

	var s string
	if p.IsUTF8() {
		chars, _, err := utf8Chars(p.data, pos)
		if err != nil {
			return "", err
		}
		s = string(chars)
	} else {
		raw, _, err := utf16Chars(p.data, pos)
		if err != nil {
			return "", err
		}
		units := make([]uint16, len(raw)/2)
		for j := range units {
			units[j] = getU16(raw, 2*j)
		}
		s = string(utf16.Decode(units))
	}

	p.cache[i] = s
	return s, nil
}

// Spans returns the style spans of string i, or nil when it has none.
func (p *StringPool) Spans(i int) ([]Span, error) {
	if i < 0 || i >= p.styleCount {
		return nil, nil
	}
	pos := p.stylesStart + int(getU32(p.data, stringPoolHeaderSize+4*p.stringCount+4*i))
	if pos < p.stylesStart || pos >= len(p.data) {
		return nil, errors.Wrapf(ErrSizeOverrun, "style %d offset", i)
	}

	var spans []Span
	for {
		if pos+4 > len(p.data) {
			return nil, errors.Wrapf(ErrSizeOverrun, "span list of style %d", i)
		}
		name := getU32(p.data, pos)
		if name == NoEntry {
			break
		}
		if pos+12 > len(p.data) {
			return nil, errors.Wrapf(ErrSizeOverrun, "span of style %d", i)
		}
		spans = append(spans, Span{
			Name:  name,
			First: getU32(p.data, pos+4),
			Last:  getU32(p.data, pos+8),
		})
		pos += 12
	}
	return spans, nil
}

// Find looks up the pool index of s: binary search on sorted pools,
// reverse linear scan otherwise. Returns ErrNotFound when absent.
func (p *StringPool) Find(s string) (int, error) {
	if p.IsSorted() {
		i := sort.Search(p.stringCount, func(i int) bool {
			cur, err := p.String(i)
			return err == nil && cur >= s
		})
		if i < p.stringCount {
			if cur, err := p.String(i); err == nil && cur == s {
				return i, nil
			}
		}
		return 0, errors.Wrapf(ErrNotFound, "string %q", s)
	}

	for i := p.stringCount - 1; i >= 0; i-- {
		cur, err := p.String(i)
		if err != nil {
			return 0, err
		}
		if cur == s {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrNotFound, "string %q", s)
}
