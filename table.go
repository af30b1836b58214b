package arscedit

import (
	"unicode/utf16"

	"github.com/pkg/errors"
)

const (
	tableHeaderSize    = 12
	packageHeaderSize  = 288 // with typeIdOffset
	packageHeaderOld   = 284
	packageNameSize    = 256 // 128 UTF-16 units, fixed width
	typeSpecHeaderSize = 16
	typeHeaderBaseSize = 20  // up to and excluding the embedded config

	typeFlagSparse = 0x01
)

// ResourceTable is the parsed model of a resources.arsc file. All views
// point into the caller-owned buffer; nothing is copied.
type ResourceTable struct {
	Data       []byte
	GlobalPool *StringPool
	Packages   []*Package

	index map[ResID][]EntryOccurrence
}

// Package is one resource package of the table.
type Package struct {
	Data []byte // whole package chunk

	ID             uint8
	Name           string
	RawName        []byte // the fixed 256-byte name field as stored
	LastPublicType uint32
	LastPublicKey  uint32
	TypeIDOffset   uint32

	TypeStrings *StringPool
	KeyStrings  *StringPool
	Types       []*TypeInfo
	Unknown     []Chunk // passthrough chunks, re-emitted verbatim
}

// TypeInfo groups a TypeSpec with its configuration-specialized Types.
type TypeInfo struct {
	ID    uint8
	Spec  *TypeSpec
	Types []*Type
}

// TypeSpec carries the per-entry configuration-change bitmask of one
// type.
type TypeSpec struct {
	Data       []byte
	ID         uint8
	EntryCount int
	Flags      []uint32
}

// Type carries the value of every entry of one type for one
// configuration.
type Type struct {
	Data         []byte
	ID           uint8
	Flags        uint8
	EntryCount   int
	EntriesStart int
	Config       Config

	offsets []uint32 // per entry, NoEntry when absent
}

// EntryOccurrence is one (configuration, entry bytes) appearance of a
// resource ID.
type EntryOccurrence struct {
	Config Config
	Type   *Type
	Index  int
	Bytes  []byte
}

// EntryBytes returns the raw entry at index i, header and value
// included, or nil when the entry is absent.
func (t *Type) EntryBytes(i int) ([]byte, error) {
	if i < 0 || i >= len(t.offsets) {
		return nil, errors.Wrapf(ErrNotFound, "entry %d of type 0x%02x", i, t.ID)
	}
	off := t.offsets[i]
	if off == NoEntry {
		return nil, nil
	}
	pos := t.EntriesStart + int(off)
	if pos < t.EntriesStart || pos >= len(t.Data) {
		return nil, errors.Wrapf(ErrSizeOverrun, "entry %d offset 0x%x", i, off)
	}
	n, err := entryLength(t.Data[pos:])
	if err != nil {
		return nil, err
	}
	if pos+n > len(t.Data) {
		return nil, errors.Wrapf(ErrSizeOverrun, "entry %d of %d bytes", i, n)
	}
	return t.Data[pos : pos+n], nil
}

func decodePackageName(b []byte) string {
	units := make([]uint16, 0, packageNameSize/2)
	for i := 0; i+1 < packageNameSize && i+1 < len(b); i += 2 {
		u := getU16(b, i)
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func encodePackageName(name string) []byte {
	out := make([]byte, packageNameSize)
	units := utf16.Encode([]rune(name))
	if len(units) > packageNameSize/2-1 {
		units = units[:packageNameSize/2-1]
	}
	for i, u := range units {
		putU16(out, 2*i, u)
	}
	return out
}

// ParseResourceTable parses a resources.arsc buffer into the model and
// builds the reverse index from resource ID to every occurrence.
func ParseResourceTable(data []byte) (*ResourceTable, error) {
	top, err := parseTopChunk(data, chunkTable)
	if err != nil {
		return nil, err
	}
	if err := top.checkHeaderMin(tableHeaderSize); err != nil {
		return nil, err
	}

	t := &ResourceTable{Data: top.Data}

	cp := newChunkParser(top.Payload())
	for {
		c, ok := cp.Next()
		if !ok {
			break
		}
		switch c.Type {
		case chunkStringPool:
			if t.GlobalPool != nil {
				return nil, errors.Wrap(ErrBadChunkType, "second global string pool")
			}
			t.GlobalPool, err = parseStringPool(c)
			if err != nil {
				return nil, err
			}
		case chunkTablePackage:
			if t.GlobalPool == nil {
				return nil, errors.Wrap(ErrBadChunkType, "package before the global string pool")
			}
			pkg, err := parsePackage(c)
			if err != nil {
				return nil, err
			}
			t.Packages = append(t.Packages, pkg)
		default:
			return nil, errors.Wrapf(ErrBadChunkType, "chunk 0x%04x at table level", c.Type)
		}
	}
	if err := cp.Err(); err != nil {
		return nil, err
	}
	if t.GlobalPool == nil {
		return nil, errors.Wrap(ErrBadChunkType, "table has no global string pool")
	}

	if err := t.buildIndex(); err != nil {
		return nil, err
	}
	return t, nil
}

func parsePackage(c Chunk) (*Package, error) {
	if err := c.checkHeaderMin(packageHeaderOld); err != nil {
		return nil, err
	}

	pkg := &Package{
		Data:           c.Data,
		ID:             uint8(getU32(c.Data, 8)),
		RawName:        c.Data[12 : 12+packageNameSize],
		LastPublicType: getU32(c.Data, 272),
		LastPublicKey:  getU32(c.Data, 280),
	}
	if getU32(c.Data, 8) == 0 {
		return nil, errors.Wrap(ErrBadHeader, "package ID 0")
	}
	pkg.Name = decodePackageName(pkg.RawName)
	typeStringsOff := int(getU32(c.Data, 268))
	keyStringsOff := int(getU32(c.Data, 276))
	if c.HeaderSize >= packageHeaderSize {
		pkg.TypeIDOffset = getU32(c.Data, 284)
	}

	byID := make(map[uint8]*TypeInfo)

	cp := newChunkParser(c.Payload())
	for {
		child, ok := cp.Next()
		if !ok {
			break
		}
		// Offsets in the package header are relative to the package
		// chunk start; the parser reports payload-relative ones.
		abs := child.Offset + int(c.HeaderSize)

		switch child.Type {
		case chunkStringPool:
			pool, err := parseStringPool(child)
			if err != nil {
				return nil, err
			}
			switch abs {
			case typeStringsOff:
				pkg.TypeStrings = pool
			case keyStringsOff:
				pkg.KeyStrings = pool
			default:
				return nil, errors.Wrapf(ErrBadHeader, "string pool at 0x%x is neither type nor key pool", abs)
			}
		case chunkTableTypeSpec:
			spec, err := parseTypeSpec(child)
			if err != nil {
				return nil, err
			}
			if byID[spec.ID] != nil {
				return nil, errors.Wrapf(ErrBadChunkType, "duplicate type spec 0x%02x", spec.ID)
			}
			ti := &TypeInfo{ID: spec.ID, Spec: spec}
			byID[spec.ID] = ti
			pkg.Types = append(pkg.Types, ti)
		case chunkTableType:
			typ, err := parseType(child, byID)
			if err != nil {
				return nil, err
			}
			byID[typ.ID].Types = append(byID[typ.ID].Types, typ)
		default:
			pkg.Unknown = append(pkg.Unknown, child)
		}
	}
	if err := cp.Err(); err != nil {
		return nil, err
	}
	if pkg.TypeStrings == nil || pkg.KeyStrings == nil {
		return nil, errors.Wrapf(ErrBadHeader, "package 0x%02x is missing its type or key string pool", pkg.ID)
	}
	return pkg, nil
}

func parseTypeSpec(c Chunk) (*TypeSpec, error) {
	if err := c.checkHeaderMin(typeSpecHeaderSize); err != nil {
		return nil, err
	}
	spec := &TypeSpec{
		Data:       c.Data,
		ID:         c.Data[8],
		EntryCount: int(getU32(c.Data, 12)),
	}
	if spec.ID == 0 {
		return nil, errors.Wrap(ErrBadHeader, "type spec ID 0")
	}
	if int(c.HeaderSize)+4*spec.EntryCount > len(c.Data) {
		return nil, errors.Wrapf(ErrSizeOverrun, "type spec 0x%02x with %d entries", spec.ID, spec.EntryCount)
	}
	spec.Flags = make([]uint32, spec.EntryCount)
	for i := range spec.Flags {
		spec.Flags[i] = getU32(c.Data, int(c.HeaderSize)+4*i)
	}
	return spec, nil
}

func parseType(c Chunk, byID map[uint8]*TypeInfo) (*Type, error) {
	if err := c.checkHeaderMin(typeHeaderBaseSize + configMinSize); err != nil {
		return nil, err
	}
	cfg, err := parseConfig(c.Data[typeHeaderBaseSize:c.HeaderSize])
	if err != nil {
		return nil, err
	}

	typ := &Type{
		Data:         c.Data,
		ID:           c.Data[8],
		Flags:        c.Data[9],
		EntryCount:   int(getU32(c.Data, 12)),
		EntriesStart: int(getU32(c.Data, 16)),
		Config:       cfg,
	}
	if typ.ID == 0 {
		return nil, errors.Wrap(ErrBadHeader, "type ID 0")
	}
	ti := byID[typ.ID]
	if ti == nil {
		return nil, errors.Wrapf(ErrBadChunkType, "type 0x%02x without a preceding type spec", typ.ID)
	}
	if typ.EntriesStart > len(c.Data) {
		return nil, errors.Wrapf(ErrSizeOverrun, "entries start 0x%x", typ.EntriesStart)
	}

	if typ.Flags&typeFlagSparse != 0 {
		// Sparse offsets: entryCount (u16 index, u16 offset/4) pairs;
		// the logical entry count comes from the type spec.
		typ.offsets = make([]uint32, ti.Spec.EntryCount)
		for i := range typ.offsets {
			typ.offsets[i] = NoEntry
		}
		if int(c.HeaderSize)+4*typ.EntryCount > len(c.Data) {
			return nil, errors.Wrap(ErrSizeOverrun, "sparse offset table")
		}
		for i := 0; i < typ.EntryCount; i++ {
			pos := int(c.HeaderSize) + 4*i
			idx := int(getU16(c.Data, pos))
			if idx >= len(typ.offsets) {
				return nil, errors.Wrapf(ErrSizeOverrun, "sparse entry index %d of %d", idx, len(typ.offsets))
			}
			typ.offsets[idx] = uint32(getU16(c.Data, pos+2)) * 4
		}
		typ.EntryCount = ti.Spec.EntryCount
	} else {
		if typ.EntryCount != ti.Spec.EntryCount {
			return nil, errors.Wrapf(ErrBadHeader, "type 0x%02x has %d entries, spec has %d", typ.ID, typ.EntryCount, ti.Spec.EntryCount)
		}
		if int(c.HeaderSize)+4*typ.EntryCount > len(c.Data) {
			return nil, errors.Wrap(ErrSizeOverrun, "offset table")
		}
		typ.offsets = make([]uint32, typ.EntryCount)
		for i := range typ.offsets {
			typ.offsets[i] = getU32(c.Data, int(c.HeaderSize)+4*i)
		}
	}
	return typ, nil
}

func (t *ResourceTable) buildIndex() error {
	t.index = make(map[ResID][]EntryOccurrence)
	for _, pkg := range t.Packages {
		for _, ti := range pkg.Types {
			for _, typ := range ti.Types {
				for i := 0; i < typ.EntryCount; i++ {
					b, err := typ.EntryBytes(i)
					if err != nil {
						return err
					}
					if b == nil {
						continue
					}
					id := MakeResID(pkg.ID, typ.ID, uint16(i))
					t.index[id] = append(t.index[id], EntryOccurrence{
						Config: typ.Config,
						Type:   typ,
						Index:  i,
						Bytes:  b,
					})
				}
			}
		}
	}
	return nil
}

// EntriesForID lists every (configuration, entry) occurrence of id.
func (t *ResourceTable) EntriesForID(id ResID) []EntryOccurrence {
	return t.index[id]
}

// GetEntryForConfig returns the entry bytes of id under the
// structurally equivalent configuration, or ErrNotFound.
func (t *ResourceTable) GetEntryForConfig(id ResID, cfg Config) ([]byte, error) {
	for _, occ := range t.index[id] {
		if occ.Config.Equivalent(cfg) {
			return occ.Bytes, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "entry for %s", id)
}

// IsEmpty reports whether id has no entry bytes in any configuration.
func (t *ResourceTable) IsEmpty(id ResID) bool {
	for _, occ := range t.index[id] {
		if len(occ.Bytes) > 0 {
			return false
		}
	}
	return true
}

// Package returns the package with the given 8-bit ID.
func (t *ResourceTable) Package(id uint8) (*Package, error) {
	for _, pkg := range t.Packages {
		if pkg.ID == id {
			return pkg, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "package 0x%02x", id)
}
