package arscedit

import (
	"sort"

	"github.com/pkg/errors"
)

// TableBuilder emits a new resource table from builder objects plus
// optionally verbatim copies of unparsed chunks. Emission is
// deterministic: identical inputs produce byte-identical output.
type TableBuilder struct {
	GlobalPool PoolSource
	packages   []*PackageBuilder
}

func (b *TableBuilder) AddPackage(p *PackageBuilder) {
	b.packages = append(b.packages, p)
}

// PackageBuilder assembles one package chunk. Type entries are emitted
// in ascending type ID regardless of insertion order.
type PackageBuilder struct {
	ID             uint8
	Name           string
	LastPublicType uint32
	LastPublicKey  uint32
	TypeIDOffset   uint32

	TypeStrings PoolSource
	KeyStrings  PoolSource

	types   []packageType
	unknown [][]byte
}

type packageType struct {
	id       uint8
	verbatim *verbatimType
	definer  *TypeDefiner
}

type verbatimType struct {
	spec  []byte
	types [][]byte
}

// AddVerbatimType copies an original TypeSpec chunk and its Type chunks
// byte-for-byte.
func (p *PackageBuilder) AddVerbatimType(id uint8, spec []byte, types [][]byte) {
	p.types = append(p.types, packageType{id: id, verbatim: &verbatimType{spec: spec, types: types}})
}

// AddTypeDefiner synthesizes the TypeSpec and Type chunks for one type.
func (p *PackageBuilder) AddTypeDefiner(d *TypeDefiner) {
	p.types = append(p.types, packageType{id: d.ID, definer: d})
}

// AddUnknownChunk re-emits an unparsed chunk verbatim after the types.
func (p *PackageBuilder) AddUnknownChunk(raw []byte) {
	p.unknown = append(p.unknown, raw)
}

// TypeDefiner synthesizes a TypeSpec plus one Type chunk per non-empty
// configuration. The flags vector fixes the entry count; every
// configuration must supply exactly that many entries (nil for absent).
type TypeDefiner struct {
	ID    uint8
	Flags []uint32

	// Canonical enables entry deduplication: byte-identical payloads
	// are emitted once and share an offset.
	Canonical bool
	// Sparse asks for the sparse offset encoding where it fits.
	Sparse bool

	deleted map[int]bool
	configs []definedConfig
}

type definedConfig struct {
	cfg     Config
	entries [][]byte
}

func NewTypeDefiner(id uint8, flags []uint32) *TypeDefiner {
	return &TypeDefiner{ID: id, Flags: flags, deleted: make(map[int]bool)}
}

// Delete marks one entry slot deleted: its flag slot stays, its value
// is omitted from every configuration.
func (d *TypeDefiner) Delete(entry int) {
	d.deleted[entry] = true
}

// AddConfig appends the per-entry payload vector for one configuration,
// in the order the configurations should be emitted.
func (d *TypeDefiner) AddConfig(cfg Config, entries [][]byte) error {
	if len(entries) != len(d.Flags) {
		return errors.Errorf("type 0x%02x: config has %d entries, flags vector has %d", d.ID, len(entries), len(d.Flags))
	}
	d.configs = append(d.configs, definedConfig{cfg: cfg, entries: entries})
	return nil
}

func (d *TypeDefiner) allDeleted() bool {
	for i := range d.Flags {
		if !d.deleted[i] {
			return false
		}
	}
	return true
}

func (d *TypeDefiner) emit(out []byte) ([]byte, error) {
	if len(d.Flags) == 0 || d.allDeleted() {
		return out, nil
	}

	// TypeSpec.
	n := len(d.Flags)
	out = appendU16(out, chunkTableTypeSpec)
	out = appendU16(out, typeSpecHeaderSize)
	out = appendU32(out, uint32(typeSpecHeaderSize+4*n))
	out = append(out, d.ID, 0, 0, 0)
	out = appendU32(out, uint32(n))
	for _, f := range d.Flags {
		out = appendU32(out, f)
	}

	for _, dc := range d.configs {
		var err error
		out, err = d.emitType(out, dc)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *TypeDefiner) emitType(out []byte, dc definedConfig) ([]byte, error) {
	n := len(d.Flags)

	offsets := make([]uint32, n)
	var payload []byte
	canonical := make(map[string]uint32)
	present := 0
	for i, e := range dc.entries {
		if e == nil || d.deleted[i] {
			offsets[i] = NoEntry
			continue
		}
		if len(e)%4 != 0 {
			return nil, errors.Errorf("type 0x%02x entry %d: %d bytes, not 4-aligned", d.ID, i, len(e))
		}
		present++
		if d.Canonical {
			if off, ok := canonical[string(e)]; ok {
				offsets[i] = off
				continue
			}
		}
		off := uint32(len(payload))
		offsets[i] = off
		payload = append(payload, e...)
		if d.Canonical {
			canonical[string(e)] = off
		}
	}
	if present == 0 {
		// A configuration is empty when every entry for it is absent.
		return out, nil
	}

	sparse := d.Sparse
	if sparse {
		for _, off := range offsets {
			if off != NoEntry && off/4 > 0xFFFF {
				sparse = false
				break
			}
		}
	}

	headerSize := align4(typeHeaderBaseSize + dc.cfg.Size())
	offTableLen := 4 * n
	entryCount := n
	flags := uint8(0)
	if sparse {
		offTableLen = 4 * present
		entryCount = present
		flags = typeFlagSparse
	}
	entriesStart := headerSize + offTableLen
	size := entriesStart + len(payload)

	out = appendU16(out, chunkTableType)
	out = appendU16(out, uint16(headerSize))
	out = appendU32(out, uint32(size))
	out = append(out, d.ID, flags, 0, 0)
	out = appendU32(out, uint32(entryCount))
	out = appendU32(out, uint32(entriesStart))
	out = append(out, dc.cfg.Bytes()...)
	out = pad4(out)

	if sparse {
		for i, off := range offsets {
			if off == NoEntry {
				continue
			}
			out = appendU16(out, uint16(i))
			out = appendU16(out, uint16(off/4))
		}
	} else {
		for _, off := range offsets {
			out = appendU32(out, off)
		}
	}
	return append(out, payload...), nil
}

func (p *PackageBuilder) emit(out []byte) ([]byte, error) {
	if p.ID == 0 {
		return nil, errors.New("package ID 0")
	}

	start := len(out)
	out = appendU16(out, chunkTablePackage)
	out = appendU16(out, packageHeaderSize)
	out = appendU32(out, 0) // size, patched below
	out = appendU32(out, uint32(p.ID))
	out = append(out, encodePackageName(p.Name)...)
	typeStringsAt := len(out)
	out = appendU32(out, 0) // typeStrings offset, patched
	out = appendU32(out, p.LastPublicType)
	keyStringsAt := len(out)
	out = appendU32(out, 0) // keyStrings offset, patched
	out = appendU32(out, p.LastPublicKey)
	out = appendU32(out, p.TypeIDOffset)

	putU32(out, typeStringsAt, uint32(len(out)-start))
	pool, err := p.TypeStrings.emit()
	if err != nil {
		return nil, errors.Wrap(err, "type strings")
	}
	out = append(out, pool...)

	putU32(out, keyStringsAt, uint32(len(out)-start))
	pool, err = p.KeyStrings.emit()
	if err != nil {
		return nil, errors.Wrap(err, "key strings")
	}
	out = append(out, pool...)

	types := make([]packageType, len(p.types))
	copy(types, p.types)
	sort.SliceStable(types, func(i, j int) bool { return types[i].id < types[j].id })

	for _, pt := range types {
		if pt.verbatim != nil {
			out = append(out, pt.verbatim.spec...)
			for _, raw := range pt.verbatim.types {
				out = append(out, raw...)
			}
			continue
		}
		out, err = pt.definer.emit(out)
		if err != nil {
			return nil, err
		}
	}

	for _, raw := range p.unknown {
		out = append(out, raw...)
	}

	out = pad4(out)
	putU32(out, start+4, uint32(len(out)-start))
	return out, nil
}

// Build serializes the table. The total size is written back into the
// table header after everything else is in place.
func (b *TableBuilder) Build() ([]byte, error) {
	out := make([]byte, 0, 4096)
	out = appendU16(out, chunkTable)
	out = appendU16(out, tableHeaderSize)
	out = appendU32(out, 0) // size, patched below
	out = appendU32(out, uint32(len(b.packages)))

	pool, err := b.GlobalPool.emit()
	if err != nil {
		return nil, errors.Wrap(err, "global strings")
	}
	out = append(out, pool...)

	for _, pkg := range b.packages {
		out, err = pkg.emit(out)
		if err != nil {
			return nil, errors.Wrapf(err, "package 0x%02x", pkg.ID)
		}
	}

	putU32(out, 4, uint32(len(out)))
	return out, nil
}
