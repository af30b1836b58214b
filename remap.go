package arscedit

import (
	"github.com/pkg/errors"
)

// TableEdit describes one rebuild pass over a resource table. The zero
// value re-emits the table unchanged with verbatim string pools.
type TableEdit struct {
	// IDMap renumbers resource IDs: references to an old ID are
	// rewritten to the new one, and when old and new agree on package
	// and type the entry also moves to the new slot.
	IDMap map[ResID]ResID
	// Deleted entries keep their spec slot but lose their values in
	// every configuration; fully-deleted types are omitted.
	Deleted map[ResID]bool
	// CompactPools drops unreferenced strings from the global and key
	// pools and projects every remaining reference onto the compacted
	// index domain, in input order.
	CompactPools bool
	// CanonicalEntries deduplicates byte-identical entry payloads.
	CanonicalEntries bool
	// SparseTypes asks for sparse offset encoding where it fits.
	SparseTypes bool
}

// projection maps old pool indices onto a compacted domain; -1 means
// dropped.
type projection []int

func identityProjection(n int) projection {
	p := make(projection, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func (p projection) apply(old uint32) (uint32, error) {
	if int(old) >= len(p) || p[old] < 0 {
		return 0, errors.Wrapf(ErrNotFound, "string index %d dropped from pool", old)
	}
	return uint32(p[old]), nil
}

// keptProjection compacts the used set onto new indices in input order,
// pulling in span-referenced strings transitively.
func keptProjection(pool *StringPool, used map[int]bool) (projection, error) {
	queue := make([]int, 0, len(used))
	for i := range used {
		queue = append(queue, i)
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		spans, err := pool.Spans(i)
		if err != nil {
			return nil, err
		}
		for _, sp := range spans {
			if !used[int(sp.Name)] {
				used[int(sp.Name)] = true
				queue = append(queue, int(sp.Name))
			}
		}
	}

	p := make(projection, pool.Count())
	next := 0
	for i := 0; i < pool.Count(); i++ {
		if used[i] {
			p[i] = next
			next++
		} else {
			p[i] = -1
		}
	}
	return p, nil
}

// rebuildPool re-adds the kept strings of pool in input order,
// rewriting span name references through the same projection.
func rebuildPool(pool *StringPool, proj projection) (*StringPoolBuilder, error) {
	nb := NewStringPoolBuilder(pool.IsUTF8())
	nb.SetSorted(pool.IsSorted()) // a subset of a sorted pool stays sorted
	for i := 0; i < pool.Count(); i++ {
		if proj[i] < 0 {
			continue
		}
		s, err := pool.String(i)
		if err != nil {
			return nil, err
		}
		if i < pool.StyleCount() {
			spans, err := pool.Spans(i)
			if err != nil {
				return nil, err
			}
			remapped := make([]Span, len(spans))
			for j, sp := range spans {
				name, err := proj.apply(sp.Name)
				if err != nil {
					return nil, err
				}
				remapped[j] = Span{Name: name, First: sp.First, Last: sp.Last}
			}
			// A styled string keeps its style slot even with an empty
			// span list, demoting it would break the styled-first order.
			if _, err := nb.AddStyled(s, remapped); err != nil {
				return nil, err
			}
			continue
		}
		nb.Add(s)
	}
	return nb, nil
}

// collectStringUses records which global and per-package key pool
// indices are referenced by live (non-deleted) entries.
func collectStringUses(t *ResourceTable, deleted map[ResID]bool) (global map[int]bool, keys map[uint8]map[int]bool, err error) {
	global = make(map[int]bool)
	keys = make(map[uint8]map[int]bool)

	for _, pkg := range t.Packages {
		pkgKeys := make(map[int]bool)
		keys[pkg.ID] = pkgKeys
		for _, ti := range pkg.Types {
			for _, typ := range ti.Types {
				for i := 0; i < typ.EntryCount; i++ {
					if deleted[MakeResID(pkg.ID, typ.ID, uint16(i))] {
						continue
					}
					b, err := typ.EntryBytes(i)
					if err != nil {
						return nil, nil, err
					}
					if b == nil {
						continue
					}
					e, err := parseEntry(b)
					if err != nil {
						return nil, nil, err
					}
					pkgKeys[int(e.KeyIndex)] = true
					if e.Value != nil && e.Value.DataType == DataTypeString {
						global[int(e.Value.Data)] = true
					}
					for _, it := range e.Items {
						if it.Value.DataType == DataTypeString {
							global[int(it.Value.Data)] = true
						}
					}
				}
			}
		}
	}
	return global, keys, nil
}

// rewriteEntry projects the key and string references of e and remaps
// resource-ID references through idMap.
func rewriteEntry(e Entry, keyProj, globalProj projection, idMap map[ResID]ResID) (Entry, error) {
	var err error
	if e.KeyIndex, err = keyProj.apply(e.KeyIndex); err != nil {
		return e, err
	}

	remapValue := func(v *ResValue) error {
		switch v.DataType {
		case DataTypeString:
			mapped, err := globalProj.apply(v.Data)
			if err != nil {
				return err
			}
			v.Data = mapped
		case DataTypeReference, DataTypeAttribute:
			if mapped, ok := idMap[ResID(v.Data)]; ok {
				v.Data = uint32(mapped)
			}
		}
		return nil
	}

	if e.Value != nil {
		if err := remapValue(e.Value); err != nil {
			return e, err
		}
		return e, nil
	}

	if mapped, ok := idMap[e.ParentID]; ok {
		e.ParentID = mapped
	}
	items := make([]MapItem, len(e.Items))
	for i, it := range e.Items {
		if mapped, ok := idMap[it.Name]; ok {
			it.Name = mapped
		}
		if err := remapValue(&it.Value); err != nil {
			return e, err
		}
		items[i] = it
	}
	e.Items = items
	return e, nil
}

// RebuildTable emits a new table applying the edit in a single pass:
// entry deletion, resource-ID remapping, pool compaction with reference
// projection, and canonical-entry deduplication.
func RebuildTable(t *ResourceTable, edit TableEdit) ([]byte, error) {
	idMap := edit.IDMap
	if idMap == nil {
		idMap = map[ResID]ResID{}
	}
	deleted := edit.Deleted
	if deleted == nil {
		deleted = map[ResID]bool{}
	}

	var globalProj projection
	var keyProjs map[uint8]projection

	b := &TableBuilder{}

	if edit.CompactPools {
		globalUsed, keyUsed, err := collectStringUses(t, deleted)
		if err != nil {
			return nil, err
		}
		globalProj, err = keptProjection(t.GlobalPool, globalUsed)
		if err != nil {
			return nil, err
		}
		gb, err := rebuildPool(t.GlobalPool, globalProj)
		if err != nil {
			return nil, err
		}
		b.GlobalPool = PoolSource{Builder: gb}

		keyProjs = make(map[uint8]projection)
		for _, pkg := range t.Packages {
			keyProjs[pkg.ID], err = keptProjection(pkg.KeyStrings, keyUsed[pkg.ID])
			if err != nil {
				return nil, err
			}
		}
	} else {
		globalProj = identityProjection(t.GlobalPool.Count())
		b.GlobalPool = PoolSource{Raw: t.GlobalPool.Bytes()}
		keyProjs = make(map[uint8]projection)
		for _, pkg := range t.Packages {
			keyProjs[pkg.ID] = identityProjection(pkg.KeyStrings.Count())
		}
	}

	for _, pkg := range t.Packages {
		pb := &PackageBuilder{
			ID:             pkg.ID,
			Name:           pkg.Name,
			LastPublicType: pkg.LastPublicType,
			LastPublicKey:  pkg.LastPublicKey,
			TypeIDOffset:   pkg.TypeIDOffset,
			TypeStrings:    PoolSource{Raw: pkg.TypeStrings.Bytes()},
		}
		keyProj := keyProjs[pkg.ID]
		if edit.CompactPools {
			kb, err := rebuildPool(pkg.KeyStrings, keyProj)
			if err != nil {
				return nil, err
			}
			pb.KeyStrings = PoolSource{Builder: kb}
		} else {
			pb.KeyStrings = PoolSource{Raw: pkg.KeyStrings.Bytes()}
		}

		for _, ti := range pkg.Types {
			d, err := rebuildType(pkg, ti, keyProj, globalProj, idMap, deleted, edit)
			if err != nil {
				return nil, err
			}
			pb.AddTypeDefiner(d)
		}

		for _, c := range pkg.Unknown {
			pb.AddUnknownChunk(c.Data)
		}
		b.AddPackage(pb)
	}

	return b.Build()
}

// targetSlot resolves where the entry of id lands after renumbering.
// Cross-type moves are not supported; a mapping that changes package or
// type only rewrites references.
func targetSlot(id ResID, idMap map[ResID]ResID) int {
	mapped, ok := idMap[id]
	if !ok || mapped.Package() != id.Package() || mapped.Type() != id.Type() {
		return int(id.Entry())
	}
	return int(mapped.Entry())
}

func rebuildType(pkg *Package, ti *TypeInfo, keyProj, globalProj projection, idMap map[ResID]ResID, deleted map[ResID]bool, edit TableEdit) (*TypeDefiner, error) {
	n := ti.Spec.EntryCount

	flags := make([]uint32, n)
	for i := 0; i < n; i++ {
		id := MakeResID(pkg.ID, ti.ID, uint16(i))
		slot := targetSlot(id, idMap)
		if slot >= n {
			return nil, errors.Errorf("type 0x%02x: entry %d renumbered to %d of %d", ti.ID, i, slot, n)
		}
		flags[slot] = ti.Spec.Flags[i]
	}

	d := NewTypeDefiner(ti.ID, flags)
	d.Canonical = edit.CanonicalEntries
	d.Sparse = edit.SparseTypes

	for i := 0; i < n; i++ {
		id := MakeResID(pkg.ID, ti.ID, uint16(i))
		if deleted[id] {
			d.Delete(targetSlot(id, idMap))
		}
	}

	for _, typ := range ti.Types {
		entries := make([][]byte, n)
		for i := 0; i < typ.EntryCount; i++ {
			id := MakeResID(pkg.ID, typ.ID, uint16(i))
			if deleted[id] {
				continue
			}
			b, err := typ.EntryBytes(i)
			if err != nil {
				return nil, err
			}
			if b == nil {
				continue
			}
			e, err := parseEntry(b)
			if err != nil {
				return nil, err
			}
			e, err = rewriteEntry(e, keyProj, globalProj, idMap)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %s", id)
			}
			entries[targetSlot(id, idMap)] = e.appendTo(nil)
		}
		if err := d.AddConfig(typ.Config, entries); err != nil {
			return nil, err
		}
	}
	return d, nil
}
