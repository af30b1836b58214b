package arscedit

import (
	"fmt"
	"sort"
)

// SizeAttribution is the size breakdown of one resource ID.
//
// PrivateSize counts bytes only this resource accounts for: its offset
// slots, entry payloads with a single referrer and strings referenced
// by nothing else. SharedSize counts the full size of every shared
// object the resource touches, so it double counts across resources.
// Proportional divides shared objects and container overhead evenly
// among their consumers; summed over all resources it reproduces the
// file size.
type SizeAttribution struct {
	ID           ResID
	Type         string
	Name         string
	PrivateSize  int
	SharedSize   int
	Proportional float64
	Configs      []string
}

type sizeAcc struct {
	private int
	shared  int
	prop    float64
	configs []string
}

type attributor struct {
	t    *ResourceTable
	accs map[ResID]*sizeAcc
}

func (a *attributor) acc(id ResID) *sizeAcc {
	acc := a.accs[id]
	if acc == nil {
		acc = &sizeAcc{}
		a.accs[id] = acc
	}
	return acc
}

func (a *attributor) addPrivate(id ResID, n int) {
	acc := a.acc(id)
	acc.private += n
	acc.prop += float64(n)
}

func (a *attributor) addShared(id ResID, total int, share float64) {
	acc := a.acc(id)
	acc.shared += total
	acc.prop += share
}

// spread divides container overhead evenly among ids; overhead touches
// neither the private nor the shared column.
func (a *attributor) spread(overhead int, ids []ResID) {
	if overhead <= 0 || len(ids) == 0 {
		return
	}
	share := float64(overhead) / float64(len(ids))
	for _, id := range ids {
		a.acc(id).prop += share
	}
}

// stringCost is the full footprint of pool entry i: its offset slot,
// the encoded characters and, for styled entries, the style offset
// slot, the spans and the span list terminator.
func stringCost(p *StringPool, i int) (int, error) {
	raw, err := p.stringBytes(i)
	if err != nil {
		return 0, err
	}
	cost := 4 + len(raw)
	if i < p.StyleCount() {
		spans, err := p.Spans(i)
		if err != nil {
			return 0, err
		}
		cost += 4 + 12*len(spans) + 4
	}
	return cost, nil
}

// attributePool splits one string pool: every string with referrers is
// charged to them, everything else (header, trailing sentinels, dead
// strings) is pool overhead spread over fallback.
func (a *attributor) attributePool(p *StringPool, users map[int]map[ResID]bool, fallback []ResID) error {
	accounted := 0
	for i := 0; i < p.Count(); i++ {
		ids := users[i]
		if len(ids) == 0 {
			continue
		}
		cost, err := stringCost(p, i)
		if err != nil {
			return err
		}
		accounted += cost
		if len(ids) == 1 {
			for id := range ids {
				a.addPrivate(id, cost)
			}
			continue
		}
		share := float64(cost) / float64(len(ids))
		for id := range ids {
			a.addShared(id, cost, share)
		}
	}
	a.spread(p.Size()-accounted, fallback)
	return nil
}

// AttributeTableSizes explains where every byte of the table went,
// keyed by resource ID. The optional names map overrides the display
// name per ID; entries without an override fall back to
// "type/keystring".
func AttributeTableSizes(t *ResourceTable, names map[ResID]string) ([]SizeAttribution, error) {
	a := &attributor{t: t, accs: make(map[ResID]*sizeAcc)}

	globalUsers := make(map[int]map[ResID]bool)
	keyUsers := make(map[uint8]map[int]map[ResID]bool)
	addUser := func(m map[int]map[ResID]bool, i int, id ResID) {
		if m[i] == nil {
			m[i] = make(map[ResID]bool)
		}
		m[i][id] = true
	}

	var allIDs []ResID
	perPackage := make(map[uint8][]ResID)
	displayKey := make(map[ResID]uint32)

	for _, pkg := range t.Packages {
		keyUsers[pkg.ID] = make(map[int]map[ResID]bool)
		seen := make(map[ResID]bool)
		for _, ti := range pkg.Types {
			for _, typ := range ti.Types {
				for i := 0; i < typ.EntryCount; i++ {
					b, err := typ.EntryBytes(i)
					if err != nil {
						return nil, err
					}
					if b == nil {
						continue
					}
					id := MakeResID(pkg.ID, typ.ID, uint16(i))
					if !seen[id] {
						seen[id] = true
						allIDs = append(allIDs, id)
						perPackage[pkg.ID] = append(perPackage[pkg.ID], id)
					}
					e, err := parseEntry(b)
					if err != nil {
						return nil, err
					}
					displayKey[id] = e.KeyIndex
					addUser(keyUsers[pkg.ID], int(e.KeyIndex), id)
					if e.Value != nil && e.Value.DataType == DataTypeString {
						addUser(globalUsers, int(e.Value.Data), id)
					}
					for _, it := range e.Items {
						if it.Value.DataType == DataTypeString {
							addUser(globalUsers, int(it.Value.Data), id)
						}
					}
					a.acc(id).configs = appendConfig(a.acc(id).configs, typ.Config)
				}
			}
		}
	}

	if err := a.attributePool(t.GlobalPool, globalUsers, allIDs); err != nil {
		return nil, err
	}

	for _, pkg := range t.Packages {
		pkgIDs := perPackage[pkg.ID]
		if err := a.attributePool(pkg.KeyStrings, keyUsers[pkg.ID], pkgIDs); err != nil {
			return nil, err
		}

		accounted := pkg.TypeStrings.Size() + pkg.KeyStrings.Size()
		for _, ti := range pkg.Types {
			a.attributeTypeSpec(pkg, ti, pkgIDs)
			accounted += len(ti.Spec.Data)
			for _, typ := range ti.Types {
				if err := a.attributeType(pkg, typ, pkgIDs); err != nil {
					return nil, err
				}
				accounted += len(typ.Data)
			}
		}
		for _, c := range pkg.Unknown {
			accounted += len(c.Data)
		}
		// Package header, padding, the type-name pool and passthrough
		// chunks serve the whole package.
		unknownTotal := 0
		for _, c := range pkg.Unknown {
			unknownTotal += len(c.Data)
		}
		a.spread(len(pkg.Data)-accounted+unknownTotal+pkg.TypeStrings.Size(), pkgIDs)
	}

	// Table header and anything between the top-level chunks.
	tableAccounted := t.GlobalPool.Size()
	for _, pkg := range t.Packages {
		tableAccounted += len(pkg.Data)
	}
	a.spread(len(t.Data)-tableAccounted, allIDs)

	out := make([]SizeAttribution, 0, len(allIDs))
	for _, id := range allIDs {
		acc := a.accs[id]
		pkg, err := t.Package(id.Package())
		if err != nil {
			return nil, err
		}
		out = append(out, SizeAttribution{
			ID:           id,
			Type:         typeName(pkg, id.Type()),
			Name:         resourceName(pkg, names, id, displayKey[id]),
			PrivateSize:  acc.private,
			SharedSize:   acc.shared,
			Proportional: acc.prop,
			Configs:      acc.configs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// attributeTypeSpec charges 4 bytes of flag slot to every resource with
// a value; empty slots and the header are type overhead.
func (a *attributor) attributeTypeSpec(pkg *Package, ti *TypeInfo, pkgIDs []ResID) {
	var typeIDs []ResID
	accounted := 0
	for i := 0; i < ti.Spec.EntryCount; i++ {
		id := MakeResID(pkg.ID, ti.ID, uint16(i))
		if a.accs[id] == nil {
			continue
		}
		typeIDs = append(typeIDs, id)
		a.addPrivate(id, 4)
		accounted += 4
	}
	fallback := typeIDs
	if len(fallback) == 0 {
		fallback = pkgIDs
	}
	a.spread(len(ti.Spec.Data)-accounted, fallback)
}

// attributeType charges each present resource its offset slot plus its
// share of the entry range; byte-identical entries deduplicated onto
// one offset split that range. Header, config and dead offset slots are
// configuration overhead.
func (a *attributor) attributeType(pkg *Package, typ *Type, pkgIDs []ResID) error {
	byOffset := make(map[uint32][]ResID)
	var present []ResID
	accounted := 0

	for i, off := range typ.offsets {
		if off == NoEntry {
			continue
		}
		id := MakeResID(pkg.ID, typ.ID, uint16(i))
		present = append(present, id)
		a.addPrivate(id, 4)
		accounted += 4
		byOffset[off] = append(byOffset[off], id)
	}

	for off, ids := range byOffset {
		pos := typ.EntriesStart + int(off)
		n, err := entryLength(typ.Data[pos:])
		if err != nil {
			return err
		}
		accounted += n
		if len(ids) == 1 {
			a.addPrivate(ids[0], n)
			continue
		}
		share := float64(n) / float64(len(ids))
		for _, id := range ids {
			a.addShared(id, n, share)
		}
	}

	fallback := present
	if len(fallback) == 0 {
		fallback = pkgIDs
	}
	a.spread(len(typ.Data)-accounted, fallback)
	return nil
}

func appendConfig(configs []string, cfg Config) []string {
	q := cfg.Qualifiers()
	for _, c := range configs {
		if c == q {
			return configs
		}
	}
	return append(configs, q)
}

func typeName(pkg *Package, typ uint8) string {
	if pkg.TypeStrings != nil {
		if s, err := pkg.TypeStrings.String(int(typ) - 1); err == nil {
			return s
		}
	}
	return fmt.Sprintf("0x%02x", typ)
}

func resourceName(pkg *Package, names map[ResID]string, id ResID, key uint32) string {
	if s, ok := names[id]; ok {
		return s
	}
	if pkg.KeyStrings != nil {
		if s, err := pkg.KeyStrings.String(int(key)); err == nil {
			return typeName(pkg, id.Type()) + "/" + s
		}
	}
	return id.String()
}
