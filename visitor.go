package arscedit

// Ref is a mutable 4-byte window into a parsed buffer, handed to
// string-ref visitors so edit passes can rewrite references in place.
type Ref struct {
	b []byte
}

func (r Ref) Get() uint32  { return getU32(r.b, 0) }
func (r Ref) Set(v uint32) { putU32(r.b, 0, v) }

func refAt(b []byte, off int) Ref { return Ref{b: b[off : off+4]} }

// TableVisitor receives callbacks in document order while walking a
// resource table. Returning false from any method stops the traversal.
// Embed BaseTableVisitor and override only the hooks a pass needs.
type TableVisitor interface {
	VisitTable(*ResourceTable) bool
	VisitGlobalStrings(*StringPool) bool
	VisitPackage(*Package) bool
	VisitTypeStrings(*Package, *StringPool) bool
	VisitKeyStrings(*Package, *StringPool) bool
	VisitTypeSpec(*Package, *TypeSpec) bool
	VisitType(*Package, *Type) bool
	// VisitEntry sees scalar entries, VisitMapEntry map headers followed
	// by one VisitMapItem per item.
	VisitEntry(*Package, *Type, int, Entry) bool
	VisitMapEntry(*Package, *Type, int, Entry) bool
	VisitMapItem(*Package, *Type, int, MapItem) bool
	VisitUnknownChunk(*Package, Chunk) bool
}

// BaseTableVisitor visits everything and does nothing.
type BaseTableVisitor struct{}

func (BaseTableVisitor) VisitTable(*ResourceTable) bool                  { return true }
func (BaseTableVisitor) VisitGlobalStrings(*StringPool) bool             { return true }
func (BaseTableVisitor) VisitPackage(*Package) bool                      { return true }
func (BaseTableVisitor) VisitTypeStrings(*Package, *StringPool) bool     { return true }
func (BaseTableVisitor) VisitKeyStrings(*Package, *StringPool) bool      { return true }
func (BaseTableVisitor) VisitTypeSpec(*Package, *TypeSpec) bool          { return true }
func (BaseTableVisitor) VisitType(*Package, *Type) bool                  { return true }
func (BaseTableVisitor) VisitEntry(*Package, *Type, int, Entry) bool     { return true }
func (BaseTableVisitor) VisitMapEntry(*Package, *Type, int, Entry) bool  { return true }
func (BaseTableVisitor) VisitMapItem(*Package, *Type, int, MapItem) bool { return true }
func (BaseTableVisitor) VisitUnknownChunk(*Package, Chunk) bool          { return true }

// WalkTable drives a TableVisitor over the parsed table. Returns false
// when the visitor short-circuited, and any entry parse error hit on
// the way.
func WalkTable(t *ResourceTable, v TableVisitor) (bool, error) {
	if !v.VisitTable(t) {
		return false, nil
	}
	if !v.VisitGlobalStrings(t.GlobalPool) {
		return false, nil
	}
	for _, pkg := range t.Packages {
		if !v.VisitPackage(pkg) {
			return false, nil
		}
		if pkg.TypeStrings != nil && !v.VisitTypeStrings(pkg, pkg.TypeStrings) {
			return false, nil
		}
		if pkg.KeyStrings != nil && !v.VisitKeyStrings(pkg, pkg.KeyStrings) {
			return false, nil
		}
		for _, ti := range pkg.Types {
			if !v.VisitTypeSpec(pkg, ti.Spec) {
				return false, nil
			}
			for _, typ := range ti.Types {
				if !v.VisitType(pkg, typ) {
					return false, nil
				}
				for i := 0; i < typ.EntryCount; i++ {
					b, err := typ.EntryBytes(i)
					if err != nil {
						return false, err
					}
					if b == nil {
						continue
					}
					e, err := parseEntry(b)
					if err != nil {
						return false, err
					}
					if e.IsComplex() {
						if !v.VisitMapEntry(pkg, typ, i, e) {
							return false, nil
						}
						for _, it := range e.Items {
							if !v.VisitMapItem(pkg, typ, i, it) {
								return false, nil
							}
						}
					} else if !v.VisitEntry(pkg, typ, i, e) {
						return false, nil
					}
				}
			}
		}
		for _, c := range pkg.Unknown {
			if !v.VisitUnknownChunk(pkg, c) {
				return false, nil
			}
		}
	}
	return true, nil
}

// StringRefVisitor superimposes two callbacks on a table walk: one per
// entry-key reference into the package key pool, one per global-pool
// reference (TYPE_STRING value data and style span names). These two
// hooks are sufficient to drive every rename or remap of the pools.
type StringRefVisitor interface {
	TableVisitor
	VisitKeyStringRef(*Package, Ref) bool
	VisitGlobalStringRef(Ref) bool
}

// WalkStringRefs walks the table and additionally reports every string
// reference through the visitor's ref hooks.
func WalkStringRefs(t *ResourceTable, v StringRefVisitor) (bool, error) {
	// Span names of the global pool reference the pool itself.
	gp := t.GlobalPool
	for i := 0; i < gp.styleCount; i++ {
		pos := gp.stylesStart + int(getU32(gp.data, stringPoolHeaderSize+4*gp.stringCount+4*i))
		for pos+4 <= len(gp.data) && getU32(gp.data, pos) != NoEntry {
			if !v.VisitGlobalStringRef(refAt(gp.data, pos)) {
				return false, nil
			}
			pos += 12
		}
	}

	w := &stringRefWalker{v: v}
	return WalkTable(t, w)
}

type stringRefWalker struct {
	BaseTableVisitor
	v StringRefVisitor
}

func (w *stringRefWalker) visitEntryBytes(pkg *Package, typ *Type, i int) bool {
	b, err := typ.EntryBytes(i)
	if err != nil || b == nil {
		return true
	}
	if !w.v.VisitKeyStringRef(pkg, refAt(b, 4)) {
		return false
	}
	size := int(getU16(b, 0))
	if getU16(b, 2)&entryFlagComplex != 0 {
		count := int(getU32(b, 12))
		for j := 0; j < count; j++ {
			off := size + j*12
			if b[off+4+3] == DataTypeString {
				if !w.v.VisitGlobalStringRef(refAt(b, off+4+4)) {
					return false
				}
			}
		}
		return true
	}
	if b[size+3] == DataTypeString {
		return w.v.VisitGlobalStringRef(refAt(b, size+4))
	}
	return true
}

func (w *stringRefWalker) VisitEntry(pkg *Package, typ *Type, i int, e Entry) bool {
	return w.visitEntryBytes(pkg, typ, i)
}

func (w *stringRefWalker) VisitMapEntry(pkg *Package, typ *Type, i int, e Entry) bool {
	return w.visitEntryBytes(pkg, typ, i)
}

// XmlVisitor receives callbacks while walking a binary XML document.
// Returning false stops the traversal.
type XmlVisitor interface {
	VisitDocument(*XmlDocument) bool
	VisitXmlStrings(*StringPool) bool
	VisitResourceIDs([]uint32) bool
	VisitNode(*XmlNode) bool
	VisitNsStart(*XmlNode, *XmlNamespace) bool
	VisitNsEnd(*XmlNode, *XmlNamespace) bool
	VisitTagStart(*XmlNode, *XmlTagStart) bool
	VisitAttribute(*XmlNode, *XmlAttr) bool
	VisitTagEnd(*XmlNode, *XmlTagEnd) bool
	VisitCdata(*XmlNode, *XmlCdata) bool
}

// BaseXmlVisitor visits everything and does nothing.
type BaseXmlVisitor struct{}

func (BaseXmlVisitor) VisitDocument(*XmlDocument) bool           { return true }
func (BaseXmlVisitor) VisitXmlStrings(*StringPool) bool          { return true }
func (BaseXmlVisitor) VisitResourceIDs([]uint32) bool            { return true }
func (BaseXmlVisitor) VisitNode(*XmlNode) bool                   { return true }
func (BaseXmlVisitor) VisitNsStart(*XmlNode, *XmlNamespace) bool { return true }
func (BaseXmlVisitor) VisitNsEnd(*XmlNode, *XmlNamespace) bool   { return true }
func (BaseXmlVisitor) VisitTagStart(*XmlNode, *XmlTagStart) bool { return true }
func (BaseXmlVisitor) VisitAttribute(*XmlNode, *XmlAttr) bool    { return true }
func (BaseXmlVisitor) VisitTagEnd(*XmlNode, *XmlTagEnd) bool     { return true }
func (BaseXmlVisitor) VisitCdata(*XmlNode, *XmlCdata) bool       { return true }

// WalkXml drives an XmlVisitor over the parsed document.
func WalkXml(d *XmlDocument, v XmlVisitor) bool {
	if !v.VisitDocument(d) {
		return false
	}
	if !v.VisitXmlStrings(d.Pool) {
		return false
	}
	if !v.VisitResourceIDs(d.ResourceIDs) {
		return false
	}
	for i := range d.Nodes {
		node := &d.Nodes[i]
		if !v.VisitNode(node) {
			return false
		}
		switch {
		case node.NsStart != nil:
			if !v.VisitNsStart(node, node.NsStart) {
				return false
			}
		case node.NsEnd != nil:
			if !v.VisitNsEnd(node, node.NsEnd) {
				return false
			}
		case node.TagStart != nil:
			if !v.VisitTagStart(node, node.TagStart) {
				return false
			}
			for j := range node.TagStart.Attrs {
				if !v.VisitAttribute(node, &node.TagStart.Attrs[j]) {
					return false
				}
			}
		case node.TagEnd != nil:
			if !v.VisitTagEnd(node, node.TagEnd) {
				return false
			}
		case node.Cdata != nil:
			if !v.VisitCdata(node, node.Cdata) {
				return false
			}
		}
	}
	return true
}
