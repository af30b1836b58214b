package arscedit

import (
	"github.com/pkg/errors"
)

// RebuildXmlPool rebuilds the document's string pool, passing every old
// string through the rename map. Style/plain ordering and pool indices
// are preserved, so the node region is copied verbatim. Returns the new
// document bytes and whether anything changed.
func RebuildXmlPool(data []byte, renames map[string]string) ([]byte, bool, error) {
	d, err := ParseXmlDocument(data)
	if err != nil {
		return nil, false, err
	}

	nb := NewStringPoolBuilder(d.Pool.IsUTF8())
	changed := false
	for i := 0; i < d.Pool.Count(); i++ {
		s, err := d.Pool.String(i)
		if err != nil {
			return nil, false, err
		}
		if repl, ok := renames[s]; ok && repl != s {
			s = repl
			changed = true
		}
		if i < d.Pool.StyleCount() {
			spans, err := d.Pool.Spans(i)
			if err != nil {
				return nil, false, err
			}
			if _, err := nb.AddStyled(s, spans); err != nil {
				return nil, false, err
			}
		} else {
			nb.Add(s)
		}
	}
	if !changed {
		return data, false, nil
	}
	// Renaming can break the sort order; the flag is only kept on
	// untouched pools.
	nb.SetSorted(false)
	pool, err := nb.Build()
	if err != nil {
		return nil, false, err
	}
	return d.replacePool(pool), true, nil
}

// RemapXmlResourceIDs rewrites resource-ID references in place: first
// the attribute-ID side array, then the value of every attribute whose
// type is a reference or attribute and whose data lies in the
// application package range. Returns whether any change occurred.
func RemapXmlResourceIDs(data []byte, idMap map[uint32]uint32) (bool, error) {
	d, err := ParseXmlDocument(data)
	if err != nil {
		return false, err
	}

	changed := false
	for i, id := range d.ResourceIDs {
		if mapped, ok := idMap[id]; ok && mapped != id {
			putU32(data, d.resMapStart+chunkHeaderSize+4*i, mapped)
			changed = true
		}
	}

	for _, node := range d.Nodes {
		if node.TagStart == nil {
			continue
		}
		for _, attr := range node.TagStart.Attrs {
			if attr.Value.DataType != DataTypeReference && attr.Value.DataType != DataTypeAttribute {
				continue
			}
			if attr.Value.Data <= PackageResIDStart {
				continue
			}
			if mapped, ok := idMap[attr.Value.Data]; ok && mapped != attr.Value.Data {
				putU32(data, attr.Offset+16, mapped)
				changed = true
			}
		}
	}
	return changed, nil
}

// SetXmlAttribute overwrites the data word and stored type of every
// attribute identified by (element name, attribute resource ID), in
// place. Sizes never change. Returns whether a matching attribute was
// found.
func SetXmlAttribute(data []byte, tag string, attrResID uint32, dataType uint8, dataWord uint32) (bool, error) {
	d, err := ParseXmlDocument(data)
	if err != nil {
		return false, err
	}

	changed := false
	for _, node := range d.Nodes {
		if node.TagStart == nil {
			continue
		}
		name, err := d.Pool.String(int(node.TagStart.Name))
		if err != nil || name != tag {
			continue
		}
		for _, attr := range node.TagStart.Attrs {
			if d.AttrResID(attr.Name) != attrResID {
				continue
			}
			data[attr.Offset+15] = dataType
			putU32(data, attr.Offset+16, dataWord)
			changed = true
		}
	}
	return changed, nil
}

// bumpRef increments the pool reference at off when it is at or past
// the insertion index.
func bumpRef(b []byte, off int, insertAt uint32) {
	v := getU32(b, off)
	if v != NoEntry && v >= insertAt {
		putU32(b, off, v+1)
	}
}

// shiftNodeRefs adjusts every pool reference inside one raw node chunk
// after a string was inserted at index insertAt.
func shiftNodeRefs(b []byte, node *XmlNode, insertAt uint32) {
	bumpRef(b, 12, insertAt) // comment

	hdr := int(node.Chunk.HeaderSize)
	switch {
	case node.NsStart != nil, node.NsEnd != nil:
		bumpRef(b, hdr, insertAt)
		bumpRef(b, hdr+4, insertAt)
	case node.TagStart != nil:
		bumpRef(b, hdr, insertAt)
		bumpRef(b, hdr+4, insertAt)
		base := hdr + int(node.TagStart.AttrStart)
		for i := range node.TagStart.Attrs {
			off := base + i*int(node.TagStart.AttrSize)
			bumpRef(b, off, insertAt)
			bumpRef(b, off+4, insertAt)
			bumpRef(b, off+8, insertAt)
			if b[off+15] == DataTypeString {
				bumpRef(b, off+16, insertAt)
			}
		}
	case node.TagEnd != nil:
		bumpRef(b, hdr, insertAt)
		bumpRef(b, hdr+4, insertAt)
	case node.Cdata != nil:
		bumpRef(b, hdr, insertAt)
		if b[hdr+4+3] == DataTypeString {
			bumpRef(b, hdr+4+4, insertAt)
		}
	}
}

// AddXmlAttribute inserts one attribute into the first element named
// tag. The attribute name string and its resource ID are appended to
// the pool and the side array when not already present; the string is
// inserted right after the last side-array index so the two arrays keep
// lining up, and every later pool reference is shifted by one.
func AddXmlAttribute(data []byte, tag string, attrResID uint32, name, nsURI string, dataType uint8, dataWord uint32) ([]byte, error) {
	d, err := ParseXmlDocument(data)
	if err != nil {
		return nil, err
	}

	nameIdx := -1
	for i, id := range d.ResourceIDs {
		if id == attrResID {
			nameIdx = i
			break
		}
	}

	resourceIDs := append([]uint32(nil), d.ResourceIDs...)
	insertAt := uint32(NoEntry)
	if nameIdx < 0 {
		nameIdx = len(resourceIDs)
		insertAt = uint32(nameIdx)
		resourceIDs = append(resourceIDs, attrResID)
	}

	// Rebuild the pool, inserting the attribute name when needed.
	nb := NewStringPoolBuilder(d.Pool.IsUTF8())
	for i := 0; i < d.Pool.Count(); i++ {
		if insertAt != NoEntry && i == int(insertAt) {
			nb.Add(name)
		}
		s, err := d.Pool.String(i)
		if err != nil {
			return nil, err
		}
		if i < d.Pool.StyleCount() {
			spans, err := d.Pool.Spans(i)
			if err != nil {
				return nil, err
			}
			shifted := make([]Span, len(spans))
			for j, sp := range spans {
				shifted[j] = sp
				if insertAt != NoEntry && sp.Name >= insertAt {
					shifted[j].Name++
				}
			}
			if _, err := nb.AddStyled(s, shifted); err != nil {
				return nil, err
			}
		} else {
			nb.Add(s)
		}
	}
	if insertAt != NoEntry && int(insertAt) == d.Pool.Count() {
		nb.Add(name)
	}

	nsIdx := uint32(NoEntry)
	if nsURI != "" {
		found := false
		for i := 0; i < d.Pool.Count(); i++ {
			s, err := d.Pool.String(i)
			if err != nil {
				return nil, err
			}
			if s == nsURI {
				nsIdx = uint32(i)
				if insertAt != NoEntry && nsIdx >= insertAt {
					nsIdx++
				}
				found = true
				break
			}
		}
		if !found {
			nsIdx = uint32(nb.Add(nsURI))
		}
	}

	// Reassemble the document.
	pool, err := nb.Build()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+64)
	out = append(out, data[:d.poolStart]...)
	out = append(out, pool...)

	out = appendU16(out, chunkXmlResourceMap)
	out = appendU16(out, chunkHeaderSize)
	out = appendU32(out, uint32(chunkHeaderSize+4*len(resourceIDs)))
	for _, id := range resourceIDs {
		out = appendU32(out, id)
	}

	inserted := false
	for i := range d.Nodes {
		node := &d.Nodes[i]
		raw := append([]byte(nil), node.Chunk.Data...)
		if insertAt != NoEntry {
			shiftNodeRefs(raw, node, insertAt)
		}

		if !inserted && node.TagStart != nil {
			tagName, err := d.Pool.String(int(node.TagStart.Name))
			if err == nil && tagName == tag {
				raw, err = insertAttrRecord(raw, d, node, uint32(nameIdx), nsIdx, attrResID, insertAt, dataType, dataWord)
				if err != nil {
					return nil, err
				}
				inserted = true
			}
		}
		out = append(out, raw...)
	}
	if !inserted {
		return nil, errors.Wrapf(ErrNotFound, "element %q", tag)
	}

	putU32(out, 4, uint32(len(out)))
	return out, nil
}

func insertAttrRecord(raw []byte, d *XmlDocument, node *XmlNode, nameIdx, nsIdx, attrResID, insertAt uint32, dataType uint8, dataWord uint32) ([]byte, error) {
	tag := node.TagStart
	if int(tag.AttrSize) != xmlAttrSize {
		return nil, errors.Errorf("cannot insert into start tag with attribute size %d", tag.AttrSize)
	}

	// Keep ID-carrying attributes sorted by resource ID, ID-less ones
	// after them, the way aapt emits tags.
	pos := len(tag.Attrs)
	for i, a := range tag.Attrs {
		rid := d.AttrResID(a.Name)
		if rid == 0 || rid > attrResID {
			pos = i
			break
		}
	}

	var rec []byte
	rec = appendU32(rec, nsIdx)
	rec = appendU32(rec, nameIdx)
	rawValue := uint32(NoEntry)
	if dataType == DataTypeString {
		rawValue = dataWord
	}
	rec = appendU32(rec, rawValue)
	rec = appendU16(rec, resValueSize)
	rec = append(rec, 0, dataType)
	rec = appendU32(rec, dataWord)

	base := int(node.Chunk.HeaderSize) + int(tag.AttrStart)
	at := base + pos*xmlAttrSize

	out := make([]byte, 0, len(raw)+xmlAttrSize)
	out = append(out, raw[:at]...)
	out = append(out, rec...)
	out = append(out, raw[at:]...)

	putU32(out, 4, uint32(len(out)))
	putU16(out, int(node.Chunk.HeaderSize)+12, uint16(len(tag.Attrs)+1))

	// The id/class/style shortcuts are 1-based attribute positions.
	for _, fieldOff := range []int{14, 16, 18} {
		idx := getU16(out, int(node.Chunk.HeaderSize)+fieldOff)
		if idx != 0 && int(idx-1) >= pos {
			putU16(out, int(node.Chunk.HeaderSize)+fieldOff, idx+1)
		}
	}
	return out, nil
}
