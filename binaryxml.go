package arscedit

import (
	"github.com/pkg/errors"
)

const (
	xmlNodeHeaderSize = 16
	xmlAttrSize       = 20
)

// Some files carry the manifest in plaintext, this is an error.
var ErrPlainTextXml = errors.New("xml is in plaintext, binary form expected")

// XmlNamespace is the start/end-namespace node extension.
type XmlNamespace struct {
	Prefix uint32
	URI    uint32
}

// XmlAttr is one attribute of a start tag. Offset is the absolute
// position of the attribute record in the document buffer, retained so
// edit passes can patch values in place.
type XmlAttr struct {
	Namespace uint32
	Name      uint32
	RawValue  uint32
	Value     ResValue

	Offset int
}

// XmlTagStart is the start-tag node extension.
type XmlTagStart struct {
	Namespace  uint32
	Name       uint32
	AttrStart  uint16
	AttrSize   uint16
	IDIndex    uint16
	ClassIndex uint16
	StyleIndex uint16
	Attrs      []XmlAttr
}

// XmlTagEnd is the end-tag node extension.
type XmlTagEnd struct {
	Namespace uint32
	Name      uint32
}

// XmlCdata is the cdata node extension.
type XmlCdata struct {
	Data  uint32
	Value ResValue
}

// XmlNode is one node of the linear node stream. Exactly one of the
// five extension fields is set, matching Chunk.Type.
type XmlNode struct {
	Chunk   Chunk // Offset is absolute within the document buffer
	Line    uint32
	Comment uint32

	NsStart  *XmlNamespace
	NsEnd    *XmlNamespace
	TagStart *XmlTagStart
	TagEnd   *XmlTagEnd
	Cdata    *XmlCdata
}

// XmlDocument is the parsed model of a compiled binary XML file. Views
// point into the caller-owned buffer.
type XmlDocument struct {
	Data []byte
	Pool *StringPool

	// ResourceIDs is the attribute-ID side array: attribute-name pool
	// indices inside it carry the resource ID at the same position.
	ResourceIDs []uint32

	Nodes []XmlNode

	poolStart   int // absolute
	poolEnd     int
	resMapStart int // 0 when absent
	resMapEnd   int
}

// AttrResID returns the resource ID of the attribute name at pool index
// idx, or 0 when the index falls outside the side array.
func (d *XmlDocument) AttrResID(idx uint32) uint32 {
	if int(idx) < len(d.ResourceIDs) {
		return d.ResourceIDs[idx]
	}
	return 0
}

// ParseXmlDocument parses a binary XML buffer. The top chunk type is
// not enforced, Android doesn't care.
func ParseXmlDocument(data []byte) (*XmlDocument, error) {
	if len(data) < chunkHeaderSize {
		return nil, errors.Wrap(ErrSizeOverrun, "file shorter than a chunk header")
	}
	if data[0] == '<' {
		return nil, ErrPlainTextXml
	}

	size := getU32(data, 4)
	headerSize := getU16(data, 2)
	if int(headerSize) < chunkHeaderSize || uint32(headerSize) > size || int(size) > len(data) {
		return nil, errors.Wrapf(ErrBadHeader, "top chunk: header %d, size %d, file %d", headerSize, size, len(data))
	}

	d := &XmlDocument{Data: data[:size]}

	cp := newChunkParser(d.Data[headerSize:])
	for {
		c, ok := cp.Next()
		if !ok {
			break
		}
		abs := c.Offset + int(headerSize)

		switch {
		case c.Type == chunkStringPool:
			if d.Pool != nil {
				return nil, errors.Wrap(ErrBadChunkType, "second string pool")
			}
			pool, err := parseStringPool(c)
			if err != nil {
				return nil, err
			}
			d.Pool = pool
			d.poolStart = abs
			d.poolEnd = abs + len(c.Data)
		case c.Type == chunkXmlResourceMap:
			if c.Size%4 != 0 {
				return nil, errors.Wrap(ErrUnaligned, "resource map")
			}
			payload := c.Payload()
			for i := 0; i+4 <= len(payload); i += 4 {
				d.ResourceIDs = append(d.ResourceIDs, getU32(payload, i))
			}
			d.resMapStart = abs
			d.resMapEnd = abs + len(c.Data)
		case c.Type&chunkMaskXml != 0 && c.Type < chunkXmlResourceMap:
			node, err := parseXmlNode(c, abs)
			if err != nil {
				return nil, err
			}
			d.Nodes = append(d.Nodes, node)
		default:
			return nil, errors.Wrapf(ErrBadChunkType, "chunk 0x%04x in xml document", c.Type)
		}
	}
	if err := cp.Err(); err != nil {
		return nil, err
	}
	if d.Pool == nil {
		return nil, errors.Wrap(ErrBadChunkType, "xml document has no string pool")
	}
	return d, nil
}

func parseXmlNode(c Chunk, abs int) (XmlNode, error) {
	if err := c.checkHeaderMin(xmlNodeHeaderSize); err != nil {
		return XmlNode{}, err
	}
	node := XmlNode{
		Chunk:   Chunk{Type: c.Type, HeaderSize: c.HeaderSize, Size: c.Size, Data: c.Data, Offset: abs},
		Line:    getU32(c.Data, 8),
		Comment: getU32(c.Data, 12),
	}
	ext := c.Data[c.HeaderSize:]

	switch c.Type {
	case chunkXmlNsStart, chunkXmlNsEnd:
		if len(ext) < 8 {
			return XmlNode{}, errors.Wrap(ErrSizeOverrun, "namespace node")
		}
		ns := &XmlNamespace{Prefix: getU32(ext, 0), URI: getU32(ext, 4)}
		if c.Type == chunkXmlNsStart {
			node.NsStart = ns
		} else {
			node.NsEnd = ns
		}
	case chunkXmlTagStart:
		if len(ext) < 20 {
			return XmlNode{}, errors.Wrap(ErrSizeOverrun, "start tag node")
		}
		tag := &XmlTagStart{
			Namespace:  getU32(ext, 0),
			Name:       getU32(ext, 4),
			AttrStart:  getU16(ext, 8),
			AttrSize:   getU16(ext, 10),
			IDIndex:    getU16(ext, 14),
			ClassIndex: getU16(ext, 16),
			StyleIndex: getU16(ext, 18),
		}
		attrCount := int(getU16(ext, 12))
		if tag.AttrSize < xmlAttrSize {
			return XmlNode{}, errors.Wrapf(ErrBadHeader, "attribute size %d", tag.AttrSize)
		}
		base := int(c.HeaderSize) + int(tag.AttrStart)
		if base+attrCount*int(tag.AttrSize) > len(c.Data) {
			return XmlNode{}, errors.Wrapf(ErrSizeOverrun, "start tag with %d attributes", attrCount)
		}
		for i := 0; i < attrCount; i++ {
			off := base + i*int(tag.AttrSize)
			val, err := parseResValue(c.Data[off+12:])
			if err != nil {
				return XmlNode{}, err
			}
			tag.Attrs = append(tag.Attrs, XmlAttr{
				Namespace: getU32(c.Data, off),
				Name:      getU32(c.Data, off+4),
				RawValue:  getU32(c.Data, off+8),
				Value:     val,
				Offset:    abs + off,
			})
		}
		node.TagStart = tag
	case chunkXmlTagEnd:
		if len(ext) < 8 {
			return XmlNode{}, errors.Wrap(ErrSizeOverrun, "end tag node")
		}
		node.TagEnd = &XmlTagEnd{Namespace: getU32(ext, 0), Name: getU32(ext, 4)}
	case chunkXmlCdata:
		if len(ext) < 12 {
			return XmlNode{}, errors.Wrap(ErrSizeOverrun, "cdata node")
		}
		val, err := parseResValue(ext[4:])
		if err != nil {
			return XmlNode{}, err
		}
		node.Cdata = &XmlCdata{Data: getU32(ext, 0), Value: val}
	default:
		return XmlNode{}, errors.Wrapf(ErrBadChunkType, "xml node 0x%04x", c.Type)
	}
	return node, nil
}

// replacePool emits a new document with the string pool chunk swapped
// out. Nodes reference the pool by index only, never by byte offset, so
// everything after the pool is copied verbatim and only the document
// total size changes.
func (d *XmlDocument) replacePool(newPool []byte) []byte {
	out := make([]byte, 0, d.poolStart+len(newPool)+len(d.Data)-d.poolEnd)
	out = append(out, d.Data[:d.poolStart]...)
	out = append(out, newPool...)
	out = append(out, d.Data[d.poolEnd:]...)
	putU32(out, 4, uint32(len(out)))
	return out
}
