package arscedit

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	chunkNull           = 0x0000
	chunkStringPool     = 0x0001
	chunkTable          = 0x0002
	chunkAxmlFile       = 0x0003
	chunkXmlNsStart     = 0x0100
	chunkXmlNsEnd       = 0x0101
	chunkXmlTagStart    = 0x0102
	chunkXmlTagEnd      = 0x0103
	chunkXmlCdata       = 0x0104
	chunkXmlResourceMap = 0x0180
	chunkTablePackage   = 0x0200
	chunkTableType      = 0x0201
	chunkTableTypeSpec  = 0x0202
	chunkTableLibrary   = 0x0203

	chunkMaskXml = 0x0100

	chunkHeaderSize = (2 + 2 + 4)
)

// Res_value data types.
const (
	DataTypeNull             = 0x00
	DataTypeReference        = 0x01
	DataTypeAttribute        = 0x02
	DataTypeString           = 0x03
	DataTypeFloat            = 0x04
	DataTypeDimension        = 0x05
	DataTypeFraction         = 0x06
	DataTypeDynamicReference = 0x07
	DataTypeIntDec           = 0x10
	DataTypeIntHex           = 0x11
	DataTypeIntBool          = 0x12
	DataTypeIntColorArgb8    = 0x1c
	DataTypeIntColorRgb8     = 0x1d
	DataTypeIntColorArgb4    = 0x1e
	DataTypeIntColorRgb4     = 0x1f
)

const (
	entryFlagComplex = 0x0001
	entryFlagPublic  = 0x0002
)

// NoEntry marks an absent entry in a Type offset table.
const NoEntry = 0xFFFFFFFF

// PackageResIDStart is the lowest resource ID of an application package.
const PackageResIDStart = 0x7f000000

// ResID is a packed resource identifier: (package<<24)|(type<<16)|entry.
// Package and type fields are 1-based on disk, 0 means unset.
type ResID uint32

func MakeResID(pkg, typ uint8, entry uint16) ResID {
	return ResID(uint32(pkg)<<24 | uint32(typ)<<16 | uint32(entry))
}

func (id ResID) Package() uint8 { return uint8(id >> 24) }
func (id ResID) Type() uint8    { return uint8(id >> 16) }
func (id ResID) Entry() uint16  { return uint16(id) }

func (id ResID) String() string { return fmt.Sprintf("0x%08x", uint32(id)) }

// ResValue is the 8-byte typed-data carrier.
type ResValue struct {
	Size     uint16
	Res0     uint8
	DataType uint8
	Data     uint32
}

const resValueSize = 8

func parseResValue(b []byte) (ResValue, error) {
	if len(b) < resValueSize {
		return ResValue{}, errors.Wrapf(ErrSizeOverrun, "Res_value needs %d bytes, have %d", resValueSize, len(b))
	}
	return ResValue{
		Size:     getU16(b, 0),
		Res0:     b[2],
		DataType: b[3],
		Data:     getU32(b, 4),
	}, nil
}

func (v ResValue) appendTo(out []byte) []byte {
	out = appendU16(out, resValueSize)
	out = append(out, 0, v.DataType)
	return appendU32(out, v.Data)
}

// MapItem is one (name, value) pair of a complex entry.
type MapItem struct {
	Name  ResID
	Value ResValue
}

// Entry is a single resource value: either a scalar Res_value or a map
// with a parent reference and N named items, discriminated by the
// FLAG_COMPLEX bit. Use NewScalarEntry/NewMapEntry to construct.
type Entry struct {
	Flags    uint16
	KeyIndex uint32

	Value *ResValue // scalar, nil for maps

	ParentID ResID     // map only
	Items    []MapItem // map only
}

func NewScalarEntry(keyIndex uint32, v ResValue) Entry {
	val := v
	return Entry{KeyIndex: keyIndex, Value: &val}
}

func NewMapEntry(keyIndex uint32, parent ResID, items []MapItem) Entry {
	return Entry{Flags: entryFlagComplex, KeyIndex: keyIndex, ParentID: parent, Items: items}
}

func (e Entry) IsComplex() bool { return e.Flags&entryFlagComplex != 0 }

// entryLength returns the total byte length of the entry starting at b,
// header plus value payload.
func entryLength(b []byte) (int, error) {
	if len(b) < 8 {
		return 0, errors.Wrap(ErrSizeOverrun, "entry header")
	}
	size := int(getU16(b, 0))
	flags := getU16(b, 2)
	if flags&entryFlagComplex != 0 {
		if len(b) < 16 {
			return 0, errors.Wrap(ErrSizeOverrun, "map entry header")
		}
		count := int(getU32(b, 12))
		return size + count*12, nil
	}
	return size + resValueSize, nil
}

func parseEntry(b []byte) (Entry, error) {
	if len(b) < 8 {
		return Entry{}, errors.Wrap(ErrSizeOverrun, "entry header")
	}
	e := Entry{
		Flags:    getU16(b, 2),
		KeyIndex: getU32(b, 4),
	}
	size := int(getU16(b, 0))
	if e.IsComplex() {
		if size < 16 || len(b) < 16 {
			return Entry{}, errors.Wrap(ErrBadHeader, "map entry")
		}
		e.ParentID = ResID(getU32(b, 8))
		count := int(getU32(b, 12))
		if len(b) < size+count*12 {
			return Entry{}, errors.Wrapf(ErrSizeOverrun, "map entry with %d items", count)
		}
		for i := 0; i < count; i++ {
			off := size + i*12
			val, err := parseResValue(b[off+4:])
			if err != nil {
				return Entry{}, err
			}
			e.Items = append(e.Items, MapItem{
				Name:  ResID(getU32(b, off)),
				Value: val,
			})
		}
		return e, nil
	}

	if size < 8 {
		return Entry{}, errors.Wrap(ErrBadHeader, "entry")
	}
	if len(b) < size+resValueSize {
		return Entry{}, errors.Wrap(ErrSizeOverrun, "entry value")
	}
	val, err := parseResValue(b[size:])
	if err != nil {
		return Entry{}, err
	}
	e.Value = &val
	return e, nil
}

func (e Entry) appendTo(out []byte) []byte {
	if e.IsComplex() {
		out = appendU16(out, 16)
		out = appendU16(out, e.Flags)
		out = appendU32(out, e.KeyIndex)
		out = appendU32(out, uint32(e.ParentID))
		out = appendU32(out, uint32(len(e.Items)))
		for _, it := range e.Items {
			out = appendU32(out, uint32(it.Name))
			out = it.Value.appendTo(out)
		}
		return out
	}
	out = appendU16(out, 8)
	out = appendU16(out, e.Flags)
	out = appendU32(out, e.KeyIndex)
	return e.Value.appendTo(out)
}
