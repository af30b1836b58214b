package arscedit

import "github.com/pkg/errors"

// Chunk is one typed record of the container: {type, headerSize, size}
// followed by a payload. Data covers the whole chunk including the
// header; Offset is relative to the container's payload start.
type Chunk struct {
	Type       uint16
	HeaderSize uint16
	Size       uint32
	Data       []byte
	Offset     int
}

func (c Chunk) Header() []byte  { return c.Data[:c.HeaderSize] }
func (c Chunk) Payload() []byte { return c.Data[c.HeaderSize:] }

// checkHeaderMin fails with BadHeader when the declared header size is
// below the chunk's struct minimum.
func (c Chunk) checkHeaderMin(min int) error {
	if int(c.HeaderSize) < min {
		return errors.Wrapf(ErrBadHeader, "chunk 0x%04x at 0x%08x: header %d < %d", c.Type, c.Offset, c.HeaderSize, min)
	}
	return nil
}

// chunkParser walks the payload of a container chunk pull-style, without
// allocation. Next returns false on end of container or on the first
// validation failure; Err distinguishes the two.
type chunkParser struct {
	data []byte
	off  int
	err  error
}

func newChunkParser(payload []byte) *chunkParser {
	return &chunkParser{data: payload}
}

func (p *chunkParser) Next() (Chunk, bool) {
	if p.err != nil || p.off >= len(p.data) {
		return Chunk{}, false
	}

	if p.off+chunkHeaderSize > len(p.data) {
		p.err = errors.Wrapf(ErrSizeOverrun, "chunk header at 0x%08x", p.off)
		return Chunk{}, false
	}

	c := Chunk{
		Type:       getU16(p.data, p.off),
		HeaderSize: getU16(p.data, p.off+2),
		Size:       getU32(p.data, p.off+4),
		Offset:     p.off,
	}

	if c.Size%4 != 0 || c.HeaderSize%4 != 0 {
		p.err = errors.Wrapf(ErrUnaligned, "chunk 0x%04x at 0x%08x", c.Type, p.off)
		return Chunk{}, false
	}
	if int(c.HeaderSize) < chunkHeaderSize || uint32(c.HeaderSize) > c.Size {
		p.err = errors.Wrapf(ErrBadHeader, "chunk 0x%04x at 0x%08x: header %d, size %d", c.Type, p.off, c.HeaderSize, c.Size)
		return Chunk{}, false
	}
	if p.off+int(c.Size) > len(p.data) {
		p.err = errors.Wrapf(ErrSizeOverrun, "chunk 0x%04x at 0x%08x: size %d, %d left", c.Type, p.off, c.Size, len(p.data)-p.off)
		return Chunk{}, false
	}

	c.Data = p.data[p.off : p.off+int(c.Size)]
	p.off += int(c.Size)
	return c, true
}

func (p *chunkParser) Err() error {
	return p.err
}

// parseTopChunk reads the outermost chunk of a file and validates that
// it spans the whole buffer.
func parseTopChunk(data []byte, wantType uint16) (Chunk, error) {
	if len(data) < chunkHeaderSize {
		return Chunk{}, errors.Wrap(ErrSizeOverrun, "file shorter than a chunk header")
	}
	c := Chunk{
		Type:       getU16(data, 0),
		HeaderSize: getU16(data, 2),
		Size:       getU32(data, 4),
	}
	if c.Type != wantType {
		return Chunk{}, errors.Wrapf(ErrBadChunkType, "top chunk 0x%04x, expected 0x%04x", c.Type, wantType)
	}
	if int(c.HeaderSize) < chunkHeaderSize || uint32(c.HeaderSize) > c.Size {
		return Chunk{}, errors.Wrapf(ErrBadHeader, "top chunk: header %d, size %d", c.HeaderSize, c.Size)
	}
	if int(c.Size) > len(data) {
		return Chunk{}, errors.Wrapf(ErrSizeOverrun, "top chunk size %d, file has %d", c.Size, len(data))
	}
	c.Data = data[:c.Size]
	return c, nil
}
