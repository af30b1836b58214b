package arscedit

import "github.com/pkg/errors"

// Parse failures. Wrapped with context (chunk type, byte offset) where
// available; use errors.Cause to test the kind.
var (
	ErrBadHeader    = errors.New("chunk header size below struct minimum")
	ErrSizeOverrun  = errors.New("chunk size reads past its container")
	ErrUnaligned    = errors.New("chunk size is not a multiple of 4")
	ErrBadChunkType = errors.New("unexpected chunk type")
)

// ErrNotFound is returned by lookups that found nothing. Edit passes
// treat it as "no change".
var ErrNotFound = errors.New("not found")
