package serialization

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrChecksumMismatch   = errors.New("serialization: checksum mismatch")
	ErrInvalidMagic       = errors.New("serialization: not a .born file")
	ErrUnsupportedVersion = errors.New("serialization: unsupported format version")
	ErrHeaderTooLarge     = errors.New("serialization: header too large")
	ErrInvalidHeader      = errors.New("serialization: invalid header")
)

// ValidationError describes one bad entry of a tensor table, such as
// overlapping offsets or a name that could escape a directory. It wraps
// ErrInvalidHeader.
type ValidationError struct {
	Type    string // Machine readable kind, e.g. "offset_overlap"
	Tensor  string
	Other   string // Second tensor of an overlap
	Details string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Type)
	switch {
	case e.Other != "":
		fmt.Fprintf(&b, " between %q and %q", e.Tensor, e.Other)
	case e.Tensor != "":
		fmt.Fprintf(&b, " in %q", e.Tensor)
	}
	b.WriteString(": ")
	b.WriteString(e.Details)
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidHeader
}
