package itch

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTruncated is returned when fewer bytes remain than the layout needs.
	ErrTruncated = errors.New("itch: truncated message")
	// ErrFieldOverflow is returned by Encode when a value does not fit its field.
	ErrFieldOverflow = errors.New("itch: value does not fit field")
	// ErrKindMismatch is returned by Encode when a message does not match the
	// kind its tag is laid out as.
	ErrKindMismatch = errors.New("itch: message kind does not match layout")
)

// UnknownTypeError reports a type tag with no layout for the version.
// Framed is set when the message length was known from the framing and the
// stream has already moved past the message.
type UnknownTypeError struct {
	Version Version
	Tag     byte
	Framed  bool
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("itch: unknown message type %q for version %s", e.Tag, e.Version)
}

// AsUnknownType unwraps err into an *UnknownTypeError.
func AsUnknownType(err error) (*UnknownTypeError, bool) {
	var ute *UnknownTypeError
	if errors.As(err, &ute) {
		return ute, true
	}
	return nil, false
}
