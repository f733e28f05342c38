package itch

import (
	"strings"

	"github.com/pkg/errors"
)

// Version is an ITCH protocol version.
type Version uint8

const (
	V41 Version = iota + 1
	V50
)

func (v Version) String() string {
	switch v {
	case V41:
		return "4.1"
	case V50:
		return "5.0"
	}
	return "unknown"
}

// LengthPrefixed reports whether captures of this version frame every
// message with a 2-byte big-endian length.
func (v Version) LengthPrefixed() bool {
	return v == V50
}

// ParseVersion accepts "4.1", "41", "5.0", "5" and "50".
func ParseVersion(s string) (Version, error) {
	switch strings.TrimSpace(s) {
	case "4.1", "41":
		return V41, nil
	case "5.0", "5", "50":
		return V50, nil
	}
	return 0, errors.Errorf("itch: unsupported version %q", s)
}
