package itch

import (
	"bufio"
	"encoding/binary"
	"io"
)

const streamBufferSize = 1 << 20

// Stream reads consecutive messages from a capture.
//
// For 5.0 every message is length prefixed, so an unknown type tag is
// skipped and reported with Framed set; the next call continues after it.
// For 4.1 the layout length is the only framing, so an unknown tag or a
// short read leaves the stream unusable and every later call repeats the
// error.
type Stream struct {
	r       *bufio.Reader
	version Version
	seconds uint64
	offset  int64
	err     error
}

func NewStream(r io.Reader, v Version) *Stream {
	return &Stream{r: bufio.NewReaderSize(r, streamBufferSize), version: v}
}

// Offset is the number of input bytes consumed so far.
func (s *Stream) Offset() int64 { return s.offset }

func (s *Stream) Version() Version { return s.version }

// Next returns the next message, or io.EOF when the input ends exactly on
// a message boundary.
func (s *Stream) Next() (Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	var (
		m   Message
		err error
	)
	if s.version.LengthPrefixed() {
		m, err = s.nextFramed()
	} else {
		m, err = s.nextContiguous()
	}
	if err != nil {
		if ute, ok := AsUnknownType(err); !ok || !ute.Framed {
			s.err = err
		}
		return nil, err
	}
	s.resolve(m)
	return m, nil
}

func (s *Stream) nextFramed() (Message, error) {
	prefix, err := s.r.Peek(2)
	if len(prefix) == 0 && err == io.EOF {
		return nil, io.EOF
	}
	if len(prefix) < 2 {
		return nil, readErr(err)
	}
	n := int(binary.BigEndian.Uint16(prefix))
	frame, err := s.r.Peek(2 + n)
	if len(frame) < 2+n {
		return nil, readErr(err)
	}

	m, _, err := Decode(frame[2:], s.version)
	if _, derr := s.r.Discard(2 + n); derr != nil {
		return nil, derr
	}
	s.offset += int64(2 + n)
	if ute, ok := AsUnknownType(err); ok {
		ute.Framed = true
		return nil, ute
	}
	return m, err
}

func (s *Stream) nextContiguous() (Message, error) {
	tag, err := s.r.Peek(1)
	if len(tag) == 0 {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	l, ok := Lookup(s.version, tag[0])
	if !ok {
		return nil, &UnknownTypeError{Version: s.version, Tag: tag[0]}
	}
	buf, err := s.r.Peek(l.Length)
	if len(buf) < l.Length {
		return nil, readErr(err)
	}
	m, n, err := Decode(buf, s.version)
	if err != nil {
		return nil, err
	}
	if _, err := s.r.Discard(n); err != nil {
		return nil, err
	}
	s.offset += int64(n)
	return m, nil
}

// readErr maps a short peek to ErrTruncated unless the reader failed.
func readErr(err error) error {
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}

// resolve turns 4.1 nanosecond offsets into nanoseconds since midnight.
func (s *Stream) resolve(m Message) {
	if s.version != V41 {
		return
	}
	if c, ok := m.(*ClockMessage); ok {
		s.seconds = uint64(c.Seconds)
		c.Timestamp = s.seconds * nanosPerSecond
		return
	}
	m.Meta().Timestamp += s.seconds * nanosPerSecond
}
