package itch

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// nanosPerSecond bounds 4.1 timestamp offsets.
const nanosPerSecond = 1_000_000_000

func (vals *values) load(m Message, v Version) {
	h := m.Meta()
	vals.ints[FieldTag] = uint64(h.Type)
	vals.ints[FieldLocate] = uint64(h.Locate)
	vals.ints[FieldTracking] = uint64(h.Tracking)
	vals.ints[FieldTimestamp] = h.Timestamp
	if v == V41 {
		vals.ints[FieldTimestamp] = h.Timestamp % nanosPerSecond
	}

	switch msg := m.(type) {
	case *OrderMessage:
		vals.ints[FieldOrderRef] = msg.OrderID
		vals.ints[FieldNewOrderRef] = msg.NewOrderID
		vals.alphas[FieldStock] = msg.Ticker
		vals.ints[FieldSide] = uint64(msg.Side)
		vals.ints[FieldShares] = msg.Shares
		vals.prices[FieldPrice] = msg.Price
		vals.ints[FieldMatch] = msg.MatchNumber
		vals.ints[FieldPrintable] = uint64(msg.Printable)
		vals.alphas[FieldAttribution] = msg.Attribution
	case *TradeMessage:
		vals.alphas[FieldStock] = msg.Ticker
		vals.ints[FieldSide] = uint64(msg.Side)
		vals.ints[FieldShares] = msg.Shares
		vals.prices[FieldPrice] = msg.Price
		vals.ints[FieldOrderRef] = msg.OrderID
		vals.ints[FieldMatch] = msg.MatchNumber
		vals.ints[FieldCrossType] = uint64(msg.CrossType)
	case *SystemMessage:
		vals.ints[FieldEventCode] = uint64(msg.EventCode)
		vals.alphas[FieldStock] = msg.Ticker
		vals.alphas[FieldReason] = msg.Reason
	case *NOIIMessage:
		vals.alphas[FieldStock] = msg.Ticker
		vals.ints[FieldPaired] = msg.PairedShares
		vals.ints[FieldImbalance] = msg.ImbalanceShares
		vals.ints[FieldDirection] = uint64(msg.Direction)
		vals.prices[FieldFarPrice] = msg.FarPrice
		vals.prices[FieldNearPrice] = msg.NearPrice
		vals.prices[FieldRefPrice] = msg.ReferencePrice
		vals.ints[FieldCrossType] = uint64(msg.CrossType)
		vals.ints[FieldVariation] = uint64(msg.PriceVariation)
	case *ClockMessage:
		vals.ints[FieldSeconds] = uint64(msg.Seconds)
	case *OtherMessage:
		vals.alphas[FieldStock] = msg.Ticker
		vals.prices[FieldLevel1] = msg.Levels[0]
		vals.prices[FieldLevel2] = msg.Levels[1]
		vals.prices[FieldLevel3] = msg.Levels[2]
	}
}

func putUint(b []byte, v uint64) error {
	if len(b) < 8 && v>>(8*uint(len(b))) != 0 {
		return ErrFieldOverflow
	}
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return nil
}

// Encode writes m using the layout of its type tag in version v. Opaque
// bytes are zero and alpha fields are space padded. For 4.1 only the
// sub-second part of the timestamp is written.
func Encode(m Message, v Version) ([]byte, error) {
	h := m.Meta()
	l, ok := Lookup(v, h.Type)
	if !ok {
		return nil, &UnknownTypeError{Version: v, Tag: h.Type}
	}
	if l.Kind != m.Kind() {
		return nil, errors.Wrapf(ErrKindMismatch, "tag %q is %s, message is %s", h.Type, l.Kind, m.Kind())
	}

	var vals values
	vals.load(m, v)

	buf := make([]byte, l.Length)
	for _, f := range l.Fields {
		b := buf[f.Offset : f.Offset+f.Width]
		var err error
		switch f.Type {
		case Uint:
			err = putUint(b, vals.ints[f.Name])
		case PriceField:
			p := vals.prices[f.Name]
			if p < 0 {
				err = ErrFieldOverflow
				break
			}
			err = putUint(b, p.Raw(f.Scale))
		case Alpha:
			s := vals.alphas[f.Name]
			if len(s) > f.Width {
				err = ErrFieldOverflow
				break
			}
			n := copy(b, s)
			for i := n; i < len(b); i++ {
				b[i] = ' '
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "encode %q field at offset %d", h.Type, f.Offset)
		}
	}
	return buf, nil
}

// Writer encodes messages to w with the framing of its version.
type Writer struct {
	w       io.Writer
	version Version
	seconds uint64
	started bool
}

func NewWriter(w io.Writer, v Version) *Writer {
	return &Writer{w: w, version: v}
}

// Write encodes m. For 4.1 a seconds message is emitted first whenever the
// second of m's timestamp differs from the last one written.
func (w *Writer) Write(m Message) error {
	if w.version == V41 && m.Kind() != KindClock {
		sec := m.Meta().Timestamp / nanosPerSecond
		if !w.started || sec != w.seconds {
			if err := w.write(&ClockMessage{Header: Header{Type: 'T'}, Seconds: uint32(sec)}); err != nil {
				return err
			}
		}
	}
	return w.write(m)
}

func (w *Writer) write(m Message) error {
	b, err := Encode(m, w.version)
	if err != nil {
		return err
	}
	if c, ok := m.(*ClockMessage); ok {
		w.seconds = uint64(c.Seconds)
		w.started = true
	}
	return w.WriteRaw(b)
}

// WriteRaw writes already encoded message bytes, adding the length prefix
// for length prefixed versions.
func (w *Writer) WriteRaw(b []byte) error {
	if w.version.LengthPrefixed() {
		var n [2]byte
		binary.BigEndian.PutUint16(n[:], uint16(len(b)))
		if _, err := w.w.Write(n[:]); err != nil {
			return err
		}
	}
	_, err := w.w.Write(b)
	return err
}
