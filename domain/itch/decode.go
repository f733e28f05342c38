package itch

import "strings"

// values holds the decoded fields of one message keyed by FieldName.
type values struct {
	ints   [numFieldNames]uint64
	alphas [numFieldNames]string
	prices [numFieldNames]Price
}

func readUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Decode reads the message starting at buf[0] and returns it with the
// number of bytes it occupies. It never retains buf.
func Decode(buf []byte, v Version) (Message, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrTruncated
	}
	l, ok := Lookup(v, buf[0])
	if !ok {
		return nil, 0, &UnknownTypeError{Version: v, Tag: buf[0]}
	}
	if len(buf) < l.Length {
		return nil, 0, ErrTruncated
	}

	var vals values
	for _, f := range l.Fields {
		b := buf[f.Offset : f.Offset+f.Width]
		switch f.Type {
		case Uint:
			vals.ints[f.Name] = readUint(b)
		case Alpha:
			vals.alphas[f.Name] = strings.TrimRight(string(b), " ")
		case PriceField:
			vals.prices[f.Name] = PriceFromRaw(readUint(b), f.Scale)
		}
	}
	return l.build(&vals), l.Length, nil
}

func actionFor(tag byte) Action {
	switch tag {
	case 'A', 'F':
		return ActionAdd
	case 'E', 'C':
		return ActionExecute
	case 'X':
		return ActionCancel
	case 'D':
		return ActionDelete
	case 'U':
		return ActionReplace
	}
	return 0
}

func (l *Layout) build(vals *values) Message {
	h := Header{
		Type:      l.Tag,
		Locate:    uint16(vals.ints[FieldLocate]),
		Tracking:  uint16(vals.ints[FieldTracking]),
		Timestamp: vals.ints[FieldTimestamp],
	}

	switch l.Kind {
	case KindOrder:
		return &OrderMessage{
			Header:      h,
			Action:      actionFor(l.Tag),
			OrderID:     vals.ints[FieldOrderRef],
			NewOrderID:  vals.ints[FieldNewOrderRef],
			Ticker:      vals.alphas[FieldStock],
			Side:        Side(vals.ints[FieldSide]),
			Shares:      vals.ints[FieldShares],
			Price:       vals.prices[FieldPrice],
			HasPrice:    l.priced,
			MatchNumber: vals.ints[FieldMatch],
			Printable:   byte(vals.ints[FieldPrintable]),
			Attribution: vals.alphas[FieldAttribution],
		}
	case KindTrade:
		return &TradeMessage{
			Header:      h,
			Ticker:      vals.alphas[FieldStock],
			Side:        Side(vals.ints[FieldSide]),
			Shares:      vals.ints[FieldShares],
			Price:       vals.prices[FieldPrice],
			OrderID:     vals.ints[FieldOrderRef],
			HasOrderID:  vals.ints[FieldOrderRef] != 0,
			MatchNumber: vals.ints[FieldMatch],
			CrossType:   byte(vals.ints[FieldCrossType]),
		}
	case KindSystem:
		return &SystemMessage{
			Header:    h,
			EventCode: byte(vals.ints[FieldEventCode]),
			Ticker:    vals.alphas[FieldStock],
			Reason:    vals.alphas[FieldReason],
		}
	case KindNOII:
		return &NOIIMessage{
			Header:          h,
			Ticker:          vals.alphas[FieldStock],
			PairedShares:    vals.ints[FieldPaired],
			ImbalanceShares: vals.ints[FieldImbalance],
			Direction:       Direction(vals.ints[FieldDirection]),
			FarPrice:        vals.prices[FieldFarPrice],
			NearPrice:       vals.prices[FieldNearPrice],
			ReferencePrice:  vals.prices[FieldRefPrice],
			CrossType:       byte(vals.ints[FieldCrossType]),
			PriceVariation:  byte(vals.ints[FieldVariation]),
		}
	case KindClock:
		return &ClockMessage{Header: h, Seconds: uint32(vals.ints[FieldSeconds])}
	default:
		return &OtherMessage{
			Header: h,
			Ticker: vals.alphas[FieldStock],
			Levels: [3]Price{vals.prices[FieldLevel1], vals.prices[FieldLevel2], vals.prices[FieldLevel3]},
		}
	}
}
