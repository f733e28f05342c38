package wire

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"tvitch/domain/itch"
	"tvitch/domain/record"
)

// Proto encodes records as protobuf messages. Every record shares fields
// 1 (type), 2 (timestamp) and 3 (ticker); the remaining numbers depend on
// the type. Zero values are omitted as in proto3.
//
//	message Quote  { sint64 price = 1; uint64 shares = 2; }
//	book:   repeated Quote bids = 4; repeated Quote asks = 5; bool final = 6;
//	order:  uint32 msg_type = 4; uint32 action = 5; uint64 order_id = 6;
//	        uint64 new_order_id = 7; uint32 side = 8; sint64 price = 9;
//	        uint64 shares = 10; uint64 match = 11; uint32 printable = 12;
//	        string attribution = 13; bool clamped = 14;
//	trade:  uint32 msg_type = 4; uint32 side = 5; sint64 price = 6;
//	        uint64 shares = 7; uint64 order_id = 8; bool has_order_id = 9;
//	        uint64 match = 10; uint32 cross_type = 11; bool printable = 12;
//	        bool broken = 13; Quote bid = 14; Quote ask = 15;
//	noii:   uint64 paired = 4; uint64 imbalance = 5; uint32 direction = 6;
//	        sint64 far = 7; sint64 near = 8; sint64 ref = 9;
//	        uint32 cross_type = 10; uint32 variation = 11;
//	        Quote bid = 12; Quote ask = 13;
//	system: uint32 msg_type = 4; uint32 event = 5; string reason = 6;
type Proto struct{}

func (Proto) Name() string        { return "proto" }
func (Proto) ContentType() string { return "application/x-protobuf" }

const (
	fType      protowire.Number = 1
	fTimestamp protowire.Number = 2
	fTicker    protowire.Number = 3
)

// ---- encoding ----

type enc []byte

func (e *enc) uint(n protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	*e = protowire.AppendTag(*e, n, protowire.VarintType)
	*e = protowire.AppendVarint(*e, v)
}

func (e *enc) sint(n protowire.Number, v int64) {
	if v == 0 {
		return
	}
	*e = protowire.AppendTag(*e, n, protowire.VarintType)
	*e = protowire.AppendVarint(*e, protowire.EncodeZigZag(v))
}

func (e *enc) flag(n protowire.Number, v bool) {
	if v {
		e.uint(n, 1)
	}
}

func (e *enc) str(n protowire.Number, s string) {
	if s == "" {
		return
	}
	*e = protowire.AppendTag(*e, n, protowire.BytesType)
	*e = protowire.AppendString(*e, s)
}

// quote always writes the message, so that repeated quotes keep their
// positions even when empty.
func (e *enc) quote(n protowire.Number, q record.Quote) {
	var body enc
	body.sint(1, int64(q.Price))
	body.uint(2, q.Shares)
	*e = protowire.AppendTag(*e, n, protowire.BytesType)
	*e = protowire.AppendBytes(*e, body)
}

func (e *enc) optQuote(n protowire.Number, q record.Quote) {
	if q != (record.Quote{}) {
		e.quote(n, q)
	}
}

func (Proto) Marshal(r record.Record) ([]byte, error) {
	e := make(enc, 0, 64)
	e.uint(fType, uint64(r.RecordType()))
	e.uint(fTimestamp, r.Time())
	e.str(fTicker, r.Symbol())

	switch v := r.(type) {
	case *record.BookRecord:
		for _, q := range v.Bids {
			e.quote(4, q)
		}
		for _, q := range v.Asks {
			e.quote(5, q)
		}
		e.flag(6, v.Final)
	case *record.OrderRecord:
		e.uint(4, uint64(v.Type))
		e.uint(5, uint64(v.Action))
		e.uint(6, v.OrderID)
		e.uint(7, v.NewOrderID)
		e.uint(8, uint64(v.Side))
		e.sint(9, int64(v.Price))
		e.uint(10, v.Shares)
		e.uint(11, v.MatchNumber)
		e.uint(12, uint64(v.Printable))
		e.str(13, v.Attribution)
		e.flag(14, v.Clamped)
	case *record.TradeRecord:
		e.uint(4, uint64(v.Type))
		e.uint(5, uint64(v.Side))
		e.sint(6, int64(v.Price))
		e.uint(7, v.Shares)
		e.uint(8, v.OrderID)
		e.flag(9, v.HasOrderID)
		e.uint(10, v.MatchNumber)
		e.uint(11, uint64(v.CrossType))
		e.flag(12, v.Printable)
		e.flag(13, v.Broken)
		e.optQuote(14, v.Bid)
		e.optQuote(15, v.Ask)
	case *record.NOIIRecord:
		e.uint(4, v.PairedShares)
		e.uint(5, v.ImbalanceShares)
		e.uint(6, uint64(v.Direction))
		e.sint(7, int64(v.FarPrice))
		e.sint(8, int64(v.NearPrice))
		e.sint(9, int64(v.ReferencePrice))
		e.uint(10, uint64(v.CrossType))
		e.uint(11, uint64(v.PriceVariation))
		e.optQuote(12, v.Bid)
		e.optQuote(13, v.Ask)
	case *record.SystemRecord:
		e.uint(4, uint64(v.Type))
		e.uint(5, uint64(v.EventCode))
		e.str(6, v.Reason)
	default:
		return nil, errors.Wrapf(ErrUnknownRecord, "%T", r)
	}
	return e, nil
}

// ---- decoding ----

// fields holds a parsed message. Quote accessors record the first nested
// parse failure in err.
type fields struct {
	ints map[protowire.Number]uint64
	raw  map[protowire.Number][][]byte
	err  error
}

func (f *fields) price(n protowire.Number) itch.Price {
	return itch.Price(protowire.DecodeZigZag(f.ints[n]))
}

func (f *fields) u8(n protowire.Number) byte { return byte(f.ints[n]) }

func (f *fields) set(n protowire.Number) bool { return f.ints[n] != 0 }

func (f *fields) str(n protowire.Number) string {
	if v := f.raw[n]; len(v) > 0 {
		return string(v[len(v)-1])
	}
	return ""
}

func (f *fields) quotes(n protowire.Number) []record.Quote {
	var out []record.Quote
	for _, b := range f.raw[n] {
		out = append(out, f.parseQuote(b))
	}
	return out
}

func (f *fields) quote(n protowire.Number) record.Quote {
	if v := f.raw[n]; len(v) > 0 {
		return f.parseQuote(v[len(v)-1])
	}
	return record.Quote{}
}

func (f *fields) parseQuote(b []byte) record.Quote {
	q, err := parse(b)
	if err != nil {
		if f.err == nil {
			f.err = err
		}
		return record.Quote{}
	}
	return record.Quote{Price: q.price(1), Shares: q.ints[2]}
}

func parse(b []byte) (*fields, error) {
	f := &fields{
		ints: map[protowire.Number]uint64{},
		raw:  map[protowire.Number][][]byte{},
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "wire: proto tag")
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "wire: proto varint")
			}
			f.ints[num] = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "wire: proto bytes")
			}
			f.raw[num] = append(f.raw[num], v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "wire: proto field")
			}
			b = b[n:]
		}
	}
	return f, nil
}

func (Proto) Unmarshal(b []byte) (record.Record, error) {
	f, err := parse(b)
	if err != nil {
		return nil, err
	}
	ts := f.ints[fTimestamp]
	ticker := f.str(fTicker)

	var r record.Record
	switch typ := record.Type(f.ints[fType]); typ {
	case record.TypeBook:
		r = &record.BookRecord{
			Ticker:    ticker,
			Timestamp: ts,
			Bids:      f.quotes(4),
			Asks:      f.quotes(5),
			Final:     f.set(6),
		}
	case record.TypeOrder:
		r = &record.OrderRecord{
			Type:        f.u8(4),
			Action:      itch.Action(f.ints[5]),
			Timestamp:   ts,
			Ticker:      ticker,
			OrderID:     f.ints[6],
			NewOrderID:  f.ints[7],
			Side:        itch.Side(f.u8(8)),
			Price:       f.price(9),
			Shares:      f.ints[10],
			MatchNumber: f.ints[11],
			Printable:   f.u8(12),
			Attribution: f.str(13),
			Clamped:     f.set(14),
		}
	case record.TypeTrade:
		r = &record.TradeRecord{
			Type:        f.u8(4),
			Timestamp:   ts,
			Ticker:      ticker,
			Side:        itch.Side(f.u8(5)),
			Price:       f.price(6),
			Shares:      f.ints[7],
			OrderID:     f.ints[8],
			HasOrderID:  f.set(9),
			MatchNumber: f.ints[10],
			CrossType:   f.u8(11),
			Printable:   f.set(12),
			Broken:      f.set(13),
			Bid:         f.quote(14),
			Ask:         f.quote(15),
		}
	case record.TypeNOII:
		r = &record.NOIIRecord{
			Timestamp:       ts,
			Ticker:          ticker,
			PairedShares:    f.ints[4],
			ImbalanceShares: f.ints[5],
			Direction:       itch.Direction(f.u8(6)),
			FarPrice:        f.price(7),
			NearPrice:       f.price(8),
			ReferencePrice:  f.price(9),
			CrossType:       f.u8(10),
			PriceVariation:  f.u8(11),
			Bid:             f.quote(12),
			Ask:             f.quote(13),
		}
	case record.TypeSystem:
		r = &record.SystemRecord{
			Type:      f.u8(4),
			Timestamp: ts,
			EventCode: f.u8(5),
			Ticker:    ticker,
			Reason:    f.str(6),
		}
	default:
		return nil, errors.Wrapf(ErrUnknownRecord, "%d", typ)
	}
	if f.err != nil {
		return nil, f.err
	}
	return r, nil
}
