package record

import (
	"strconv"

	"github.com/pkg/errors"

	"tvitch/domain/itch"
)

type Type uint8

const (
	TypeBook Type = iota + 1
	TypeOrder
	TypeTrade
	TypeNOII
	TypeSystem
)

func (t Type) String() string {
	switch t {
	case TypeBook:
		return "book"
	case TypeOrder:
		return "order"
	case TypeTrade:
		return "trade"
	case TypeNOII:
		return "noii"
	case TypeSystem:
		return "system"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType is the inverse of Type.String.
func ParseType(name string) (Type, error) {
	for t := TypeBook; t <= TypeSystem; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, errors.Errorf("record: unknown type %q", name)
}

// Record is one emitted row. Symbol is empty for market-wide events.
type Record interface {
	RecordType() Type
	Time() uint64
	Symbol() string
}

// Quote is one price level reduced to price and aggregate shares. A zero
// Quote stands for an empty side.
type Quote struct {
	Price  itch.Price
	Shares uint64
}

// BookRecord is the top NLevels of a book after a change. Final marks the
// state at end of stream.
type BookRecord struct {
	Ticker    string
	Timestamp uint64
	Bids      []Quote
	Asks      []Quote
	Final     bool
}

func (*BookRecord) RecordType() Type { return TypeBook }
func (r *BookRecord) Time() uint64   { return r.Timestamp }
func (r *BookRecord) Symbol() string { return r.Ticker }

// OrderRecord is an applied order message, completed with the ticker,
// side and price of the order it referenced.
type OrderRecord struct {
	Type        byte
	Action      itch.Action
	Timestamp   uint64
	Ticker      string
	OrderID     uint64
	NewOrderID  uint64
	Side        itch.Side
	Price       itch.Price
	Shares      uint64
	MatchNumber uint64
	Printable   byte
	Attribution string
	Clamped     bool
}

func (*OrderRecord) RecordType() Type { return TypeOrder }
func (r *OrderRecord) Time() uint64   { return r.Timestamp }
func (r *OrderRecord) Symbol() string { return r.Ticker }

// TradeRecord is an execution against the book (E, C), a trade that never
// rested (P, Q) or a broken trade (B).
type TradeRecord struct {
	Type        byte
	Timestamp   uint64
	Ticker      string
	Side        itch.Side
	Price       itch.Price
	Shares      uint64
	OrderID     uint64
	HasOrderID  bool
	MatchNumber uint64
	CrossType   byte
	Printable   bool
	Broken      bool
	Bid         Quote
	Ask         Quote
}

func (*TradeRecord) RecordType() Type { return TypeTrade }
func (r *TradeRecord) Time() uint64   { return r.Timestamp }
func (r *TradeRecord) Symbol() string { return r.Ticker }

type NOIIRecord struct {
	Timestamp       uint64
	Ticker          string
	PairedShares    uint64
	ImbalanceShares uint64
	Direction       itch.Direction
	FarPrice        itch.Price
	NearPrice       itch.Price
	ReferencePrice  itch.Price
	CrossType       byte
	PriceVariation  byte
	Bid             Quote
	Ask             Quote
}

func (*NOIIRecord) RecordType() Type { return TypeNOII }
func (r *NOIIRecord) Time() uint64   { return r.Timestamp }
func (r *NOIIRecord) Symbol() string { return r.Ticker }

// SystemRecord is a system event (S) or a trading action (H). Ticker and
// Reason are empty for system events.
type SystemRecord struct {
	Type      byte
	Timestamp uint64
	EventCode byte
	Ticker    string
	Reason    string
}

func (*SystemRecord) RecordType() Type { return TypeSystem }
func (r *SystemRecord) Time() uint64   { return r.Timestamp }
func (r *SystemRecord) Symbol() string { return r.Ticker }
