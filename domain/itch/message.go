package itch

import "strconv"

// Kind groups message types by how the replay routes them.
type Kind uint8

const (
	KindOrder Kind = iota + 1
	KindTrade
	KindSystem
	KindNOII
	KindClock
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindOrder:
		return "order"
	case KindTrade:
		return "trade"
	case KindSystem:
		return "system"
	case KindNOII:
		return "noii"
	case KindClock:
		return "clock"
	case KindOther:
		return "other"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

type Side byte

const (
	SideNone Side = 0
	Buy      Side = 'B'
	Sell     Side = 'S'
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "none"
}

// Direction is the NOII imbalance direction.
type Direction byte

const (
	DirectionBuy          Direction = 'B'
	DirectionSell         Direction = 'S'
	DirectionNone         Direction = 'N'
	DirectionInsufficient Direction = 'O'
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	case DirectionNone:
		return "none"
	case DirectionInsufficient:
		return "insufficient"
	}
	return "unknown"
}

type Action uint8

const (
	ActionAdd Action = iota + 1
	ActionCancel
	ActionDelete
	ActionExecute
	ActionReplace
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionCancel:
		return "cancel"
	case ActionDelete:
		return "delete"
	case ActionExecute:
		return "execute"
	case ActionReplace:
		return "replace"
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
}

// Message is one decoded ITCH message. Concrete values are pointers to
// OrderMessage, TradeMessage, SystemMessage, NOIIMessage, ClockMessage or
// OtherMessage.
type Message interface {
	Kind() Kind
	Meta() *Header
}

// Header holds the fields every message carries. Locate and Tracking are
// zero for 4.1. Timestamp is nanoseconds since midnight once resolved by a
// Stream; Decode alone yields only the sub-second part for 4.1.
type Header struct {
	Type      byte
	Locate    uint16
	Tracking  uint16
	Timestamp uint64
}

func (h *Header) Meta() *Header { return h }

// OrderMessage mutates a resting order. Cancel, delete, execute and
// replace carry no ticker, side or resting price on the wire; the order
// book fills those in from the referenced order.
type OrderMessage struct {
	Header
	Action      Action
	OrderID     uint64
	NewOrderID  uint64
	Ticker      string
	Side        Side
	Shares      uint64
	Price       Price
	HasPrice    bool
	MatchNumber uint64
	Printable   byte
	Attribution string
}

func (*OrderMessage) Kind() Kind { return KindOrder }

// TradeMessage reports a non-displayed (P), cross (Q) or broken (B) trade.
type TradeMessage struct {
	Header
	Ticker      string
	Side        Side
	Shares      uint64
	Price       Price
	OrderID     uint64
	HasOrderID  bool
	MatchNumber uint64
	CrossType   byte
}

func (*TradeMessage) Kind() Kind { return KindTrade }

// Broken reports whether this is a broken trade notice.
func (m *TradeMessage) Broken() bool { return m.Type == 'B' }

// SystemMessage is a system event (S, market wide) or a trading action
// (H, one ticker). For H, EventCode holds the trading state.
type SystemMessage struct {
	Header
	EventCode byte
	Ticker    string
	Reason    string
}

func (*SystemMessage) Kind() Kind { return KindSystem }

type NOIIMessage struct {
	Header
	Ticker          string
	PairedShares    uint64
	ImbalanceShares uint64
	Direction       Direction
	FarPrice        Price
	NearPrice       Price
	ReferencePrice  Price
	CrossType       byte
	PriceVariation  byte
}

func (*NOIIMessage) Kind() Kind { return KindNOII }

// ClockMessage is the 4.1 seconds message that later nanosecond offsets
// are relative to.
type ClockMessage struct {
	Header
	Seconds uint32
}

func (*ClockMessage) Kind() Kind { return KindClock }

// OtherMessage is a known message the replay does not act on, such as
// stock directory or Reg SHO. Levels is only set for MWCB decline levels.
type OtherMessage struct {
	Header
	Ticker string
	Levels [3]Price
}

func (*OtherMessage) Kind() Kind { return KindOther }
