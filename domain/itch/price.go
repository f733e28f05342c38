package itch

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PriceScale is the number of implied decimals of Price. Raw wire prices
// with fewer decimals are scaled up so prices of any field and any version
// compare directly.
const PriceScale = 8

var pow10 = [PriceScale + 1]int64{
	1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000,
}

// Price is a fixed-point price in units of 10^-PriceScale.
type Price int64

// PriceFromRaw converts a wire price with scale implied decimals.
func PriceFromRaw(raw uint64, scale uint8) Price {
	return Price(int64(raw) * pow10[PriceScale-scale])
}

// Raw converts p back to a wire value with scale implied decimals.
// Digits below the wire precision are truncated.
func (p Price) Raw(scale uint8) uint64 {
	return uint64(int64(p) / pow10[PriceScale-scale])
}

func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -PriceScale)
}

// StringFixed renders p with exactly places decimals.
func (p Price) StringFixed(places int32) string {
	return p.Decimal().StringFixed(places)
}

func (p Price) String() string {
	return p.Decimal().String()
}

// ParsePrice parses a decimal string such as "10.25".
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.WithMessage(err, "itch: parse price")
	}
	if d.Exponent() < -PriceScale {
		return 0, errors.Errorf("itch: price %s has more than %d decimals", s, PriceScale)
	}
	return Price(d.Shift(PriceScale).IntPart()), nil
}

// MustPrice is ParsePrice for constants.
func MustPrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}
