package orderbook

import "github.com/pkg/errors"

var (
	// ErrDuplicateOrderID is returned when an add or replace names an
	// order id that is already resting. The message is dropped.
	ErrDuplicateOrderID = errors.New("orderbook: duplicate order id")
	// ErrUnknownOrder is returned when a message references an order id
	// that is not resting in any tracked book. The message is ignored.
	ErrUnknownOrder = errors.New("orderbook: unknown order reference")
	// ErrUntracked is returned for an add on a ticker the engine does not
	// track.
	ErrUntracked = errors.New("orderbook: ticker not tracked")
)
