package snapshot

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"

	"tvitch/domain/itch"
	"tvitch/domain/orderbook"
)

// Read decodes a checkpoint file.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot: open")
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "snapshot: decode %s", path)
	}
	return &s, nil
}

// Load rebuilds the engine a checkpoint was taken from.
func Load(path string, opts ...orderbook.Option) (*Snapshot, *orderbook.Engine, error) {
	s, err := Read(path)
	if err != nil {
		return nil, nil, err
	}

	e := orderbook.NewEngine(s.Tickers, s.NLevels, opts...)
	for _, o := range s.Orders {
		err := e.Restore(orderbook.Order{
			ID:        o.ID,
			Ticker:    o.Ticker,
			Side:      itch.Side(o.Side),
			Price:     itch.Price(o.Price),
			Shares:    o.Shares,
			Timestamp: o.Timestamp,
		})
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "snapshot: restore %s", path)
		}
	}
	return s, e, nil
}
