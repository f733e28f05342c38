package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"tvitch/domain/orderbook"
)

// Ext is the file extension of checkpoints.
const Ext = ".ckpt"

type Writer struct {
	Dir string
}

// Meta describes the replay a checkpoint was taken from.
type Meta struct {
	RunID     string
	Version   string
	Processed uint64
	Outcome   string
	// LastTimestamp is the timestamp of the last message replayed.
	LastTimestamp uint64
}

// Write stores the resting orders of e under name and returns the file
// path. The file is replaced atomically.
func (w *Writer) Write(name string, meta Meta, e *orderbook.Engine) (string, error) {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", errors.Wrap(err, "snapshot: create dir")
	}

	s := Snapshot{
		RunID:         meta.RunID,
		Version:       meta.Version,
		Processed:     meta.Processed,
		Outcome:       meta.Outcome,
		LastTimestamp: meta.LastTimestamp,
		Created:       time.Now().UTC(),
		NLevels:       e.NLevels(),
		Tickers:       e.Tickers(),
		Orders:        make([]OrderEntry, 0, e.Len()),
	}
	e.Walk(func(o orderbook.Order) bool {
		s.Orders = append(s.Orders, OrderEntry{
			ID:        o.ID,
			Ticker:    o.Ticker,
			Side:      byte(o.Side),
			Price:     int64(o.Price),
			Shares:    o.Shares,
			Timestamp: o.Timestamp,
		})
		return true
	})

	path := filepath.Join(w.Dir, name+Ext)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrap(err, "snapshot: create")
	}
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", errors.Wrap(err, "snapshot: encode")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", errors.Wrap(err, "snapshot: sync")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "snapshot: close")
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Wrap(err, "snapshot: rename")
	}
	return path, nil
}
