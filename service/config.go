package service

import (
	"github.com/pkg/errors"

	"tvitch/domain/itch"
	"tvitch/domain/orderbook"
)

const (
	// DefaultCheckEvery is how many messages pass between context checks.
	DefaultCheckEvery = 4096
)

// Config describes one replay.
type Config struct {
	Version itch.Version
	// Tickers is the tracked set. Messages for other tickers are dropped.
	Tickers []string
	// NLevels is the depth of emitted book records.
	NLevels int
	// EmitFinal emits one final book record per tracked book at end of
	// stream.
	EmitFinal bool
	// CheckEvery is the context polling interval in messages.
	CheckEvery int
	// CheckpointDir, when set, receives a snapshot of the resting orders
	// once the replay reaches a terminal state.
	CheckpointDir string
	// Name identifies the replay in logs and checkpoint file names.
	Name string
}

func (c *Config) setDefaults() {
	if c.NLevels <= 0 {
		c.NLevels = orderbook.DefaultLevels
	}
	if c.CheckEvery <= 0 {
		c.CheckEvery = DefaultCheckEvery
	}
	if c.Name == "" {
		c.Name = "replay"
	}
}

func (c *Config) validate() error {
	switch c.Version {
	case itch.V41, itch.V50:
	default:
		return errors.Errorf("service: unsupported version %d", c.Version)
	}
	for _, t := range c.Tickers {
		if t != "" {
			return nil
		}
	}
	return errors.New("service: no tickers to track")
}
