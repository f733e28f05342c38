package service

import (
	"fmt"
	"time"
)

type Outcome uint8

const (
	Completed Outcome = iota + 1
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Counters are recoverable conditions seen during a replay. None of them
// stops the replay.
type Counters struct {
	UnknownMessageType    uint64 `json:"unknown_message_type"`
	DuplicateOrderID      uint64 `json:"duplicate_order_id"`
	UnknownOrderReference uint64 `json:"unknown_order_reference"`
	ClampedCancelOverflow uint64 `json:"clamped_cancel_overflow"`
	// Discarded counts messages for untracked tickers and broken trades
	// that could not be tied to a tracked ticker.
	Discarded uint64 `json:"discarded"`
	Emitted   uint64 `json:"emitted"`
}

// Status is the terminal state of a replay. Processed counts decoded
// messages; skipped frames of unknown type are not included.
type Status struct {
	RunID     string
	Name      string
	Outcome   Outcome
	Processed uint64
	Reason    error
	Counters  Counters
	Started   time.Time
	Elapsed   time.Duration
	// Checkpoint is the snapshot path, if one was written.
	Checkpoint string
}

func (s Status) OK() bool { return s.Outcome == Completed }

func (s Status) String() string {
	if s.Outcome == Failed {
		return fmt.Sprintf("%s failed after %d messages: %v", s.Name, s.Processed, s.Reason)
	}
	return fmt.Sprintf("%s completed: %d messages, %d records", s.Name, s.Processed, s.Counters.Emitted)
}
