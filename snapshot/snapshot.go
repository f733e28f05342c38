package snapshot

import "time"

type Snapshot struct {
	RunID     string
	Version   string
	Processed uint64
	// Outcome is the replay's terminal outcome, "completed" or "failed".
	// Only a completed replay's books are final.
	Outcome       string
	LastTimestamp uint64
	Created       time.Time
	NLevels   int
	Tickers   []string
	Orders    []OrderEntry
}

type OrderEntry struct {
	ID        uint64
	Ticker    string
	Side      byte
	Price     int64
	Shares    uint64
	Timestamp uint64
}
