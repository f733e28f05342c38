// Package view holds the JSON shapes served by the query APIs.
package view

import (
	"tvitch/domain/itch"
	"tvitch/domain/record"
	"tvitch/infra/store"
)

type Quote struct {
	Price  itch.Price `json:"price"`
	Shares uint64     `json:"shares"`
}

type Book struct {
	Ticker    string  `json:"ticker"`
	Job       string  `json:"job"`
	Timestamp uint64  `json:"timestamp"`
	Bids      []Quote `json:"bids"`
	Asks      []Quote `json:"asks"`
}

func quotes(qs []record.Quote) []Quote {
	out := make([]Quote, len(qs))
	for i, q := range qs {
		out[i] = Quote{Price: q.Price, Shares: q.Shares}
	}
	return out
}

func FromBook(job string, r *record.BookRecord) Book {
	return Book{
		Ticker:    r.Ticker,
		Job:       job,
		Timestamp: r.Timestamp,
		Bids:      quotes(r.Bids),
		Asks:      quotes(r.Asks),
	}
}

func FromEntries(es []store.BookEntry) []Book {
	out := make([]Book, len(es))
	for i, e := range es {
		out[i] = FromBook(e.Job, e.Book)
	}
	return out
}

// Store is the read side of the book store the APIs serve.
type Store interface {
	Book(ticker, job string) (*record.BookRecord, error)
	Books(ticker string) ([]store.BookEntry, error)
	Tickers() ([]string, error)
	Statuses() ([]store.StatusEntry, error)
}
