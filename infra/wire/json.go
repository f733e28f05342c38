package wire

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"tvitch/domain/record"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON encodes a record inside an envelope naming its type:
//
//	{"type":"trade","record":{...}}
type JSON struct{}

type envelope struct {
	Type   string              `json:"type"`
	Record jsoniter.RawMessage `json:"record"`
}

func (JSON) Name() string        { return "json" }
func (JSON) ContentType() string { return "application/json" }

func (JSON) Marshal(r record.Record) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "wire: json marshal")
	}
	return json.Marshal(envelope{Type: r.RecordType().String(), Record: body})
}

func (JSON) Unmarshal(b []byte) (record.Record, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(err, "wire: json envelope")
	}

	var r record.Record
	switch env.Type {
	case record.TypeBook.String():
		r = &record.BookRecord{}
	case record.TypeOrder.String():
		r = &record.OrderRecord{}
	case record.TypeTrade.String():
		r = &record.TradeRecord{}
	case record.TypeNOII.String():
		r = &record.NOIIRecord{}
	case record.TypeSystem.String():
		r = &record.SystemRecord{}
	default:
		return nil, errors.Wrapf(ErrUnknownRecord, "%q", env.Type)
	}
	if err := json.Unmarshal(env.Record, r); err != nil {
		return nil, errors.Wrapf(err, "wire: json %s", env.Type)
	}
	return r, nil
}
