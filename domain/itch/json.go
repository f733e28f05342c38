package itch

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

var (
	sideBuyJSON  = []byte(`"buy"`)
	sideSellJSON = []byte(`"sell"`)
	nullJSON     = []byte(`null`)
)

// MarshalJSON renders a price as a quoted decimal so no precision is lost
// to float parsing on the consumer side.
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

// UnmarshalJSON accepts a quoted decimal or a bare number.
func (p *Price) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(data) >= 2 && data[0] == '"' {
		var err error
		if s, err = strconv.Unquote(s); err != nil {
			return errors.Wrap(err, "itch: price json")
		}
	}
	v, err := ParsePrice(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (s Side) MarshalJSON() ([]byte, error) {
	switch s {
	case Buy:
		return sideBuyJSON, nil
	case Sell:
		return sideSellJSON, nil
	case SideNone:
		return nullJSON, nil
	}
	return nil, errors.Errorf("itch: invalid side %q", byte(s))
}

func (s *Side) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, sideBuyJSON):
		*s = Buy
	case bytes.Equal(data, sideSellJSON):
		*s = Sell
	case bytes.Equal(data, nullJSON):
		*s = SideNone
	default:
		return errors.New("itch: unsupported side " + string(data))
	}
	return nil
}
