package itch

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"gotest.tools/assert"
)

type quoted struct {
	Side  Side  `json:"side"`
	Price Price `json:"price"`
}

func TestJSON(t *testing.T) {
	val, err := jsoniter.Marshal(&quoted{Side: Sell, Price: MustPrice("10.25")})
	assert.NilError(t, err)
	assert.Equal(t, string(val), `{"side":"sell","price":"10.25"}`)

	var q quoted
	assert.NilError(t, jsoniter.Unmarshal([]byte(`{"side":"buy","price":9.5}`), &q))
	assert.Equal(t, q.Side, Buy)
	assert.Equal(t, q.Price, MustPrice("9.5"))

	var tiny quoted
	assert.NilError(t, jsoniter.Unmarshal([]byte(`{"side":null,"price":"0.00000001"}`), &tiny))
	assert.Equal(t, tiny.Side, SideNone)
	assert.Equal(t, tiny.Price, Price(1))

	assert.Assert(t, jsoniter.Unmarshal([]byte(`{"side":"short"}`), &q) != nil)
	assert.Assert(t, jsoniter.Unmarshal([]byte(`{"price":"1.000000001"}`), &q) != nil)

	_, err = jsoniter.Marshal(&quoted{Side: Side('x')})
	assert.Assert(t, err != nil)
}
