package orderbook

import (
	"math/rand"
	"sort"
	"testing"

	"gotest.tools/assert"

	"tvitch/domain/itch"
)

// blackHeight verifies the red-black properties below n and returns the
// black height.
func blackHeight(t *testing.T, l *Ladder, n *node) int {
	t.Helper()
	if n == l.leaf {
		return 1
	}
	if n.color == red {
		assert.Equal(t, n.left.color, black)
		assert.Equal(t, n.right.color, black)
	}
	if n.left != l.leaf {
		assert.Assert(t, n.left.key < n.key)
	}
	if n.right != l.leaf {
		assert.Assert(t, n.right.key > n.key)
	}
	lh := blackHeight(t, l, n.left)
	rh := blackHeight(t, l, n.right)
	assert.Equal(t, lh, rh)
	if n.color == black {
		return lh + 1
	}
	return lh
}

func prices(l *Ladder) []itch.Price {
	var out []itch.Price
	l.Walk(func(pl *PriceLevel) bool {
		out = append(out, pl.Price)
		return true
	})
	return out
}

func TestLadderOrdering(t *testing.T) {
	bids := newLadder(itch.Buy)
	asks := newLadder(itch.Sell)
	for _, p := range []itch.Price{30, 10, 20, 50, 40} {
		bids.upsert(p)
		asks.upsert(p)
	}
	assert.DeepEqual(t, prices(bids), []itch.Price{50, 40, 30, 20, 10})
	assert.DeepEqual(t, prices(asks), []itch.Price{10, 20, 30, 40, 50})
	assert.Equal(t, bids.Best().Price, itch.Price(50))
	assert.Equal(t, asks.Best().Price, itch.Price(10))

	top := bids.Top(2)
	assert.Equal(t, len(top), 2)
	assert.Equal(t, top[1].Price, itch.Price(40))
	assert.Equal(t, len(asks.Top(0)), 0)
	assert.Equal(t, len(asks.Top(10)), 5)
}

func TestLadderUpsertReturnsExistingLevel(t *testing.T) {
	l := newLadder(itch.Sell)
	a := l.upsert(100)
	b := l.upsert(100)
	assert.Assert(t, a == b)
	assert.Equal(t, l.Len(), 1)
	assert.Assert(t, l.Get(101) == nil)
	assert.Assert(t, !l.remove(101))
}

func TestLadderRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := newLadder(itch.Buy)
	ref := map[itch.Price]bool{}

	for i := 0; i < 5000; i++ {
		p := itch.Price(rng.Intn(400))
		if rng.Intn(3) == 0 {
			assert.Equal(t, l.remove(p), ref[p])
			delete(ref, p)
		} else {
			l.upsert(p)
			ref[p] = true
		}
		if i%250 == 0 {
			blackHeight(t, l, l.root)
		}
	}
	blackHeight(t, l, l.root)
	assert.Equal(t, l.root.color, black)

	want := make([]itch.Price, 0, len(ref))
	for p := range ref {
		want = append(want, p)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] > want[j] })
	assert.Equal(t, l.Len(), len(want))
	assert.DeepEqual(t, prices(l), want)

	for _, p := range want {
		assert.Assert(t, l.remove(p))
	}
	assert.Assert(t, l.Best() == nil)
	assert.Equal(t, l.Len(), 0)
}
