package orderbook

import "tvitch/domain/itch"

type color uint8

const (
	red color = iota
	black
)

type node struct {
	key    itch.Price
	level  *PriceLevel
	color  color
	left   *node
	right  *node
	parent *node
}

// Ladder is one side of a book: price levels in a red-black tree keyed by
// price. Best is the highest price for bids and the lowest for asks.
type Ladder struct {
	side itch.Side
	root *node
	leaf *node // black sentinel
	size int
}

func newLadder(side itch.Side) *Ladder {
	sentinel := &node{color: black}
	return &Ladder{side: side, root: sentinel, leaf: sentinel}
}

func (t *Ladder) Side() itch.Side { return t.side }

// Len is the number of price levels.
func (t *Ladder) Len() int { return t.size }

func (t *Ladder) Get(price itch.Price) *PriceLevel {
	n := t.search(price)
	if n == t.leaf {
		return nil
	}
	return n.level
}

// upsert returns the level at price, creating it if needed.
func (t *Ladder) upsert(price itch.Price) *PriceLevel {
	y := t.leaf
	x := t.root
	for x != t.leaf {
		y = x
		switch {
		case price < x.key:
			x = x.left
		case price > x.key:
			x = x.right
		default:
			return x.level
		}
	}

	pl := &PriceLevel{Price: price}
	z := &node{key: price, level: pl, color: red, left: t.leaf, right: t.leaf, parent: y}
	switch {
	case y == t.leaf:
		t.root = z
	case z.key < y.key:
		y.left = z
	default:
		y.right = z
	}
	t.insertFixup(z)
	t.size++
	return pl
}

func (t *Ladder) remove(price itch.Price) bool {
	z := t.search(price)
	if z == t.leaf {
		return false
	}
	t.deleteNode(z)
	t.size--
	return true
}

// Best returns the best level or nil when the side is empty.
func (t *Ladder) Best() *PriceLevel {
	var n *node
	if t.side == itch.Buy {
		n = t.maxNode(t.root)
	} else {
		n = t.minNode(t.root)
	}
	if n == t.leaf {
		return nil
	}
	return n.level
}

// Walk visits levels best first until fn returns false.
func (t *Ladder) Walk(fn func(*PriceLevel) bool) {
	if t.side == itch.Buy {
		for n := t.maxNode(t.root); n != t.leaf; n = t.prev(n) {
			if !fn(n.level) {
				return
			}
		}
		return
	}
	for n := t.minNode(t.root); n != t.leaf; n = t.next(n) {
		if !fn(n.level) {
			return
		}
	}
}

// Top returns at most n levels best first.
func (t *Ladder) Top(n int) []Level {
	if n <= 0 {
		return nil
	}
	out := make([]Level, 0, min(n, t.size))
	t.Walk(func(pl *PriceLevel) bool {
		out = append(out, pl.Level())
		return len(out) < n
	})
	return out
}

func (t *Ladder) search(price itch.Price) *node {
	n := t.root
	for n != t.leaf {
		switch {
		case price < n.key:
			n = n.left
		case price > n.key:
			n = n.right
		default:
			return n
		}
	}
	return t.leaf
}

func (t *Ladder) minNode(n *node) *node {
	if n == t.leaf {
		return t.leaf
	}
	for n.left != t.leaf {
		n = n.left
	}
	return n
}

func (t *Ladder) maxNode(n *node) *node {
	if n == t.leaf {
		return t.leaf
	}
	for n.right != t.leaf {
		n = n.right
	}
	return n
}

func (t *Ladder) next(n *node) *node {
	if n.right != t.leaf {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.leaf && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *Ladder) prev(n *node) *node {
	if n.left != t.leaf {
		return t.maxNode(n.left)
	}
	p := n.parent
	for p != t.leaf && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *Ladder) leftRotate(x *node) {
	y := x.right
	x.right = y.left
	if y.left != t.leaf {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.leaf:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *Ladder) rightRotate(y *node) {
	x := y.left
	y.left = x.right
	if x.right != t.leaf {
		x.right.parent = y
	}
	x.parent = y.parent
	switch {
	case y.parent == t.leaf:
		t.root = x
	case y == y.parent.right:
		y.parent.right = x
	default:
		y.parent.left = x
	}
	x.right = y
	y.parent = x
}

func (t *Ladder) insertFixup(z *node) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.leftRotate(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rightRotate(z.parent.parent)
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rightRotate(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.leftRotate(z.parent.parent)
		}
	}
	t.root.color = black
}

func (t *Ladder) transplant(u, v *node) {
	switch {
	case u.parent == t.leaf:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *Ladder) deleteNode(z *node) {
	y := z
	yColor := y.color
	var x *node

	switch {
	case z.left == t.leaf:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.leaf:
		x = z.left
		t.transplant(z, z.left)
	default:
		y = t.minNode(z.right)
		yColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yColor == black {
		t.deleteFixup(x)
	}
}

func (t *Ladder) deleteFixup(x *node) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.leftRotate(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.right.color == black {
				w.left.color = black
				w.color = red
				t.rightRotate(w)
				w = x.parent.right
			}
			w.color = x.parent.color
			x.parent.color = black
			w.right.color = black
			t.leftRotate(x.parent)
			x = t.root
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rightRotate(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.left.color == black {
				w.right.color = black
				w.color = red
				t.leftRotate(w)
				w = x.parent.left
			}
			w.color = x.parent.color
			x.parent.color = black
			w.left.color = black
			t.rightRotate(x.parent)
			x = t.root
		}
	}
	x.color = black
}
