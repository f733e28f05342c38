package memory

import (
	"sync"
	"sync/atomic"
)

// Pool is a typed object pool. Reset, when non-nil, clears an object as
// it is returned so that nothing from a previous use leaks into the next.
type Pool[T any] struct {
	p     sync.Pool
	reset func(*T)

	gets atomic.Uint64
	news atomic.Uint64
}

func NewPool[T any](ctor func() *T, reset func(*T)) *Pool[T] {
	pool := &Pool[T]{reset: reset}
	pool.p.New = func() any {
		pool.news.Add(1)
		return ctor()
	}
	return pool
}

func (p *Pool[T]) Get() *T {
	p.gets.Add(1)
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}

// Stats reports how many objects were handed out and how many of those
// had to be freshly constructed.
func (p *Pool[T]) Stats() (gets, allocs uint64) {
	return p.gets.Load(), p.news.Load()
}
