// Package framebuf holds the reusable scratch buffers used to assemble and
// decode frames.
//
// A Scratch is owned by exactly one worker at a time. It is never shared
// between goroutines; Pool hands one out per connection and takes it back when
// the connection ends.
package framebuf

import (
	"encoding/binary"
	"sync"
)

// Scratch is a single reusable byte buffer tagged with the session byte order.
type Scratch struct {
	buf    []byte
	order  binary.ByteOrder
	allocs int
}

// NewScratch returns an empty scratch buffer. A nil order means native.
func NewScratch(order binary.ByteOrder) *Scratch {
	if order == nil {
		order = binary.NativeEndian
	}
	return &Scratch{order: order}
}

// EnsureAtLeast returns a window of n bytes, keeping the current buffer when
// its capacity is already n or more.
func (s *Scratch) EnsureAtLeast(n int) []byte {
	if cap(s.buf) < n {
		s.alloc(n)
	}
	return s.buf[:n]
}

// EnsureExact returns a window of n bytes, keeping the current buffer only when
// its capacity is exactly n.
func (s *Scratch) EnsureExact(n int) []byte {
	if s.buf == nil || cap(s.buf) != n {
		s.alloc(n)
	}
	return s.buf[:n]
}

func (s *Scratch) alloc(n int) {
	s.buf = make([]byte, n)
	s.allocs++
}

// Bytes returns the buffer at full capacity.
func (s *Scratch) Bytes() []byte {
	return s.buf[:cap(s.buf)]
}

func (s *Scratch) Cap() int {
	return cap(s.buf)
}

func (s *Scratch) Order() binary.ByteOrder {
	return s.order
}

// Allocations counts how many times the backing array was replaced.
func (s *Scratch) Allocations() int {
	return s.allocs
}

// Reset drops the backing array.
func (s *Scratch) Reset() {
	s.buf = nil
}

// DefaultRetainCap bounds the buffers kept by a Pool (64MB).
const DefaultRetainCap = 64 << 20

// Pool hands out one Scratch per worker.
type Pool struct {
	pool      sync.Pool
	order     binary.ByteOrder
	retainCap int
}

// NewPool creates a pool whose scratches use order. Buffers grown past
// retainCap are released instead of being pooled; retainCap <= 0 uses DefaultRetainCap.
func NewPool(order binary.ByteOrder, retainCap int) *Pool {
	if order == nil {
		order = binary.NativeEndian
	}
	if retainCap <= 0 {
		retainCap = DefaultRetainCap
	}
	p := &Pool{order: order, retainCap: retainCap}
	p.pool.New = func() any {
		return NewScratch(p.order)
	}
	return p
}

func (p *Pool) Get() *Scratch {
	return p.pool.Get().(*Scratch)
}

// Put returns s to the pool. s must not be used afterwards.
func (p *Pool) Put(s *Scratch) {
	if s == nil {
		return
	}
	if s.Cap() > p.retainCap {
		s.Reset()
	}
	p.pool.Put(s)
}
