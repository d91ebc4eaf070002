package framebuf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureAtLeast(t *testing.T) {
	s := NewScratch(nil)

	w := s.EnsureAtLeast(16)
	assert.Len(t, w, 16)
	assert.Equal(t, 1, s.Allocations())

	w = s.EnsureAtLeast(8)
	assert.Len(t, w, 8)
	assert.Equal(t, 16, s.Cap(), "smaller request keeps the larger buffer")
	assert.Equal(t, 1, s.Allocations())

	s.EnsureAtLeast(16)
	assert.Equal(t, 1, s.Allocations())

	s.EnsureAtLeast(32)
	assert.Equal(t, 32, s.Cap())
	assert.Equal(t, 2, s.Allocations())
}

func TestEnsureExact(t *testing.T) {
	s := NewScratch(binary.LittleEndian)

	s.EnsureExact(16)
	s.EnsureExact(16)
	assert.Equal(t, 1, s.Allocations())

	w := s.EnsureExact(8)
	assert.Len(t, w, 8)
	assert.Equal(t, 8, s.Cap(), "exact policy shrinks to the requested size")
	assert.Equal(t, 2, s.Allocations())
}

func TestEnsureExactZeroLength(t *testing.T) {
	s := NewScratch(nil)
	w := s.EnsureExact(0)
	assert.NotNil(t, w)
	assert.Empty(t, w)
	s.EnsureExact(0)
	assert.Equal(t, 1, s.Allocations())
}

func TestFreshBuffersAreZeroed(t *testing.T) {
	s := NewScratch(nil)
	w := s.EnsureAtLeast(4)
	copy(w, []byte{1, 2, 3, 4})

	w = s.EnsureAtLeast(64)
	assert.Equal(t, make([]byte, 64), w)
}

func TestScratchOrder(t *testing.T) {
	assert.Equal(t, binary.NativeEndian, NewScratch(nil).Order())
	assert.Equal(t, binary.BigEndian, NewScratch(binary.BigEndian).Order())
}

func TestPool(t *testing.T) {
	p := NewPool(binary.BigEndian, 128)

	s := p.Get()
	require.NotNil(t, s)
	assert.Equal(t, binary.BigEndian, s.Order())

	s.EnsureAtLeast(256)
	p.Put(s)
	assert.Zero(t, s.Cap(), "oversized buffers are released before pooling")

	p.Put(nil)
}
