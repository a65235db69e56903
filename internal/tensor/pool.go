package tensor

import (
	"sync"
	"sync/atomic"
)

// maxFreePerSize bounds how many idle buffers of one length the pool retains.
const maxFreePerSize = 16

// PoolStats reports buffer pool activity.
type PoolStats struct {
	Live      int64 // Buffers handed out and not yet released
	Allocated int64 // Buffers allocated from the Go heap
	Reused    int64 // Buffers served from the free lists
}

// bufferPool recycles float32 buffers by exact length.
//
// Training allocates the same handful of shapes on every iteration, so exact
// length buckets give near-perfect reuse without any size-class rounding.
type bufferPool struct {
	mu   sync.Mutex
	free map[int][][]float32

	live      atomic.Int64
	allocated atomic.Int64
	reused    atomic.Int64
}

var defaultPool = &bufferPool{free: make(map[int][][]float32)}

// acquire returns a zeroed buffer of length n.
func (p *bufferPool) acquire(n int) []float32 {
	p.live.Add(1)

	p.mu.Lock()
	list := p.free[n]
	if len(list) > 0 {
		buf := list[len(list)-1]
		p.free[n] = list[:len(list)-1]
		p.mu.Unlock()

		p.reused.Add(1)
		clear(buf)
		return buf
	}
	p.mu.Unlock()

	p.allocated.Add(1)
	return make([]float32, n)
}

// recycle hands a buffer back to the pool.
func (p *bufferPool) recycle(buf []float32) {
	p.live.Add(-1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[len(buf)]) < maxFreePerSize {
		p.free[len(buf)] = append(p.free[len(buf)], buf)
	}
}

// Live returns the number of tensor buffers that have not been released.
//
// Tests use it to assert that a training iteration or a prediction leaves
// nothing behind.
func Live() int64 {
	return defaultPool.live.Load()
}

// Stats returns a snapshot of the buffer pool counters.
func Stats() PoolStats {
	return PoolStats{
		Live:      defaultPool.live.Load(),
		Allocated: defaultPool.allocated.Load(),
		Reused:    defaultPool.reused.Load(),
	}
}
