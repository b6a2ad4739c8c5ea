// Package ring implements a bounded lock-free multi-producer/multi-consumer queue.
//
// Producers reserve slots by moving the producer head with a CAS, copy their
// items in, then publish by advancing the producer tail once every earlier
// reservation has been published. Consumers do the same on the consumer side.
// Capacity is checked against the consumer tail, so occupied slots never exceed
// the configured capacity.
package ring

import (
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var ErrInvalidCapacity = errors.New("ring capacity must be positive")

type Ring[T any] struct {
	_        cpu.CacheLinePad
	prodHead atomic.Uint64
	_        cpu.CacheLinePad
	prodTail atomic.Uint64
	_        cpu.CacheLinePad
	consHead atomic.Uint64
	_        cpu.CacheLinePad
	consTail atomic.Uint64
	_        cpu.CacheLinePad

	capacity uint64
	mask     uint64
	slots    []T
}

func New[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}
	return &Ring[T]{
		capacity: uint64(capacity),
		mask:     size - 1,
		slots:    make([]T, size),
	}, nil
}

// EnqueueBulk places all items or none. Items keep their relative order.
func (r *Ring[T]) EnqueueBulk(items []T) bool {
	n := uint64(len(items))
	if n == 0 {
		return true
	}
	if n > r.capacity {
		return false
	}

	var head uint64
	for {
		head = r.prodHead.Load()
		tail := r.consTail.Load()
		// A stale head can make tail look ahead of it; the CAS below rejects
		// that case, so only trust "full" when head is still current.
		free := r.capacity - (head - tail)
		if n > free {
			if r.prodHead.Load() != head {
				continue
			}
			return false
		}
		if r.prodHead.CompareAndSwap(head, head+n) {
			break
		}
	}

	for i := uint64(0); i < n; i++ {
		r.slots[(head+i)&r.mask] = items[i]
	}

	for r.prodTail.Load() != head {
		runtime.Gosched()
	}
	r.prodTail.Store(head + n)
	return true
}

// DequeueBurst moves up to len(out) items into out and returns how many.
// It never waits for items to arrive.
func (r *Ring[T]) DequeueBurst(out []T) int {
	max := uint64(len(out))
	if max == 0 {
		return 0
	}

	var head, n uint64
	for {
		head = r.consHead.Load()
		n = r.prodTail.Load() - head
		if n == 0 {
			return 0
		}
		if n > max {
			n = max
		}
		if r.consHead.CompareAndSwap(head, head+n) {
			break
		}
	}

	var zero T
	for i := uint64(0); i < n; i++ {
		idx := (head + i) & r.mask
		out[i] = r.slots[idx]
		r.slots[idx] = zero
	}

	for r.consTail.Load() != head {
		runtime.Gosched()
	}
	r.consTail.Store(head + n)
	return int(n)
}

// Len is a point-in-time count of published, not yet consumed items.
func (r *Ring[T]) Len() int {
	tail := r.consTail.Load()
	head := r.prodTail.Load()
	return int(head - tail)
}

// Free is advisory: it may be stale by the time the caller acts on it.
func (r *Ring[T]) Free() int {
	tail := r.consTail.Load()
	head := r.prodHead.Load()
	used := head - tail
	if used > r.capacity {
		return 0
	}
	return int(r.capacity - used)
}

func (r *Ring[T]) Cap() int {
	return int(r.capacity)
}
