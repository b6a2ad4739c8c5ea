package nic

import (
	"errors"
	"sync/atomic"
	"time"

	"packet-intake/pkg/ring"
)

var ErrFrameReleased = errors.New("frame already released")

const (
	frameFree uint32 = iota
	frameInUse
)

// FramePool is a fixed set of preallocated receive buffers. Drivers take frames
// from it when filling a burst and the pipeline gives them back through
// NIC.Release.
type FramePool struct {
	free      *ring.Ring[*Frame]
	frameSize int

	outstanding    atomic.Int64
	exhausted      atomic.Uint64
	doubleReleases atomic.Uint64
}

func NewFramePool(size, frameSize int) (*FramePool, error) {
	free, err := ring.New[*Frame](size)
	if err != nil {
		return nil, err
	}
	p := &FramePool{free: free, frameSize: frameSize}
	frames := make([]*Frame, size)
	for i := range frames {
		frames[i] = &Frame{buf: make([]byte, frameSize), pool: p}
	}
	free.EnqueueBulk(frames)
	return p, nil
}

// Get returns a free frame or false when every buffer is on loan.
func (p *FramePool) Get() (*Frame, bool) {
	var one [1]*Frame
	if p.free.DequeueBurst(one[:]) == 0 {
		p.exhausted.Add(1)
		return nil, false
	}
	f := one[0]
	f.state.Store(frameInUse)
	p.outstanding.Add(1)
	return f, true
}

func (p *FramePool) Put(f *Frame) error {
	if f == nil || f.pool != p {
		return ErrFrameReleased
	}
	if !f.state.CompareAndSwap(frameInUse, frameFree) {
		p.doubleReleases.Add(1)
		return ErrFrameReleased
	}
	f.Data = nil
	f.Timestamp = time.Time{}
	p.outstanding.Add(-1)
	p.free.EnqueueBulk([]*Frame{f})
	return nil
}

func (p *FramePool) FrameSize() int { return p.frameSize }
func (p *FramePool) Available() int { return p.free.Len() }
func (p *FramePool) Outstanding() int64 { return p.outstanding.Load() }
func (p *FramePool) Exhausted() uint64 { return p.exhausted.Load() }
func (p *FramePool) DoubleReleases() uint64 { return p.doubleReleases.Load() }
