package nic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type SyntheticOptions struct {
	Ports         int
	QueuesPerPort int
	// RingSize is the number of descriptors per hardware queue. Frames
	// arriving while a queue holds this many are counted as missed.
	RingSize  int
	FrameSize int
	PoolSize  int
	// RatePPS enables the built-in traffic generator when positive. The rate
	// is split evenly across all queues.
	RatePPS    float64
	FrameSizes []int
}

// Synthetic is an in-memory NIC. Tests script traffic with Inject; the demo
// driver generates frames at a fixed rate.
type Synthetic struct {
	opts   SyntheticOptions
	pool   *FramePool
	queues [][]*synthQueue
	stats  []portCounters
	closed atomic.Bool
}

type synthQueue struct {
	mu      sync.Mutex
	pending [][]byte
	limiter *rate.Limiter
	seq     int
}

func NewSynthetic(opts SyntheticOptions) (*Synthetic, error) {
	if opts.Ports <= 0 {
		return nil, NewPortError(0, "synthetic", StageValidate, fmt.Errorf("need at least one port, got %d", opts.Ports))
	}
	if opts.QueuesPerPort <= 0 {
		return nil, NewPortError(0, "synthetic", StageQueueSetup, fmt.Errorf("need at least one queue per port, got %d", opts.QueuesPerPort))
	}
	if opts.RingSize <= 0 {
		return nil, NewPortError(0, "synthetic", StageDescriptors, fmt.Errorf("invalid ring size %d", opts.RingSize))
	}
	if opts.FrameSize <= 0 {
		opts.FrameSize = 2048
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = opts.Ports * opts.QueuesPerPort * opts.RingSize
	}
	if len(opts.FrameSizes) == 0 {
		opts.FrameSizes = []int{64}
	}

	pool, err := NewFramePool(opts.PoolSize, opts.FrameSize)
	if err != nil {
		return nil, NewPortError(0, "synthetic", StageDescriptors, err)
	}

	s := &Synthetic{
		opts:   opts,
		pool:   pool,
		queues: make([][]*synthQueue, opts.Ports),
		stats:  make([]portCounters, opts.Ports),
	}
	perQueue := opts.RatePPS / float64(opts.Ports*opts.QueuesPerPort)
	for p := range s.queues {
		s.queues[p] = make([]*synthQueue, opts.QueuesPerPort)
		for q := range s.queues[p] {
			sq := &synthQueue{}
			if perQueue > 0 {
				sq.limiter = rate.NewLimiter(rate.Limit(perQueue), opts.RingSize)
			}
			s.queues[p][q] = sq
		}
	}
	return s, nil
}

// Inject places payloads on a hardware queue and returns how many were
// accepted. Oversized payloads count as errors, payloads beyond the ring size
// as missed.
func (s *Synthetic) Inject(port, queue uint16, payloads ...[]byte) (int, error) {
	if err := checkQueue(s.opts.Ports, s.opts.QueuesPerPort, port, queue); err != nil {
		return 0, err
	}
	q := s.queues[port][queue]
	q.mu.Lock()
	defer q.mu.Unlock()

	accepted := 0
	for _, p := range payloads {
		switch {
		case len(p) > s.opts.FrameSize:
			s.stats[port].errors.Add(1)
		case len(q.pending) >= s.opts.RingSize:
			s.stats[port].missed.Add(1)
		default:
			q.pending = append(q.pending, append([]byte(nil), p...))
			accepted++
		}
	}
	return accepted, nil
}

func (s *Synthetic) ReceiveBurst(port, queue uint16, frames []*Frame) int {
	if s.closed.Load() || checkQueue(s.opts.Ports, s.opts.QueuesPerPort, port, queue) != nil {
		return 0
	}
	q := s.queues[port][queue]
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	n := 0
	for n < len(frames) && len(q.pending) > 0 {
		f, ok := s.pool.Get()
		if !ok {
			break
		}
		f.Fill(q.pending[0])
		q.pending[0] = nil
		q.pending = q.pending[1:]
		f.Port, f.Queue, f.Timestamp = port, queue, now
		frames[n] = f
		n++
	}
	for n < len(frames) && q.limiter != nil && q.limiter.Allow() {
		f, ok := s.pool.Get()
		if !ok {
			s.stats[port].missed.Add(1)
			break
		}
		size := s.opts.FrameSizes[q.seq%len(s.opts.FrameSizes)]
		q.seq++
		if size > len(f.buf) {
			size = len(f.buf)
		}
		f.Data = f.buf[:size]
		f.Port, f.Queue, f.Timestamp = port, queue, now
		frames[n] = f
		n++
	}
	s.stats[port].received.Add(uint64(n))
	return n
}

func (s *Synthetic) Release(f *Frame) {
	_ = s.pool.Put(f)
}

func (s *Synthetic) Ports() []uint16 {
	ports := make([]uint16, s.opts.Ports)
	for i := range ports {
		ports[i] = uint16(i)
	}
	return ports
}

func (s *Synthetic) Queues(port uint16) int {
	if int(port) >= s.opts.Ports {
		return 0
	}
	return s.opts.QueuesPerPort
}

func (s *Synthetic) PortStats(port uint16) (PortStats, error) {
	if int(port) >= s.opts.Ports {
		return PortStats{}, fmt.Errorf("%w: %d", ErrUnknownPort, port)
	}
	return s.stats[port].snapshot(), nil
}

func (s *Synthetic) Pool() *FramePool {
	return s.pool
}

func (s *Synthetic) Close() error {
	s.closed.Store(true)
	return nil
}
