package nic

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/time/rate"
)

type ReplayOptions struct {
	// Paths holds one capture file per port.
	Paths         []string
	QueuesPerPort int
	RingSize      int
	FrameSize     int
	PoolSize      int
	// RatePPS paces each port; zero replays as fast as the workers poll.
	RatePPS float64
	Loop    bool
}

// PcapReplay feeds capture files through the NIC contract. Frames of a port are
// dealt to its queues round-robin.
type PcapReplay struct {
	opts   ReplayOptions
	pool   *FramePool
	ports  []*replayPort
	closed atomic.Bool
}

type replayPort struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	reader  *pcapgo.Reader
	pending [][][]byte
	next    int
	eof     bool
	read    int
	limiter *rate.Limiter
	stats   portCounters
}

func OpenPcapReplay(opts ReplayOptions) (*PcapReplay, error) {
	if len(opts.Paths) == 0 {
		return nil, NewPortError(0, "pcap", StageValidate, fmt.Errorf("no capture files configured"))
	}
	if opts.QueuesPerPort <= 0 {
		return nil, NewPortError(0, "pcap", StageQueueSetup, fmt.Errorf("need at least one queue per port, got %d", opts.QueuesPerPort))
	}
	if opts.RingSize <= 0 {
		return nil, NewPortError(0, "pcap", StageDescriptors, fmt.Errorf("invalid ring size %d", opts.RingSize))
	}
	if opts.FrameSize <= 0 {
		opts.FrameSize = 2048
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = len(opts.Paths) * opts.QueuesPerPort * opts.RingSize
	}

	pool, err := NewFramePool(opts.PoolSize, opts.FrameSize)
	if err != nil {
		return nil, NewPortError(0, "pcap", StageDescriptors, err)
	}
	r := &PcapReplay{opts: opts, pool: pool}
	for i, path := range opts.Paths {
		p, err := openReplayPort(uint16(i), path, opts)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		r.ports = append(r.ports, p)
	}
	return r, nil
}

func openReplayPort(id uint16, path string, opts ReplayOptions) (*replayPort, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewPortError(id, path, StageValidate, err)
	}
	reader, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, NewPortError(id, path, StageDeviceInfo, err)
	}
	if lt := reader.LinkType(); lt != layers.LinkTypeEthernet {
		f.Close()
		return nil, NewPortError(id, path, StageDeviceInfo, fmt.Errorf("unsupported link type %s", lt))
	}
	p := &replayPort{
		path:    path,
		file:    f,
		reader:  reader,
		pending: make([][][]byte, opts.QueuesPerPort),
	}
	if opts.RatePPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RatePPS), opts.RingSize)
	}
	return p, nil
}

// readNext pulls one packet from the capture and deals it to the next queue.
// It returns false when pacing, end of file or a read error stops the port.
func (p *replayPort) readNext(opts ReplayOptions) bool {
	if p.eof {
		return false
	}
	if p.limiter != nil && !p.limiter.Allow() {
		return false
	}
	data, _, err := p.reader.ReadPacketData()
	if err == io.EOF {
		if !opts.Loop || p.read == 0 {
			p.eof = true
			return false
		}
		if err := p.rewind(); err != nil {
			p.stats.errors.Add(1)
			p.eof = true
			return false
		}
		p.read = 0
		data, _, err = p.reader.ReadPacketData()
	}
	if err != nil {
		p.stats.errors.Add(1)
		p.eof = true
		return false
	}
	p.read++

	q := p.next
	p.next = (p.next + 1) % len(p.pending)
	switch {
	case len(data) > opts.FrameSize:
		p.stats.errors.Add(1)
	case len(p.pending[q]) >= opts.RingSize:
		p.stats.missed.Add(1)
	default:
		p.pending[q] = append(p.pending[q], data)
	}
	return true
}

func (p *replayPort) rewind() error {
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, err := pcapgo.NewReader(p.file)
	if err != nil {
		return err
	}
	p.reader = reader
	return nil
}

func (r *PcapReplay) ReceiveBurst(port, queue uint16, frames []*Frame) int {
	if r.closed.Load() || checkQueue(len(r.ports), r.opts.QueuesPerPort, port, queue) != nil {
		return 0
	}
	p := r.ports[port]
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	n := 0
	for n < len(frames) {
		if len(p.pending[queue]) == 0 {
			if !p.readNext(r.opts) {
				break
			}
			continue
		}
		f, ok := r.pool.Get()
		if !ok {
			break
		}
		f.Fill(p.pending[queue][0])
		p.pending[queue][0] = nil
		p.pending[queue] = p.pending[queue][1:]
		f.Port, f.Queue, f.Timestamp = port, queue, now
		frames[n] = f
		n++
	}
	p.stats.received.Add(uint64(n))
	return n
}

func (r *PcapReplay) Release(f *Frame) {
	_ = r.pool.Put(f)
}

func (r *PcapReplay) Ports() []uint16 {
	ports := make([]uint16, len(r.ports))
	for i := range ports {
		ports[i] = uint16(i)
	}
	return ports
}

func (r *PcapReplay) Queues(port uint16) int {
	if int(port) >= len(r.ports) {
		return 0
	}
	return r.opts.QueuesPerPort
}

func (r *PcapReplay) PortStats(port uint16) (PortStats, error) {
	if int(port) >= len(r.ports) {
		return PortStats{}, fmt.Errorf("%w: %d", ErrUnknownPort, port)
	}
	return r.ports[port].stats.snapshot(), nil
}

// Done reports whether every port reached the end of its capture.
func (r *PcapReplay) Done() bool {
	for _, p := range r.ports {
		p.mu.Lock()
		done := p.eof
		for _, q := range p.pending {
			if len(q) > 0 {
				done = false
			}
		}
		p.mu.Unlock()
		if !done {
			return false
		}
	}
	return true
}

func (r *PcapReplay) Pool() *FramePool {
	return r.pool
}

func (r *PcapReplay) Close() error {
	r.closed.Store(true)
	var first error
	for _, p := range r.ports {
		p.mu.Lock()
		if err := p.file.Close(); err != nil && first == nil {
			first = err
		}
		p.mu.Unlock()
	}
	return first
}
