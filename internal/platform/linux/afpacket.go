//go:build linux

// Package linux implements the AF_PACKET receive driver. Each hardware queue
// is a TPACKET_V2 socket; the sockets of one port join a hash fanout group so
// the kernel spreads flows across them.
package linux

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"packet-intake/internal/logger"
	"packet-intake/pkg/nic"

	"github.com/google/gopacket/afpacket"
	"golang.org/x/sys/unix"
)

type Options struct {
	Interfaces    []string
	QueuesPerPort int
	RingSize      int
	FrameSize     int
	PoolSize      int
	PollTimeout   time.Duration
	Promiscuous   bool
	Log           *logger.Logger
}

type AFPacket struct {
	opts   Options
	pool   *nic.FramePool
	ports  []*port
	closed atomic.Bool
}

type port struct {
	name      string
	mac       net.HardwareAddr
	handles   []*afpacket.TPacket
	promiscFD int

	errors atomic.Uint64
	missed atomic.Uint64
}

func Open(opts Options) (*AFPacket, error) {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if len(opts.Interfaces) == 0 {
		return nil, nic.NewPortError(0, "", nic.StageValidate, fmt.Errorf("no interfaces configured"))
	}
	if opts.QueuesPerPort <= 0 {
		return nil, nic.NewPortError(0, "", nic.StageQueueSetup, fmt.Errorf("need at least one queue per port, got %d", opts.QueuesPerPort))
	}
	if opts.RingSize <= 0 {
		return nil, nic.NewPortError(0, "", nic.StageDescriptors, fmt.Errorf("invalid ring size %d", opts.RingSize))
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = len(opts.Interfaces) * opts.QueuesPerPort * opts.RingSize
	}

	pool, err := nic.NewFramePool(opts.PoolSize, opts.FrameSize)
	if err != nil {
		return nil, nic.NewPortError(0, "", nic.StageDescriptors, err)
	}
	a := &AFPacket{opts: opts, pool: pool}
	for i, name := range opts.Interfaces {
		p, err := openPort(uint16(i), name, opts)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.ports = append(a.ports, p)
		opts.Log.Info("port initialised", map[string]any{
			"port":        i,
			"interface":   name,
			"mac":         p.mac.String(),
			"queues":      opts.QueuesPerPort,
			"promiscuous": opts.Promiscuous,
		})
	}
	return a, nil
}

func openPort(id uint16, name string, opts Options) (*port, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nic.NewPortError(id, name, nic.StageDeviceInfo, err)
	}
	p := &port{name: name, promiscFD: -1}

	numBlocks := opts.RingSize * afpacket.DefaultFrameSize / afpacket.DefaultBlockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	fanoutID := uint16(os.Getpid()) ^ id
	for q := 0; q < opts.QueuesPerPort; q++ {
		h, err := afpacket.NewTPacket(
			afpacket.OptInterface(name),
			afpacket.OptFrameSize(afpacket.DefaultFrameSize),
			afpacket.OptBlockSize(afpacket.DefaultBlockSize),
			afpacket.OptNumBlocks(numBlocks),
			afpacket.OptPollTimeout(opts.PollTimeout),
			afpacket.SocketRaw,
			afpacket.TPacketVersion2,
		)
		if err != nil {
			p.close()
			return nil, nic.NewPortError(id, name, nic.StageQueueSetup, fmt.Errorf("queue %d: %w", q, err))
		}
		p.handles = append(p.handles, h)
		if opts.QueuesPerPort > 1 {
			if err := h.SetFanout(afpacket.FanoutHash, fanoutID); err != nil {
				p.close()
				return nil, nic.NewPortError(id, name, nic.StageStart, fmt.Errorf("fanout group %d: %w", fanoutID, err))
			}
		}
	}

	if len(ifi.HardwareAddr) == 0 {
		p.close()
		return nil, nic.NewPortError(id, name, nic.StageMACAddress, fmt.Errorf("interface has no hardware address"))
	}
	p.mac = ifi.HardwareAddr

	if opts.Promiscuous {
		fd, err := enablePromiscuous(ifi.Index)
		if err != nil {
			p.close()
			return nil, nic.NewPortError(id, name, nic.StagePromiscuous, err)
		}
		p.promiscFD = fd
	}
	return p, nil
}

// enablePromiscuous holds a packet socket with a PACKET_MR_PROMISC membership.
// The kernel drops the membership when the socket closes.
func enablePromiscuous(ifindex int) (int, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return -1, fmt.Errorf("packet socket: %w", err)
	}
	mreq := unix.PacketMreq{Ifindex: int32(ifindex), Type: unix.PACKET_MR_PROMISC}
	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("add promiscuous membership: %w", err)
	}
	return fd, nil
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

func (a *AFPacket) ReceiveBurst(portID, queue uint16, frames []*nic.Frame) int {
	if a.closed.Load() || int(portID) >= len(a.ports) || int(queue) >= a.opts.QueuesPerPort {
		return 0
	}
	p := a.ports[portID]
	h := p.handles[queue]
	n := 0
	for n < len(frames) {
		data, ci, err := h.ZeroCopyReadPacketData()
		if err != nil {
			if !errors.Is(err, afpacket.ErrTimeout) {
				p.errors.Add(1)
			}
			break
		}
		f, ok := a.pool.Get()
		if !ok {
			p.missed.Add(1)
			break
		}
		if !f.Fill(data) {
			p.errors.Add(1)
		}
		f.Port, f.Queue, f.Timestamp = portID, queue, ci.Timestamp
		frames[n] = f
		n++
	}
	return n
}

func (a *AFPacket) Release(f *nic.Frame) {
	_ = a.pool.Put(f)
}

func (a *AFPacket) Ports() []uint16 {
	ids := make([]uint16, len(a.ports))
	for i := range ids {
		ids[i] = uint16(i)
	}
	return ids
}

func (a *AFPacket) Queues(portID uint16) int {
	if int(portID) >= len(a.ports) {
		return 0
	}
	return a.opts.QueuesPerPort
}

// PortStats sums the kernel socket counters of every queue. The kernel counts
// dropped packets as seen, so they are moved from received to missed.
func (a *AFPacket) PortStats(portID uint16) (nic.PortStats, error) {
	if int(portID) >= len(a.ports) {
		return nic.PortStats{}, fmt.Errorf("%w: %d", nic.ErrUnknownPort, portID)
	}
	p := a.ports[portID]
	stats := nic.PortStats{Errors: p.errors.Load(), Missed: p.missed.Load()}
	for _, h := range p.handles {
		s, _, err := h.SocketStats()
		if err != nil {
			return nic.PortStats{}, fmt.Errorf("socket stats %s: %w", p.name, err)
		}
		seen, drops := uint64(s.Packets()), uint64(s.Drops())
		if drops > seen {
			drops = seen
		}
		stats.Received += seen - drops
		stats.Missed += drops
	}
	return stats, nil
}

func (a *AFPacket) MAC(portID uint16) net.HardwareAddr {
	if int(portID) >= len(a.ports) {
		return nil
	}
	return a.ports[portID].mac
}

func (a *AFPacket) Pool() *nic.FramePool {
	return a.pool
}

func (a *AFPacket) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, p := range a.ports {
		p.close()
	}
	return nil
}

func (p *port) close() {
	for _, h := range p.handles {
		h.Close()
	}
	p.handles = nil
	if p.promiscFD >= 0 {
		unix.Close(p.promiscFD)
		p.promiscFD = -1
	}
}
