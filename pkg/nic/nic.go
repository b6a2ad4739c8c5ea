// Package nic defines the receive-side NIC contract consumed by the intake
// pipeline and ships the portable drivers (synthetic and pcap replay).
package nic

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	ErrUnknownPort  = errors.New("unknown port")
	ErrUnknownQueue = errors.New("unknown queue")
)

// NIC is what the pipeline needs from a network interface: non-blocking bursts
// per hardware queue, frame release, and per-port hardware counters.
type NIC interface {
	Ports() []uint16
	Queues(port uint16) int
	// ReceiveBurst fills frames with up to len(frames) received frames and
	// returns immediately. Every returned frame must be passed to Release
	// exactly once.
	ReceiveBurst(port, queue uint16, frames []*Frame) int
	Release(f *Frame)
	PortStats(port uint16) (PortStats, error)
	Close() error
}

type PortStats struct {
	Received uint64 `json:"received"`
	Errors   uint64 `json:"errors"`
	Missed   uint64 `json:"missed"`
}

// Frame is a view onto a driver-owned receive buffer. Data is only valid until
// the frame is released.
type Frame struct {
	Data      []byte
	Port      uint16
	Queue     uint16
	Timestamp time.Time

	buf   []byte
	state atomic.Uint32
	pool  *FramePool
}

func (f *Frame) Len() int {
	return len(f.Data)
}

// Fill copies payload into the frame buffer, truncating to the buffer size, and
// reports whether the payload fit.
func (f *Frame) Fill(payload []byte) bool {
	n := copy(f.buf, payload)
	f.Data = f.buf[:n]
	return n == len(payload)
}

type portCounters struct {
	received atomic.Uint64
	errors   atomic.Uint64
	missed   atomic.Uint64
}

func (c *portCounters) snapshot() PortStats {
	return PortStats{
		Received: c.received.Load(),
		Errors:   c.errors.Load(),
		Missed:   c.missed.Load(),
	}
}

func checkQueue(ports, queues int, port, queue uint16) error {
	if int(port) >= ports {
		return fmt.Errorf("%w: %d", ErrUnknownPort, port)
	}
	if int(queue) >= queues {
		return fmt.Errorf("%w: %d on port %d", ErrUnknownQueue, queue, port)
	}
	return nil
}
