package pipeline

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Counters are shared by every worker. All fields only grow.
type Counters struct {
	received      atomic.Uint64
	receivedBytes atomic.Uint64

	_ cpu.CacheLinePad

	processed      atomic.Uint64
	processedBytes atomic.Uint64

	_ cpu.CacheLinePad

	droppedAllocation atomic.Uint64
	droppedQueueFull  atomic.Uint64
	enqueueRetries    atomic.Uint64
	doubleReleases    atomic.Uint64
}

type Snapshot struct {
	Received          uint64 `json:"received"`
	Processed         uint64 `json:"processed"`
	ReceivedBytes     uint64 `json:"received_bytes"`
	ProcessedBytes    uint64 `json:"processed_bytes"`
	DroppedAllocation uint64 `json:"dropped_allocation"`
	DroppedQueueFull  uint64 `json:"dropped_queue_full"`
	EnqueueRetries    uint64 `json:"enqueue_retries"`
	DoubleReleases    uint64 `json:"double_releases"`
}

// Snapshot reads processed before received so that Processed <= Received holds
// in every snapshot.
func (c *Counters) Snapshot() Snapshot {
	var s Snapshot
	s.Processed = c.processed.Load()
	s.ProcessedBytes = c.processedBytes.Load()
	s.Received = c.received.Load()
	s.ReceivedBytes = c.receivedBytes.Load()
	s.DroppedAllocation = c.droppedAllocation.Load()
	s.DroppedQueueFull = c.droppedQueueFull.Load()
	s.EnqueueRetries = c.enqueueRetries.Load()
	s.DoubleReleases = c.doubleReleases.Load()
	return s
}

func (c *Counters) Received() uint64  { return c.received.Load() }
func (c *Counters) Processed() uint64 { return c.processed.Load() }

// Dropped is the total of records lost to allocation failure or a full queue.
func (c *Counters) Dropped() uint64 {
	return c.droppedAllocation.Load() + c.droppedQueueFull.Load()
}

// Shutdown is a one-way stop flag polled by every worker.
type Shutdown struct {
	flag atomic.Bool
}

// Trigger sets the flag and reports whether this call was the one that set it.
func (s *Shutdown) Trigger() bool {
	return s.flag.CompareAndSwap(false, true)
}

func (s *Shutdown) Requested() bool {
	return s.flag.Load()
}
