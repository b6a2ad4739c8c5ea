package pipeline

import (
	"packet-intake/pkg/ring"
)

// Consumer drains the shared queue and releases each record.
type Consumer struct {
	queue    *ring.Ring[*Record]
	batch    []*Record
	counters *Counters
	shutdown *Shutdown
	backoff  Backoff
}

func NewConsumer(queue *ring.Ring[*Record], burst int, counters *Counters, shutdown *Shutdown, backoff Backoff) *Consumer {
	return &Consumer{
		queue:    queue,
		batch:    make([]*Record, burst),
		counters: counters,
		shutdown: shutdown,
		backoff:  backoff,
	}
}

// Poll dequeues and processes one burst, returning how many records it took.
func (c *Consumer) Poll() int {
	n := c.queue.DequeueBurst(c.batch)
	for i := 0; i < n; i++ {
		rec := c.batch[i]
		c.batch[i] = nil
		size := rec.Size
		if err := rec.Release(); err != nil {
			c.counters.doubleReleases.Add(1)
			continue
		}
		c.counters.processed.Add(1)
		c.counters.processedBytes.Add(uint64(size))
	}
	return n
}

func (c *Consumer) Run() {
	for !c.shutdown.Requested() {
		if c.Poll() == 0 {
			c.backoff.Idle()
		}
	}
}
