package pipeline

import (
	"fmt"

	"packet-intake/pkg/ring"
)

type Policy string

const (
	// PolicyBackpressure retries a full queue a bounded number of times
	// before dropping.
	PolicyBackpressure Policy = "backpressure"
	// PolicyOverflow drops as soon as the queue is full.
	PolicyOverflow Policy = "overflow"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyBackpressure, PolicyOverflow:
		return p, nil
	case "":
		return PolicyBackpressure, nil
	}
	return "", fmt.Errorf("unknown enqueue policy %q", s)
}

// Enqueuer applies the full-queue policy on top of the ring's all-or-nothing
// bulk enqueue. Records that cannot be placed are released and counted.
type Enqueuer struct {
	queue       *ring.Ring[*Record]
	policy      Policy
	retryBudget int
	backoff     Backoff
	counters    *Counters
}

func NewEnqueuer(queue *ring.Ring[*Record], policy Policy, retryBudget int, backoff Backoff, counters *Counters) *Enqueuer {
	if retryBudget < 0 {
		retryBudget = 0
	}
	return &Enqueuer{
		queue:       queue,
		policy:      policy,
		retryBudget: retryBudget,
		backoff:     backoff,
		counters:    counters,
	}
}

// Enqueue reports whether the batch was placed. On false every record in the
// batch has already been released.
func (e *Enqueuer) Enqueue(records []*Record) bool {
	if e.queue.EnqueueBulk(records) {
		return true
	}
	if e.policy == PolicyBackpressure {
		for i := 0; i < e.retryBudget; i++ {
			e.counters.enqueueRetries.Add(1)
			e.backoff.Idle()
			if e.queue.EnqueueBulk(records) {
				return true
			}
		}
	}
	for _, r := range records {
		_ = r.Release()
	}
	e.counters.droppedQueueFull.Add(uint64(len(records)))
	return false
}
