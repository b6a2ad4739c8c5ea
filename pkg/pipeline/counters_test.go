package pipeline

import (
	"sync"
	"testing"
)

func TestShutdownTriggersOnce(t *testing.T) {
	var s Shutdown
	if s.Requested() {
		t.Fatalf("flag must start cleared")
	}
	if !s.Trigger() {
		t.Fatalf("first trigger must report true")
	}
	if s.Trigger() {
		t.Fatalf("second trigger must report false")
	}
	if !s.Requested() {
		t.Fatalf("flag must stay set")
	}
}

func TestSnapshotNeverShowsMoreProcessedThanReceived(t *testing.T) {
	var c Counters
	const n = 50000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			c.received.Add(1)
			c.receivedBytes.Add(64)
			c.processed.Add(1)
			c.processedBytes.Add(64)
		}
	}()

	var prev Snapshot
	for {
		s := c.Snapshot()
		if s.Processed > s.Received {
			t.Fatalf("processed %d > received %d", s.Processed, s.Received)
		}
		if s.Received < prev.Received || s.Processed < prev.Processed ||
			s.ReceivedBytes < prev.ReceivedBytes || s.ProcessedBytes < prev.ProcessedBytes {
			t.Fatalf("counters went backwards: %+v after %+v", s, prev)
		}
		prev = s
		if s.Processed == n {
			break
		}
	}
	wg.Wait()
}

func TestDroppedSumsBothCauses(t *testing.T) {
	var c Counters
	c.droppedAllocation.Add(2)
	c.droppedQueueFull.Add(3)
	if c.Dropped() != 5 {
		t.Fatalf("expected 5 dropped, got %d", c.Dropped())
	}
}

func TestParseModes(t *testing.T) {
	if m, err := ParseIdleMode(""); err != nil || m != IdleYield {
		t.Fatalf("expected yield default, got %q (%v)", m, err)
	}
	if _, err := ParseIdleMode("nap"); err == nil {
		t.Fatalf("expected error for unknown idle mode")
	}
	if p, err := ParsePolicy("overflow"); err != nil || p != PolicyOverflow {
		t.Fatalf("expected overflow, got %q (%v)", p, err)
	}
	if p, err := ParsePolicy(""); err != nil || p != PolicyBackpressure {
		t.Fatalf("expected backpressure default, got %q (%v)", p, err)
	}
	if _, err := ParsePolicy("block"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
