package ring

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := New[int](capacity); !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("New(%d): expected ErrInvalidCapacity, got %v", capacity, err)
		}
	}
}

func TestCapacityIsExactForNonPowerOfTwo(t *testing.T) {
	r, err := New[int](3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Cap() != 3 {
		t.Fatalf("expected cap 3, got %d", r.Cap())
	}
	for i := 0; i < 3; i++ {
		if !r.EnqueueBulk([]int{i}) {
			t.Fatalf("enqueue %d failed below capacity", i)
		}
	}
	if r.EnqueueBulk([]int{99}) {
		t.Fatalf("expected enqueue to fail at capacity")
	}
	if r.Free() != 0 || r.Len() != 3 {
		t.Fatalf("unexpected free/len: %d/%d", r.Free(), r.Len())
	}
}

func TestEnqueueBulkIsAllOrNothing(t *testing.T) {
	r, _ := New[int](4)
	if !r.EnqueueBulk([]int{1, 2, 3}) {
		t.Fatalf("expected first batch to fit")
	}
	if r.EnqueueBulk([]int{4, 5}) {
		t.Fatalf("expected batch larger than free space to be rejected")
	}
	if r.Len() != 3 {
		t.Fatalf("rejected batch must not be partially stored, len=%d", r.Len())
	}
	if r.EnqueueBulk(make([]int, 5)) {
		t.Fatalf("expected batch larger than capacity to be rejected")
	}
}

func TestDequeueBurstPreservesOrder(t *testing.T) {
	r, _ := New[int](8)
	r.EnqueueBulk([]int{1, 2, 3})
	r.EnqueueBulk([]int{4, 5})

	out := make([]int, 4)
	n := r.DequeueBurst(out)
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}
	for i, want := range []int{1, 2, 3, 4} {
		if out[i] != want {
			t.Fatalf("out[%d]=%d, want %d", i, out[i], want)
		}
	}
	n = r.DequeueBurst(out)
	if n != 1 || out[0] != 5 {
		t.Fatalf("expected remaining item 5, got n=%d out[0]=%d", n, out[0])
	}
	if n := r.DequeueBurst(out); n != 0 {
		t.Fatalf("expected empty ring, got %d", n)
	}
}

func TestDequeueClearsSlots(t *testing.T) {
	r, _ := New[*int](2)
	v := 7
	r.EnqueueBulk([]*int{&v})
	out := make([]*int, 1)
	r.DequeueBurst(out)
	for i, slot := range r.slots {
		if slot != nil {
			t.Fatalf("slot %d still references a dequeued item", i)
		}
	}
}

func TestWrapAround(t *testing.T) {
	r, _ := New[int](4)
	out := make([]int, 4)
	next := 0
	for round := 0; round < 100; round++ {
		batch := []int{next, next + 1, next + 2}
		if !r.EnqueueBulk(batch) {
			t.Fatalf("round %d: enqueue failed", round)
		}
		if n := r.DequeueBurst(out); n != 3 {
			t.Fatalf("round %d: expected 3, got %d", round, n)
		}
		for i := 0; i < 3; i++ {
			if out[i] != next+i {
				t.Fatalf("round %d: out[%d]=%d, want %d", round, i, out[i], next+i)
			}
		}
		next += 3
	}
}

func TestConcurrentProducersConsumersNoLossNoDuplicate(t *testing.T) {
	const (
		producers   = 4
		consumers   = 4
		perProducer = 20000
		capacity    = 64
	)
	r, _ := New[int](capacity)

	seen := make([]atomic.Int32, producers*perProducer)
	var consumed atomic.Int64
	var overflow atomic.Bool
	done := make(chan struct{})

	var observer sync.WaitGroup
	observer.Add(1)
	go func() {
		defer observer.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if occupied(r) > capacity {
				overflow.Store(true)
			}
		}
	}()

	var prod sync.WaitGroup
	for p := 0; p < producers; p++ {
		prod.Add(1)
		go func(p int) {
			defer prod.Done()
			last := -1
			for i := 0; i < perProducer; i++ {
				v := p*perProducer + i
				for !r.EnqueueBulk([]int{v}) {
				}
				if v <= last {
					t.Errorf("producer %d submitted out of order", p)
				}
				last = v
			}
		}(p)
	}

	var cons sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cons.Add(1)
		go func() {
			defer cons.Done()
			out := make([]int, 8)
			for consumed.Load() < producers*perProducer {
				n := r.DequeueBurst(out)
				for i := 0; i < n; i++ {
					seen[out[i]].Add(1)
				}
				consumed.Add(int64(n))
			}
		}()
	}

	prod.Wait()
	cons.Wait()
	close(done)
	observer.Wait()

	if overflow.Load() {
		t.Fatalf("occupied slots exceeded capacity")
	}
	for v := range seen {
		if got := seen[v].Load(); got != 1 {
			t.Fatalf("value %d dequeued %d times", v, got)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty ring, len=%d", r.Len())
	}
}

func TestPerProducerOrderPreserved(t *testing.T) {
	const perProducer = 5000
	r, _ := New[[2]int](16)

	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i += 2 {
				for !r.EnqueueBulk([][2]int{{p, i}, {p, i + 1}}) {
				}
			}
		}(p)
	}

	last := [2]int{-1, -1}
	out := make([][2]int, 4)
	for total := 0; total < 2*perProducer; {
		n := r.DequeueBurst(out)
		for i := 0; i < n; i++ {
			p, seq := out[i][0], out[i][1]
			if seq != last[p]+1 {
				t.Fatalf("producer %d: got seq %d after %d", p, seq, last[p])
			}
			last[p] = seq
		}
		total += n
	}
	wg.Wait()
}

// occupied returns reserved-but-unconsumed slots at a single instant: the
// consumer tail is read on both sides of the producer head and the sample is
// only accepted when it did not move.
func occupied[T any](r *Ring[T]) int {
	for {
		tail := r.consTail.Load()
		head := r.prodHead.Load()
		if r.consTail.Load() == tail {
			return int(head - tail)
		}
	}
}
