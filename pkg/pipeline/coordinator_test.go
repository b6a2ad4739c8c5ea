package pipeline

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"packet-intake/pkg/nic"
)

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	e.codes = append(e.codes, code)
	e.mu.Unlock()
}

func (e *exitRecorder) calls() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCoordinatorFinalReportOnSignal(t *testing.T) {
	opts := DefaultOptions()
	opts.QueueCapacity = 16
	opts.Consumers = 1
	opts.BurstSize = 2
	p, dev := newSyntheticPipeline(t, nic.SyntheticOptions{Ports: 1, QueuesPerPort: 1, RingSize: 16}, opts)

	_, _ = dev.Inject(0, 0, frames(60, 60, 60, 60, 60)...)
	for p.Receivers()[0].Poll() > 0 {
	}
	p.Consumers()[0].Poll()

	s := p.Snapshot()
	if s.Received != 5 || s.Processed != 2 {
		t.Fatalf("unexpected setup counters: %+v", s)
	}

	out := &syncBuffer{}
	exits := &exitRecorder{}
	c := NewCoordinator(p, CoordinatorOptions{Interval: time.Hour, Out: out, Exit: exits.exit})

	signals := make(chan os.Signal, 1)
	signals <- syscall.SIGINT
	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), signals)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("coordinator did not terminate")
	}

	text := out.String()
	for _, want := range []string{
		"Caught signal interrupt\n",
		"Port #0: 5 received / 0 errors / 0 missed\n",
		"Rx packets: 5 \t Ring space: 13 \t Packets processed: 2\n",
		"Total processed packets: 2\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
	if got := exits.calls(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected a single exit(0), got %v", got)
	}
	if !p.Shutdown().Requested() {
		t.Fatalf("shutdown flag must be set")
	}
	if c.State() != StateTerminated {
		t.Fatalf("expected terminated state, got %s", c.State())
	}

	c.Terminate("again")
	if len(exits.calls()) != 1 {
		t.Fatalf("terminate must only take effect once")
	}
}

func TestCoordinatorTicksAndStopsOnCancel(t *testing.T) {
	opts := DefaultOptions()
	opts.QueueCapacity = 16
	opts.Consumers = 1
	p, _ := newSyntheticPipeline(t, nic.SyntheticOptions{Ports: 2, QueuesPerPort: 1, RingSize: 4}, opts)

	reports := make(chan Report, 16)
	out := &syncBuffer{}
	exits := &exitRecorder{}
	c := NewCoordinator(p, CoordinatorOptions{
		Interval: 5 * time.Millisecond,
		Out:      out,
		Exit:     exits.exit,
		OnReport: func(r Report) {
			select {
			case reports <- r:
			default:
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, nil)
		close(done)
	}()

	select {
	case r := <-reports:
		if r.Final || len(r.Ports) != 2 || r.QueueCap != 16 {
			t.Fatalf("unexpected periodic report: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no periodic report")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("coordinator did not stop on cancel")
	}
	if !strings.Contains(out.String(), "Caught signal context canceled") {
		t.Fatalf("expected cancel reason in output:\n%s", out.String())
	}
	if len(exits.calls()) != 1 {
		t.Fatalf("expected exit to be called once")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateRunning:    "running",
		StateStopping:   "stopping",
		StateTerminated: "terminated",
		State(9):        "state(9)",
	} {
		if s.String() != want {
			t.Fatalf("State(%d).String()=%q, want %q", int32(s), s.String(), want)
		}
	}
}
