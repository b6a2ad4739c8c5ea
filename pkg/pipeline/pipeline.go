// Package pipeline moves frames from NIC hardware queues through a shared
// bounded queue to a pool of consumers.
//
// One receive worker runs per (port, queue). Each copies frames into pooled
// records and enqueues them; consumer workers dequeue in bursts and release
// the records. Workers poll without blocking and stop once the shutdown flag
// is set.
package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"packet-intake/internal/logger"
	"packet-intake/pkg/nic"
	"packet-intake/pkg/ring"
)

type Options struct {
	QueueCapacity int
	BurstSize     int
	Consumers     int
	Policy        Policy
	RetryBudget   int
	Backoff       Backoff
	// RecordPoolLimit caps live records. Zero derives it from the queue
	// capacity plus one burst per worker.
	RecordPoolLimit int
	// Cores assigns workers to CPUs in start order (receivers first). Empty
	// disables pinning.
	Cores []int
	Pin   func(core int) error
	Log   *logger.Logger
}

func DefaultOptions() Options {
	return Options{
		QueueCapacity: 1 << 20,
		BurstSize:     32,
		Consumers:     10,
		Policy:        PolicyBackpressure,
		RetryBudget:   64,
		Backoff:       Backoff{Mode: IdleYield},
	}
}

type Pipeline struct {
	nic      nic.NIC
	opts     Options
	log      *logger.Logger
	queue    *ring.Ring[*Record]
	records  *RecordPool
	counters *Counters
	shutdown *Shutdown
	enqueuer *Enqueuer

	receivers []*Receiver
	consumers []*Consumer

	wg      sync.WaitGroup
	started atomic.Bool
}

func New(n nic.NIC, opts Options) (*Pipeline, error) {
	if n == nil {
		return nil, fmt.Errorf("pipeline: nil NIC")
	}
	if opts.BurstSize <= 0 {
		return nil, fmt.Errorf("pipeline: burst size must be positive, got %d", opts.BurstSize)
	}
	if opts.Consumers <= 0 {
		return nil, fmt.Errorf("pipeline: need at least one consumer, got %d", opts.Consumers)
	}
	queue, err := ring.New[*Record](opts.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("pipeline: queue: %w", err)
	}
	if opts.Policy == "" {
		opts.Policy = PolicyBackpressure
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}

	p := &Pipeline{
		nic:      n,
		opts:     opts,
		log:      opts.Log,
		queue:    queue,
		counters: &Counters{},
		shutdown: &Shutdown{},
	}
	p.enqueuer = NewEnqueuer(queue, opts.Policy, opts.RetryBudget, opts.Backoff, p.counters)

	type hwQueue struct{ port, queue uint16 }
	var hw []hwQueue
	for _, port := range n.Ports() {
		for q := 0; q < n.Queues(port); q++ {
			hw = append(hw, hwQueue{port, uint16(q)})
		}
	}
	if len(hw) == 0 {
		return nil, fmt.Errorf("pipeline: NIC exposes no receive queues")
	}

	limit := opts.RecordPoolLimit
	if limit <= 0 {
		limit = opts.QueueCapacity + (len(hw)+opts.Consumers)*opts.BurstSize
	}
	p.records, err = NewRecordPool(limit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: record pool: %w", err)
	}

	for _, q := range hw {
		p.receivers = append(p.receivers, NewReceiver(n, q.port, q.queue, opts.BurstSize, p.records, p.enqueuer, p.counters, p.shutdown, opts.Backoff))
	}
	for i := 0; i < opts.Consumers; i++ {
		p.consumers = append(p.consumers, NewConsumer(queue, opts.BurstSize, p.counters, p.shutdown, opts.Backoff))
	}
	return p, nil
}

// Start launches every worker. It may only be called once.
func (p *Pipeline) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline: already started")
	}
	slot := 0
	for _, r := range p.receivers {
		p.spawn("receiver", slot, map[string]any{"port": r.Port(), "queue": r.Queue()}, r.Run)
		slot++
	}
	for i, c := range p.consumers {
		p.spawn("consumer", slot, map[string]any{"consumer": i}, c.Run)
		slot++
	}
	p.log.Info("pipeline started", map[string]any{
		"receivers":      len(p.receivers),
		"consumers":      len(p.consumers),
		"queue_capacity": p.queue.Cap(),
		"burst_size":     p.opts.BurstSize,
		"policy":         string(p.opts.Policy),
	})
	return nil
}

func (p *Pipeline) spawn(role string, slot int, fields map[string]any, run func()) {
	fields["role"] = role
	core, pinned := p.core(slot)
	if pinned {
		fields["core"] = core
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if pinned && p.opts.Pin != nil {
			if err := p.opts.Pin(core); err != nil {
				p.log.Warn("cpu pinning failed", map[string]any{"role": role, "core": core, "error": err.Error()})
			}
		}
		p.log.Debug("worker started", fields)
		run()
		p.log.Debug("worker stopped", fields)
	}()
}

func (p *Pipeline) core(slot int) (int, bool) {
	if len(p.opts.Cores) == 0 {
		return 0, false
	}
	return p.opts.Cores[slot%len(p.opts.Cores)], true
}

// Stop sets the shutdown flag. Workers finish their current burst and exit;
// records still queued are abandoned.
func (p *Pipeline) Stop() bool {
	return p.shutdown.Trigger()
}

// Wait blocks until every worker has returned.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) Snapshot() Snapshot { return p.counters.Snapshot() }
func (p *Pipeline) Counters() *Counters { return p.counters }
func (p *Pipeline) Shutdown() *Shutdown { return p.shutdown }
func (p *Pipeline) Queue() *ring.Ring[*Record] { return p.queue }
func (p *Pipeline) Records() *RecordPool { return p.records }
func (p *Pipeline) NIC() nic.NIC { return p.nic }
func (p *Pipeline) Receivers() []*Receiver { return p.receivers }
func (p *Pipeline) Consumers() []*Consumer { return p.consumers }
