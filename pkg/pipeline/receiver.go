package pipeline

import (
	"packet-intake/pkg/nic"
)

// Receiver drains one hardware queue of one port.
type Receiver struct {
	nic      nic.NIC
	port     uint16
	queue    uint16
	frames   []*nic.Frame
	records  *RecordPool
	enqueuer *Enqueuer
	counters *Counters
	shutdown *Shutdown
	backoff  Backoff
	batch    [1]*Record
}

func NewReceiver(n nic.NIC, port, queue uint16, burst int, records *RecordPool, enqueuer *Enqueuer, counters *Counters, shutdown *Shutdown, backoff Backoff) *Receiver {
	return &Receiver{
		nic:      n,
		port:     port,
		queue:    queue,
		frames:   make([]*nic.Frame, burst),
		records:  records,
		enqueuer: enqueuer,
		counters: counters,
		shutdown: shutdown,
		backoff:  backoff,
	}
}

// Poll runs one receive burst to completion and returns the number of frames
// taken from the NIC. Every frame is released before Poll returns.
func (r *Receiver) Poll() int {
	n := r.nic.ReceiveBurst(r.port, r.queue, r.frames)
	for i := 0; i < n; i++ {
		f := r.frames[i]
		if f.Len() > 0 {
			r.intake(f)
		}
		r.nic.Release(f)
		r.frames[i] = nil
	}
	return n
}

func (r *Receiver) intake(f *nic.Frame) {
	rec, err := r.records.Copy(f.Data)
	if err != nil {
		r.counters.droppedAllocation.Add(1)
		return
	}
	r.counters.received.Add(1)
	r.counters.receivedBytes.Add(uint64(rec.Size))
	r.batch[0] = rec
	r.enqueuer.Enqueue(r.batch[:])
	r.batch[0] = nil
}

// Run polls until shutdown is requested. The flag is checked between bursts.
func (r *Receiver) Run() {
	for !r.shutdown.Requested() {
		if r.Poll() == 0 {
			r.backoff.Idle()
		}
	}
}

func (r *Receiver) Port() uint16  { return r.port }
func (r *Receiver) Queue() uint16 { return r.queue }
