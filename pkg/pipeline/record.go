package pipeline

import (
	"errors"
	"sync/atomic"

	"packet-intake/pkg/ring"
)

var (
	ErrPoolExhausted = errors.New("record pool exhausted")
	ErrDoubleRelease = errors.New("record already released")
)

const (
	recordFree uint32 = iota
	recordLive
)

// Record owns a copy of one received frame. It is moved from the receive
// worker into the queue and released by exactly one consumer.
type Record struct {
	Size int
	Data []byte

	state atomic.Uint32
	pool  *RecordPool
}

// Release returns the record to its pool. A second release is refused.
func (r *Record) Release() error {
	return r.pool.put(r)
}

// RecordPool hands out at most limit live records. Released records are
// recycled through a free list so their buffers are reused.
type RecordPool struct {
	limit int64
	free  *ring.Ring[*Record]

	live           atomic.Int64
	exhausted      atomic.Uint64
	doubleReleases atomic.Uint64
}

func NewRecordPool(limit int) (*RecordPool, error) {
	free, err := ring.New[*Record](limit)
	if err != nil {
		return nil, err
	}
	return &RecordPool{limit: int64(limit), free: free}, nil
}

// Copy takes a record and copies payload into it. It fails with
// ErrPoolExhausted once limit records are live.
func (p *RecordPool) Copy(payload []byte) (*Record, error) {
	if p.live.Add(1) > p.limit {
		p.live.Add(-1)
		p.exhausted.Add(1)
		return nil, ErrPoolExhausted
	}

	var one [1]*Record
	rec := &Record{pool: p}
	if p.free.DequeueBurst(one[:]) == 1 {
		rec = one[0]
	}
	if cap(rec.Data) < len(payload) {
		rec.Data = make([]byte, len(payload))
	}
	rec.Data = rec.Data[:len(payload)]
	copy(rec.Data, payload)
	rec.Size = len(payload)
	rec.state.Store(recordLive)
	return rec, nil
}

func (p *RecordPool) put(r *Record) error {
	if !r.state.CompareAndSwap(recordLive, recordFree) {
		p.doubleReleases.Add(1)
		return ErrDoubleRelease
	}
	r.Size = 0
	r.Data = r.Data[:0]
	p.live.Add(-1)
	p.free.EnqueueBulk([]*Record{r})
	return nil
}

func (p *RecordPool) Live() int64 { return p.live.Load() }
func (p *RecordPool) Limit() int64 { return p.limit }
func (p *RecordPool) Exhausted() uint64 { return p.exhausted.Load() }
func (p *RecordPool) DoubleReleases() uint64 { return p.doubleReleases.Load() }
