package pipeline

import (
	"errors"
	"testing"
)

func TestRecordPoolCopiesPayload(t *testing.T) {
	pool, err := NewRecordPool(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src := []byte{1, 2, 3}
	rec, err := pool.Copy(src)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	src[0] = 9
	if rec.Size != 3 || rec.Data[0] != 1 {
		t.Fatalf("record must own an independent copy, got size=%d data=%v", rec.Size, rec.Data)
	}
	if pool.Live() != 1 {
		t.Fatalf("expected 1 live record, got %d", pool.Live())
	}
	if err := rec.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if pool.Live() != 0 {
		t.Fatalf("expected 0 live records, got %d", pool.Live())
	}
}

func TestRecordPoolExhaustion(t *testing.T) {
	pool, _ := NewRecordPool(2)
	a, _ := pool.Copy([]byte{1})
	b, _ := pool.Copy([]byte{2})
	if _, err := pool.Copy([]byte{3}); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if pool.Exhausted() != 1 {
		t.Fatalf("expected one exhaustion, got %d", pool.Exhausted())
	}
	_ = a.Release()
	if _, err := pool.Copy([]byte{3}); err != nil {
		t.Fatalf("expected a slot after release, got %v", err)
	}
	_ = b.Release()
}

func TestRecordDoubleReleaseRefused(t *testing.T) {
	pool, _ := NewRecordPool(2)
	rec, _ := pool.Copy([]byte{1, 2})
	if err := rec.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := rec.Release(); !errors.Is(err, ErrDoubleRelease) {
		t.Fatalf("expected ErrDoubleRelease, got %v", err)
	}
	if pool.DoubleReleases() != 1 {
		t.Fatalf("expected one double release, got %d", pool.DoubleReleases())
	}
	if pool.Live() != 0 {
		t.Fatalf("double release must not change live count, got %d", pool.Live())
	}
}

func TestRecordBuffersAreReused(t *testing.T) {
	pool, _ := NewRecordPool(1)
	first, _ := pool.Copy(make([]byte, 128))
	_ = first.Release()

	second, err := pool.Copy([]byte{7, 7})
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if second != first {
		t.Fatalf("expected the released record to be recycled")
	}
	if second.Size != 2 || len(second.Data) != 2 || cap(second.Data) < 128 {
		t.Fatalf("unexpected recycled record: size=%d len=%d cap=%d", second.Size, len(second.Data), cap(second.Data))
	}
}

func TestRecordPoolRejectsInvalidLimit(t *testing.T) {
	if _, err := NewRecordPool(0); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
