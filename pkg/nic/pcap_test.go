package nic

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func writeCapture(t *testing.T, link layers.LinkType, payloads ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, link); err != nil {
		t.Fatalf("header: %v", err)
	}
	for _, p := range payloads {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(0, 0), CaptureLength: len(p), Length: len(p)}
		if err := w.WritePacket(ci, p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return path
}

func TestPcapReplayDealsRoundRobin(t *testing.T) {
	path := writeCapture(t, layers.LinkTypeEthernet,
		[]byte("q0-a"), []byte("q1-a"), []byte("q0-b"), []byte("q1-b"))
	r, err := OpenPcapReplay(ReplayOptions{Paths: []string{path}, QueuesPerPort: 2, RingSize: 8, FrameSize: 64})
	if err != nil {
		t.Fatalf("OpenPcapReplay: %v", err)
	}
	defer r.Close()

	frames := make([]*Frame, 8)
	n := r.ReceiveBurst(0, 0, frames)
	if n != 2 {
		t.Fatalf("expected 2 frames on queue 0, got %d", n)
	}
	if string(frames[0].Data) != "q0-a" || string(frames[1].Data) != "q0-b" {
		t.Fatalf("unexpected queue 0 payloads %q %q", frames[0].Data, frames[1].Data)
	}
	r.Release(frames[0])
	r.Release(frames[1])

	n = r.ReceiveBurst(0, 1, frames)
	if n != 2 || string(frames[0].Data) != "q1-a" {
		t.Fatalf("unexpected queue 1 burst: n=%d", n)
	}
	r.Release(frames[0])
	r.Release(frames[1])

	if !r.Done() {
		t.Fatalf("expected replay to be done")
	}
	stats, _ := r.PortStats(0)
	if stats.Received != 4 {
		t.Fatalf("expected 4 received, got %+v", stats)
	}
	if r.Pool().Outstanding() != 0 {
		t.Fatalf("expected all frames released")
	}
}

func TestPcapReplayLoops(t *testing.T) {
	path := writeCapture(t, layers.LinkTypeEthernet, []byte("one"), []byte("two"))
	r, err := OpenPcapReplay(ReplayOptions{Paths: []string{path}, QueuesPerPort: 1, RingSize: 8, Loop: true})
	if err != nil {
		t.Fatalf("OpenPcapReplay: %v", err)
	}
	defer r.Close()

	frames := make([]*Frame, 5)
	n := r.ReceiveBurst(0, 0, frames)
	if n != 5 {
		t.Fatalf("expected looping replay to fill the burst, got %d", n)
	}
	want := []string{"one", "two", "one", "two", "one"}
	for i := 0; i < n; i++ {
		if string(frames[i].Data) != want[i] {
			t.Fatalf("frame %d: %q, want %q", i, frames[i].Data, want[i])
		}
		r.Release(frames[i])
	}
}

func TestPcapReplayRejectsNonEthernet(t *testing.T) {
	path := writeCapture(t, layers.LinkTypeRaw, []byte("x"))
	_, err := OpenPcapReplay(ReplayOptions{Paths: []string{path}, QueuesPerPort: 1, RingSize: 1})
	var perr *PortError
	if !errors.As(err, &perr) || perr.Stage != StageDeviceInfo {
		t.Fatalf("expected device-info PortError, got %v", err)
	}
}

func TestPcapReplayMissingFile(t *testing.T) {
	_, err := OpenPcapReplay(ReplayOptions{Paths: []string{filepath.Join(t.TempDir(), "nope.pcap")}, QueuesPerPort: 1, RingSize: 1})
	var perr *PortError
	if !errors.As(err, &perr) || perr.Stage != StageValidate {
		t.Fatalf("expected validate PortError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}
