package ring

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/photonlab/daqd/pkg/daqerr"
)

func TestWriteDecodeRoundTrip(t *testing.T) {
	b := New(1024)
	payloads := [][]byte{
		bytes.Repeat([]byte{0xAA}, 10),
		bytes.Repeat([]byte{0xBB}, 37),
		[]byte("hello"),
	}
	for _, p := range payloads {
		if err := b.Write(p); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	snap := b.ReadSnapshot()
	decoded, highWater := DecodeAll(snap)
	if len(decoded) != len(payloads) {
		t.Fatalf("decoded %d records, want %d", len(decoded), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(decoded[i], payloads[i]) {
			t.Fatalf("record %d mismatch", i)
		}
	}
	if int(highWater) != len(snap) {
		t.Fatalf("high water = %d, want %d (all records complete)", highWater, len(snap))
	}
	b.AdvanceTail(highWater)
	if b.Tail() != b.WriteHead() {
		t.Fatalf("tail %d != write_head %d after advancing past all complete records", b.Tail(), b.WriteHead())
	}
}

// TestS6PartialRecord implements scenario S6: write [A=100B, B=200B],
// but the snapshot visible to the consumer is truncated inside B's
// payload — only A decodes, and advance_tail(high_water) preserves B
// for the next flush.
func TestS6PartialRecord(t *testing.T) {
	b := New(4096)
	a := bytes.Repeat([]byte{1}, 100)
	bb := bytes.Repeat([]byte{2}, 200)
	if err := b.Write(a); err != nil {
		t.Fatalf("write A: %v", err)
	}
	if err := b.Write(bb); err != nil {
		t.Fatalf("write B: %v", err)
	}

	full := b.ReadSnapshot()
	// Truncate after A's full frame (4+100) plus B's 4-byte length
	// header and zero payload bytes.
	truncated := full[:104+4]

	decoded, highWater := DecodeAll(truncated)
	if len(decoded) != 1 {
		t.Fatalf("expected 1 decoded record, got %d", len(decoded))
	}
	if !bytes.Equal(decoded[0], a) {
		t.Fatal("decoded record does not match A")
	}
	if highWater != 104 {
		t.Fatalf("high water = %d, want 104", highWater)
	}

	b.AdvanceTail(highWater)

	snap2 := b.ReadSnapshot()
	decoded2, hw2 := DecodeAll(snap2)
	if len(decoded2) != 1 {
		t.Fatalf("expected B to decode fully on next snapshot, got %d records", len(decoded2))
	}
	if !bytes.Equal(decoded2[0], bb) {
		t.Fatal("second decode does not match B")
	}
	b.AdvanceTail(hw2)
	if b.Tail() != b.WriteHead() {
		t.Fatal("tail should catch up to write_head once B is consumed")
	}
}

// TestOverflowPreservesContent implements invariant 8: a write that
// would exceed capacity fails with Overflow and leaves existing content
// untouched.
func TestOverflowPreservesContent(t *testing.T) {
	b := New(32) // header(4) + 20 fits once; a second write of the same size doesn't.
	first := bytes.Repeat([]byte{9}, 20)
	if err := b.Write(first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	before := b.ReadSnapshot()

	err := b.Write(bytes.Repeat([]byte{7}, 20))
	if !daqerr.Is(err, daqerr.Unavailable) && err != Overflow {
		t.Fatalf("expected Overflow, got %v", err)
	}

	after := b.ReadSnapshot()
	if !bytes.Equal(before, after) {
		t.Fatal("overflowing write corrupted existing unread content")
	}
}

func TestConcurrentProducersNoTornRecords(t *testing.T) {
	b := New(1 << 16)
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := make([]byte, 16)
			binary.LittleEndian.PutUint32(payload, uint32(i))
			for {
				if err := b.Write(payload); err == nil {
					return
				}
				// Ring full: in production a producer would back off;
				// the test ring is sized to never need it, so this
				// would indicate a bug in reservation accounting.
				t.Errorf("unexpected overflow from producer %d", i)
				return
			}
		}(i)
	}
	wg.Wait()

	snap := b.ReadSnapshot()
	decoded, hw := DecodeAll(snap)
	if len(decoded) != n {
		t.Fatalf("decoded %d records, want %d (torn or dropped write)", len(decoded), n)
	}
	if int(hw) != len(snap) {
		t.Fatalf("high water %d != snapshot length %d", hw, len(snap))
	}
}

func TestTapDropsOnFullChannelWithoutBlockingPublisher(t *testing.T) {
	taps := NewTapRegistry()
	tap := taps.Register("t1", 1, 2)

	for i := 0; i < 5; i++ {
		taps.Publish([]byte{byte(i)})
	}

	if tap.Dropped() == 0 {
		t.Fatal("expected some records dropped once the tap channel filled")
	}
	if len(tap.Frames()) != 2 {
		t.Fatalf("tap channel should be full (2), got %d buffered", len(tap.Frames()))
	}
}

func TestTapSampling(t *testing.T) {
	taps := NewTapRegistry()
	tap := taps.Register("every-third", 3, 10)

	for i := 0; i < 9; i++ {
		taps.Publish([]byte{byte(i)})
	}
	if got := len(tap.Frames()); got != 3 {
		t.Fatalf("expected 3 sampled records (every 3rd of 9), got %d", got)
	}
}
