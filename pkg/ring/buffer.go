package ring

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/photonlab/daqd/pkg/daqerr"
)

const headerSize = 4 // u32 LE length prefix

// Buffer is a fixed-capacity circular byte region framed as
// u32-length-prefixed records. write_head and tail are both logical,
// monotonically increasing byte counters (never wrapped); physical
// storage offset is counter % capacity.
//
// Write itself is guarded by a short mutex rather than a bare
// compare-and-swap loop: a CAS purely on write_head can reserve a
// disjoint byte range for each producer, but Go has no safe way to let
// the consumer observe a torn, partially-copied record without a second
// "commit" counter. The mutex plays that role; write_head and tail
// remain independently, atomically readable without taking it, so
// read_snapshot stays lock-free; the overflow check runs inside Write,
// under the mutex.
type Buffer struct {
	data []byte
	cap  uint64

	mu        sync.Mutex
	writeHead uint64

	tail uint64 // owned exclusively by the consumer
}

// Overflow is returned by Write when there is not enough unread capacity
// for the record.
var Overflow = daqerr.NewUnavailable("ring buffer overflow", nil)

// New returns a Buffer with the given fixed capacity in bytes.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer{data: make([]byte, capacity), cap: uint64(capacity)}
}

// WriteHead returns the current logical write-head offset.
func (b *Buffer) WriteHead() uint64 {
	return atomic.LoadUint64(&b.writeHead)
}

// Tail returns the current logical tail offset.
func (b *Buffer) Tail() uint64 {
	return atomic.LoadUint64(&b.tail)
}

// Write atomically appends one framed record (length prefix + payload).
// Either the entire record lands or Write returns Overflow and the
// buffer is left exactly as it was.
func (b *Buffer) Write(payload []byte) error {
	need := uint64(headerSize + len(payload))
	if need > b.cap {
		return daqerr.NewInvalidArgument("record larger than ring capacity", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tail := atomic.LoadUint64(&b.tail)
	used := b.writeHead - tail
	if used+need > b.cap {
		return Overflow
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))

	b.writeAt(b.writeHead, header[:])
	b.writeAt(b.writeHead+headerSize, payload)

	atomic.StoreUint64(&b.writeHead, b.writeHead+need)
	return nil
}

// writeAt copies src into the circular storage starting at logical
// offset off, wrapping as needed. Caller holds b.mu.
func (b *Buffer) writeAt(off uint64, src []byte) {
	start := off % b.cap
	n := copy(b.data[start:], src)
	if n < len(src) {
		copy(b.data, src[n:])
	}
}

// readAt is the read-side mirror of writeAt.
func (b *Buffer) readAt(off uint64, dst []byte) {
	start := off % b.cap
	n := copy(dst, b.data[start:])
	if n < len(dst) {
		copy(dst[n:], b.data)
	}
}

// ReadSnapshot returns a contiguous copy of every unread byte
// ([tail, write_head)), hiding the ring's physical wrap.
func (b *Buffer) ReadSnapshot() []byte {
	tail := atomic.LoadUint64(&b.tail)
	head := atomic.LoadUint64(&b.writeHead)
	if head <= tail {
		return nil
	}
	out := make([]byte, head-tail)
	b.readAt(tail, out)
	return out
}

// AdvanceTail moves the consumer-owned tail forward by n bytes, which
// must correspond to exactly the bytes of zero or more fully decoded
// records (the high-water mark of the last flush). Any unfinished
// trailing record is preserved for the next flush by not being included
// in n.
func (b *Buffer) AdvanceTail(n uint64) {
	atomic.AddUint64(&b.tail, n)
}

// Capacity returns the fixed ring size in bytes.
func (b *Buffer) Capacity() int { return int(b.cap) }
