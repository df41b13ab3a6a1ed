package ring

import (
	"sync"
	"sync/atomic"
)

// Tap is a passive subscriber to the ring's framed record stream,
// sampling every SampleEvery-th record. Taps never block the primary
// ring advance; when a tap's channel is full the record is dropped and
// Dropped is incremented.
type Tap struct {
	ID          string
	SampleEvery uint64

	ch      chan []byte
	count   uint64
	dropped uint64
}

// Frames returns the tap's delivery channel.
func (t *Tap) Frames() <-chan []byte { return t.ch }

// Dropped returns the number of records dropped because the tap's
// channel was full.
func (t *Tap) Dropped() uint64 { return atomic.LoadUint64(&t.dropped) }

// TapRegistry manages the set of live taps on a ring.
type TapRegistry struct {
	mu   sync.RWMutex
	taps map[string]*Tap
}

// NewTapRegistry returns an empty TapRegistry.
func NewTapRegistry() *TapRegistry {
	return &TapRegistry{taps: make(map[string]*Tap)}
}

// Register adds a tap with the given id, sampling every sampleEvery-th
// record (1 = every record), with a bounded delivery channel of the
// given size.
func (r *TapRegistry) Register(id string, sampleEvery uint64, bufferSize int) *Tap {
	if sampleEvery == 0 {
		sampleEvery = 1
	}
	t := &Tap{ID: id, SampleEvery: sampleEvery, ch: make(chan []byte, bufferSize)}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.taps[id] = t
	return t
}

// Unregister removes a tap and closes its channel.
func (r *TapRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.taps[id]; ok {
		close(t.ch)
		delete(r.taps, id)
	}
}

// Publish delivers one decoded record's raw bytes to every tap whose
// sampling interval matches, via a non-blocking send.
func (r *TapRegistry) Publish(framed []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.taps {
		n := atomic.AddUint64(&t.count, 1)
		if n%t.SampleEvery != 0 {
			continue
		}
		select {
		case t.ch <- framed:
		default:
			atomic.AddUint64(&t.dropped, 1)
		}
	}
}
