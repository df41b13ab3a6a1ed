package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
)

// fakeMover implements only capability.MovableDevice.
type fakeMover struct {
	pos float64
}

func (f *fakeMover) DriverType() string { return "fake.mover" }
func (f *fakeMover) MoveAbs(_ context.Context, p float64) error { f.pos = p; return nil }
func (f *fakeMover) MoveRel(_ context.Context, d float64) error { f.pos += d; return nil }
func (f *fakeMover) Position(_ context.Context) (float64, error) { return f.pos, nil }
func (f *fakeMover) WaitSettled(_ context.Context) error { return nil }
func (f *fakeMover) Stop(_ context.Context) error { return nil }

// fakeReader implements only capability.ReadableDevice.
type fakeReader struct{}

func (f *fakeReader) DriverType() string { return "fake.reader" }
func (f *fakeReader) Read(_ context.Context) (capability.Reading, error) {
	return capability.Reading{Value: 1.0, Unit: "V"}, nil
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	if err := r.Register("dev1", "Stage 1", &fakeMover{}, Metadata{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("dev1", "Stage 1 dup", &fakeMover{}, Metadata{}); err == nil {
		t.Fatal("expected error re-registering existing id")
	}
}

func TestCapabilityNarrowing(t *testing.T) {
	r := New()
	_ = r.Register("stage", "Stage", &fakeMover{}, Metadata{})
	_ = r.Register("det", "Detector", &fakeReader{}, Metadata{})

	if _, err := r.GetMovable("stage"); err != nil {
		t.Fatalf("expected movable handle for stage: %v", err)
	}
	if _, err := r.GetMovable("det"); daqerr.CodeOf(err) != daqerr.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition for non-movable device, got %v", err)
	}
	if _, err := r.GetReadable("det"); err != nil {
		t.Fatalf("expected readable handle for det: %v", err)
	}
	if _, err := r.GetMovable("missing"); daqerr.CodeOf(err) != daqerr.NotFound {
		t.Fatalf("expected NotFound for unknown device, got %v", err)
	}
}

func TestByCapabilitySnapshot(t *testing.T) {
	r := New()
	_ = r.Register("stage-x", "X", &fakeMover{}, Metadata{})
	_ = r.Register("stage-y", "Y", &fakeMover{}, Metadata{})
	_ = r.Register("det", "Det", &fakeReader{}, Metadata{})

	movers := r.ByCapability(capability.Movable)
	if len(movers) != 2 {
		t.Fatalf("expected 2 movable devices, got %d", len(movers))
	}
}

// TestConcurrentLookupAndUnregister exercises invariant 1 from spec §8:
// a handle obtained via Get* stays valid even if Unregister races with
// the lookup; Contains only ever reflects completed registrations.
func TestConcurrentLookupAndUnregister(t *testing.T) {
	r := New()
	_ = r.Register("stage", "Stage", &fakeMover{}, Metadata{})

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.GetMovable("stage")
			if err != nil {
				return // concurrent unregister may have already landed
			}
			if _, err := h.Position(context.Background()); err != nil {
				errs <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Unregister("stage")
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("handle became unusable after concurrent unregister: %v", err)
	}

	if r.Contains("stage") {
		t.Fatal("expected stage to be gone after Unregister")
	}
}
