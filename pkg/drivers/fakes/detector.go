package fakes

import (
	"context"
	"sync"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
)

// Detector is a fake Readable+Triggerable device. Values returns the
// reading produced on each successive Read call; once exhausted, the
// last value repeats. A ValueFunc, if set, overrides Values and is
// called with the read index instead (used by S2's det=position^2).
type Detector struct {
	mu     sync.Mutex
	armed  bool
	reads  int

	Values    []float64
	ValueFunc func(readIndex int) float64
	Unit      string
}

// NewDetector returns a Detector that returns values in order on
// successive Read calls, repeating the last one once they run out.
func NewDetector(values ...float64) *Detector {
	return &Detector{Values: values}
}

func (d *Detector) DriverType() string { return "fake.detector" }

func (d *Detector) Arm(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	return nil
}

func (d *Detector) IsArmed(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed, nil
}

func (d *Detector) Trigger(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed {
		return daqerr.NewFailedPrecondition("trigger while not armed", nil)
	}
	d.armed = false
	return nil
}

func (d *Detector) Read(ctx context.Context) (capability.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.reads
	d.reads++

	var v float64
	switch {
	case d.ValueFunc != nil:
		v = d.ValueFunc(idx)
	case len(d.Values) > 0:
		if idx < len(d.Values) {
			v = d.Values[idx]
		} else {
			v = d.Values[len(d.Values)-1]
		}
	}
	return capability.Reading{Value: v, Unit: d.Unit}, nil
}

// ReadCount reports how many times Read has been called.
func (d *Detector) ReadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

var (
	_ capability.ReadableDevice    = (*Detector)(nil)
	_ capability.TriggerableDevice = (*Detector)(nil)
)
