package param

import (
	"context"
	"math"

	"github.com/photonlab/daqd/pkg/daqerr"
)

// WriteHook pushes a validated in-memory value to hardware. Its failure
// does not roll back the in-memory value.
type WriteHook func(ctx context.Context, value float64) error

// ReadHook refreshes the in-memory value from hardware, lazily, on read.
type ReadHook func(ctx context.Context) (float64, error)

// Range bounds a Parameter's legal values, inclusive.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v falls within the range, inclusive.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Parameter is one named, typed, observable value on a device.
type Parameter struct {
	Name        string
	Value       float64
	Description string
	Unit        string
	Range       *Range
	ReadOnly    bool

	writeHook WriteHook
	readHook  ReadHook

	subscribers []chan ChangeNotification
}

// ChangeNotification is delivered to subscribers after a successful Set.
type ChangeNotification struct {
	Name     string
	OldValue float64
	NewValue float64
}

// NewParameter constructs a Parameter. A nil range means unbounded.
func NewParameter(name string, value float64, description, unit string, rng *Range, readOnly bool) *Parameter {
	return &Parameter{
		Name:        name,
		Value:       value,
		Description: description,
		Unit:        unit,
		Range:       rng,
		ReadOnly:    readOnly,
	}
}

// SetWriteHook installs the hardware write hook.
func (p *Parameter) SetWriteHook(h WriteHook) { p.writeHook = h }

// SetReadHook installs the hardware read hook.
func (p *Parameter) SetReadHook(h ReadHook) { p.readHook = h }

// Get returns the current in-memory value without touching hardware.
func (p *Parameter) Get() float64 {
	return p.Value
}

// Read returns the current value, refreshing from hardware first if a
// read hook is installed.
func (p *Parameter) Read(ctx context.Context) (float64, error) {
	if p.readHook == nil {
		return p.Value, nil
	}
	v, err := p.readHook(ctx)
	if err != nil {
		return p.Value, daqerr.NewUnavailable("hardware read hook failed", err).WithDevice(p.Name)
	}
	p.Value = v
	return v, nil
}

// Set validates and applies a new value, then fires the write hook
// best-effort and notifies subscribers. Validation failures leave the
// stored value untouched.
func (p *Parameter) Set(ctx context.Context, value float64) error {
	if p.ReadOnly {
		return daqerr.NewInvalidArgument("parameter is read-only", nil).WithDevice(p.Name)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return daqerr.NewInvalidArgument("parameter value must be finite", nil).WithDevice(p.Name)
	}
	if p.Range != nil && !p.Range.Contains(value) {
		return daqerr.NewInvalidArgument("parameter value out of range", nil).
			WithDevice(p.Name).
			WithDetail("min", p.Range.Min).
			WithDetail("max", p.Range.Max).
			WithDetail("value", value)
	}

	old := p.Value
	p.Value = value

	if p.writeHook != nil {
		// Best-effort: the in-memory value is a desire, not a truth. A
		// hook failure is surfaced to the caller but does not revert the
		// in-memory state — observers see the attempt.
		if err := p.writeHook(ctx, value); err != nil {
			p.notify(old, value)
			return daqerr.NewUnavailable("hardware write hook failed", err).WithDevice(p.Name)
		}
	}

	p.notify(old, value)
	return nil
}

// Subscribe returns a channel that receives a ChangeNotification after
// every Set that passes validation. The channel holds up to 16 pending
// notifications; when it is full, further notifications for that
// subscriber are dropped.
func (p *Parameter) Subscribe() <-chan ChangeNotification {
	ch := make(chan ChangeNotification, 16)
	p.subscribers = append(p.subscribers, ch)
	return ch
}

func (p *Parameter) notify(old, new float64) {
	n := ChangeNotification{Name: p.Name, OldValue: old, NewValue: new}
	for _, ch := range p.subscribers {
		select {
		case ch <- n:
		default:
			// Slow subscriber drops the notification; parameters are not
			// a guaranteed-delivery channel.
		}
	}
}
