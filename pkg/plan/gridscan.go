package plan

import (
	"fmt"

	"github.com/photonlab/daqd/pkg/daqerr"
)

const maxGridAxisPoints = 100_000

type axisSpec struct {
	device string
	start  float64
	stop   float64
	n      int
}

func (a axisSpec) position(i int) float64 {
	if a.n == 1 {
		return a.start
	}
	step := (a.stop - a.start) / float64(a.n-1)
	return a.start + step*float64(i)
}

type gridAxisArgs struct {
	N int `validate:"required,gt=0,lte=100000"`
}

// gridScanPlan implements `grid_scan(outer, inner, detectors,
// snake=true|false)`: outer x inner nested iteration; snake mode reverses
// the inner direction on alternating outer steps.
type gridScanPlan struct {
	outer     axisSpec
	inner     axisSpec
	detectors []string
	snake     bool

	outerIdx int
	innerIdx int
	state    gridStep
	detIdx   int
}

type gridStep int

const (
	gridStepMoveOuter gridStep = iota
	gridStepMoveInner
	gridStepCheckpoint
	gridStepTrigger
	gridStepRead
	gridStepEmit
)

func newGridScanPlan(params, deviceMapping map[string]string) (Builder, error) {
	outerStart, err := requireFloat(params, "outer_start")
	if err != nil {
		return nil, err
	}
	outerStop, err := requireFloat(params, "outer_stop")
	if err != nil {
		return nil, err
	}
	outerN, err := requireInt(params, "outer_n")
	if err != nil {
		return nil, err
	}
	innerStart, err := requireFloat(params, "inner_start")
	if err != nil {
		return nil, err
	}
	innerStop, err := requireFloat(params, "inner_stop")
	if err != nil {
		return nil, err
	}
	innerN, err := requireInt(params, "inner_n")
	if err != nil {
		return nil, err
	}

	if err := validate.Struct(gridAxisArgs{N: outerN}); err != nil {
		return nil, daqerr.NewInvalidArgument(fmt.Sprintf("invalid grid_scan() outer_n: %v", err), err)
	}
	if err := validate.Struct(gridAxisArgs{N: innerN}); err != nil {
		return nil, daqerr.NewInvalidArgument(fmt.Sprintf("invalid grid_scan() inner_n: %v", err), err)
	}

	outerDevice, err := requireDevice(deviceMapping, "outer")
	if err != nil {
		return nil, err
	}
	innerDevice, err := requireDevice(deviceMapping, "inner")
	if err != nil {
		return nil, err
	}
	if outerDevice == innerDevice {
		return nil, daqerr.NewInvalidArgument("grid_scan() outer and inner must be different devices", nil)
	}

	detectorsRaw := deviceMapping["detectors"]
	if detectorsRaw == "" {
		detectorsRaw = deviceMapping["detector"]
	}
	detectors := splitNonEmpty(detectorsRaw)
	if len(detectors) == 0 {
		return nil, daqerr.NewInvalidArgument(`grid_scan() requires a "detectors" device mapping`, nil)
	}

	snake := params["snake"] == "true"

	p := &gridScanPlan{
		outer:     axisSpec{device: outerDevice, start: outerStart, stop: outerStop, n: outerN},
		inner:     axisSpec{device: innerDevice, start: innerStart, stop: innerStop, n: innerN},
		detectors: detectors,
		snake:     snake,
	}
	p.Reset()
	return p, nil
}

func (p *gridScanPlan) Type() string { return "grid_scan" }
func (p *gridScanPlan) Name() string {
	return fmt.Sprintf("grid_scan(%s x %s, snake=%v)", p.outer.device, p.inner.device, p.snake)
}
func (p *gridScanPlan) NumPoints() int   { return p.outer.n * p.inner.n }
func (p *gridScanPlan) Movers() []string { return []string{p.outer.device, p.inner.device} }
func (p *gridScanPlan) Detectors() []string { return p.detectors }

func (p *gridScanPlan) Reset() {
	p.outerIdx = 0
	p.innerIdx = 0
	p.state = gridStepMoveOuter
	p.detIdx = 0
}

// innerPosIndex returns the physical inner-axis index for the current
// innerIdx, reversed on odd outer rows when snake mode is enabled.
func (p *gridScanPlan) innerPosIndex() int {
	if p.snake && p.outerIdx%2 == 1 {
		return p.inner.n - 1 - p.innerIdx
	}
	return p.innerIdx
}

func (p *gridScanPlan) Next() (Command, bool) {
	if p.outerIdx >= p.outer.n {
		return Command{}, false
	}

	switch p.state {
	case gridStepMoveOuter:
		p.state = gridStepMoveInner
		if p.innerIdx == 0 {
			return MoveTo(p.outer.device, p.outer.position(p.outerIdx)), true
		}
		return p.Next()

	case gridStepMoveInner:
		p.state = gridStepCheckpoint
		return MoveTo(p.inner.device, p.inner.position(p.innerPosIndex())), true

	case gridStepCheckpoint:
		p.state = gridStepTrigger
		p.detIdx = 0
		return Checkpoint(fmt.Sprintf("point-%d-%d", p.outerIdx, p.innerIdx)), true

	case gridStepTrigger:
		d := p.detectors[p.detIdx]
		p.state = gridStepRead
		return Trigger(d), true

	case gridStepRead:
		d := p.detectors[p.detIdx]
		p.detIdx++
		if p.detIdx < len(p.detectors) {
			p.state = gridStepTrigger
		} else {
			p.state = gridStepEmit
		}
		return Read(d), true

	case gridStepEmit:
		positions := map[string]float64{
			p.outer.device: p.outer.position(p.outerIdx),
			p.inner.device: p.inner.position(p.innerPosIndex()),
		}
		p.innerIdx++
		if p.innerIdx >= p.inner.n {
			p.innerIdx = 0
			p.outerIdx++
		}
		p.state = gridStepMoveOuter
		return EmitEvent("primary", map[string]float64{}, positions), true
	}

	return Command{}, false
}
