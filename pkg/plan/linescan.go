package plan

import (
	"fmt"
	"strings"

	"github.com/photonlab/daqd/pkg/daqerr"
)

const maxLineScanPoints = 10_000_000

type lineScanArgs struct {
	Start  float64
	Stop   float64
	N      int `validate:"required,gt=0,lte=10000000"`
	Settle float64 `validate:"gte=0"`
}

// lineScanPlan implements `line_scan(axis, start, stop, n, detectors,
// settle?)`: n uniformly spaced positions; per point: move, optional
// settle, checkpoint, trigger-and-read detectors, emit event with
// position and data.
type lineScanPlan struct {
	axis       string
	start      float64
	stop       float64
	n          int
	settle     float64
	detectors  []string

	i     int
	state lineStep
	detIdx int
}

type lineStep int

const (
	lineStepMove lineStep = iota
	lineStepSettle
	lineStepCheckpoint
	lineStepTrigger
	lineStepRead
	lineStepEmit
	lineStepDone
)

func newLineScanPlan(params, deviceMapping map[string]string) (Builder, error) {
	start, err := requireFloat(params, "start")
	if err != nil {
		return nil, err
	}
	stop, err := requireFloat(params, "stop")
	if err != nil {
		return nil, err
	}
	n, err := requireInt(params, "n")
	if err != nil {
		return nil, err
	}
	settle, err := optionalFloat(params, "settle", 0)
	if err != nil {
		return nil, err
	}

	args := lineScanArgs{Start: start, Stop: stop, N: n, Settle: settle}
	if err := validate.Struct(args); err != nil {
		return nil, daqerr.NewInvalidArgument(fmt.Sprintf("invalid line_scan() arguments: %v", err), err)
	}

	axis, err := requireDevice(deviceMapping, "axis")
	if err != nil {
		return nil, err
	}

	detectorsRaw := deviceMapping["detectors"]
	if detectorsRaw == "" {
		detectorsRaw = deviceMapping["detector"]
	}
	if detectorsRaw == "" {
		return nil, daqerr.NewInvalidArgument(`line_scan() requires a "detectors" device mapping`, nil)
	}
	detectors := splitNonEmpty(detectorsRaw)
	if len(detectors) == 0 {
		return nil, daqerr.NewInvalidArgument(`line_scan() "detectors" mapping is empty`, nil)
	}

	p := &lineScanPlan{axis: axis, start: start, stop: stop, n: n, settle: settle, detectors: detectors}
	p.Reset()
	return p, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *lineScanPlan) Type() string { return "line_scan" }
func (p *lineScanPlan) Name() string {
	return fmt.Sprintf("line_scan(%s, %g, %g, %d)", p.axis, p.start, p.stop, p.n)
}
func (p *lineScanPlan) NumPoints() int      { return p.n }
func (p *lineScanPlan) Movers() []string    { return []string{p.axis} }
func (p *lineScanPlan) Detectors() []string { return p.detectors }

func (p *lineScanPlan) Reset() {
	p.i = 0
	p.state = lineStepMove
	p.detIdx = 0
}

// position returns the i-th of n uniformly spaced points in [start, stop].
func (p *lineScanPlan) position(i int) float64 {
	if p.n == 1 {
		return p.start
	}
	step := (p.stop - p.start) / float64(p.n-1)
	return p.start + step*float64(i)
}

func (p *lineScanPlan) Next() (Command, bool) {
	if p.i >= p.n {
		return Command{}, false
	}

	switch p.state {
	case lineStepMove:
		p.state = lineStepSettle
		return MoveTo(p.axis, p.position(p.i)), true

	case lineStepSettle:
		if p.settle > 0 {
			p.state = lineStepCheckpoint
			return Wait(p.settle), true
		}
		p.state = lineStepCheckpoint
		return p.Next()

	case lineStepCheckpoint:
		p.state = lineStepTrigger
		p.detIdx = 0
		return Checkpoint(fmt.Sprintf("point-%d", p.i)), true

	case lineStepTrigger:
		d := p.detectors[p.detIdx]
		p.state = lineStepRead
		return Trigger(d), true

	case lineStepRead:
		d := p.detectors[p.detIdx]
		p.detIdx++
		if p.detIdx < len(p.detectors) {
			p.state = lineStepTrigger
		} else {
			p.state = lineStepEmit
		}
		return Read(d), true

	case lineStepEmit:
		p.state = lineStepMove
		positions := map[string]float64{p.axis: p.position(p.i)}
		p.i++
		return EmitEvent("primary", map[string]float64{}, positions), true
	}

	return Command{}, false
}
