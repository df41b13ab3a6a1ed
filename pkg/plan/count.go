package plan

import (
	"fmt"

	"github.com/photonlab/daqd/pkg/daqerr"
)

const maxCountPoints = 10_000_000

// countArgs is validated with struct tags via the shared validator, the
// way openfroyo's CUEParser validates ResourceConfig.
type countArgs struct {
	N     int     `validate:"required,gt=0,lte=10000000"`
	Delay float64 `validate:"gte=0"`
}

// countPlan implements `count(n, delay?, detector?)`: n checkpoints, each
// triggers and reads the detector, emits an event.
type countPlan struct {
	n        int
	delay    float64
	detector string

	// state machine cursor
	i     int
	state countStep
}

type countStep int

const (
	countStepCheckpoint countStep = iota
	countStepTrigger
	countStepRead
	countStepEmit
	countStepWait
	countStepDone
)

func newCountPlan(params, deviceMapping map[string]string) (Builder, error) {
	n, err := requireInt(params, "n")
	if err != nil {
		return nil, err
	}
	delay, err := optionalFloat(params, "delay", 0)
	if err != nil {
		return nil, err
	}

	args := countArgs{N: n, Delay: delay}
	if err := validate.Struct(args); err != nil {
		return nil, daqerr.NewInvalidArgument(fmt.Sprintf("invalid count() arguments: %v", err), err)
	}

	detector := deviceMapping["detector"]
	if detector == "" {
		return nil, daqerr.NewInvalidArgument(`count() requires a "detector" device mapping`, nil)
	}

	p := &countPlan{n: n, delay: delay, detector: detector}
	p.Reset()
	return p, nil
}

func (p *countPlan) Type() string      { return "count" }
func (p *countPlan) Name() string      { return fmt.Sprintf("count(%d)", p.n) }
func (p *countPlan) NumPoints() int    { return p.n }
func (p *countPlan) Movers() []string  { return nil }
func (p *countPlan) Detectors() []string { return []string{p.detector} }

func (p *countPlan) Reset() {
	p.i = 0
	p.state = countStepCheckpoint
}

func (p *countPlan) Next() (Command, bool) {
	if p.i >= p.n {
		return Command{}, false
	}

	switch p.state {
	case countStepCheckpoint:
		p.state = countStepTrigger
		return Checkpoint(fmt.Sprintf("point-%d", p.i)), true

	case countStepTrigger:
		p.state = countStepRead
		return Trigger(p.detector), true

	case countStepRead:
		p.state = countStepEmit
		return Read(p.detector), true

	case countStepEmit:
		if p.delay > 0 {
			p.state = countStepWait
		} else {
			p.state = countStepCheckpoint
			p.i++
		}
		return EmitEvent("primary", map[string]float64{}, nil), true

	case countStepWait:
		p.state = countStepCheckpoint
		p.i++
		return Wait(p.delay), true
	}

	return Command{}, false
}
