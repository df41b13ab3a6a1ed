package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
)

// Stage is a fake single-axis Movable. It reports whatever position it
// was last commanded to, optionally after an artificial MoveDelay — used
// by abort-mid-move tests (spec.md §8 scenario S5) to give the run
// engine a window in which to observe an in-flight move and abort it.
type Stage struct {
	mu       sync.Mutex
	position float64
	moving   bool
	stopped  chan struct{}

	// MoveDelay, if non-zero, is how long MoveAbs/MoveRel sleep before
	// committing the new position, simulating real settle time.
	MoveDelay time.Duration
	// RangeMin/RangeMax bound legal positions when HasRange is set;
	// with HasRange false the stage is unbounded.
	RangeMin, RangeMax float64
	HasRange           bool

	stopCalls int
}

// NewStage returns a Stage starting at position 0.
func NewStage() *Stage {
	return &Stage{stopped: make(chan struct{})}
}

func (s *Stage) DriverType() string { return "fake.stage" }

func (s *Stage) MoveAbs(ctx context.Context, position float64) error {
	if s.HasRange && (position < s.RangeMin || position > s.RangeMax) {
		return daqerr.NewInvalidArgument("position out of range", nil).
			WithDetail("min", s.RangeMin).WithDetail("max", s.RangeMax).WithDetail("value", position)
	}

	s.mu.Lock()
	s.moving = true
	stopped := make(chan struct{})
	s.stopped = stopped
	s.mu.Unlock()

	if s.MoveDelay > 0 {
		select {
		case <-time.After(s.MoveDelay):
		case <-stopped:
			s.mu.Lock()
			s.moving = false
			s.mu.Unlock()
			return daqerr.NewInternal("move stopped before completion", nil)
		case <-ctx.Done():
			s.mu.Lock()
			s.moving = false
			s.mu.Unlock()
			return ctx.Err()
		}
	}

	s.mu.Lock()
	s.position = position
	s.moving = false
	s.mu.Unlock()
	return nil
}

func (s *Stage) MoveRel(ctx context.Context, delta float64) error {
	s.mu.Lock()
	target := s.position + delta
	s.mu.Unlock()
	return s.MoveAbs(ctx, target)
}

func (s *Stage) Position(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, nil
}

func (s *Stage) WaitSettled(ctx context.Context) error {
	for {
		s.mu.Lock()
		moving := s.moving
		s.mu.Unlock()
		if !moving {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Stop interrupts any in-flight MoveAbs/MoveRel and records that it was
// called, so abort tests can assert Stop was invoked for every axis the
// plan was moving (spec.md §8 invariant 11).
func (s *Stage) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopCalls++
	stopped := s.stopped
	s.mu.Unlock()
	select {
	case <-stopped:
	default:
		close(stopped)
	}
	return nil
}

// StopCalls reports how many times Stop has been invoked.
func (s *Stage) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

var _ capability.MovableDevice = (*Stage)(nil)
