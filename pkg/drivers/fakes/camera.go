package fakes

import (
	"context"
	"sync"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
)

// FrameCamera is a fake FrameProducer+ExposureControl device. It emits
// synthetic, fixed-size frames on StartStream at the rate the test
// driving it chooses to call PushFrame, rather than on a wall-clock
// timer, so tests control pacing deterministically.
type FrameCamera struct {
	mu        sync.Mutex
	streaming bool
	finite    *uint64
	produced  uint64
	frames    chan capability.Frame
	exposure  float64

	Width, Height, BitDepth int
}

// NewFrameCamera returns a FrameCamera with the given declared frame
// shape.
func NewFrameCamera(width, height, bitDepth int) *FrameCamera {
	return &FrameCamera{Width: width, Height: height, BitDepth: bitDepth, exposure: 0.01}
}

func (c *FrameCamera) DriverType() string { return "fake.camera" }

func (c *FrameCamera) StartStream(ctx context.Context, finiteCount *uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming {
		return daqerr.NewFailedPrecondition("already streaming", nil)
	}
	c.streaming = true
	c.finite = finiteCount
	c.produced = 0
	c.frames = make(chan capability.Frame, 16)
	return nil
}

func (c *FrameCamera) StopStream(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming {
		return nil
	}
	c.streaming = false
	close(c.frames)
	return nil
}

func (c *FrameCamera) IsStreaming(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming, nil
}

func (c *FrameCamera) FrameCount(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.produced, nil
}

// Frames returns the single-consumer frame channel for the current
// stream session. Callers must not call it more than once per session.
func (c *FrameCamera) Frames() (<-chan capability.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frames == nil {
		return nil, daqerr.NewFailedPrecondition("stream not started", nil)
	}
	return c.frames, nil
}

// PushFrame synthesizes and delivers one frame of the camera's declared
// shape, honoring a finite-count limit if StartStream declared one.
// Intended to be called by tests driving the fake at their own pace.
func (c *FrameCamera) PushFrame(ctx context.Context) error {
	c.mu.Lock()
	if !c.streaming {
		c.mu.Unlock()
		return daqerr.NewFailedPrecondition("not streaming", nil)
	}
	if c.finite != nil && c.produced >= *c.finite {
		c.mu.Unlock()
		return daqerr.NewFailedPrecondition("finite frame count reached", nil)
	}
	c.produced++
	frame := capability.Frame{
		Seq:      c.produced,
		Data:     make([]byte, c.Width*c.Height*((c.BitDepth+7)/8)),
		Width:    c.Width,
		Height:   c.Height,
		BitDepth: c.BitDepth,
	}
	ch := c.frames
	c.mu.Unlock()

	select {
	case ch <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *FrameCamera) GetExposureS(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure, nil
}

func (c *FrameCamera) SetExposureS(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return daqerr.NewInvalidArgument("exposure must be positive", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exposure = seconds
	return nil
}

var (
	_ capability.FrameProducerDevice   = (*FrameCamera)(nil)
	_ capability.ExposureControlDevice = (*FrameCamera)(nil)
)
