package api

import (
	"context"
	"fmt"
	"time"

	"github.com/photonlab/daqd/pkg/daqerr"
	"github.com/photonlab/daqd/pkg/registry"
)

// pollInterval paces StreamPosition/StreamValues. Not configurable per
// call: callers wanting a different cadence should use the unary
// GetPosition/ReadValue methods directly.
const pollInterval = 100 * time.Millisecond

func timeNowNS() int64 { return time.Now().UnixNano() }

func notFoundErr(id registry.DeviceID) error {
	return daqerr.NewNotFound("device not found", nil).WithDevice(string(id))
}

func notFoundParamErr(id registry.DeviceID, name string) error {
	return daqerr.NewNotFound(fmt.Sprintf("parameter %q not found", name), nil).WithDevice(string(id))
}

// pollStream drives a StreamEnvelope channel by calling poll on a fixed
// interval until ctx is cancelled, closing out on exit. A poll error ends
// the stream; callers observe this as a closed channel, matching how
// FrameProducerDevice streams end on channel close.
func pollStream[T any](ctx context.Context, out chan StreamEnvelope[T], poll func() (T, error)) {
	defer close(out)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := poll()
			if err != nil {
				return
			}
			seq++
			select {
			case out <- StreamEnvelope[T]{Seq: seq, TimeNS: timeNowNS(), Value: v}:
			case <-ctx.Done():
				return
			}
		}
	}
}
