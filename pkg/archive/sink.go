package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/photonlab/daqd/pkg/document"
	"github.com/photonlab/daqd/pkg/ring"
)

// RingSink adapts a ring.Buffer into a runengine.DocumentSink: every
// emitted Document is JSON-marshaled and framed into the ring, the fast
// front half of the persistence "mullet". Ring overflow is returned to
// the caller rather than swallowed — the run engine logs it and
// continues, per spec.
type RingSink struct {
	buf  *ring.Buffer
	taps *ring.TapRegistry
}

// NewRingSink wraps buf. taps may be nil if no live tap fan-out is
// needed.
func NewRingSink(buf *ring.Buffer, taps *ring.TapRegistry) *RingSink {
	return &RingSink{buf: buf, taps: taps}
}

// Persist implements runengine.DocumentSink.
func (s *RingSink) Persist(_ context.Context, d document.Document) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("archive: marshal document: %w", err)
	}
	if err := s.buf.Write(payload); err != nil {
		return err
	}
	if s.taps != nil {
		s.taps.Publish(ring.Encode(payload))
	}
	return nil
}
