package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/photonlab/daqd/pkg/document"
	"github.com/photonlab/daqd/pkg/ring"
)

// WriterConfig configures the background archive flush loop.
type WriterConfig struct {
	FlushInterval time.Duration
	SidecarPath   string
}

// Writer periodically drains complete records out of a ring.Buffer and
// appends them to a Store. When WriterConfig.SidecarPath is set, every
// decoded record is also appended as raw framed bytes to that sidecar
// file, for downstream reconstruction independent of the SQLite schema.
type Writer struct {
	buf     *ring.Buffer
	store   *Store
	log     zerolog.Logger
	cfg     WriterConfig
	sidecar *os.File

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewWriter returns a Writer bound to buf and store. Call Run to start
// the periodic flush loop.
func NewWriter(buf *ring.Buffer, store *Store, log zerolog.Logger, cfg WriterConfig) (*Writer, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	var sidecar *os.File
	if cfg.SidecarPath != "" {
		f, err := os.OpenFile(cfg.SidecarPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("archive: open sidecar: %w", err)
		}
		sidecar = f
	}
	return &Writer{
		buf:     buf,
		store:   store,
		log:     log.With().Str("component", "archive_writer").Logger(),
		cfg:     cfg,
		sidecar: sidecar,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Run drives the flush loop until ctx is canceled or Stop is called.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(ctx)
			return
		case <-w.stop:
			w.flush(ctx)
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// Stop requests the flush loop exit after one final flush, and blocks
// until it has.
func (w *Writer) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := w.buf.ReadSnapshot()
	if len(snapshot) == 0 {
		return
	}
	payloads, highWater := ring.DecodeAll(snapshot)
	if len(payloads) == 0 {
		return
	}

	for _, payload := range payloads {
		if w.sidecar != nil {
			if _, err := w.sidecar.Write(ring.Encode(payload)); err != nil {
				w.log.Error().Err(err).Msg("sidecar write failed")
			}
		}
		var d document.Document
		if err := json.Unmarshal(payload, &d); err != nil {
			w.log.Error().Err(err).Msg("decode archived document failed, skipping record")
			continue
		}
		if err := w.apply(ctx, d); err != nil {
			w.log.Error().Err(err).Str("run_uid", d.RunUID).Str("kind", string(d.Kind)).Msg("archive write failed")
		}
	}

	w.buf.AdvanceTail(highWater)
}

func (w *Writer) apply(ctx context.Context, d document.Document) error {
	switch d.Kind {
	case document.KindStart:
		s := d.Start
		if err := w.store.WriteManifest(ctx, d.RunUID, s.PlanType, s.PlanName, s.System.Host, s.System.SoftwareVersion, d.TimeNS); err != nil {
			return err
		}
		return w.store.InjectParameters(ctx, d.RunUID, s.Parameters)
	case document.KindEvent:
		e := d.Event
		return w.store.AppendEvent(ctx, d.RunUID, e.Stream, e.Seq, e.TimeNS, e.Data, e.Positions)
	case document.KindStop:
		s := d.Stop
		return w.store.WriteStop(ctx, d.RunUID, string(s.Exit), s.Reason, d.TimeNS)
	case document.KindDescriptor:
		// Stream field schema is reconstructable from the measurements
		// table's distinct device names per stream; no separate table
		// is needed.
		return nil
	default:
		return fmt.Errorf("archive: unknown document kind %q", d.Kind)
	}
}
