package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/photonlab/daqd/pkg/daqerr"
	"github.com/photonlab/daqd/pkg/document"
	"github.com/photonlab/daqd/pkg/ring"
)

// RecorderConfig sizes the ring buffer and writer a Recorder creates
// fresh for each recording.
type RecorderConfig struct {
	RingSizeBytes int
	FlushInterval time.Duration
	SidecarDir    string
}

// active holds the live objects backing one in-progress recording: the
// ring buffer and background writer are created fresh per spec §3
// ("RingBuffer: created once at recording start; reset on new
// recording") rather than reused across recordings.
type active struct {
	name     string
	buf      *ring.Buffer
	taps     *ring.TapRegistry
	sink     *RingSink
	writer   *Writer
	cancel   context.CancelFunc
	writerWG sync.WaitGroup
}

// Recorder owns the Recording entity's lifecycle: at most one active
// recording at a time (spec §3), binding a human-chosen acquisition name
// and metadata overrides to the archive Store and a fresh ring+writer
// pair. StartRecording's returned *RingSink is what callers hand to
// runengine.Engine as its DocumentSink for the duration of the
// recording.
type Recorder struct {
	store *Store
	cfg   RecorderConfig
	log   zerolog.Logger

	mu     sync.Mutex
	active *active
}

// NewRecorder returns a Recorder bound to store.
func NewRecorder(store *Store, cfg RecorderConfig, log zerolog.Logger) *Recorder {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Recorder{store: store, cfg: cfg, log: log.With().Str("component", "recorder").Logger()}
}

// StartRecording begins a new recording bound to runUID (the run whose
// documents should be persisted under this acquisition). Fails with
// FailedPrecondition if a recording is already active.
func (r *Recorder) StartRecording(ctx context.Context, name string, metadata json.RawMessage, scanID, runUID, outputPath string) (*RingSink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, daqerr.NewFailedPrecondition(fmt.Sprintf("recording %q is already active", r.active.name), nil)
	}

	if err := r.store.CreateAcquisition(ctx, name, runUID, scanID, outputPath, metadata, time.Now().UnixNano()); err != nil {
		return nil, err
	}

	buf := ring.New(r.cfg.RingSizeBytes)
	taps := ring.NewTapRegistry()
	sink := NewRingSink(buf, taps)

	sidecarPath := ""
	if r.cfg.SidecarDir != "" {
		sidecarPath = fmt.Sprintf("%s/%s.bin", r.cfg.SidecarDir, name)
	}
	writer, err := NewWriter(buf, r.store, r.log, WriterConfig{FlushInterval: r.cfg.FlushInterval, SidecarPath: sidecarPath})
	if err != nil {
		return nil, fmt.Errorf("archive: start recording: %w", err)
	}

	writeCtx, cancel := context.WithCancel(context.Background())
	a := &active{name: name, buf: buf, taps: taps, sink: sink, writer: writer, cancel: cancel}
	a.writerWG.Add(1)
	go func() {
		defer a.writerWG.Done()
		writer.Run(writeCtx)
	}()

	r.active = a
	return sink, nil
}

// StopRecording flushes and stops the active recording's writer, closes
// its acquisition row, and releases the ring+writer pair. No-op if no
// recording is active.
func (r *Recorder) StopRecording(ctx context.Context) error {
	r.mu.Lock()
	a := r.active
	r.active = nil
	r.mu.Unlock()

	if a == nil {
		return nil
	}

	a.writer.Stop()
	a.cancel()
	a.writerWG.Wait()

	return r.store.CloseAcquisition(ctx, a.name, time.Now().UnixNano())
}

// Persist implements runengine.DocumentSink by forwarding to the active
// recording's RingSink, if any. A Recorder can therefore be handed to
// runengine.New once at daemon startup and outlives any number of
// StartRecording/StopRecording cycles; documents emitted while no
// recording is active are silently not persisted (they still reach live
// subscribers via the engine's own fan-out), matching spec §3's "Archive
// created on first flush after recording starts."
func (r *Recorder) Persist(ctx context.Context, d document.Document) error {
	r.mu.Lock()
	a := r.active
	r.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.sink.Persist(ctx, d)
}

// GetRecordingStatus returns the currently active acquisition, or nil if
// none is active.
func (r *Recorder) GetRecordingStatus(ctx context.Context) (*Acquisition, error) {
	return r.store.ActiveAcquisition(ctx)
}

// ListAcquisitions returns every past and present recording.
func (r *Recorder) ListAcquisitions(ctx context.Context) ([]Acquisition, error) {
	return r.store.ListAcquisitions(ctx)
}

// RegisterTap adds a live tap to the active recording's ring, if a
// recording is in progress. Returns FailedPrecondition if none is
// active.
func (r *Recorder) RegisterTap(id string, sampleEvery uint64) (*ring.Tap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil, daqerr.NewFailedPrecondition("no recording is active", nil)
	}
	const tapBufferSize = 256
	return r.active.taps.Register(id, sampleEvery, tapBufferSize), nil
}

// UnregisterTap removes a tap from the active recording's ring, if any.
func (r *Recorder) UnregisterTap(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return
	}
	r.active.taps.Unregister(id)
}
