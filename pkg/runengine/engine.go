package runengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/photonlab/daqd/pkg/daqerr"
	"github.com/photonlab/daqd/pkg/document"
	"github.com/photonlab/daqd/pkg/plan"
	"github.com/photonlab/daqd/pkg/registry"
)

// DocumentSink is the never-dropped persistence path documents are
// pushed to before lossy subscriber fan-out (the ring buffer, in
// production). Persist should apply its own backpressure policy rather
// than drop; the engine only logs a Persist error and continues.
type DocumentSink interface {
	Persist(ctx context.Context, d document.Document) error
}

// PlanGate is consulted at QueuePlan admission time; a non-nil error
// rejects the plan before it ever reaches the queue. PlanGate is
// typically a *safetypolicy.Engine, adapted through this narrow
// interface so runengine has no import-time dependency on OPA.
type PlanGate interface {
	Gate(ctx context.Context, builder plan.Builder, params, deviceMapping map[string]string) error
}

type queuedRun struct {
	runUID     string
	builder    plan.Builder
	params     map[string]string
	mapping    map[string]string
	metadata   map[string]string
}

type subEntry struct {
	id    uint64
	ch    chan document.Document
	kinds map[document.Kind]bool
}

// Engine is the single serial plan interpreter. One Engine drives at
// most one run at a time; callers compose it with a Registry (device
// lookups) and an optional DocumentSink (archival persistence).
type Engine struct {
	mu sync.Mutex

	reg  *registry.Registry
	sink DocumentSink
	gate PlanGate
	log  zerolog.Logger

	state   State
	queue   []queuedRun
	current *runContext
	lastErr string

	subs   []subEntry
	nextID uint64
}

// New builds an Engine bound to reg. sink may be nil (documents are
// then only delivered to live subscribers, never persisted).
func New(reg *registry.Registry, sink DocumentSink, log zerolog.Logger) *Engine {
	return &Engine{
		reg:   reg,
		sink:  sink,
		log:   log,
		state: StateIdle,
	}
}

// SetPlanGate installs (or clears, with nil) the admission gate
// consulted by QueuePlan.
func (e *Engine) SetPlanGate(gate PlanGate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = gate
}

// QueuePlan admits a plan into the queue without starting it. If a
// PlanGate is installed, it is evaluated first and a denial aborts
// admission with the gate's error (expected to already be a classified
// daqerr).
func (e *Engine) QueuePlan(ctx context.Context, planRegistry *plan.Registry, tag string, params, deviceMapping, metadata map[string]string) (string, error) {
	builder, err := planRegistry.Create(tag, params, deviceMapping)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	gate := e.gate
	e.mu.Unlock()
	if gate != nil {
		if err := gate.Gate(ctx, builder, params, deviceMapping); err != nil {
			return "", err
		}
	}

	runUID := uuid.New().String()

	e.mu.Lock()
	e.queue = append(e.queue, queuedRun{
		runUID:   runUID,
		builder:  builder,
		params:   params,
		mapping:  deviceMapping,
		metadata: metadata,
	})
	e.mu.Unlock()

	return runUID, nil
}

// StartEngine dequeues the oldest admitted plan and begins executing it.
func (e *Engine) StartEngine(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return daqerr.NewFailedPrecondition(fmt.Sprintf("engine is %s, not idle", e.state), nil)
	}
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return daqerr.NewFailedPrecondition("queue is empty", nil)
	}
	next := e.queue[0]
	e.queue = e.queue[1:]

	rc := newRunContext(next)
	e.current = rc
	e.state = StateRunning
	e.mu.Unlock()

	go e.run(rc)
	return nil
}

// PauseEngine requests a pause. With defer=false the engine stops as
// soon as the in-flight command completes; with defer=true it continues
// to the next Checkpoint.
func (e *Engine) PauseEngine(deferPause bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return daqerr.NewFailedPrecondition(fmt.Sprintf("engine is %s, not running", e.state), nil)
	}
	e.current.requestPause(deferPause)
	return nil
}

// ResumeEngine releases a pause requested by PauseEngine.
func (e *Engine) ResumeEngine() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return daqerr.NewFailedPrecondition(fmt.Sprintf("engine is %s, not paused", e.state), nil)
	}
	e.state = StateRunning
	e.current.resume()
	return nil
}

// AbortPlan forcibly ends the current run (or a named one if runUID is
// non-empty and doesn't match, NotFound is returned).
func (e *Engine) AbortPlan(runUID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return daqerr.NewNotFound("no run is active", nil)
	}
	if runUID != "" && e.current.runUID != runUID {
		return daqerr.NewNotFound(fmt.Sprintf("run %q is not active", runUID), nil)
	}
	e.current.abort()
	return nil
}

// GetEngineStatus returns a snapshot of engine state.
func (e *Engine) GetEngineStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	queued := make([]QueuedPlan, 0, len(e.queue))
	for _, q := range e.queue {
		queued = append(queued, QueuedPlan{RunUID: q.runUID, PlanType: q.builder.Type(), PlanName: q.builder.Name()})
	}
	st := Status{
		State:     e.state,
		Queued:    queued,
		LastError: e.lastErr,
	}
	if e.current != nil {
		st.CurrentRun = e.current.runUID
		st.PauseDeferred = e.current.pauseDeferred()
	}
	return st
}

// Subscribe registers a live document subscriber. If kinds is non-empty,
// only documents of those kinds are delivered. The returned channel is
// bounded and fed with non-blocking sends: a slow subscriber loses
// documents, it never blocks the run. Cancel unsubscribes and closes the
// channel.
func (e *Engine) Subscribe(kinds ...document.Kind) (<-chan document.Document, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	ks := make(map[document.Kind]bool, len(kinds))
	for _, k := range kinds {
		ks[k] = true
	}
	ch := make(chan document.Document, 64)
	e.subs = append(e.subs, subEntry{id: id, ch: ch, kinds: ks})

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

// emit pushes d to the persistence sink (best effort, logged on error)
// and fans it out to live subscribers with non-blocking sends.
func (e *Engine) emit(ctx context.Context, d document.Document) {
	if e.sink != nil {
		if err := e.sink.Persist(ctx, d); err != nil {
			e.log.Warn().Err(err).Str("run_uid", d.RunUID).Str("kind", string(d.Kind)).Msg("document persist failed")
		}
	}

	e.mu.Lock()
	subs := make([]subEntry, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		if len(s.kinds) > 0 && !s.kinds[d.Kind] {
			continue
		}
		select {
		case s.ch <- d:
		default:
			e.log.Warn().Str("run_uid", d.RunUID).Str("kind", string(d.Kind)).Msg("subscriber channel full, document dropped")
		}
	}
}

// finish returns the engine to Idle once a run reaches Completed, Aborted
// or Failed: per the error-handling design, a fatal error drains the
// engine to Idle rather than parking it in Failed — the operator sees
// the outcome via lastErr and the StopDoc, and must explicitly
// start_engine again to resume the queue.
func (e *Engine) finish(rc *runContext, lastErr string) {
	e.mu.Lock()
	e.state = StateIdle
	e.current = nil
	e.lastErr = lastErr
	e.mu.Unlock()
}

func (e *Engine) setPaused() {
	e.mu.Lock()
	e.state = StatePaused
	e.mu.Unlock()
}
