package runengine

import (
	"sync"

	"github.com/photonlab/daqd/pkg/plan"
)

// runContext holds the per-run control state shared between the public
// Engine methods (called from any goroutine) and the run loop goroutine.
type runContext struct {
	runUID   string
	builder  plan.Builder
	params   map[string]string
	mapping  map[string]string
	metadata map[string]string

	mu            sync.Mutex
	pauseRequest  bool
	pauseDefer    bool
	pauseC        chan struct{} // closed+recreated on resume
	abortC        chan struct{}
	abortOnce     sync.Once
}

func newRunContext(q queuedRun) *runContext {
	return &runContext{
		runUID:   q.runUID,
		builder:  q.builder,
		params:   q.params,
		mapping:  q.mapping,
		metadata: q.metadata,
		pauseC:   make(chan struct{}),
		abortC:   make(chan struct{}),
	}
}

func (rc *runContext) requestPause(deferPause bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.pauseRequest = true
	rc.pauseDefer = deferPause
}

func (rc *runContext) resume() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.pauseRequest = false
	close(rc.pauseC)
	rc.pauseC = make(chan struct{})
}

func (rc *runContext) abort() {
	rc.abortOnce.Do(func() { close(rc.abortC) })
}

func (rc *runContext) aborted() bool {
	select {
	case <-rc.abortC:
		return true
	default:
		return false
	}
}

// pauseDeferred reports the most recent pause_engine(defer) request.
func (rc *runContext) pauseDeferred() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.pauseRequest && rc.pauseDefer
}

// wantsImmediatePause reports a pending non-deferred pause request.
func (rc *runContext) wantsImmediatePause() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.pauseRequest && !rc.pauseDefer
}

// wantsCheckpointPause reports a pending deferred pause request.
func (rc *runContext) wantsCheckpointPause() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.pauseRequest && rc.pauseDefer
}

// waitC returns the channel to block on for a resume, alongside abortC.
func (rc *runContext) waitC() <-chan struct{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.pauseC
}
