package daqconfig

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches the device-fleet configuration file (or directory) for
// changes and invokes a reload callback after a debounce window.
// Daemon-level settings are intentionally not hot-reloaded: they size the
// ring buffer and other objects that cannot be resized in place once the
// daemon has started, so only FleetConfig is re-parsed here.
type Watcher struct {
	parser *Parser
	log    zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher returns a Watcher that uses parser to re-parse the fleet
// config on change.
func NewWatcher(parser *Parser, log zerolog.Logger) *Watcher {
	return &Watcher{parser: parser, log: log.With().Str("component", "daqconfig_watcher").Logger()}
}

// Watch watches path (a file or directory) and calls reloadFn with the
// freshly re-parsed FleetConfig after every debounced change. reloadFn is
// never called concurrently with itself. Watch returns once the watcher
// is installed; events are processed on a background goroutine until ctx
// is cancelled.
func (w *Watcher) Watch(ctx context.Context, path string, reloadFn func(FleetConfig) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("daqconfig: create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return fmt.Errorf("daqconfig: watch %s: %w", path, err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	go w.processEvents(ctx, path, reloadFn)
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, path string, reloadFn func(FleetConfig) error) {
	const debounce = 300 * time.Millisecond
	var timer *time.Timer
	var reloadMu sync.Mutex

	reload := func() {
		reloadMu.Lock()
		defer reloadMu.Unlock()
		parsed, err := w.parser.Parse(ctx, []string{path})
		if err != nil {
			w.log.Error().Err(err).Msg("reload parse failed")
			return
		}
		if !parsed.OK() {
			w.log.Error().Int("errors", len(parsed.Errors)).Msg("reload produced validation errors, keeping prior fleet config")
			return
		}
		if err := reloadFn(parsed.Fleet); err != nil {
			w.log.Error().Err(err).Msg("apply reloaded fleet config failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".cue") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// Stop closes the underlying filesystem watcher, if any.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
