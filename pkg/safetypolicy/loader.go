package safetypolicy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Loader reads custom .rego policy files from disk and can watch a
// directory for changes, debouncing reloads.
type Loader struct {
	log     zerolog.Logger
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLoader returns a Loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "safety_policy_loader").Logger()}
}

// LoadFromDir reads every *.rego file directly under dir (non-recursive,
// matching the flat policy-bundle layout devices are configured with)
// into Policy values at SeverityWarning by default.
func (l *Loader) LoadFromDir(dir string) ([]Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("safetypolicy: read policy dir: %w", err)
	}
	var out []Policy
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.log.Warn().Err(err).Str("path", path).Msg("failed to read policy file")
			continue
		}
		out = append(out, Policy{
			Name:     strings.TrimSuffix(entry.Name(), ".rego"),
			Rego:     string(data),
			Severity: SeverityWarning,
			Enabled:  true,
		})
	}
	return out, nil
}

// Watch watches dir for .rego file changes and invokes reloadFn with
// the freshly re-read policy set after a debounce window.
func (l *Loader) Watch(ctx context.Context, dir string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("safetypolicy: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("safetypolicy: watch dir: %w", err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.processEvents(ctx, dir, reloadFn)
	return nil
}

func (l *Loader) processEvents(ctx context.Context, dir string, reloadFn func([]Policy) error) {
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			l.watcher.Close()
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".rego") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				policies, err := l.LoadFromDir(dir)
				if err != nil {
					l.log.Error().Err(err).Msg("reload failed")
					return
				}
				if err := reloadFn(policies); err != nil {
					l.log.Error().Err(err).Msg("apply reloaded policies failed")
				}
			})
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// StopWatching closes the underlying filesystem watcher, if any.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
