// Package watcher restarts the bot when its entry script changes on disk.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval coalesces bursts of filesystem events (editors often
// write, chmod, and rename in quick succession) into a single restart.
const DebounceInterval = 500 * time.Millisecond

// Watcher watches the entry script and invokes a callback on change.
type Watcher struct {
	entryPath string
	logger    *slog.Logger
	onChange  func()

	fsw *fsnotify.Watcher
}

// New creates a Watcher for entryPath. onChange is called (debounced) each
// time the script is written, created, or renamed.
func New(entryPath string, logger *slog.Logger, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory, not the file: editors that replace the file via
	// rename would otherwise silently detach the watch.
	if err := fsw.Add(filepath.Dir(entryPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(entryPath), err)
	}

	return &Watcher{
		entryPath: entryPath,
		logger:    logger,
		onChange:  onChange,
		fsw:       fsw,
	}, nil
}

// Run processes events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("entry_changed", "event", event.Op.String(), "path", event.Name)
			if debounce == nil {
				debounce = time.NewTimer(DebounceInterval)
				debounceCh = debounce.C
			} else {
				debounce.Reset(DebounceInterval)
			}

		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			w.logger.Info("entry_change_restart", "path", w.entryPath)
			w.onChange()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher_error", "error", err)
		}
	}
}

// relevant filters events down to mutations of the entry script itself.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(w.entryPath) {
		return false
	}
	return event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Rename)
}
