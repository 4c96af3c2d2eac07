// Package watcher reports changes to the content catalogue on disk, grouped
// so that an editor's burst of writes becomes one reload.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/brokerage/internal/logging"
)

// ChangeEvent is one changed file.
type ChangeEvent struct {
	Type EventType
	Path string
}

// EventType is the kind of change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path is of interest.
type FileFilter func(path string) bool

// ChangeHandler receives a debounced batch of changes.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// ContentWatcher watches directories and calls its handlers with debounced
// batches of changes.
type ContentWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	logger    logging.Logger

	mu       sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler

	done chan struct{}
}

// New returns a watcher that waits delay after the last change before
// delivering a batch.
func New(delay time.Duration, logger logging.Logger) (*ContentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &ContentWatcher{
		watcher:   w,
		debouncer: newDebouncer(delay),
		logger:    logger.WithComponent("watcher"),
		done:      make(chan struct{}),
	}, nil
}

// AddFilter adds a filter; a path must pass every filter.
func (cw *ContentWatcher) AddFilter(filter FileFilter) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.filters = append(cw.filters, filter)
}

// AddHandler adds a change handler.
func (cw *ContentWatcher) AddHandler(handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// AddRecursive watches root and every directory below it.
func (cw *ContentWatcher) AddRecursive(root string) error {
	root, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return fmt.Errorf("resolving %s: %w", root, err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return cw.watcher.Add(path)
	})
}

// Start runs the watcher until ctx is done or Stop is called.
func (cw *ContentWatcher) Start(ctx context.Context) {
	go cw.watchLoop(ctx)
	go cw.processLoop(ctx)
}

// Stop releases the underlying watcher.
func (cw *ContentWatcher) Stop() error {
	select {
	case <-cw.done:
		return nil
	default:
		close(cw.done)
	}
	cw.debouncer.stop()
	return cw.watcher.Close()
}

func (cw *ContentWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.done:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn(ctx, err, "content watcher error")
		}
	}
}

func (cw *ContentWatcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	cw.mu.RLock()
	filters := cw.filters
	cw.mu.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventTypeCreated
		// New directories need their own watch.
		_ = cw.watcher.Add(event.Name)
	case event.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	cw.debouncer.add(ChangeEvent{Type: eventType, Path: event.Name})
}

func (cw *ContentWatcher) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.done:
			return
		case events := <-cw.debouncer.output:
			cw.mu.RLock()
			handlers := cw.handlers
			cw.mu.RUnlock()

			cw.logger.Debug(ctx, "content changed", "files", len(events))
			for _, handler := range handlers {
				if err := handler(ctx, events); err != nil {
					cw.logger.Error(ctx, err, "content change handler failed")
				}
			}
		}
	}
}

// debouncer collects events and emits them once delay has passed without a
// new one. Events for the same path collapse to the latest.
type debouncer struct {
	delay  time.Duration
	output chan []ChangeEvent

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]ChangeEvent
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		output:  make(chan []ChangeEvent, 10),
		pending: make(map[string]ChangeEvent),
	}
}

func (d *debouncer) add(event ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[event.Path] = event
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	events := make([]ChangeEvent, 0, len(d.pending))
	for _, e := range d.pending {
		events = append(events, e)
	}
	clear(d.pending)
	d.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	default:
		// A batch is already queued; the handler reloads everything anyway.
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// YAMLFilter passes catalogue files.
func YAMLFilter(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

// NoHiddenFilter drops dotfiles and editor swap or backup files.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~") && !strings.HasSuffix(base, ".swp")
}
