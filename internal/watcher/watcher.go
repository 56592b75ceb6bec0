// Package watcher delivers filesystem events for newly arrived invoice
// files, decoupled from ingestion so the callback side can be unit-tested
// with synthetic paths.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/rumor-ml/commons.systems/nfeledger/internal/scanner"
)

// Event is one detected invoice file, or a watch error.
type Event struct {
	Path  string
	Error error // nil for normal events
}

// Watcher watches a single inbox directory for invoice files using
// fsnotify. Events are buffered; shutdown never blocks on a full channel.
type Watcher struct {
	fsw     *fsnotify.Watcher
	events  chan Event
	done    chan struct{}
	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a watcher for the given inbox directory.
func New(inboxDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fsw.Add(inboxDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch inbox %s: %w", inboxDir, err)
	}

	return &Watcher{
		fsw:    fsw,
		events: make(chan Event, 100), // buffered to absorb bursts
		done:   make(chan struct{}),
	}, nil
}

// Start begins watching and returns the event channel. Subsequent calls
// return the same channel.
func (w *Watcher) Start() <-chan Event {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return w.events
	}
	w.started = true
	w.mu.Unlock()

	go w.watch()
	return w.events
}

func (w *Watcher) watch() {
	defer close(w.events)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// A created file may still be mid-write; the ingestion side
			// treats unreadable XML as a skip, and a later Write event
			// retriggers processing.
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !scanner.IsInvoiceFile(filepath.Base(event.Name)) {
				continue
			}
			select {
			case w.events <- Event{Path: event.Name}:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.events <- Event{Error: err}:
			case <-w.done:
				return
			}
		}
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.fsw.Close()
}
