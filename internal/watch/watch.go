// Package watch implements drop-folder mode: PDFs appearing in a watched
// directory are converted as they arrive.
//
// Arrival detection combines debounced fsnotify events with a periodic full
// sweep of the directory, so files missed by the notifier (network mounts,
// files present before startup) are still picked up. Conversions run one at
// a time in arrival order.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"github.com/thedivergentai/pdf2muse/internal/logfields"
)

// ConvertFunc converts one PDF. It is invoked sequentially.
type ConvertFunc func(ctx context.Context, pdfPath string) error

// Watcher monitors a directory for new PDFs and converts them.
type Watcher struct {
	dir        string
	debounce   time.Duration
	sweepEvery time.Duration
	convert    ConvertFunc

	mu      sync.Mutex
	timers  map[string]*time.Timer
	handled map[string]time.Time // path -> modtime last converted

	queue chan string
}

// New creates a watcher over dir. debounce suppresses rapid event bursts for
// a file still being written; sweepEvery is the period of the full rescan.
func New(dir string, debounce, sweepEvery time.Duration, convert ConvertFunc) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving watch directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path is not a directory: %s", abs)
	}

	return &Watcher{
		dir:        abs,
		debounce:   debounce,
		sweepEvery: sweepEvery,
		convert:    convert,
		timers:     make(map[string]*time.Timer),
		handled:    make(map[string]time.Time),
		queue:      make(chan string, 64),
	}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer notifier.Close()

	if err := notifier.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(w.sweepEvery),
		gocron.NewTask(w.sweep),
		gocron.WithName("pdf-sweep"),
	); err != nil {
		return fmt.Errorf("failed to schedule sweep job: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.Warn("Failed to stop sweep scheduler", logfields.Error(err))
		}
	}()

	slog.Info("Watching for PDFs", logfields.Path(w.dir))

	// Pick up files already present at startup.
	w.sweep()

	go w.consume(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	if !isPDF(event.Name) {
		return
	}

	// Debounce: a file being copied in produces many write events; convert
	// only after they stop.
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[event.Name]; ok {
		timer.Reset(w.debounce)
		return
	}
	path := event.Name
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.enqueue(path)
	})
}

// sweep scans the directory for PDFs that have not been converted at their
// current modification time.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		slog.Warn("Sweep failed", logfields.Path(w.dir), logfields.Error(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		w.mu.Lock()
		seen, ok := w.handled[path]
		w.mu.Unlock()
		if ok && seen.Equal(info.ModTime()) {
			continue
		}
		w.enqueue(path)
	}
}

func (w *Watcher) enqueue(path string) {
	select {
	case w.queue <- path:
	default:
		// Queue full; the periodic sweep will pick the file up again.
		slog.Warn("Conversion queue full, deferring", logfields.File(path))
	}
}

// consume converts queued files one at a time.
func (w *Watcher) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.queue:
			info, err := os.Stat(path)
			if err != nil {
				continue // removed before we got to it
			}

			w.mu.Lock()
			seen, ok := w.handled[path]
			if ok && seen.Equal(info.ModTime()) {
				w.mu.Unlock()
				continue
			}
			// Mark before converting so a failing file is not retried in a
			// hot loop; a rewritten file (new modtime) converts again.
			w.handled[path] = info.ModTime()
			w.mu.Unlock()

			slog.Info("Converting", logfields.File(path))
			if err := w.convert(ctx, path); err != nil {
				slog.Error("Conversion failed", logfields.File(path), logfields.Error(err))
			}
		}
	}
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
