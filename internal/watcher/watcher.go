// Package watcher observes the recordings directory and reports new audio
// files once the recorder has finished writing them.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/meetscribe/meetscribe/internal/diaglog"
)

// audioExtensions are the file types handed to transcription.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
}

// Config tunes the watcher.
type Config struct {
	Dir           string
	StableChecks  int           // size probes that must agree, default 2
	StableDelay   time.Duration // delay between probes, default 500ms
	PollInterval  time.Duration // fallback scan interval, default 5s
}

// Watcher reports newly finished audio files exactly once each.
type Watcher struct {
	cfg   Config
	files chan string

	mu   sync.Mutex
	seen map[string]bool
	wg   sync.WaitGroup

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New creates a watcher for cfg.Dir. Files already present at start are
// treated as seen and never reported.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory not set")
	}
	if cfg.StableChecks <= 0 {
		cfg.StableChecks = 2
	}
	if cfg.StableDelay <= 0 {
		cfg.StableDelay = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("cannot watch %s: %w", cfg.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot watch %s: not a directory", cfg.Dir)
	}

	w := &Watcher{
		cfg:   cfg,
		files: make(chan string, 16),
		seen:  make(map[string]bool),
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.seen[filepath.Join(cfg.Dir, e.Name())] = true
		}
	}
	return w, nil
}

// SetLogger injects a diaglog.Logger for debug logging.
func (w *Watcher) SetLogger(l *diaglog.Logger) {
	w.loggerMu.Lock()
	w.logger = l
	w.loggerMu.Unlock()
}

func (w *Watcher) log(entry diaglog.LogEntry) {
	w.loggerMu.RLock()
	l := w.logger
	w.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentWatcher
	}
	l.Log(entry)
}

// Files is the channel of finished audio file paths.
func (w *Watcher) Files() <-chan string {
	return w.files
}

// Run watches until ctx is cancelled. Uses fsnotify when available with a
// polling scan as backstop; falls back to polling alone when fsnotify
// cannot be set up.
func (w *Watcher) Run(ctx context.Context) {
	defer func() {
		w.wg.Wait()
		close(w.files)
	}()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.runPolling(ctx)
		return
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		w.runPolling(ctx)
		return
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				w.runPolling(ctx)
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.consider(ctx, event.Name)
			}
		case <-fsw.Errors:
			// Keep going; the poll ticker covers missed events.
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.consider(ctx, filepath.Join(w.cfg.Dir, e.Name()))
	}
}

// consider checks whether path is a new audio file and hands it to a
// per-file goroutine that waits out the stability probe and emits it, so
// one slowly growing file never delays detection of others. Marks the
// file seen before the probe so duplicate events from fsnotify and the
// poll ticker cannot double-report.
func (w *Watcher) consider(ctx context.Context, path string) {
	if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
		return
	}

	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		if !w.waitStable(ctx, path) {
			// Vanished or still growing at cancellation; allow a later retry.
			w.mu.Lock()
			delete(w.seen, path)
			w.mu.Unlock()
			return
		}

		w.log(diaglog.LogEntry{
			Event:   diaglog.EventFileDetected,
			Payload: map[string]interface{}{"file": path},
		})

		select {
		case w.files <- path:
		case <-ctx.Done():
		}
	}()
}

// waitStable waits until the file size stops changing across
// cfg.StableChecks consecutive probes.
func (w *Watcher) waitStable(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	agree := 0
	for {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && info.Size() > 0 {
			agree++
			if agree >= w.cfg.StableChecks {
				return true
			}
		} else {
			agree = 0
			lastSize = info.Size()
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.cfg.StableDelay):
		}
	}
}
