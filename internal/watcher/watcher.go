// Package watcher feeds files dropped into the staging folder to the
// ingestion pipeline. Events are debounced per path so editors and copy
// tools that touch a file several times trigger only one run.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
)

const (
	defaultDebounce = 5 * time.Second
	defaultWorkers  = 4
	// settleDelay gives the writer time to finish before the file is read.
	settleDelay = 2 * time.Second
)

// Pipeline is the ingestion entry point the watcher dispatches to.
type Pipeline interface {
	ProcessFile(ctx context.Context, path string) (*domain.Document, error)
}

// Config holds watcher settings.
type Config struct {
	StagingDir        string
	Debounce          time.Duration
	AllowedExtensions []string
	Workers           int
}

// Status is a snapshot of the watcher state.
type Status struct {
	Running           bool
	StagingDir        string
	AllowedExtensions []string
	ActiveWorkers     int
}

// Watcher owns the fsnotify subscription and the worker pool that runs
// per-file ingestion tasks.
type Watcher struct {
	cfg      Config
	pipeline Pipeline
	logger   *zap.Logger

	pool   *ants.Pool
	fsw    *fsnotify.Watcher
	now    func() time.Time
	settle time.Duration

	mu      sync.Mutex
	recent  map[string]time.Time
	running bool
	cancel  context.CancelFunc

	loopWg sync.WaitGroup
	taskWg sync.WaitGroup
}

// New creates a stopped watcher. Start must be called to begin watching.
func New(cfg Config, pipeline Pipeline, logger *zap.Logger) (*Watcher, error) {
	if cfg.StagingDir == "" {
		return nil, errors.New("watcher: staging directory not set")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("watcher: create pool: %w", err)
	}
	return &Watcher{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   logger,
		pool:     pool,
		now:      time.Now,
		settle:   settleDelay,
		recent:   make(map[string]time.Time),
	}, nil
}

// Start subscribes to the staging folder and processes files already sitting
// there. It returns once the event loop is running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher: already started")
	}
	w.mu.Unlock()

	if info, err := os.Stat(w.cfg.StagingDir); err != nil || !info.IsDir() {
		return fmt.Errorf("watcher: staging directory %s not usable: %w", w.cfg.StagingDir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: subscribe: %w", err)
	}
	if err := fsw.Add(w.cfg.StagingDir); err != nil {
		fsw.Close()
		return fmt.Errorf("watcher: watch %s: %w", w.cfg.StagingDir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.fsw = fsw
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.loopWg.Add(1)
	go w.run(runCtx)

	w.logger.Info("watching staging folder", zap.String("dir", w.cfg.StagingDir))

	if _, err := w.ScanAndProcess(runCtx); err != nil {
		w.logger.Error("initial staging scan failed", zap.Error(err))
	}
	return nil
}

// Close stops the event loop and waits for in-flight file tasks.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.pool.Release()
		return nil
	}
	w.running = false
	cancel, fsw := w.cancel, w.fsw
	w.mu.Unlock()

	cancel()
	err := fsw.Close()
	w.loopWg.Wait()
	w.taskWg.Wait()
	w.pool.Release()
	w.logger.Info("watcher stopped")
	return err
}

// ScanAndProcess walks the staging folder and queues every eligible file.
// It returns the number of files queued.
func (w *Watcher) ScanAndProcess(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.cfg.StagingDir)
	if err != nil {
		return 0, fmt.Errorf("watcher: scan staging: %w", err)
	}
	queued := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if w.handle(ctx, filepath.Join(w.cfg.StagingDir, entry.Name())) {
			queued++
		}
	}
	w.logger.Info("staging scan queued files", zap.Int("count", queued))
	return queued, nil
}

// Status reports the current watcher state.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	return Status{
		Running:           running,
		StagingDir:        w.cfg.StagingDir,
		AllowedExtensions: w.cfg.AllowedExtensions,
		ActiveWorkers:     w.pool.Running(),
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer w.loopWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.handle(ctx, event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher event error", zap.Error(err))
		}
	}
}

// handle filters, debounces and queues one path. Reports whether a task was
// queued.
func (w *Watcher) handle(ctx context.Context, path string) bool {
	if !w.allowed(path) {
		return false
	}
	if !w.debounce(path) {
		w.logger.Debug("skipping recently seen file", zap.String("path", path))
		return false
	}
	w.taskWg.Add(1)
	err := w.pool.Submit(func() {
		defer w.taskWg.Done()
		w.process(ctx, path)
	})
	if err != nil {
		w.taskWg.Done()
		w.logger.Error("queueing file failed", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

func (w *Watcher) process(ctx context.Context, path string) {
	if w.settle > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.settle):
		}
	}
	if _, err := os.Stat(path); err != nil {
		w.logger.Info("file disappeared before processing", zap.String("path", path))
		return
	}

	doc, err := w.pipeline.ProcessFile(ctx, path)
	switch {
	case errors.Is(err, domain.ErrFileRejected):
		w.logger.Warn("file rejected", zap.String("path", path), zap.Error(err))
	case err != nil:
		w.logger.Error("processing failed", zap.String("path", path), zap.Error(err))
	default:
		w.logger.Info("file processed",
			zap.String("path", path), zap.String("document_id", doc.ID))
	}
}

// allowed checks the extension allow-list. An empty list allows everything;
// the pipeline still validates on its own.
func (w *Watcher) allowed(path string) bool {
	if len(w.cfg.AllowedExtensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, allowed := range w.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// debounce reports whether the path may be processed now and records the
// attempt. Entries older than twice the window are pruned on the way.
func (w *Watcher) debounce(path string) bool {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.recent[path]; ok && now.Sub(last) < w.cfg.Debounce {
		return false
	}
	w.recent[path] = now
	cutoff := now.Add(-2 * w.cfg.Debounce)
	for p, ts := range w.recent {
		if ts.Before(cutoff) {
			delete(w.recent, p)
		}
	}
	return true
}
