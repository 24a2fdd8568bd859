package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the config file's Host allowlist so the Session Hub
// picks up a new entry without a daemon restart. It debounces bursts of
// filesystem events the way the teacher's skills.Manager watch loop does,
// since editors commonly emit several Write events per save.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func([]string)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher builds a Watcher for the config file at path. onChange is
// called with the reloaded AllowedHosts whenever the file changes and
// still parses; a reload that fails to parse is logged and the previous
// allowlist is kept.
func NewWatcher(path string, onChange func([]string), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, debounce: 250 * time.Millisecond, logger: logger, onChange: onChange}
}

// Start begins watching until ctx is done or Stop is called. Safe to call
// once; a second call is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fw.Add(w.path); err != nil {
		_ = fw.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(watchCtx, fw)
	return nil
}

// Stop halts the watch goroutine and releases the underlying fsnotify
// watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if fw != nil {
		_ = fw.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, w.reload)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous allowlist",
			slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}
	w.logger.Info("config reloaded", slog.Int("allowedHosts", len(cfg.Server.AllowedHosts)))
	w.onChange(cfg.Server.AllowedHosts)
}
