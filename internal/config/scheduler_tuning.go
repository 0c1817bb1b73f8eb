package config

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"

	"github.com/b-snaas/vllm-gateway/internal/logger"
)

// SchedulerTuning is the hot-reloadable subset of Config consumed by
// internal/scheduler: the two queues' worker counts, micro-batch sizes and
// collect-window durations from spec.md §4.5's table.
type SchedulerTuning struct {
	Interactive QueueTuning `yaml:"interactive"`
	Batch       QueueTuning `yaml:"batch"`
}

// TuningWatcher serves the current SchedulerTuning and keeps it fresh by
// watching its backing YAML file with fsnotify. Reads via Current are
// lock-free; reloads replace the snapshot atomically.
type TuningWatcher struct {
	path    string
	current atomic.Pointer[SchedulerTuning]
	log     *logger.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewTuningWatcher seeds the watcher from cfg's env-derived defaults, then
// replaces them with path's YAML contents if the file exists; fields the
// file leaves out are zero, not the env-var defaults. The file is optional:
// operators who never create scheduler.yaml get the env-var defaults.
func NewTuningWatcher(cfg *Config, path string, log *logger.Logger) (*TuningWatcher, error) {
	tw := &TuningWatcher{path: path, log: log.WithComponent("scheduler-tuning")}

	seed := &SchedulerTuning{Interactive: cfg.Interactive, Batch: cfg.Batch}
	switch overlay, err := loadTuningFile(path); {
	case err != nil:
		tw.log.Warn("failed to load scheduler tuning file, using env-var defaults",
			slog.String("path", path), slog.String("error", err.Error()))
	case overlay != nil:
		seed = overlay
	}
	tw.current.Store(seed)

	return tw, nil
}

// Current returns the tuning snapshot in effect right now.
func (tw *TuningWatcher) Current() SchedulerTuning {
	return *tw.current.Load()
}

// Watch starts the fsnotify goroutine on path's directory. A missing path is
// not an error — the seeded defaults remain in effect until the file
// appears, at which point the directory watch picks up the create event.
func (tw *TuningWatcher) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(tw.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close() //nolint:errcheck
		return err
	}

	stop := make(chan struct{})

	tw.mu.Lock()
	tw.watcher = watcher
	tw.stop = stop
	tw.mu.Unlock()

	go tw.watchLoop(watcher, stop)
	return nil
}

// watchLoop reads only its own local watcher/stop, captured once by Watch,
// so it never races with Close mutating tw.watcher/tw.stop under tw.mu.
func (tw *TuningWatcher) watchLoop(watcher *fsnotify.Watcher, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(tw.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			tw.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			tw.log.Warn("scheduler tuning watcher error", slog.String("error", err.Error()))
		}
	}
}

func (tw *TuningWatcher) reload() {
	overlay, err := loadTuningFile(tw.path)
	if err != nil {
		tw.log.Warn("failed to reload scheduler tuning, keeping previous values",
			slog.String("path", tw.path), slog.String("error", err.Error()))
		return
	}
	if overlay == nil {
		return
	}
	tw.current.Store(overlay)
	tw.log.Info("scheduler tuning reloaded",
		slog.Int("interactive_workers", overlay.Interactive.Workers),
		slog.Int("batch_workers", overlay.Batch.Workers))
}

// Close stops the watcher goroutine, if one was started.
func (tw *TuningWatcher) Close() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.stop != nil {
		close(tw.stop)
		tw.stop = nil
	}
	if tw.watcher != nil {
		tw.watcher.Close() //nolint:errcheck
		tw.watcher = nil
	}
}

// loadTuningFile returns nil, nil if path does not exist.
func loadTuningFile(path string) (*SchedulerTuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var t SchedulerTuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
