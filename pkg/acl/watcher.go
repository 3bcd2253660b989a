package acl

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher triggers Store.Reload on file changes, signals and a fixed
// interval. Only one reload runs at a time.
type Watcher struct {
	store    *Store
	path     string
	interval time.Duration
	signals  []os.Signal
	debounce time.Duration
	onReload func(trigger string, err error)
}

type WatcherOption func(*Watcher)

// WithFile watches path for writes, creates and renames. Editors that
// replace the file atomically are handled by watching the parent directory.
func WithFile(path string) WatcherOption {
	return func(w *Watcher) {
		w.path = filepath.Clean(path)
	}
}

func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.interval = d
	}
}

func WithSignals(sigs ...os.Signal) WatcherOption {
	return func(w *Watcher) {
		w.signals = sigs
	}
}

func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(trigger string, err error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

func NewWatcher(store *Store, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:    store,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is canceled. A failed reload is logged and the
// previous policy keeps serving.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.path != "" {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return goerr.Wrap(err, "failed to create file watcher")
		}
		defer fw.Close()

		if err := fw.Add(filepath.Dir(w.path)); err != nil {
			return goerr.Wrap(err, "failed to watch config directory", goerr.V("path", w.path))
		}
		events, errs = fw.Events, fw.Errors
	}

	var sigCh chan os.Signal
	if len(w.signals) > 0 {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, w.signals...)
		defer signal.Stop(sigCh)
	}

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(w.debounce)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.From(ctx).Warn("acl_watch_error", "error", err)

		case <-pending:
			pending = nil
			w.reload(ctx, "file")

		case <-sigCh:
			w.reload(ctx, "signal")

		case <-tick:
			w.reload(ctx, "interval")
		}
	}
}

func (w *Watcher) reload(ctx context.Context, trigger string) {
	err := w.store.Reload(ctx)
	if err != nil {
		logging.From(ctx).Error("acl_reload_failed",
			"error", err,
			"trigger", trigger,
			"source", w.store.Source())
	} else {
		logging.From(ctx).Info("acl_config_reloaded",
			"trigger", trigger,
			"source", w.store.Source(),
			"notebooks", len(w.store.Notebooks()))
	}

	if w.onReload != nil {
		w.onReload(trigger, err)
	}
}
