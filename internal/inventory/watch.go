package inventory

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ReloadCallback receives the re-parsed inventory after the file changed
type ReloadCallback func(inv *Inventory)

// Watcher reloads a seed file when it changes on disk. A file that no
// longer parses is logged and skipped; the callback only sees valid
// inventories.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	callback ReloadCallback
	debounce time.Duration
	log      *log.Entry

	mu    sync.Mutex
	timer *time.Timer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher watches path. The parent directory is watched so editors that
// replace the file on save are picked up too.
func NewWatcher(path string, callback ReloadCallback) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve inventory path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	return &Watcher{
		path:     abs,
		watcher:  watcher,
		callback: callback,
		debounce: 300 * time.Millisecond,
		log:      log.WithFields(log.Fields{"component": "inventory", "path": abs}),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce sets how long to wait for writes to settle before reloading
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.WithError(err).Warn("watch error")
			}
		}
	}()
}

// Stop stops watching and waits for the event loop to exit
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
	if w.cancel != nil {
		<-w.done
	}

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	inv, err := Load(w.path)
	if err != nil {
		w.log.WithError(err).Warn("inventory reload skipped")
		return
	}
	w.log.WithField("bots", len(inv.Bots)).Info("inventory changed")
	if w.callback != nil {
		w.callback(inv)
	}
}
