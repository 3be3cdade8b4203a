package watcher

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/andi/stepline/backend/config"
	"github.com/fsnotify/fsnotify"
)

// Reload receives the freshly parsed configuration after the file changes.
type Reload func(*config.Config)

// Watcher monitors the configuration file and hot-reloads tunables. Editors
// tend to fire several write events per save, so reloads are debounced.
type Watcher struct {
	path     string
	onReload Reload
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopped  bool

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// New creates a config file watcher.
func New(path string, onReload Reload) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     path,
		onReload: onReload,
		watcher:  fsWatcher,
		stopChan: make(chan struct{}),
	}, nil
}

// Start starts watching the config file's directory.
func (w *Watcher) Start() error {
	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go dead.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.processEvents()

	log.Printf("Config watcher started for %s", w.path)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopChan)
	w.watcher.Close()
	w.wg.Wait()
	log.Println("Config watcher stopped")
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Config watcher error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(500*time.Millisecond, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := config.LoadFromEnv(w.path)
	if err != nil {
		log.Printf("Warning: config reload failed, keeping previous values: %v", err)
		return
	}
	log.Printf("Config reloaded from %s", w.path)
	w.onReload(cfg)
}
