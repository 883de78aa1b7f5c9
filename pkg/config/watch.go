package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/breeswish/tikv/pkg/logging"
)

// reloadDebounce coalesces the event bursts editors produce per save.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads the configuration file on change and hands every valid
// new configuration to a callback. Invalid or unreadable files are logged
// and skipped, keeping the previous configuration in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *logging.Logger
	onChange func(*Config)
	stop     chan struct{}
}

// Watch starts watching path. The watch is on the containing directory so
// that atomic rename-style rewrites are observed too.
func Watch(path string, logger *logging.Logger, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		path:     path,
		watcher:  fsw,
		logger:   logger.WithComponent("config-watcher"),
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var pending *time.Timer
	var pendingC <-chan time.Time
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(reloadDebounce)
				pendingC = pending.C
			} else {
				pending.Reset(reloadDebounce)
			}
		case <-pendingC:
			pending = nil
			pendingC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("watch error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload() {
	config, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Warnf("ignoring config reload: %v", err)
		return
	}
	w.logger.Info("configuration reloaded", map[string]interface{}{"path": w.path})
	w.onChange(config)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}
