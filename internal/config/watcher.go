package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/entropycollective/quiverdb/internal/logging"
)

// Watcher reloads config from disk and invokes onChange whenever fsnotify
// reports a Write or Create event for the watched path. The watch is on
// the file itself, so an editor that saves by renaming a new file over
// the old one ends the watch, and later edits are not seen.
type Watcher struct {
	path     string
	fw       *fsnotify.Watcher
	onChange func(*Config)
	log      *logging.Logger
	done     chan struct{}
}

// WatchFile starts watching path, calling onChange with a freshly
// reloaded Config on every write/create event. The caller must call
// Close to stop the watcher goroutine.
func WatchFile(path string, onChange func(*Config), log *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	if log == nil {
		log = logging.Global()
	}
	w := &Watcher{path: path, fw: fw, onChange: onChange, log: log.WithComponent("config-watcher"), done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Error(err, "reload config failed, keeping previous configuration")
				continue
			}
			w.log.Info("configuration reloaded")
			w.onChange(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "config watcher error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
