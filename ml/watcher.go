package ml

import (
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ModelWatcher reloads a model file whenever it is rewritten and hands the
// freshly built model to a callback. The callback is expected to publish
// the new model atomically (e.g. swap it into a registry); the watcher
// never mutates a live model in place.
type ModelWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	done    chan struct{}
}

// WatchModel starts watching path. onLoad runs on every successful reload;
// onError on failed ones (either may be nil).
func WatchModel(path string, onLoad func(*RuleListModel), onError func(error)) (*ModelWatcher, error) {
	if path == "" {
		return nil, errors.New("model path is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and atomic writers replace the file,
	// which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &ModelWatcher{watcher: watcher, path: path, done: make(chan struct{})}
	go w.loop(onLoad, onError)
	return w, nil
}

func (w *ModelWatcher) loop(onLoad func(*RuleListModel), onError func(error)) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			model, err := LoadModel(w.path)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onLoad != nil {
				onLoad(model)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

// Close stops the watcher.
func (w *ModelWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
