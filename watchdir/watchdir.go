// Package watchdir loads G-code programs as they are written into a
// directory.
package watchdir

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mastercactapus/gsend/logging"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long a file must be quiet before it is loaded.
const DefaultDebounce = 250 * time.Millisecond

// Extensions lists the program file suffixes that are picked up.
var Extensions = []string{".nc", ".gcode", ".ngc", ".gc", ".tap", ".cnc"}

// IsProgram reports whether name looks like a program file.
func IsProgram(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadFunc receives the base name and contents of a written program.
type LoadFunc func(name, text string)

// Watcher calls a LoadFunc for each program written to its directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	load     LoadFunc
	logger   *logrus.Entry

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New watches dir. Writes to the same file within debounce of each other
// are loaded once.
func New(dir string, debounce time.Duration, load LoadFunc) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:  w,
		dir:      dir,
		debounce: debounce,
		load:     load,
		logger:   logging.NewLogger("watchdir").WithField("dir", dir),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stopTimers()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !IsProgram(event.Name) {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("watch")
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.loadFile(path)
	})
}

func (w *Watcher) loadFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.WithError(err).Warnf("read %s", filepath.Base(path))
		return
	}
	name := filepath.Base(path)
	w.logger.Infof("loading %s", name)
	w.load(name, string(data))
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
