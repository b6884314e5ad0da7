package app

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay quiet before a change is
// reported. Editors often write a file in several steps.
const DefaultSettle = 200 * time.Millisecond

// FileWatcher watches a single file and triggers a callback when it is
// written or replaced. Callbacks run on their own goroutine, one at a time,
// so a callback may Stop the watcher or wait on locks held by a caller of
// Stop.
type FileWatcher struct {
	path     string
	settle   time.Duration
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	done     chan struct{}
	pending  chan struct{}
	once     sync.Once
	onChange func(path string)
}

// NewFileWatcher creates a watcher for path. The parent directory is watched
// so that files replaced by rename are followed.
func NewFileWatcher(path string, settle time.Duration) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &FileWatcher{
		path:    abs,
		settle:  settle,
		watcher: w,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(chan struct{}, 1),
	}, nil
}

// Path returns the watched file.
func (fw *FileWatcher) Path() string {
	return fw.path
}

// OnChange sets the callback invoked after the file changed. Set it before
// Start.
func (fw *FileWatcher) OnChange(callback func(path string)) {
	fw.onChange = callback
}

// Start begins watching in a background goroutine.
func (fw *FileWatcher) Start() {
	go fw.watchLoop()
	go fw.callLoop()
}

// Stop stops watching and releases the watch. It does not wait for a
// callback that is already running, and drops a change still queued.
func (fw *FileWatcher) Stop() {
	fw.once.Do(func() {
		close(fw.stopCh)
		fw.watcher.Close()
	})
	<-fw.done
}

func (fw *FileWatcher) watchLoop() {
	defer close(fw.done)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-fw.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(fw.settle)
			} else {
				timer.Reset(fw.settle)
			}
			fire = timer.C
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watch: %v", err)
		case <-fire:
			fire = nil
			select {
			case fw.pending <- struct{}{}:
			default:
				// A change is already queued.
			}
		}
	}
}

func (fw *FileWatcher) callLoop() {
	for {
		select {
		case <-fw.stopCh:
			return
		case <-fw.pending:
			select {
			case <-fw.stopCh:
				return
			default:
			}
			if fw.onChange != nil {
				fw.onChange(fw.path)
			}
		}
	}
}
