package observer

import (
	"context"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback receives the artifacts that changed since the last flush
type ChangeCallback func(changed []Artifact)

// RunWatcher monitors a run directory's logs/ and results/ for writes
type RunWatcher struct {
	watcher  *fsnotify.Watcher
	runDir   string
	callback ChangeCallback
	debounce time.Duration
	verbose  bool

	// Debounce state, keyed by path
	pending map[string]Artifact
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunWatcher creates a watcher for runDir
func NewRunWatcher(runDir string, callback ChangeCallback) (*RunWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, sub := range []string{"logs", "results"} {
		if err := watcher.Add(filepath.Join(runDir, sub)); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	return &RunWatcher{
		watcher:  watcher,
		runDir:   runDir,
		callback: callback,
		debounce: 250 * time.Millisecond,
		pending:  make(map[string]Artifact),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce sets how long changes are collected before the callback runs
func (rw *RunWatcher) SetDebounce(d time.Duration) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.debounce = d
}

// SetVerbose enables logging of watcher errors
func (rw *RunWatcher) SetVerbose(v bool) {
	rw.verbose = v
}

// Start begins watching for file changes
func (rw *RunWatcher) Start(ctx context.Context) {
	ctx, rw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(rw.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-rw.watcher.Events:
				if !ok {
					return
				}
				rw.handleEvent(event)
			case err, ok := <-rw.watcher.Errors:
				if !ok {
					return
				}
				if rw.verbose {
					log.Printf("[observer] watch error: %v", err)
				}
			}
		}
	}()
}

// Stop stops watching and flushes pending changes
func (rw *RunWatcher) Stop() {
	if rw.cancel != nil {
		rw.cancel()
		<-rw.done
	}
	rw.watcher.Close()

	rw.mu.Lock()
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.mu.Unlock()
	rw.flush()
}

func (rw *RunWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	a, ok := ParseArtifact(event.Name)
	if !ok {
		return
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pending[a.Path] = a
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.timer = time.AfterFunc(rw.debounce, rw.flush)
}

func (rw *RunWatcher) flush() {
	rw.mu.Lock()
	pending := rw.pending
	rw.pending = make(map[string]Artifact)
	rw.mu.Unlock()

	if rw.callback == nil || len(pending) == 0 {
		return
	}

	changed := make([]Artifact, 0, len(pending))
	for _, a := range pending {
		if a.stat() {
			changed = append(changed, a)
		}
	}
	if len(changed) == 0 {
		return
	}
	sort.Slice(changed, func(i, j int) bool {
		if changed[i].Batch != changed[j].Batch {
			return changed[i].Batch < changed[j].Batch
		}
		return changed[i].Kind < changed[j].Kind
	})
	rw.callback(changed)
}
