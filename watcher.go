package main

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// inputDebounce coalesces the burst of events editors emit for one save
const inputDebounce = 250 * time.Millisecond

// InputWatcher calls onChange after the watched file is written or replaced.
// The parent directory is watched so atomic renames are seen.
type InputWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func()
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewInputWatcher creates a watcher for path
func NewInputWatcher(path string, onChange func()) (*InputWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	return &InputWatcher{
		watcher:  watcher,
		path:     abs,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching
func (iw *InputWatcher) Start() error {
	dir := filepath.Dir(iw.path)
	if err := iw.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	log.Printf("[WATCH] Watching %s", iw.path)

	iw.wg.Add(1)
	go iw.processEvents()
	return nil
}

// Stop stops the watcher and waits for the event loop to exit
func (iw *InputWatcher) Stop() error {
	close(iw.done)
	err := iw.watcher.Close()
	iw.wg.Wait()
	return err
}

func (iw *InputWatcher) processEvents() {
	defer iw.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != iw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Printf("[WATCH] %s: %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(inputDebounce)
			} else {
				timer.Reset(inputDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			iw.onChange()

		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[WATCH] Watcher error: %v", err)

		case <-iw.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
