package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/farmergreg/rfsnotify"
	"github.com/mahyarmirrashed/fileorg/internal/organizer"
	log "github.com/sirupsen/logrus"
	"gopkg.in/fsnotify.v1"
)

// Watcher feeds files created under the source tree to an Organizer.
type Watcher struct {
	org     *organizer.Organizer
	watcher *rfsnotify.RWatcher
	delay   time.Duration
}

// New starts watching the organizer's source directory recursively.
func New(org *organizer.Organizer) (*Watcher, error) {
	cfg := org.Config()

	watcher, err := rfsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create watcher: %w", err)
	}
	if err := watcher.AddRecursive(cfg.Source); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("could not watch %s: %w", cfg.Source, err)
	}

	return &Watcher{org: org, watcher: watcher, delay: cfg.Delay}, nil
}

// Run handles events one at a time; it blocks until ctx is cancelled or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	log.Infof("Watching %s", filepath.ToSlash(w.org.Config().Source))

	for {
		select {
		case <-ctx.Done():
			log.Info("Watcher stopping")
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}

			// Delay addresses an issue with Windows File Explorer
			if w.delay > 0 {
				select {
				case <-time.After(w.delay):
				case <-ctx.Done():
					return nil
				}
			}

			w.handle(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("Watcher error: %v", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handle(path string) {
	_, err := w.org.ProcessPath(path)
	switch {
	case err == nil:
	case errors.Is(err, organizer.ErrOutsideSource), errors.Is(err, os.ErrNotExist):
		log.Debugf("Ignoring %s: %v", filepath.ToSlash(path), err)
	default:
		// Transfer failures were already reported by the organizer.
		log.Debugf("Handled %s with error: %v", filepath.ToSlash(path), err)
	}
}
