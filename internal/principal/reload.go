package principal

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches the directory file and reloads it after writes settle.
type Reloader struct {
	watcher *fsnotify.Watcher
	dir     *Directory
	logger  *zap.Logger
}

func NewReloader(dir *Directory, logger *zap.Logger) (*Reloader, error) {
	if dir.Path() == "" {
		return nil, fmt.Errorf("principal directory has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir.Path()); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir.Path(), err)
	}
	return &Reloader{watcher: watcher, dir: dir, logger: logger}, nil
}

// Run blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := r.dir.Reload(); err != nil {
						r.logger.Warn("principal reload failed", zap.Error(err))
						return
					}
					r.logger.Info("principal directory reloaded", zap.String("path", r.dir.Path()))
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
