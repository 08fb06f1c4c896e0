package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"stockpix/internal/logging"
)

// dirWatcher wakes lanes when files land in their input areas, cutting the
// idle latency below the poll interval. Polling stays on as the fallback;
// missed events only cost one poll cycle.
type dirWatcher struct {
	watcher    *fsnotify.Watcher
	lanesByDir map[string][]*lane
	logger     *slog.Logger
}

func newDirWatcher(lanes []*lane, logger *slog.Logger) (*dirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	d := &dirWatcher{
		watcher:    watcher,
		lanesByDir: make(map[string][]*lane),
		logger:     logger,
	}
	for _, ln := range lanes {
		dir := filepath.Clean(ln.inputDir)
		if _, seen := d.lanesByDir[dir]; !seen {
			if err := watcher.Add(dir); err != nil {
				watcher.Close()
				return nil, err
			}
		}
		d.lanesByDir[dir] = append(d.lanesByDir[dir], ln)
	}
	return d, nil
}

func (d *dirWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			for _, ln := range d.lanesByDir[filepath.Dir(filepath.Clean(event.Name))] {
				select {
				case ln.wake <- struct{}{}:
				default:
				}
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("stage watcher error", logging.Error(err))
		}
	}
}

func (d *dirWatcher) close() {
	_ = d.watcher.Close()
}
