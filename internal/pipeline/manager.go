// Package pipeline coordinates batch movement through the stage areas. Each
// stage runs on its own lane goroutine; handlers process batches in place
// and the manager alone relocates files, so a crash can never strand a batch
// between directories in a half-moved state.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockpix/internal/config"
	"stockpix/internal/logging"
	"stockpix/internal/stage"
)

// StageSet bundles the concrete handlers the manager orchestrates.
type StageSet struct {
	Fetch    stage.Handler
	Classify stage.Handler
	Verify   stage.Handler
}

type lane struct {
	handler    stage.Handler
	inputDir   string
	doneDir    string
	archiveDir string
	logger     *slog.Logger
	wake       chan struct{}
}

// Manager owns the lane goroutines and all batch placement.
type Manager struct {
	cfg          *config.Config
	logger       *slog.Logger
	sessionID    string
	pollInterval time.Duration
	errorRetry   time.Duration
	lanes        []*lane

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error

	watcher *dirWatcher
}

// NewManager constructs a pipeline manager over the stage areas of cfg.
func NewManager(cfg *config.Config, stages StageSet, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	sessionID := uuid.NewString()
	logger = logger.With(logging.String(logging.FieldSessionID, sessionID))

	m := &Manager{
		cfg:          cfg,
		logger:       logger,
		sessionID:    sessionID,
		pollInterval: time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
	}
	m.lanes = []*lane{
		{handler: stages.Fetch, inputDir: cfg.InboxDir(), doneDir: cfg.FetchedDir()},
		{handler: stages.Classify, inputDir: cfg.FetchedDir(), doneDir: cfg.ClassifiedDir(), archiveDir: cfg.RawDir()},
		{handler: stages.Verify, inputDir: cfg.ClassifiedDir(), doneDir: cfg.ValidatedDir()},
		{handler: retireStage{}, inputDir: cfg.ValidatedDir(), doneDir: cfg.ArchiveDir()},
	}
	for _, ln := range m.lanes {
		ln.logger = logger.With(logging.String(logging.FieldStage, ln.handler.Name()))
		ln.wake = make(chan struct{}, 1)
	}
	return m
}

// SessionID identifies this manager run in log output.
func (m *Manager) SessionID() string { return m.sessionID }

// Start launches one goroutine per lane.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if m.cfg.Workflow.WatchInbox {
		watcher, err := newDirWatcher(m.lanes, m.logger)
		if err != nil {
			m.logger.Warn("stage watcher unavailable; lanes fall back to polling", logging.Error(err))
		} else {
			m.watcher = watcher
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				watcher.run(runCtx)
			}()
		}
	}

	m.wg.Add(len(m.lanes))
	for _, ln := range m.lanes {
		go func(ln *lane) {
			defer m.wg.Done()
			m.runLane(runCtx, ln)
		}(ln)
	}
	m.logger.Info("pipeline started", logging.Int("lanes", len(m.lanes)))
	return nil
}

// Stop terminates background processing and waits for lanes to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	if m.watcher != nil {
		m.watcher.close()
		m.watcher = nil
	}
	m.logger.Info("pipeline stopped")
}

// RunOnce drains every lane in order and returns. A batch that fails stops
// draining its lane so the run cannot spin on it; the batch stays in place
// for a later run.
func (m *Manager) RunOnce(ctx context.Context) error {
	for _, ln := range m.lanes {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, err := m.nextBatch(ln)
			if err != nil {
				return err
			}
			if batch == nil {
				break
			}
			if err := m.processBatch(ctx, ln, *batch); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				m.setLastError(err)
				break
			}
		}
	}
	return nil
}

// Health reports the readiness of every stage.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(m.lanes))
	for _, ln := range m.lanes {
		out = append(out, ln.handler.HealthCheck(ctx))
	}
	return out
}

// LastError returns the most recent lane failure, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
