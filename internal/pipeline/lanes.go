package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stockpix/internal/fileutil"
	"stockpix/internal/logging"
	"stockpix/internal/services"
	"stockpix/internal/stage"
)

func (m *Manager) runLane(ctx context.Context, ln *lane) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := m.nextBatch(ln)
		if err != nil {
			m.setLastError(err)
			ln.logger.Error("failed to scan stage area",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check stage directory permissions"))
			m.waitOrShutdown(ctx, m.errorRetry)
			continue
		}
		if batch == nil {
			m.waitForBatch(ctx, ln)
			continue
		}

		if err := m.processBatch(ctx, ln, *batch); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			m.waitOrShutdown(ctx, m.errorRetry)
		}
	}
}

// nextBatch returns the oldest pending CSV in the lane's input area, or nil
// when the lane is idle. Scratch files from in-flight rewrites are ignored.
func (m *Manager) nextBatch(ln *lane) (*stage.Batch, error) {
	entries, err := os.ReadDir(ln.inputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", ln.inputDir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	return &stage.Batch{Path: filepath.Join(ln.inputDir, names[0]), Name: names[0]}, nil
}

func (m *Manager) processBatch(ctx context.Context, ln *lane, batch stage.Batch) error {
	logger := ln.logger.With(logging.String(logging.FieldBatch, batch.Name))
	started := time.Now()

	if err := ln.handler.Prepare(ctx); err != nil {
		if services.IsFatal(err) {
			logger.Error("stage preconditions failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check service availability and configuration"))
		} else {
			logger.Warn("stage not ready", logging.Error(err))
		}
		return err
	}

	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	result, err := ln.handler.Execute(ctx, batch)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return err
		}
		logger.Error("stage failed; batch left in place",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stage_failed"))
		return err
	}

	// Placement happens only after the handler reported durable completion.
	if err := m.placeBatch(ln, batch, result); err != nil {
		logger.Error("batch placement failed", logging.Error(err))
		return err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(started)))
	ln.notifyNext(m)
	return nil
}

func (m *Manager) placeBatch(ln *lane, batch stage.Batch, result stage.Result) error {
	if result.OutputPath == "" {
		return fileutil.MoveFile(batch.Path, filepath.Join(ln.doneDir, batch.Name))
	}

	name := result.OutputName
	if name == "" {
		name = batch.Name
	}
	if err := fileutil.MoveFile(result.OutputPath, filepath.Join(ln.doneDir, name)); err != nil {
		return fmt.Errorf("promote rewritten batch: %w", err)
	}
	archiveDir := ln.archiveDir
	if archiveDir == "" {
		archiveDir = m.cfg.ArchiveDir()
	}
	if err := fileutil.MoveFile(batch.Path, filepath.Join(archiveDir, batch.Name)); err != nil {
		return fmt.Errorf("archive original batch: %w", err)
	}
	return nil
}

// notifyNext wakes the lane consuming this lane's done area so a promoted
// batch is picked up without waiting out a poll interval.
func (ln *lane) notifyNext(m *Manager) {
	for _, other := range m.lanes {
		if other.inputDir == ln.doneDir {
			select {
			case other.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (m *Manager) waitForBatch(ctx context.Context, ln *lane) {
	select {
	case <-ctx.Done():
	case <-ln.wake:
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// retireStage moves fully validated batches into the archive. The move
// itself is the coordinator's; there is nothing left to compute.
type retireStage struct{}

func (retireStage) Name() string                                           { return "archive" }
func (retireStage) Prepare(context.Context) error                          { return nil }
func (retireStage) Execute(context.Context, stage.Batch) (stage.Result, error) { return stage.Result{}, nil }
func (retireStage) HealthCheck(context.Context) stage.Health               { return stage.Healthy("archive") }
