// Package fetch downloads source images with a bounded concurrency ceiling
// and records every outcome in the registry in fixed-size chunks.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"stockpix/internal/blobstore"
	"stockpix/internal/config"
	"stockpix/internal/identity"
	"stockpix/internal/logging"
	"stockpix/internal/registry"
)

// Summary aggregates what one scheduler run did with its URL list.
type Summary struct {
	Requested       int
	Unfetchable     int
	Duplicates      int
	AlreadyResolved int
	Downloaded      int
	Reused          int
	Failed          int
}

// Outstanding reports how many URLs the run actually scheduled.
func (s Summary) Outstanding() int {
	return s.Downloaded + s.Reused + s.Failed
}

type task struct {
	id  identity.ID
	url string
}

// Scheduler coordinates bounded parallel downloads. A single Scheduler is
// safe for sequential reuse across batches; Run must not be called
// concurrently with itself.
type Scheduler struct {
	store     *registry.Store
	blobs     *blobstore.Store
	client    *http.Client
	ceiling   int
	chunkSize int
	logger    *slog.Logger
}

// NewScheduler wires a scheduler from configuration.
func NewScheduler(cfg *config.Config, store *registry.Store, blobs *blobstore.Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		store: store,
		blobs: blobs,
		client: &http.Client{
			Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		},
		ceiling:   cfg.Fetch.Concurrency,
		chunkSize: cfg.Fetch.ChunkSize,
		logger:    logging.NewComponentLogger(logger, "fetch"),
	}
}

// Run downloads every fetchable URL in urls that the registry has not already
// resolved. Tasks are submitted in waves of chunkSize and a wave's outcomes
// are committed before the next wave starts, so a huge batch never holds more
// than one wave of work in memory and an interrupted run loses at most one
// wave of registry progress, never the blobs themselves.
func (s *Scheduler) Run(ctx context.Context, urls []string) (Summary, error) {
	summary := Summary{Requested: len(urls)}

	seen := make(map[identity.ID]struct{}, len(urls))
	var tasks []task
	for _, raw := range urls {
		normalized := identity.Normalize(raw)
		if !identity.IsFetchable(normalized) {
			summary.Unfetchable++
			continue
		}
		id := identity.NewID(normalized)
		if _, dup := seen[id]; dup {
			summary.Duplicates++
			continue
		}
		seen[id] = struct{}{}

		resolved, err := s.store.ResolvedForStage(ctx, id, registry.StageFetch)
		if err != nil {
			return summary, fmt.Errorf("check registry for %s: %w", id, err)
		}
		if resolved {
			summary.AlreadyResolved++
			continue
		}
		if err := s.store.UpsertPending(ctx, id, normalized); err != nil {
			return summary, fmt.Errorf("register %s: %w", id, err)
		}
		tasks = append(tasks, task{id: id, url: normalized})
	}

	if len(tasks) == 0 {
		return summary, nil
	}

	s.logger.Info("starting downloads",
		logging.Int("scheduled", len(tasks)),
		logging.Int("skipped_resolved", summary.AlreadyResolved),
		logging.Int("concurrency", s.ceiling))

	sem := make(chan struct{}, s.ceiling)
	for start := 0; start < len(tasks); start += s.chunkSize {
		wave := tasks[start:min(start+s.chunkSize, len(tasks))]

		results := make(chan outcome, len(wave))
		var wg sync.WaitGroup
		for _, tk := range wave {
			wg.Add(1)
			go func(tk task) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					results <- outcome{FetchOutcome: registry.FetchOutcome{ID: tk.id, SourceURL: tk.url}}
					return
				}
				defer func() { <-sem }()
				results <- s.fetchOne(ctx, tk)
			}(tk)
		}
		wg.Wait()
		close(results)

		chunk := make([]registry.FetchOutcome, 0, len(wave))
		for res := range results {
			switch {
			case res.reused:
				summary.Reused++
			case res.Success:
				summary.Downloaded++
			default:
				summary.Failed++
			}
			chunk = append(chunk, res.FetchOutcome)
		}
		if err := s.store.RecordFetchOutcomes(ctx, chunk); err != nil {
			return summary, fmt.Errorf("commit outcome chunk: %w", err)
		}
	}

	s.logger.Info("downloads finished",
		logging.Int("downloaded", summary.Downloaded),
		logging.Int("reused", summary.Reused),
		logging.Int("failed", summary.Failed))
	return summary, ctx.Err()
}

type outcome struct {
	registry.FetchOutcome
	reused bool
}

func (s *Scheduler) fetchOne(ctx context.Context, tk task) outcome {
	// A blob left behind by an interrupted run counts as done. The GET is
	// skipped but the outcome is still recorded so the registry catches up.
	if s.blobs.Exists(tk.id) {
		return outcome{
			FetchOutcome: registry.FetchOutcome{
				ID:          tk.id,
				SourceURL:   tk.url,
				Success:     true,
				StoragePath: s.blobs.RelativePath(tk.id),
			},
			reused: true,
		}
	}

	failure := registry.FetchOutcome{ID: tk.id, SourceURL: tk.url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tk.url, nil)
	if err != nil {
		s.logger.Warn("invalid request", logging.String(logging.FieldURLID, shortID(tk.id)), logging.Error(err))
		return outcome{FetchOutcome: failure}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("download failed", logging.String(logging.FieldURLID, shortID(tk.id)), logging.Error(err))
		return outcome{FetchOutcome: failure}
	}
	defer resp.Body.Close()

	failure.HTTPCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("download rejected",
			logging.String(logging.FieldURLID, shortID(tk.id)),
			logging.Int("http_code", resp.StatusCode))
		return outcome{FetchOutcome: failure}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Debug("download truncated", logging.String(logging.FieldURLID, shortID(tk.id)), logging.Error(err))
		return outcome{FetchOutcome: failure}
	}
	storagePath, err := s.blobs.Write(tk.id, data)
	if err != nil {
		s.logger.Warn("blob write failed", logging.String(logging.FieldURLID, shortID(tk.id)), logging.Error(err))
		return outcome{FetchOutcome: failure}
	}

	return outcome{
		FetchOutcome: registry.FetchOutcome{
			ID:          tk.id,
			SourceURL:   tk.url,
			Success:     true,
			HTTPCode:    resp.StatusCode,
			StoragePath: storagePath,
		},
	}
}

func shortID(id identity.ID) string {
	if len(id) > 12 {
		return string(id[:12])
	}
	return string(id)
}
