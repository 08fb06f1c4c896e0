package transform

import (
	"context"
	"fmt"
	"log/slog"

	"stockpix/internal/blobstore"
	"stockpix/internal/catalog"
	"stockpix/internal/config"
	"stockpix/internal/identity"
	"stockpix/internal/imaging"
	"stockpix/internal/logging"
	"stockpix/internal/registry"
	"stockpix/internal/services/validator"
	"stockpix/internal/stage"
)

const progressEvery = 100

// VerifyStage runs every row of a simplified batch through the visual
// validator and records verdicts in the registry. The batch file is not
// rewritten; rows already holding a verdict are skipped, which makes an
// interrupted pass resumable.
type VerifyStage struct {
	store     *registry.Store
	blobs     *blobstore.Store
	validator validator.Service
	workers   int
	flush     int
	logger    *slog.Logger
}

// NewVerifyStage wires the validation stage from configuration.
func NewVerifyStage(cfg *config.Config, store *registry.Store, blobs *blobstore.Store, svc validator.Service, logger *slog.Logger) *VerifyStage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &VerifyStage{
		store:     store,
		blobs:     blobs,
		validator: svc,
		workers:   cfg.Validator.Workers,
		flush:     cfg.Validator.FlushEvery,
		logger:    logging.NewComponentLogger(logger, "validate"),
	}
}

func (s *VerifyStage) Name() string { return "validate" }

// Prepare fails the pass up front when the validator is down. Scanning a
// batch against a dead service would mark nothing and spin.
func (s *VerifyStage) Prepare(ctx context.Context) error {
	return s.validator.Health(ctx)
}

func (s *VerifyStage) Execute(ctx context.Context, batch stage.Batch) (stage.Result, error) {
	parsed, err := catalog.Read(batch.Path)
	if err != nil {
		return stage.Result{}, fmt.Errorf("read batch %s: %w", batch.Name, err)
	}

	batcher := registry.NewValidationBatcher(s.store, s.flush)
	tracker := NewTracker(s.logger, batch.Name, len(parsed.Rows), progressEvery)

	ForEach(ctx, s.workers, parsed.Rows, func(ctx context.Context, row catalog.Row) {
		s.verifyRow(ctx, row, batcher, tracker)
	})
	if err := batcher.Flush(ctx); err != nil {
		return stage.Result{}, fmt.Errorf("flush verdicts for %s: %w", batch.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return stage.Result{}, err
	}

	counts := tracker.Snapshot()
	s.logger.Info("batch verified",
		logging.String(logging.FieldBatch, batch.Name),
		logging.String("rows", logging.FormatCount(len(parsed.Rows))),
		logging.String("accepted", logging.FormatCount(counts.Accepted)),
		logging.String("rejected", logging.FormatCount(counts.Rejected)),
		logging.String("skipped", logging.FormatCount(counts.Skipped)),
		logging.Int("missing", counts.Missing),
		logging.Int("errors", counts.Errors))
	return stage.Result{}, nil
}

func (s *VerifyStage) verifyRow(ctx context.Context, row catalog.Row, batcher *registry.ValidationBatcher, tracker *Tracker) {
	url := identity.Normalize(catalog.PrimaryURL(row[catalog.OutImages]))
	if url == "" {
		tracker.Missing()
		return
	}
	id := identity.NewID(url)

	resolved, err := s.store.ResolvedForStage(ctx, id, registry.StageValidate)
	if err != nil {
		tracker.Errored()
		s.logger.Warn("registry lookup failed", logging.String(logging.FieldURLID, string(id[:8])), logging.Error(err))
		return
	}
	if resolved {
		tracker.Skipped()
		return
	}

	if !s.blobs.Exists(id) {
		// Fetch never landed this one; nothing to show the validator.
		tracker.Missing()
		return
	}
	blob, err := s.blobs.Read(id)
	if err != nil {
		tracker.Errored()
		s.logger.Warn("blob read failed", logging.String(logging.FieldURLID, string(id[:8])), logging.Error(err))
		return
	}
	payload, err := imaging.NormalizeForVerification(blob)
	if err != nil {
		tracker.Errored()
		s.logger.Warn("image unreadable", logging.String(logging.FieldURLID, string(id[:8])), logging.Error(err))
		return
	}

	verdict, err := s.validator.Verify(ctx, payload, row[catalog.OutTitle], row[catalog.OutCategory])
	if err != nil {
		// No verdict reached; the row stays unresolved for the next pass.
		tracker.Errored()
		s.logger.Debug("verification failed", logging.String(logging.FieldURLID, string(id[:8])), logging.Error(err))
		return
	}
	if err := batcher.Add(ctx, id, verdict); err != nil {
		tracker.Errored()
		s.logger.Warn("verdict commit failed", logging.String(logging.FieldURLID, string(id[:8])), logging.Error(err))
		return
	}
	if verdict.IsValid {
		tracker.Accepted()
	} else {
		tracker.Rejected()
	}
}

func (s *VerifyStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.validator.Health(ctx); err != nil {
		return stage.Unhealthy("validate", err.Error())
	}
	return stage.Healthy("validate")
}
