package transform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"stockpix/internal/catalog"
	"stockpix/internal/config"
	"stockpix/internal/logging"
	"stockpix/internal/services/classifier"
	"stockpix/internal/stage"
)

const simplifiedSuffix = "-simplificado.csv"

// ClassifyStage rewrites a fetched batch into its simplified form: variant
// attributes merged, HTML bodies cleaned, categories attached, one image URL
// per row. The rewritten file is handed to the coordinator; the original is
// archived.
type ClassifyStage struct {
	classifier classifier.Service
	workers    int
	logger     *slog.Logger
}

// NewClassifyStage wires the classify stage from configuration.
func NewClassifyStage(cfg *config.Config, svc classifier.Service, logger *slog.Logger) *ClassifyStage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ClassifyStage{
		classifier: svc,
		workers:    cfg.Classifier.Workers,
		logger:     logging.NewComponentLogger(logger, "classify"),
	}
}

func (s *ClassifyStage) Name() string { return "classify" }

func (s *ClassifyStage) Prepare(context.Context) error { return nil }

func (s *ClassifyStage) Execute(ctx context.Context, batch stage.Batch) (stage.Result, error) {
	parsed, err := catalog.Read(batch.Path)
	if err != nil {
		return stage.Result{}, fmt.Errorf("read batch %s: %w", batch.Name, err)
	}

	out, err := parsed.Simplify(func(products []catalog.ProductText) []string {
		return Map(ctx, s.workers, products, func(ctx context.Context, p catalog.ProductText) string {
			return s.classifier.Classify(ctx, p.Title, p.Description, p.BodySnippet)
		})
	})
	if err != nil {
		return stage.Result{}, fmt.Errorf("simplify batch %s: %w", batch.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return stage.Result{}, err
	}

	classified := 0
	for _, row := range out.Rows {
		if row[catalog.OutCategory] != "" {
			classified++
		}
	}
	s.logger.Info("batch simplified",
		logging.String(logging.FieldBatch, batch.Name),
		logging.Int("rows_in", len(parsed.Rows)),
		logging.Int("rows_out", len(out.Rows)),
		logging.Int("categorized", classified))

	// Written next to the input; the coordinator promotes it.
	tmpPath := batch.Path + ".simplified.tmp"
	if err := out.Write(tmpPath); err != nil {
		return stage.Result{}, fmt.Errorf("write simplified batch %s: %w", batch.Name, err)
	}
	return stage.Result{
		OutputPath: tmpPath,
		OutputName: strings.TrimSuffix(batch.Name, ".csv") + simplifiedSuffix,
	}, nil
}

func (s *ClassifyStage) HealthCheck(context.Context) stage.Health {
	// The classifier is advisory; a down service degrades categories to
	// empty rather than blocking the lane.
	return stage.Healthy("classify")
}
