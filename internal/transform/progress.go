package transform

import (
	"log/slog"
	"sync"

	"stockpix/internal/logging"
)

// Counts is a snapshot of tracker state.
type Counts struct {
	Processed int
	Accepted  int
	Rejected  int
	Skipped   int
	Missing   int
	Errors    int
}

// Tracker accumulates per-row outcomes and logs progress at a fixed cadence.
// All methods are safe for concurrent use from pool workers.
type Tracker struct {
	logger *slog.Logger
	batch  string
	total  int
	every  int

	mu     sync.Mutex
	counts Counts
}

// NewTracker builds a tracker for one batch of total rows, logging every
// `every` processed rows.
func NewTracker(logger *slog.Logger, batch string, total, every int) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if every < 1 {
		every = 1
	}
	return &Tracker{logger: logger, batch: batch, total: total, every: every}
}

func (t *Tracker) Accepted() { t.bump(func(c *Counts) { c.Accepted++ }) }
func (t *Tracker) Rejected() { t.bump(func(c *Counts) { c.Rejected++ }) }
func (t *Tracker) Skipped()  { t.bump(func(c *Counts) { c.Skipped++ }) }
func (t *Tracker) Missing()  { t.bump(func(c *Counts) { c.Missing++ }) }
func (t *Tracker) Errored()  { t.bump(func(c *Counts) { c.Errors++ }) }

// Snapshot returns the current counts.
func (t *Tracker) Snapshot() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}

func (t *Tracker) bump(apply func(*Counts)) {
	t.mu.Lock()
	apply(&t.counts)
	t.counts.Processed++
	processed := t.counts.Processed
	skipped := t.counts.Skipped
	t.mu.Unlock()

	if processed%t.every != 0 {
		return
	}
	percent := 0.0
	if t.total > 0 {
		percent = float64(processed) / float64(t.total) * 100
	}
	t.logger.Info("progress",
		logging.String(logging.FieldBatch, t.batch),
		logging.String("processed", logging.FormatCount(processed)),
		logging.String("of", logging.FormatCount(t.total)),
		logging.String("skipped", logging.FormatCount(skipped)),
		logging.Float64("percent", percent))
}
