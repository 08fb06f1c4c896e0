package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"stockpix/internal/config"
	"stockpix/internal/identity"
	"stockpix/internal/services"
)

// Store is the durable per-URL progress ledger backed by SQLite. It is the
// single source of truth for "has this item been processed". Mutations are
// serialized through writeMu; reads may run concurrently.
type Store struct {
	db               *sql.DB
	path             string
	maxFetchAttempts int

	writeMu sync.Mutex
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the registry database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.RegistryPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, maxFetchAttempts: cfg.Fetch.MaxAttempts}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Lookup fetches an entry by identifier; nil when absent.
func (s *Store) Lookup(ctx context.Context, id identity.ID) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM downloads WHERE id = ?`, string(id))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entry: %w", err)
	}
	return entry, nil
}

// UpsertPending creates an entry in PENDING if absent; no-op when present.
func (s *Store) UpsertPending(ctx context.Context, id identity.ID, sourceURL string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO downloads (id, source_url, status) VALUES (?, ?, ?)`,
			string(id), sourceURL, StatusPending,
		)
		return err
	})
}

// RecordFetchOutcomes commits one chunk of download results in a single
// transaction. Unlike MarkValidation, an absent entry is created rather than
// rejected: a blob can exist before any registry row does (crash between
// download and commit), and the fetch commit is how the ledger catches up.
// Attempts increment on every outcome.
func (s *Store) RecordFetchOutcomes(ctx context.Context, outcomes []FetchOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin fetch commit: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		for _, outcome := range outcomes {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT OR IGNORE INTO downloads (id, source_url, status) VALUES (?, ?, ?)`,
				string(outcome.ID), outcome.SourceURL, StatusPending,
			); err != nil {
				return fmt.Errorf("upsert pending %s: %w", shortID(outcome.ID), err)
			}

			status := StatusFetchFailed
			if outcome.Success {
				status = StatusFetched
			}
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE downloads
                 SET status = ?, storage_path = ?, http_code = ?,
                     attempts = attempts + 1, last_attempt_time = ?
                 WHERE id = ?`,
				status,
				nullableString(outcome.StoragePath),
				nullableInt(outcome.HTTPCode),
				now,
				string(outcome.ID),
			); err != nil {
				return fmt.Errorf("record fetch outcome %s: %w", shortID(outcome.ID), err)
			}
		}
		return tx.Commit()
	})
}

// MarkValidation records a validation verdict. The entry must already exist;
// an unknown identifier indicates a logic fault and returns ErrNotFound.
func (s *Store) MarkValidation(ctx context.Context, id identity.ID, v Validation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.markValidationLocked(ctx, s.db, id, v)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) markValidationLocked(ctx context.Context, db execer, id identity.ID, v Validation) error {
	status := StatusValidationFailed
	if v.IsValid {
		status = StatusValidated
	}
	res, err := db.ExecContext(
		ctx,
		`UPDATE downloads
         SET status = ?, is_valid = ?, confidence = ?,
             score_category = ?, score_product = ?, score_watermark = ?,
             score_placeholder = ?, score_quality = ?
         WHERE id = ?`,
		status,
		boolToInt(v.IsValid),
		v.Confidence,
		v.Scores.CategoryMatch,
		v.Scores.ProductMatch,
		v.Scores.WatermarkText,
		v.Scores.PlaceholderOrError,
		v.Scores.LowQuality,
		string(id),
	)
	if err != nil {
		return fmt.Errorf("mark validation %s: %w", shortID(id), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "registry", "mark validation", "no entry for id "+shortID(id), nil)
	}
	return nil
}

// ResolvedForStage reports whether the registry already records a terminal
// outcome for this item at this stage, letting stages skip finished work.
// FETCH_FAILED stays retryable until the configured attempt cap (if any).
func (s *Store) ResolvedForStage(ctx context.Context, id identity.ID, stage Stage) (bool, error) {
	var query string
	args := []any{string(id)}
	switch stage {
	case StageFetch:
		query = `SELECT EXISTS(
            SELECT 1 FROM downloads
            WHERE id = ? AND (
                status IN (?, ?, ?)
                OR (status = ? AND ? > 0 AND attempts >= ?)
            ))`
		args = append(args,
			StatusFetched, StatusValidated, StatusValidationFailed,
			StatusFetchFailed, s.maxFetchAttempts, s.maxFetchAttempts,
		)
	case StageValidate:
		query = `SELECT EXISTS(SELECT 1 FROM downloads WHERE id = ? AND is_valid IS NOT NULL)`
	default:
		return false, fmt.Errorf("unknown stage %q", stage)
	}

	var resolved bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&resolved); err != nil {
		return false, fmt.Errorf("resolved for %s: %w", stage, err)
	}
	return resolved, nil
}

// CollectStats returns entry counts grouped by status.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM downloads GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("registry stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByStatus: make(map[Status]int)}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

const entryColumns = "id, source_url, status, storage_path, http_code, attempts, last_attempt_time, is_valid, confidence, score_category, score_product, score_watermark, score_placeholder, score_quality"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id          string
		sourceURL   string
		statusStr   string
		storagePath sql.NullString
		httpCode    sql.NullInt64
		attempts    int
		lastAttempt sql.NullString
		isValid     sql.NullInt64
		confidence  sql.NullFloat64
		scCategory  sql.NullFloat64
		scProduct   sql.NullFloat64
		scWatermark sql.NullFloat64
		scPlacehold sql.NullFloat64
		scQuality   sql.NullFloat64
	)

	if err := scanner.Scan(
		&id, &sourceURL, &statusStr, &storagePath, &httpCode, &attempts,
		&lastAttempt, &isValid, &confidence, &scCategory, &scProduct,
		&scWatermark, &scPlacehold, &scQuality,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:          identity.ID(id),
		SourceURL:   sourceURL,
		Status:      Status(statusStr),
		StoragePath: storagePath.String,
		HTTPCode:    int(httpCode.Int64),
		Attempts:    attempts,
	}
	if lastAttempt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastAttempt.String); err == nil {
			entry.LastAttempt = t
		}
	}
	if isValid.Valid {
		entry.Validation = &Validation{
			IsValid:    isValid.Int64 != 0,
			Confidence: confidence.Float64,
			Scores: DetectorScores{
				CategoryMatch:      scCategory.Float64,
				ProductMatch:       scProduct.Float64,
				WatermarkText:      scWatermark.Float64,
				PlaceholderOrError: scPlacehold.Float64,
				LowQuality:         scQuality.Float64,
			},
		}
	}
	return entry, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func shortID(id identity.ID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}
