package registry

import (
	"context"
	"fmt"
)

// The table name and validation score columns match the feed-processing
// schema this registry replaced, so existing databases keep working.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS downloads (
    id                TEXT PRIMARY KEY,
    source_url        TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'PENDING',
    storage_path      TEXT,
    http_code         INTEGER,
    attempts          INTEGER NOT NULL DEFAULT 0,
    last_attempt_time TEXT,
    is_valid          INTEGER,
    confidence        REAL,
    score_category    REAL,
    score_product     REAL,
    score_watermark   REAL,
    score_placeholder REAL,
    score_quality     REAL
);

CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
`

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply registry schema: %w", err)
	}
	return nil
}
