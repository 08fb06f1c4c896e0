package registry

import (
	"context"
	"fmt"
	"sync"

	"stockpix/internal/identity"
)

// ValidationBatcher accumulates validation verdicts and flushes them to the
// store in one transaction every flushEvery results, bounding registry write
// amplification during large validation runs. The unflushed window is the
// replay cost after a crash: those items are simply re-validated.
type ValidationBatcher struct {
	store      *Store
	flushEvery int

	mu      sync.Mutex
	pending []pendingValidation
}

type pendingValidation struct {
	id identity.ID
	v  Validation
}

// NewValidationBatcher constructs a batcher flushing every flushEvery adds.
func NewValidationBatcher(store *Store, flushEvery int) *ValidationBatcher {
	if flushEvery <= 0 {
		flushEvery = 1
	}
	return &ValidationBatcher{store: store, flushEvery: flushEvery}
}

// Add queues one verdict, flushing when the batch is full.
func (b *ValidationBatcher) Add(ctx context.Context, id identity.ID, v Validation) error {
	b.mu.Lock()
	b.pending = append(b.pending, pendingValidation{id: id, v: v})
	var toFlush []pendingValidation
	if len(b.pending) >= b.flushEvery {
		toFlush = b.pending
		b.pending = nil
	}
	b.mu.Unlock()

	if toFlush == nil {
		return nil
	}
	return b.flush(ctx, toFlush)
}

// Flush commits any queued verdicts. Call once after a batch completes.
func (b *ValidationBatcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	toFlush := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}
	return b.flush(ctx, toFlush)
}

func (b *ValidationBatcher) flush(ctx context.Context, batch []pendingValidation) error {
	b.store.writeMu.Lock()
	defer b.store.writeMu.Unlock()

	return retryOnBusy(ctx, func() error {
		tx, err := b.store.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin validation flush: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		for _, item := range batch {
			if err := b.store.markValidationLocked(ctx, tx, item.id, item.v); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}
