package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/sales-discount/internal/platform/db"
)

var (
	// ErrIdempotencyConflict reports a key that was already claimed.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	errKeyRequired         = errors.New("shared: idempotency key required")
	errModuleRequired      = errors.New("shared: idempotency module required")
)

// IdempotencyStore claims request keys in idempotency_keys.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore returns a store writing through db.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// CheckAndInsert claims key for module. A key seen before yields
// ErrIdempotencyConflict regardless of module. Inside a db.WithTx the claim is
// part of that transaction and disappears with its rollback.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.db == nil {
		return errors.New("shared: idempotency store not initialised")
	}
	if err := validateKey(key, module); err != nil {
		return err
	}
	tag, err := db.Conn(ctx, s.db).Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		key, module, s.now().UTC())
	if err != nil {
		return fmt.Errorf("shared: claim idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases key so a failed request can be retried.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if key == "" {
		return errKeyRequired
	}
	if _, err := db.Conn(ctx, s.db).Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("shared: release idempotency key: %w", err)
	}
	return nil
}

// Cleanup purges keys claimed more than olderThan ago and reports how many.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("shared: purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func validateKey(key, module string) error {
	switch {
	case key == "":
		return errKeyRequired
	case module == "":
		return errModuleRequired
	}
	return nil
}
