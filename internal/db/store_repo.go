package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"salespulse/internal/types"
)

// StoreRepository provides data access for the stores table, including the
// sync-claim columns that serialize enqueue of SyncStoreJobs per store.
type StoreRepository struct {
	db DBTX
}

// NewStoreRepository creates a new StoreRepository backed by the given
// database connection (pool or transaction).
func NewStoreRepository(db DBTX) *StoreRepository {
	return &StoreRepository{db: db}
}

const storeColumns = `id, name, platform, store_url, access_token, status,
	owner_ids, sync_pending_cycle, sync_claimed_at,
	last_synced_at, last_error, created_at, updated_at`

// Get retrieves a single store by ID.
func (r *StoreRepository) Get(ctx context.Context, storeID string) (*types.Store, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = $1`,
		storeID,
	)
	s, err := scanStore(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundStore, "store not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get store", err)
	}
	return s, nil
}

// ListActive retrieves all stores in status 'active', ordered by ID for
// stable cycle enumeration.
func (r *StoreRepository) ListActive(ctx context.Context) ([]*types.Store, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE status = 'active' ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active stores", err)
	}
	defer rows.Close()

	var results []*types.Store
	for rows.Next() {
		s, scanErr := scanStore(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan store row", scanErr)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating store rows", err)
	}
	return results, nil
}

// ListStatuses retrieves the dashboard read model for every store, ordered
// by name.
func (r *StoreRepository) ListStatuses(ctx context.Context) ([]*types.StoreStatusView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, status, last_synced_at, last_error
		 FROM stores ORDER BY name, id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list store statuses", err)
	}
	defer rows.Close()

	var results []*types.StoreStatusView
	for rows.Next() {
		var (
			v            types.StoreStatusView
			lastSyncedAt *time.Time
			lastError    *string
		)
		if err := rows.Scan(&v.StoreID, &v.Name, &v.Status, &lastSyncedAt, &lastError); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan store status row", err)
		}
		if lastSyncedAt != nil {
			v.LastSyncedAt = *lastSyncedAt
		}
		if lastError != nil {
			v.LastError = *lastError
		}
		results = append(results, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating store status rows", err)
	}
	return results, nil
}

// ClaimSyncCycle atomically marks a store as having an outstanding sync job
// for the given cycle. The claim succeeds only if the store is active and no
// live claim exists; a claim older than claimTTL counts as stale (crashed
// worker) and is overwritten. Returns ErrCodeConflictSyncPending when a live
// claim blocks the enqueue.
func (r *StoreRepository) ClaimSyncCycle(ctx context.Context, storeID, cycleID string, claimTTL time.Duration) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE stores SET
			sync_pending_cycle = $2,
			sync_claimed_at = NOW(),
			updated_at = NOW()
		 WHERE id = $1
		   AND status = 'active'
		   AND (sync_pending_cycle IS NULL OR sync_claimed_at < NOW() - $3::interval)`,
		storeID,
		cycleID,
		claimTTL,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to claim sync cycle", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictSyncPending, "store already has a pending sync", nil)
	}
	return nil
}

// ReleaseSyncClaim clears the store's sync claim. Called by the worker once
// the job reaches a terminal outcome (success, permanent failure, or poison
// containment). Releasing an already-clear claim is a no-op.
func (r *StoreRepository) ReleaseSyncClaim(ctx context.Context, storeID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE stores SET
			sync_pending_cycle = NULL,
			sync_claimed_at = NULL,
			updated_at = NOW()
		 WHERE id = $1`,
		storeID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release sync claim", err)
	}
	return nil
}

// SetStatus updates the store's connection status and last_error note.
// Passing an empty reason clears last_error.
func (r *StoreRepository) SetStatus(ctx context.Context, storeID string, status types.StoreStatus, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE stores SET
			status = $2,
			last_error = $3,
			updated_at = NOW()
		 WHERE id = $1`,
		storeID,
		string(status),
		nilIfEmpty(reason),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set store status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundStore, "store not found", nil)
	}
	return nil
}

// UpdateLastSynced records a successful sync: status back to active,
// last_synced_at stamped, last_error cleared.
func (r *StoreRepository) UpdateLastSynced(ctx context.Context, storeID string, syncedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE stores SET
			status = 'active',
			last_synced_at = $2,
			last_error = NULL,
			updated_at = NOW()
		 WHERE id = $1`,
		storeID,
		syncedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last synced", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundStore, "store not found", nil)
	}
	return nil
}

// scanStore scans a stores row from either pgx.Row or pgx.Rows.
func scanStore(row pgx.Row) (*types.Store, error) {
	var (
		s                types.Store
		platform         string
		status           string
		syncPendingCycle *string
		syncClaimedAt    *time.Time
		lastSyncedAt     *time.Time
		lastError        *string
	)

	err := row.Scan(
		&s.ID,
		&s.Name,
		&platform,
		&s.StoreURL,
		&s.AccessToken,
		&status,
		&s.OwnerIDs,
		&syncPendingCycle,
		&syncClaimedAt,
		&lastSyncedAt,
		&lastError,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Platform = types.Platform(platform)
	s.Status = types.StoreStatus(status)
	if syncPendingCycle != nil {
		s.SyncPendingCycle = *syncPendingCycle
	}
	if syncClaimedAt != nil {
		s.SyncClaimedAt = *syncClaimedAt
	}
	if lastSyncedAt != nil {
		s.LastSyncedAt = *lastSyncedAt
	}
	if lastError != nil {
		s.LastError = *lastError
	}

	return &s, nil
}
