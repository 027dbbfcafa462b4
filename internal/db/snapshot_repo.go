package db

import (
	"context"
	"time"

	"salespulse/internal/types"
)

// SnapshotRepository provides data access for the sales_snapshots table.
// Snapshots are append-only per (store_id, bucket): a redelivered sync job
// re-writing a bucket is a silent no-op, which keeps the insight engine's
// baseline stable across replays.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new SnapshotRepository backed by the given
// database connection (pool or transaction).
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// InsertIfAbsent writes a snapshot unless one already exists for the same
// (store_id, bucket). Returns true when a row was created, false when the
// bucket was already recorded. Existing rows are never overwritten.
func (r *SnapshotRepository) InsertIfAbsent(ctx context.Context, snap *types.SalesSnapshot) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO sales_snapshots
		 (store_id, bucket, revenue, order_count, customer_count, currency,
		  raw_payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		 ON CONFLICT (store_id, bucket) DO NOTHING`,
		snap.StoreID,
		snap.Bucket,
		snap.Revenue,
		snap.OrderCount,
		snap.CustomerCount,
		snap.Currency,
		snap.RawPayload,
		nilIfZeroTime(snap.CreatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert snapshot", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListWindow retrieves up to `window` most recent snapshots for a store at or
// before the given bucket, ordered oldest first so the last element is the
// current bucket. This is the exact shape the insight engine consumes.
func (r *SnapshotRepository) ListWindow(ctx context.Context, storeID string, upTo time.Time, window int) ([]*types.SalesSnapshot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT store_id, bucket, revenue, order_count, customer_count,
		        currency, created_at
		 FROM (
		     SELECT store_id, bucket, revenue, order_count, customer_count,
		            currency, created_at
		     FROM sales_snapshots
		     WHERE store_id = $1 AND bucket <= $2
		     ORDER BY bucket DESC
		     LIMIT $3
		 ) sub
		 ORDER BY bucket ASC`,
		storeID,
		upTo,
		window,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list snapshot window", err)
	}
	defer rows.Close()

	var results []*types.SalesSnapshot
	for rows.Next() {
		var s types.SalesSnapshot
		if err := rows.Scan(
			&s.StoreID,
			&s.Bucket,
			&s.Revenue,
			&s.OrderCount,
			&s.CustomerCount,
			&s.Currency,
			&s.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan snapshot row", err)
		}
		results = append(results, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating snapshot rows", err)
	}
	return results, nil
}
