package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"salespulse/internal/types"
)

// DispatchRepository provides data access for the dispatch_records table.
// Record IDs are deterministic over (insight, channel, user), which makes
// InsertIfNotExists the dedup gate for the at-most-once delivery guarantee.
type DispatchRepository struct {
	db DBTX
}

// NewDispatchRepository creates a new DispatchRepository backed by the given
// database connection (pool or transaction).
func NewDispatchRepository(db DBTX) *DispatchRepository {
	return &DispatchRepository{db: db}
}

const dispatchColumns = `id, insight_id, user_id, channel, status,
	attempt_count, last_error, provider_message_id, sent_at,
	created_at, updated_at`

// InsertIfNotExists creates a pending dispatch record for the delivery
// triple unless one already exists. Returns true when a row was created;
// false means either a worker already owns the triple or it has reached a
// terminal state.
func (r *DispatchRepository) InsertIfNotExists(ctx context.Context, insightID string, channel types.ChannelType, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO dispatch_records
		 (id, insight_id, user_id, channel, status, attempt_count,
		  created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'pending', 0, NOW(), NOW())
		 ON CONFLICT (id) DO NOTHING`,
		types.DispatchID(insightID, channel, userID),
		insightID,
		userID,
		string(channel),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert dispatch record", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get retrieves a single dispatch record by ID.
func (r *DispatchRepository) Get(ctx context.Context, dispatchID string) (*types.DispatchRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+dispatchColumns+` FROM dispatch_records WHERE id = $1`,
		dispatchID,
	)
	d, err := scanDispatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDispatch, "dispatch record not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get dispatch record", err)
	}
	return d, nil
}

// BeginAttempt transitions a non-terminal record to 'sending' and increments
// the attempt count. Returns the attempt number now in flight, or false when
// the record is already sent or failed: a redelivered job observing false
// must acknowledge without sending.
func (r *DispatchRepository) BeginAttempt(ctx context.Context, dispatchID string) (int, bool, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE dispatch_records SET
			status = 'sending',
			attempt_count = attempt_count + 1,
			updated_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'sending', 'retrying')
		 RETURNING attempt_count`,
		dispatchID,
	)
	var attempt int
	if err := row.Scan(&attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to begin dispatch attempt", err)
	}
	return attempt, true, nil
}

// SetRetrying records a transient failure: the job stays live on the queue
// and will be redelivered after backoff.
func (r *DispatchRepository) SetRetrying(ctx context.Context, dispatchID string, reason string) error {
	return r.setOutcome(ctx,
		`UPDATE dispatch_records SET
			status = 'retrying',
			last_error = $2,
			updated_at = NOW()
		 WHERE id = $1`,
		dispatchID, nilIfEmpty(reason))
}

// SetSent records a successful delivery with the provider's message ID.
func (r *DispatchRepository) SetSent(ctx context.Context, dispatchID string, providerMsgID string) error {
	return r.setOutcome(ctx,
		`UPDATE dispatch_records SET
			status = 'sent',
			last_error = NULL,
			provider_message_id = $2,
			sent_at = NOW(),
			updated_at = NOW()
		 WHERE id = $1`,
		dispatchID, nilIfEmpty(providerMsgID))
}

// SetFailed records a terminal failure (provider rejection, invalid address,
// or attempt cap reached). Failed records are never retried.
func (r *DispatchRepository) SetFailed(ctx context.Context, dispatchID string, reason string) error {
	return r.setOutcome(ctx,
		`UPDATE dispatch_records SET
			status = 'failed',
			last_error = $2,
			updated_at = NOW()
		 WHERE id = $1`,
		dispatchID, nilIfEmpty(reason))
}

func (r *DispatchRepository) setOutcome(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update dispatch record", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDispatch, "dispatch record not found", nil)
	}
	return nil
}

// CountByStatus returns per-status dispatch counts for telemetry.
func (r *DispatchRepository) CountByStatus(ctx context.Context) (map[types.DispatchStatus]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM dispatch_records GROUP BY status`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count dispatch records", err)
	}
	defer rows.Close()

	counts := make(map[types.DispatchStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan dispatch count row", err)
		}
		counts[types.DispatchStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating dispatch count rows", err)
	}
	return counts, nil
}

// scanDispatch scans a dispatch_records row from either pgx.Row or pgx.Rows.
func scanDispatch(row pgx.Row) (*types.DispatchRecord, error) {
	var (
		d             types.DispatchRecord
		channel       string
		status        string
		lastError     *string
		providerMsgID *string
		sentAt        *time.Time
	)

	err := row.Scan(
		&d.ID,
		&d.InsightID,
		&d.UserID,
		&channel,
		&status,
		&d.AttemptCount,
		&lastError,
		&providerMsgID,
		&sentAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Channel = types.ChannelType(channel)
	d.Status = types.DispatchStatus(status)
	if lastError != nil {
		d.LastError = *lastError
	}
	if providerMsgID != nil {
		d.ProviderMsgID = *providerMsgID
	}
	if sentAt != nil {
		d.SentAt = *sentAt
	}

	return &d, nil
}
