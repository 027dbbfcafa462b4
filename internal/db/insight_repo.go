package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"salespulse/internal/types"
)

// InsightRepository provides data access for the insights table. Insight IDs
// are deterministic over (store, bucket, type, metric), so InsertIfAbsent
// collapses replayed sync jobs into a single row per finding.
type InsightRepository struct {
	db DBTX
}

// NewInsightRepository creates a new InsightRepository backed by the given
// database connection (pool or transaction).
func NewInsightRepository(db DBTX) *InsightRepository {
	return &InsightRepository{db: db}
}

const insightColumns = `id, store_id, type, metric, magnitude, z_score,
	severity, title, narrative, bucket, created_at`

// InsertIfAbsent writes an insight unless one with the same ID exists.
// Returns true when a row was created; false means the finding was already
// recorded and its dispatches must not be re-fanned-out.
func (r *InsightRepository) InsertIfAbsent(ctx context.Context, ins *types.Insight) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO insights
		 (id, store_id, type, metric, magnitude, z_score, severity, title,
		  narrative, bucket, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
		 ON CONFLICT (id) DO NOTHING`,
		ins.ID,
		ins.StoreID,
		string(ins.Type),
		string(ins.Metric),
		ins.Magnitude,
		ins.ZScore,
		string(ins.Severity),
		ins.Title,
		nilIfEmpty(ins.Narrative),
		ins.Bucket,
		nilIfZeroTime(ins.CreatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert insight", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get retrieves a single insight by ID.
func (r *InsightRepository) Get(ctx context.Context, insightID string) (*types.Insight, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+insightColumns+` FROM insights WHERE id = $1`,
		insightID,
	)
	ins, err := scanInsight(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundInsight, "insight not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get insight", err)
	}
	return ins, nil
}

// ListRecentByStore retrieves the most recent insights for a store, newest
// first. A non-positive limit defaults to 20.
func (r *InsightRepository) ListRecentByStore(ctx context.Context, storeID string, limit int) ([]*types.Insight, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+insightColumns+`
		 FROM insights
		 WHERE store_id = $1
		 ORDER BY bucket DESC, created_at DESC
		 LIMIT $2`,
		storeID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list insights", err)
	}
	defer rows.Close()

	var results []*types.Insight
	for rows.Next() {
		ins, scanErr := scanInsight(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan insight row", scanErr)
		}
		results = append(results, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating insight rows", err)
	}
	return results, nil
}

// scanInsight scans an insights row from either pgx.Row or pgx.Rows.
func scanInsight(row pgx.Row) (*types.Insight, error) {
	var (
		ins       types.Insight
		insType   string
		metric    string
		severity  string
		narrative *string
		createdAt *time.Time
	)

	err := row.Scan(
		&ins.ID,
		&ins.StoreID,
		&insType,
		&metric,
		&ins.Magnitude,
		&ins.ZScore,
		&severity,
		&ins.Title,
		&narrative,
		&ins.Bucket,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	ins.Type = types.InsightType(insType)
	ins.Metric = types.Metric(metric)
	ins.Severity = types.Severity(severity)
	if narrative != nil {
		ins.Narrative = *narrative
	}
	if createdAt != nil {
		ins.CreatedAt = *createdAt
	}

	return &ins, nil
}
