package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"salespulse/internal/types"
)

// PreferenceRepository provides read access to the notification_preferences
// table. The pipeline never writes preferences; the settings surface owns
// them.
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a new PreferenceRepository backed by the
// given database connection (pool or transaction).
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

const preferenceColumns = `user_id, email_enabled, slack_enabled,
	whatsapp_enabled, email, slack_user_id, whatsapp_number,
	alert_threshold, digest_frequency, timezone`

// GetByUser retrieves one user's notification preference.
func (r *PreferenceRepository) GetByUser(ctx context.Context, userID string) (*types.NotificationPreference, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+preferenceColumns+`
		 FROM notification_preferences WHERE user_id = $1`,
		userID,
	)
	p, err := scanPreference(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPreference, "notification preference not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification preference", err)
	}
	return p, nil
}

// ListByUsers retrieves preferences for the given user IDs. Users without a
// preference row are simply absent from the result; the resolver treats
// missing preferences as no channels enabled.
func (r *PreferenceRepository) ListByUsers(ctx context.Context, userIDs []string) ([]*types.NotificationPreference, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+preferenceColumns+`
		 FROM notification_preferences
		 WHERE user_id = ANY($1)
		 ORDER BY user_id`,
		userIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notification preferences", err)
	}
	defer rows.Close()

	var results []*types.NotificationPreference
	for rows.Next() {
		p, scanErr := scanPreference(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan preference row", scanErr)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating preference rows", err)
	}
	return results, nil
}

// scanPreference scans a notification_preferences row from either pgx.Row or
// pgx.Rows.
func scanPreference(row pgx.Row) (*types.NotificationPreference, error) {
	var (
		p              types.NotificationPreference
		email          *string
		slackUserID    *string
		whatsappNumber *string
		digest         string
		timezone       *string
	)

	err := row.Scan(
		&p.UserID,
		&p.EmailEnabled,
		&p.SlackEnabled,
		&p.WhatsAppEnabled,
		&email,
		&slackUserID,
		&whatsappNumber,
		&p.AlertThreshold,
		&digest,
		&timezone,
	)
	if err != nil {
		return nil, err
	}

	if email != nil {
		p.Email = *email
	}
	if slackUserID != nil {
		p.SlackUserID = *slackUserID
	}
	if whatsappNumber != nil {
		p.WhatsAppNumber = *whatsappNumber
	}
	p.DigestFrequency = types.DigestFrequency(digest)
	if timezone != nil {
		p.Timezone = *timezone
	}

	return &p, nil
}
