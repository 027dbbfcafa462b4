package core

import (
	"context"

	"salespulse/internal/db"
	"salespulse/internal/types"
)

// Compile-time assertion that RepoStore implements DispatchStore.
var _ DispatchStore = (*RepoStore)(nil)

// RepoStore adapts the pgx repositories to the DispatchStore surface the
// dispatcher consumes. Constructed once in the worker main.
type RepoStore struct {
	Dispatches  *db.DispatchRepository
	Insights    *db.InsightRepository
	Preferences *db.PreferenceRepository
	Stores      *db.StoreRepository
}

func (s *RepoStore) BeginAttempt(ctx context.Context, dispatchID string) (int, bool, error) {
	return s.Dispatches.BeginAttempt(ctx, dispatchID)
}

func (s *RepoStore) SetRetrying(ctx context.Context, dispatchID string, reason string) error {
	return s.Dispatches.SetRetrying(ctx, dispatchID, reason)
}

func (s *RepoStore) SetSent(ctx context.Context, dispatchID string, providerMsgID string) error {
	return s.Dispatches.SetSent(ctx, dispatchID, providerMsgID)
}

func (s *RepoStore) SetFailed(ctx context.Context, dispatchID string, reason string) error {
	return s.Dispatches.SetFailed(ctx, dispatchID, reason)
}

func (s *RepoStore) GetInsight(ctx context.Context, insightID string) (*types.Insight, error) {
	return s.Insights.Get(ctx, insightID)
}

func (s *RepoStore) GetPreference(ctx context.Context, userID string) (*types.NotificationPreference, error) {
	return s.Preferences.GetByUser(ctx, userID)
}

func (s *RepoStore) GetStoreName(ctx context.Context, storeID string) (string, error) {
	store, err := s.Stores.Get(ctx, storeID)
	if err != nil {
		return "", err
	}
	return store.Name, nil
}
