package chat

import (
	"context"
	"log/slog"

	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/server/internal/observability"
	"github.com/usecounsel/counsel/store/localstore"
)

// Migrator copies every locally stored session and its messages into the
// remote store under a verified identity, then clears local storage. Local
// data is only destroyed after every remote write succeeded; any failure
// aborts with local storage untouched. Remote writes that already landed
// are not rolled back, so re-running after a partial failure may duplicate
// remote data. Duplication is an acceptable cost, data loss is not.
type Migrator struct {
	local  *localstore.Store
	remote Service
}

// MigrationResult reports what a completed run copied.
type MigrationResult struct {
	Sessions int `json:"sessions"`
	Messages int `json:"messages"`
}

func NewMigrator(local *localstore.Store, remote Service) *Migrator {
	return &Migrator{local: local, remote: remote}
}

// Run performs the one-shot migration for userKey.
func (m *Migrator) Run(ctx context.Context, userKey string) error {
	_, err := m.RunWithResult(ctx, userKey)
	return err
}

// RunWithResult performs the migration and reports the copied counts.
func (m *Migrator) RunWithResult(ctx context.Context, userKey string) (*MigrationResult, error) {
	if userKey == "" {
		return nil, errors.InvalidArgument("owner key is required for migration")
	}

	sessions := m.local.ListSessions()
	result := &MigrationResult{}

	// The local list is newest-first; walk it oldest-first so the remote
	// store's most-recently-updated ordering matches what the user saw.
	for i := len(sessions) - 1; i >= 0; i-- {
		local := sessions[i]

		remote, err := m.remote.CreateSession(ctx, userKey, local.Title)
		if err != nil {
			return nil, errors.Wrap(err, errors.GetCodeFromError(err, errors.ErrCodePersistenceFailed),
				"migration aborted, local history retained")
		}
		result.Sessions++

		for _, message := range m.local.ListMessages(local.ID) {
			if _, err := m.remote.AddMessage(ctx, userKey, remote.ID, Role(message.Role), message.Content); err != nil {
				return nil, errors.Wrap(err, errors.GetCodeFromError(err, errors.ErrCodePersistenceFailed),
					"migration aborted, local history retained")
			}
			result.Messages++
		}
	}

	// Every write landed; only now is destroying local data safe.
	m.local.ClearAll()
	if reqCtx, ok := observability.FromContext(ctx); ok {
		reqCtx.Info("migrated local history to remote store",
			slog.Int("sessions", result.Sessions),
			slog.Int("messages", result.Messages))
	} else {
		slog.Info("migrated local history to remote store",
			slog.String("user_key", userKey),
			slog.Int("sessions", result.Sessions),
			slog.Int("messages", result.Messages))
	}
	return result, nil
}
