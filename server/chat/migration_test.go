package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/store/localstore"
)

func seedLocalHistory(t *testing.T) (*localstore.Store, *LocalService) {
	t.Helper()
	local := localstore.New(t.TempDir())
	return local, NewLocalService(local)
}

func TestMigrationCopiesEverythingThenClearsLocal(t *testing.T) {
	ctx := context.Background()
	local, _ := seedLocalHistory(t)
	remote := newFakeService(BackendRemote)

	first := local.CreateSession("first", "")
	local.AddMessage(first.ID, "user", "hello")
	local.AddMessage(first.ID, "assistant", "hi there")
	second := local.CreateSession("second", "")
	local.AddMessage(second.ID, "user", "question")

	migrator := NewMigrator(local, remote)
	result, err := migrator.RunWithResult(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, result.Sessions)
	require.Equal(t, 3, result.Messages)

	sessions, err := remote.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	// Oldest local session migrated first, so the most recently touched
	// remote session is the newest local one.
	require.Equal(t, "second", sessions[0].Title)
	require.Equal(t, "first", sessions[1].Title)

	messages, err := remote.ListMessages(ctx, "u1", sessions[1].ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, RoleUser, messages[0].Role)
	require.Equal(t, "hello", messages[0].Content)
	require.Equal(t, RoleAssistant, messages[1].Role)
	require.Equal(t, "hi there", messages[1].Content)

	require.Empty(t, local.ListSessions())
	require.Empty(t, local.ListMessages(first.ID))
}

func TestMigrationRequiresOwnerKey(t *testing.T) {
	ctx := context.Background()
	local, _ := seedLocalHistory(t)

	migrator := NewMigrator(local, newFakeService(BackendRemote))
	err := migrator.Run(ctx, "")
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestMigrationEmptyLocalIsANoop(t *testing.T) {
	ctx := context.Background()
	local, _ := seedLocalHistory(t)

	migrator := NewMigrator(local, newFakeService(BackendRemote))
	result, err := migrator.RunWithResult(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, result.Sessions)
	require.Equal(t, 0, result.Messages)
}

// Any single failing remote write, at any position, must abort the run
// with local storage untouched.
func TestMigrationAbortsOnKthWriteKeepingLocalIntact(t *testing.T) {
	ctx := context.Background()

	// Two sessions with two messages each produce six remote writes.
	const totalWrites = 6
	for k := 1; k <= totalWrites; k++ {
		t.Run(fmt.Sprintf("write%dFails", k), func(t *testing.T) {
			local, _ := seedLocalHistory(t)
			a := local.CreateSession("first", "")
			local.AddMessage(a.ID, "user", "hello")
			local.AddMessage(a.ID, "assistant", "hi there")
			b := local.CreateSession("second", "")
			local.AddMessage(b.ID, "user", "question")
			local.AddMessage(b.ID, "assistant", "answer")

			remote := newFakeService(BackendRemote)
			remote.failWrite(k, errors.PersistenceFailed("network error", nil))

			migrator := NewMigrator(local, remote)
			err := migrator.Run(ctx, "u1")
			require.Error(t, err)
			require.True(t, errors.IsCode(err, errors.ErrCodePersistenceFailed))

			require.Len(t, local.ListSessions(), 2)
			require.Len(t, local.ListMessages(a.ID), 2)
			require.Len(t, local.ListMessages(b.ID), 2)
		})
	}
}

// The end-to-end continuity story: anonymous history, sign-in with an
// empty remote view, migration, and the history reappearing remotely.
func TestAnonymousHistorySurvivesSignInViaMigration(t *testing.T) {
	ctx := context.Background()

	local, localSvc := seedLocalHistory(t)
	remoteSvc, st := newRemoteService(ctx, t)
	owner := createOwner(ctx, t, st, "amy@usecounsel.dev")
	registry := NewRegistry(localSvc, remoteSvc, &fakeCompleter{reply: "hi there"})

	session, err := registry.CreateSession(ctx, anonymous, "Plan A")
	require.NoError(t, err)
	_, err = registry.SelectSession(ctx, anonymous, session.ID)
	require.NoError(t, err)
	result, err := registry.SendMessage(ctx, anonymous, session.ID, "hello")
	require.NoError(t, err)
	require.Equal(t, "hi there", result.AssistantMessage.Content)

	messages := registry.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, "hello", messages[0].Content)
	require.Equal(t, "hi there", messages[1].Content)

	// Sign in: the remote store knows nothing about the local session, so
	// the view is empty until migration runs.
	require.NoError(t, registry.HandleAuthChange(ctx, signedIn(owner.UID)))
	require.Empty(t, registry.Sessions())
	require.Empty(t, registry.Messages())

	migrator := NewMigrator(local, remoteSvc)
	require.NoError(t, migrator.Run(ctx, owner.UID))

	sessions, err := registry.ListSessions(ctx, signedIn(owner.UID))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "Plan A", sessions[0].Title)

	migrated, err := registry.SelectSession(ctx, signedIn(owner.UID), sessions[0].ID)
	require.NoError(t, err)
	require.Len(t, migrated, 2)
	require.Equal(t, RoleUser, migrated[0].Role)
	require.Equal(t, "hello", migrated[0].Content)
	require.Equal(t, RoleAssistant, migrated[1].Role)
	require.Equal(t, "hi there", migrated[1].Content)

	require.Empty(t, local.ListSessions())
}

func TestRegistryMigratesOnSignInWhenConfigured(t *testing.T) {
	ctx := context.Background()

	local, localSvc := seedLocalHistory(t)
	remote := newFakeService(BackendRemote)
	migrator := NewMigrator(local, remote)
	registry := NewRegistry(localSvc, remote, &fakeCompleter{reply: "ok"},
		WithMigrator(migrator, true))

	session, err := registry.CreateSession(ctx, anonymous, "Plan A")
	require.NoError(t, err)
	_, err = registry.SelectSession(ctx, anonymous, session.ID)
	require.NoError(t, err)
	_, err = registry.SendMessage(ctx, anonymous, session.ID, "hello")
	require.NoError(t, err)

	require.NoError(t, registry.HandleAuthChange(ctx, signedIn("u1")))

	sessions := registry.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, "Plan A", sessions[0].Title)
	require.Empty(t, local.ListSessions())
}
