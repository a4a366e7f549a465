package chat

import (
	"context"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/require"

	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/store"
	"github.com/usecounsel/counsel/store/localstore"
	teststore "github.com/usecounsel/counsel/store/test"
)

func newLocalService(t *testing.T) *LocalService {
	t.Helper()
	return NewLocalService(localstore.New(t.TempDir()))
}

func newRemoteService(ctx context.Context, t *testing.T) (*RemoteService, *store.Store) {
	t.Helper()
	st := teststore.NewTestingStore(ctx, t)
	return NewRemoteService(st), st
}

func createOwner(ctx context.Context, t *testing.T, st *store.Store, email string) *store.User {
	t.Helper()
	now := time.Now().UnixMilli()
	user, err := st.CreateUser(ctx, &store.User{
		UID:       shortuuid.New(),
		Email:     email,
		Nickname:  email,
		RowStatus: store.Normal,
		CreatedTs: now,
		UpdatedTs: now,
	})
	require.NoError(t, err)
	return user
}

func TestLocalServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService(t)

	session, err := svc.CreateSession(ctx, "", "Plan A")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.Equal(t, "Plan A", session.Title)

	got, err := svc.GetSession(ctx, "", session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, got.ID)

	_, err = svc.AddMessage(ctx, "", session.ID, RoleUser, "hello")
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, "", session.ID, RoleAssistant, "hi there")
	require.NoError(t, err)

	messages, err := svc.ListMessages(ctx, "", session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, RoleUser, messages[0].Role)
	require.Equal(t, "hello", messages[0].Content)
	require.Equal(t, RoleAssistant, messages[1].Role)

	require.NoError(t, svc.DeleteSession(ctx, "", session.ID))
	messages, err = svc.ListMessages(ctx, "", session.ID)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestLocalServiceDefaultTitle(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService(t)

	session, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)
	require.Equal(t, DefaultSessionTitle, session.Title)
}

func TestLocalServiceNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService(t)

	_, err := svc.GetSession(ctx, "", "missing")
	require.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	err = svc.DeleteSession(ctx, "", "missing")
	require.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	_, err = svc.AddMessage(ctx, "", "missing", RoleUser, "hello")
	require.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestRemoteServiceRequiresOwnerKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRemoteService(ctx, t)

	_, err := svc.CreateSession(ctx, "", "Plan A")
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestRemoteServiceEmptyOwnerListsNothing(t *testing.T) {
	ctx := context.Background()
	svc, st := newRemoteService(ctx, t)
	owner := createOwner(ctx, t, st, "amy@usecounsel.dev")

	_, err := svc.CreateSession(ctx, owner.UID, "Plan A")
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestRemoteServiceTenancy(t *testing.T) {
	ctx := context.Background()
	svc, st := newRemoteService(ctx, t)
	amy := createOwner(ctx, t, st, "amy@usecounsel.dev")
	bob := createOwner(ctx, t, st, "bob@usecounsel.dev")

	session, err := svc.CreateSession(ctx, amy.UID, "Plan A")
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, bob.UID)
	require.NoError(t, err)
	require.Empty(t, sessions)

	_, err = svc.GetSession(ctx, bob.UID, session.ID)
	require.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	err = svc.DeleteSession(ctx, bob.UID, session.ID)
	require.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestRemoteServiceMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, st := newRemoteService(ctx, t)
	owner := createOwner(ctx, t, st, "amy@usecounsel.dev")

	session, err := svc.CreateSession(ctx, owner.UID, "Plan A")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, owner.UID, session.ID, RoleUser, "hello")
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, owner.UID, session.ID, RoleAssistant, "hi there")
	require.NoError(t, err)

	messages, err := svc.ListMessages(ctx, owner.UID, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, RoleUser, messages[0].Role)
	require.Equal(t, "hello", messages[0].Content)
	require.Equal(t, RoleAssistant, messages[1].Role)
	require.Equal(t, "hi there", messages[1].Content)
	require.Equal(t, session.ID, messages[0].SessionID)
}

func TestRemoteServiceAddMessageBumpsSession(t *testing.T) {
	ctx := context.Background()
	svc, st := newRemoteService(ctx, t)
	owner := createOwner(ctx, t, st, "amy@usecounsel.dev")

	first, err := svc.CreateSession(ctx, owner.UID, "first")
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx, owner.UID, "second")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	_, err = svc.AddMessage(ctx, owner.UID, first.ID, RoleUser, "bump")
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, owner.UID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, first.ID, sessions[0].ID)
	require.Equal(t, second.ID, sessions[1].ID)
}

func TestRemoteServiceRejectsArchivedOwner(t *testing.T) {
	ctx := context.Background()
	svc, st := newRemoteService(ctx, t)
	owner := createOwner(ctx, t, st, "amy@usecounsel.dev")

	archived := store.Archived
	_, err := st.UpdateUser(ctx, &store.UpdateUser{ID: owner.ID, RowStatus: &archived})
	require.NoError(t, err)

	_, err = svc.CreateSession(ctx, owner.UID, "Plan A")
	require.True(t, errors.IsCode(err, errors.ErrCodeAccountDeactivated))
}

func TestRemoteServiceRejectsInvalidMessage(t *testing.T) {
	ctx := context.Background()
	svc, st := newRemoteService(ctx, t)
	owner := createOwner(ctx, t, st, "amy@usecounsel.dev")

	session, err := svc.CreateSession(ctx, owner.UID, "Plan A")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, owner.UID, session.ID, RoleUser, "")
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = svc.AddMessage(ctx, owner.UID, session.ID, Role("system"), "nope")
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}
