package test

import (
	"context"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usecounsel/counsel/store"
)

func createTestingUser(ctx context.Context, t *testing.T, ts *store.Store, email string) *store.User {
	t.Helper()
	now := time.Now().Unix()
	user, err := ts.CreateUser(ctx, &store.User{
		UID:       shortuuid.New(),
		Email:     email,
		Nickname:  "tester",
		RowStatus: store.Normal,
		CreatedTs: now,
		UpdatedTs: now,
	})
	require.NoError(t, err)
	return user
}

func createTestingSession(ctx context.Context, t *testing.T, ts *store.Store, creatorID int32, title string, createdTs int64) *store.Session {
	t.Helper()
	sess, err := ts.CreateSession(ctx, &store.Session{
		UID:       shortuuid.New(),
		CreatorID: creatorID,
		Title:     title,
		CreatedTs: createdTs,
		UpdatedTs: createdTs,
	})
	require.NoError(t, err)
	return sess
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	user := createTestingUser(ctx, t, ts, "alice@example.com")
	assert.NotZero(t, user.ID)

	t.Run("GetByEmail", func(t *testing.T) {
		email := "alice@example.com"
		found, err := ts.GetUser(ctx, &store.FindUser{Email: &email})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("DuplicateEmailRejected", func(t *testing.T) {
		now := time.Now().Unix()
		_, err := ts.CreateUser(ctx, &store.User{
			UID:       shortuuid.New(),
			Email:     "alice@example.com",
			RowStatus: store.Normal,
			CreatedTs: now,
			UpdatedTs: now,
		})
		assert.Error(t, err)
	})

	t.Run("AttachExternalID", func(t *testing.T) {
		externalID := "provider-subject-1"
		updated, err := ts.UpdateUser(ctx, &store.UpdateUser{ID: user.ID, ExternalID: &externalID})
		require.NoError(t, err)
		require.NotNil(t, updated.ExternalID)
		assert.Equal(t, externalID, *updated.ExternalID)

		found, err := ts.GetUser(ctx, &store.FindUser{ExternalID: &externalID})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("ArchiveBlocksNothingAtStoreLevel", func(t *testing.T) {
		archived := store.Archived
		updated, err := ts.UpdateUser(ctx, &store.UpdateUser{ID: user.ID, RowStatus: &archived})
		require.NoError(t, err)
		assert.Equal(t, store.Archived, updated.RowStatus)
	})

	t.Run("DeleteEvictsUIDLookup", func(t *testing.T) {
		doomed := createTestingUser(ctx, t, ts, "doomed@example.com")

		// Prime the uid-keyed cache entry before deleting.
		found, err := ts.GetUser(ctx, &store.FindUser{UID: &doomed.UID})
		require.NoError(t, err)
		require.NotNil(t, found)

		require.NoError(t, ts.DeleteUser(ctx, &store.DeleteUser{ID: doomed.ID}))

		found, err = ts.GetUser(ctx, &store.FindUser{UID: &doomed.UID})
		require.NoError(t, err)
		assert.Nil(t, found)

		found, err = ts.GetUser(ctx, &store.FindUser{ID: &doomed.ID})
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	user := createTestingUser(ctx, t, ts, "owner@example.com")

	first := createTestingSession(ctx, t, ts, user.ID, "first", 100)
	second := createTestingSession(ctx, t, ts, user.ID, "second", 200)

	t.Run("ListMostRecentlyUpdatedFirst", func(t *testing.T) {
		sessions, err := ts.ListSessions(ctx, &store.FindSession{CreatorID: &user.ID})
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, second.ID, sessions[0].ID)
		assert.Equal(t, first.ID, sessions[1].ID)
	})

	t.Run("ScopedToCreator", func(t *testing.T) {
		other := createTestingUser(ctx, t, ts, "other@example.com")
		sessions, err := ts.ListSessions(ctx, &store.FindSession{CreatorID: &other.ID})
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("Limit", func(t *testing.T) {
		limit := 1
		sessions, err := ts.ListSessions(ctx, &store.FindSession{CreatorID: &user.ID, Limit: &limit})
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("UpdateTitle", func(t *testing.T) {
		title := "renamed"
		updated, err := ts.UpdateSession(ctx, &store.UpdateSession{ID: first.ID, Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Title)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		err := ts.DeleteSession(ctx, &store.DeleteSession{ID: 99999})
		assert.Error(t, err)
	})
}

func TestMessageStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	user := createTestingUser(ctx, t, ts, "owner@example.com")
	sess := createTestingSession(ctx, t, ts, user.ID, "chat", 100)

	t.Run("AppendAndReadBackInOrder", func(t *testing.T) {
		contents := []string{"one", "two", "three"}
		for i, c := range contents {
			_, err := ts.CreateMessage(ctx, &store.Message{
				UID:       shortuuid.New(),
				SessionID: sess.ID,
				Role:      store.MessageRoleUser,
				Content:   c,
				CreatedTs: int64(200 + i),
			})
			require.NoError(t, err)
		}

		messages, err := ts.ListMessages(ctx, &store.FindMessage{SessionID: &sess.ID})
		require.NoError(t, err)
		require.Len(t, messages, len(contents))
		for i, c := range contents {
			assert.Equal(t, c, messages[i].Content)
		}
	})

	t.Run("ExactTimestampTiesBrokenByID", func(t *testing.T) {
		tied := createTestingSession(ctx, t, ts, user.ID, "tied", 100)
		for _, c := range []string{"a", "b", "c"} {
			_, err := ts.CreateMessage(ctx, &store.Message{
				UID:       shortuuid.New(),
				SessionID: tied.ID,
				Role:      store.MessageRoleAssistant,
				Content:   c,
				CreatedTs: 500,
			})
			require.NoError(t, err)
		}
		messages, err := ts.ListMessages(ctx, &store.FindMessage{SessionID: &tied.ID})
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "a", messages[0].Content)
		assert.Equal(t, "c", messages[2].Content)
	})

	t.Run("CreateBumpsSessionUpdatedTs", func(t *testing.T) {
		_, err := ts.CreateMessage(ctx, &store.Message{
			UID:       shortuuid.New(),
			SessionID: sess.ID,
			Role:      store.MessageRoleAssistant,
			Content:   "bump",
			CreatedTs: 999,
		})
		require.NoError(t, err)

		found, err := ts.GetSession(ctx, &store.FindSession{ID: &sess.ID})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, int64(999), found.UpdatedTs)
	})

	t.Run("DeleteSessionCascades", func(t *testing.T) {
		doomed := createTestingSession(ctx, t, ts, user.ID, "doomed", 100)
		_, err := ts.CreateMessage(ctx, &store.Message{
			UID:       shortuuid.New(),
			SessionID: doomed.ID,
			Role:      store.MessageRoleUser,
			Content:   "orphan-to-be",
			CreatedTs: 100,
		})
		require.NoError(t, err)

		require.NoError(t, ts.DeleteSession(ctx, &store.DeleteSession{ID: doomed.ID}))

		messages, err := ts.ListMessages(ctx, &store.FindMessage{SessionID: &doomed.ID})
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}
