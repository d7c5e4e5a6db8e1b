package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"praivio-go/internal/model"
	"praivio-go/internal/testutil"
)

func newSession(userID uint) *model.ChatSession {
	return &model.ChatSession{ID: uuid.NewString(), UserID: userID, Title: "Neue Unterhaltung", Model: "llama2"}
}

func TestAppendMessageTouchesSession(t *testing.T) {
	db := testutil.OpenDB(t)
	u := testutil.CreateUser(t, db, "anna", model.RoleUser)
	repo := NewChatRepository(db)
	ctx := context.Background()

	s := newSession(u.ID)
	require.NoError(t, repo.CreateSession(ctx, s))
	before := s.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.AppendMessage(ctx, &model.ChatMessage{
		ID: uuid.NewString(), SessionID: s.ID, Role: model.MessageRoleUser, Content: "Hallo",
	}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.AppendMessage(ctx, &model.ChatMessage{
		ID: uuid.NewString(), SessionID: s.ID, Role: model.MessageRoleAssistant, Content: "Guten Tag",
	}))

	got, err := repo.FindSession(ctx, s.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(before))

	msgs, err := repo.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.MessageRoleUser, msgs[0].Role)
	assert.Equal(t, model.MessageRoleAssistant, msgs[1].Role)

	list, err := repo.ListSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].MessageCount)
}

func TestListMessagesBreaksTimestampTies(t *testing.T) {
	db := testutil.OpenDB(t)
	u := testutil.CreateUser(t, db, "anna", model.RoleUser)
	repo := NewChatRepository(db)
	ctx := context.Background()

	s := newSession(u.ID)
	require.NoError(t, repo.CreateSession(ctx, s))

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	first, second := model.NewMessageID(), model.NewMessageID()
	require.Less(t, first, second)
	require.NoError(t, repo.AppendMessage(ctx, &model.ChatMessage{
		ID: second, SessionID: s.ID, Role: model.MessageRoleAssistant, Content: "Antwort", CreatedAt: at,
	}))
	require.NoError(t, repo.AppendMessage(ctx, &model.ChatMessage{
		ID: first, SessionID: s.ID, Role: model.MessageRoleUser, Content: "Frage", CreatedAt: at,
	}))

	msgs, err := repo.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first, msgs[0].ID)
	assert.Equal(t, second, msgs[1].ID)
}

func TestRoleCheckConstraint(t *testing.T) {
	db := testutil.OpenDB(t)
	u := testutil.CreateUser(t, db, "anna", model.RoleUser)
	repo := NewChatRepository(db)
	ctx := context.Background()
	s := newSession(u.ID)
	require.NoError(t, repo.CreateSession(ctx, s))

	err := repo.AppendMessage(ctx, &model.ChatMessage{
		ID: uuid.NewString(), SessionID: s.ID, Role: model.MessageRole("system"), Content: "x",
	})
	assert.Error(t, err)
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	db := testutil.OpenDB(t)
	anna := testutil.CreateUser(t, db, "anna", model.RoleUser)
	ben := testutil.CreateUser(t, db, "ben", model.RoleUser)
	repo := NewChatRepository(db)
	ctx := context.Background()

	s := newSession(anna.ID)
	require.NoError(t, repo.CreateSession(ctx, s))

	_, err := repo.FindSession(ctx, s.ID, ben.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.DeleteSession(ctx, s.ID, ben.ID), gorm.ErrRecordNotFound)
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	db := testutil.OpenDB(t)
	u := testutil.CreateUser(t, db, "anna", model.RoleUser)
	repo := NewChatRepository(db)
	ctx := context.Background()

	s := newSession(u.ID)
	require.NoError(t, repo.CreateSession(ctx, s))
	require.NoError(t, repo.AppendMessage(ctx, &model.ChatMessage{
		ID: uuid.NewString(), SessionID: s.ID, Role: model.MessageRoleUser, Content: "Hallo",
	}))

	require.NoError(t, repo.DeleteSession(ctx, s.ID, u.ID))

	var n int64
	require.NoError(t, db.Model(&model.ChatMessage{}).Where("session_id = ?", s.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAppendMessageToMissingSession(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewChatRepository(db)
	err := repo.AppendMessage(context.Background(), &model.ChatMessage{
		ID: uuid.NewString(), SessionID: "missing", Role: model.MessageRoleUser, Content: "x",
	})
	assert.Error(t, err)
}
