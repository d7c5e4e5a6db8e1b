package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praivio-go/internal/model"
	"praivio-go/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestGenerationStatistics(t *testing.T) {
	db := testutil.OpenDB(t)
	anna := testutil.CreateUser(t, db, "anna", model.RoleUser)
	ben := testutil.CreateUser(t, db, "ben", model.RoleUser)
	repo := NewGenerationRepository(db)
	ctx := context.Background()

	empty, err := repo.Totals(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, GenerationTotals{}, empty)

	for _, g := range []*model.Generation{
		{UserID: anna.ID, Prompt: "a", GeneratedText: "x", ModelName: "llama2", TokensUsed: 10, ProcessingTime: 1, TemplateUsed: strPtr("arztbericht")},
		{UserID: anna.ID, Prompt: "b", GeneratedText: "y", ModelName: "llama2", TokensUsed: 20, ProcessingTime: 3},
		{UserID: ben.ID, Prompt: "c", GeneratedText: "z", ModelName: "mistral", TokensUsed: 5, ProcessingTime: 2, TemplateUsed: strPtr("arztbericht")},
	} {
		require.NoError(t, repo.Create(ctx, g))
	}

	all, err := repo.Totals(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Count)
	assert.Equal(t, int64(35), all.Tokens)
	assert.InDelta(t, 2.0, all.AvgProcessingTime, 0.001)

	own, err := repo.Totals(ctx, &anna.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), own.Count)

	models, err := repo.ModelUsage(ctx, nil)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, UsageCount{Name: "llama2", Count: 2}, models[0])

	templates, err := repo.TemplateUsage(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []UsageCount{{Name: "arztbericht", Count: 2}}, templates)

	today, err := repo.CountSince(ctx, &ben.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), today)

	page, total, err := repo.ListByUser(ctx, anna.ID, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, page, 1)
}

func TestAuditCountSince(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.AuditEvent{Action: model.AuditLogin, Success: true}))
	require.NoError(t, repo.Create(ctx, &model.AuditEvent{Action: model.AuditLogin, Success: false, Details: "invalid credentials"}))
	require.NoError(t, repo.Create(ctx, &model.AuditEvent{Action: model.AuditRequest, Success: true}))

	total, ok, err := repo.CountSince(ctx, nil, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), ok)

	events, n, err := repo.List(ctx, AuditFilter{Action: model.AuditLogin, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, events, 2)
}

func TestMemoryTokenBlacklist(t *testing.T) {
	bl := NewMemoryTokenBlacklist().(*memoryTokenBlacklist)
	now := time.Now()
	bl.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, bl.Revoke(ctx, "tok", time.Minute))
	revoked, err := bl.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = bl.IsRevoked(ctx, "other")
	assert.False(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, _ = bl.IsRevoked(ctx, "tok")
	assert.False(t, revoked)
}
