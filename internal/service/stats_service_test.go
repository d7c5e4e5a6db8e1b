package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praivio-go/internal/model"
)

func TestStatisticsScopes(t *testing.T) {
	f := newFixture(t)
	admin := f.identity(t, "root", model.RoleAdmin)
	anna := f.identity(t, "anna", model.RoleUser)
	bert := f.identity(t, "bert", model.RoleUser)
	ctx := context.Background()

	tmpl := "arztbericht"
	for _, r := range []GenerationRecord{
		{UserID: anna.UserID, Prompt: "p", GeneratedText: "t", ModelName: "llama2", TokensUsed: 10, ProcessingTime: time.Second, TemplateUsed: &tmpl},
		{UserID: anna.UserID, Prompt: "p", GeneratedText: "t", ModelName: "mistral", TokensUsed: 20, ProcessingTime: 3 * time.Second},
		{UserID: bert.UserID, Prompt: "p", GeneratedText: "t", ModelName: "llama2", TokensUsed: 5, ProcessingTime: 2 * time.Second},
	} {
		require.NotNil(t, f.recorder.RecordGeneration(ctx, r))
	}
	annaID := anna.UserID
	f.audit.Record(ctx, AuditEntry{UserID: &annaID, Action: model.AuditTextGeneration, Details: "ok", Success: true})
	f.audit.Record(ctx, AuditEntry{UserID: &annaID, Action: model.AuditTextGeneration, Details: "upstream tokens=0"})

	svc := NewStatsService(f.generations, f.audits, f.users)

	own, err := svc.Statistics(ctx, anna)
	require.NoError(t, err)
	assert.Equal(t, ScopeOwn, own.Scope)
	assert.EqualValues(t, 2, own.Count)
	assert.EqualValues(t, 30, own.Tokens)
	assert.InDelta(t, 2.0, own.AvgProcessingTime, 0.001)
	assert.EqualValues(t, 2, own.GenerationsToday)
	assert.EqualValues(t, 2, own.AuditEventsToday)
	assert.InDelta(t, 50.0, own.SuccessRate, 0.001)
	assert.Nil(t, own.ActiveUsers)
	require.Len(t, own.TemplateUsage, 1)
	assert.Equal(t, "arztbericht", own.TemplateUsage[0].Name)

	global, err := svc.Statistics(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, global.Scope)
	assert.EqualValues(t, 3, global.Count)
	assert.EqualValues(t, 35, global.Tokens)
	require.NotNil(t, global.ActiveUsers)
	assert.EqualValues(t, 3, *global.ActiveUsers)
	require.NotEmpty(t, global.ModelUsage)
	assert.Equal(t, "llama2", global.ModelUsage[0].Name)
	assert.EqualValues(t, 2, global.ModelUsage[0].Count)
}

func TestStatisticsEmpty(t *testing.T) {
	f := newFixture(t)
	viewer := f.identity(t, "vera", model.RoleViewer)

	stats, err := NewStatsService(f.generations, f.audits, f.users).Statistics(context.Background(), viewer)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.SuccessRate)
	assert.NotNil(t, stats.ModelUsage)
	assert.NotNil(t, stats.TemplateUsage)
}
