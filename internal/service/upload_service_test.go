package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praivio-go/internal/model"
	"praivio-go/internal/pipeline"
	"praivio-go/internal/testutil"
	"praivio-go/pkg/secure"
	"praivio-go/pkg/tasks"
)

type docsStub struct {
	text string
	err  error
}

func (d docsStub) ExtractText(context.Context, []byte, string, string) (string, error) {
	return d.text, d.err
}

type publisherStub struct {
	err   error
	tasks []tasks.FileExtractionTask
}

func (p *publisherStub) PublishExtraction(_ context.Context, task tasks.FileExtractionTask) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

var testLimits = UploadLimits{PDF: 1024, Image: 512, Audio: 2048}

func newFileService(t *testing.T, f *fixture, docs docsStub, publisher ExtractionPublisher) (FileService, *testutil.MemoryStore) {
	t.Helper()
	cipher, err := secure.NewCipher("test-secret")
	require.NoError(t, err)
	store := testutil.NewMemoryStore()
	processor := pipeline.NewProcessor(pipeline.NewExtractor(docs, nil), store, f.files, cipher)
	return NewFileService(f.files, f.chats, store, cipher, processor, publisher, f.audit, testLimits), store
}

func TestDetectKind(t *testing.T) {
	cases := []struct {
		contentType, name string
		want              model.FileKind
		ok                bool
	}{
		{"application/pdf", "x.bin", model.FileKindPDF, true},
		{"image/png", "scan", model.FileKindImage, true},
		{"audio/mpeg; charset=binary", "", model.FileKindAudio, true},
		{"application/octet-stream", "Befund.PDF", model.FileKindPDF, true},
		{"", "foto.jpeg", model.FileKindImage, true},
		{"", "diktat.m4a", model.FileKindAudio, true},
		{"text/plain", "notizen.txt", "", false},
	}
	for _, c := range cases {
		got, ok := DetectKind(c.contentType, c.name)
		assert.Equal(t, c.ok, ok, "%s %s", c.contentType, c.name)
		assert.Equal(t, c.want, got, "%s %s", c.contentType, c.name)
	}
}

func TestUploadExtractsInlineAndEncrypts(t *testing.T) {
	f := newFixture(t)
	id := f.identity(t, "anna", model.RoleUser)
	svc, store := newFileService(t, f, docsStub{text: "Blutwerte normal"}, nil)
	ctx := context.Background()

	info, err := svc.Upload(ctx, id, testMeta, UploadInput{FileName: "befund.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, model.FileKindPDF, info.FileType)
	assert.Equal(t, model.ExtractionCompleted, info.Status)
	assert.EqualValues(t, 8, info.FileSize)
	assert.Len(t, store.Objects, 1)

	stored, err := f.files.FindByID(ctx, info.ID, id.UserID)
	require.NoError(t, err)
	assert.Regexp(t, `^uploads/\d+/[0-9a-f-]{36}\.pdf$`, stored.StoragePath)
	require.NotNil(t, stored.ProcessedContent)
	assert.NotContains(t, *stored.ProcessedContent, "Blutwerte")

	got, err := svc.Get(ctx, id, info.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProcessedContent)
	assert.Equal(t, "Blutwerte normal", *got.ProcessedContent)

	fc, err := svc.ResolveFile(ctx, id.UserID, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "Blutwerte normal", fc.Content)
	assert.Equal(t, "befund.pdf", fc.FileName)

	other := f.identity(t, "bert", model.RoleUser)
	_, err = svc.ResolveFile(ctx, other.UserID, info.ID)
	assert.ErrorIs(t, err, ErrFileNotFound)

	events := f.auditEvents(t, model.AuditFileUpload)
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
}

func TestUploadFailedExtractionStillSucceeds(t *testing.T) {
	f := newFixture(t)
	id := f.identity(t, "anna", model.RoleUser)
	svc, _ := newFileService(t, f, docsStub{err: errors.New("tika down")}, nil)
	ctx := context.Background()

	info, err := svc.Upload(ctx, id, testMeta, UploadInput{FileName: "scan.png", ContentType: "image/png", Data: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionFailed, info.Status)

	_, err = svc.ResolveFile(ctx, id.UserID, info.ID)
	assert.Error(t, err)
}

func TestUploadRejectsOversizeAndUnknownTypes(t *testing.T) {
	f := newFixture(t)
	id := f.identity(t, "anna", model.RoleUser)
	svc, store := newFileService(t, f, docsStub{text: "x"}, nil)
	ctx := context.Background()

	_, err := svc.Upload(ctx, id, testMeta, UploadInput{FileName: "gross.png", ContentType: "image/png", Data: make([]byte, 513)})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = svc.Upload(ctx, id, testMeta, UploadInput{FileName: "a.exe", ContentType: "application/x-msdownload", Data: []byte("MZ")})
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.Empty(t, store.Objects)

	events := f.auditEvents(t, model.AuditFileUpload)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.False(t, e.Success)
		assert.NotEmpty(t, e.Details)
	}
}

func TestUploadPublishesTaskWhenQueueConfigured(t *testing.T) {
	f := newFixture(t)
	id := f.identity(t, "anna", model.RoleUser)
	pub := &publisherStub{}
	svc, _ := newFileService(t, f, docsStub{text: "x"}, pub)

	info, err := svc.Upload(context.Background(), id, testMeta, UploadInput{FileName: "diktat.mp3", ContentType: "audio/mpeg", Data: []byte("ID3")})
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionPending, info.Status)
	require.Len(t, pub.tasks, 1)
	assert.Equal(t, info.ID, pub.tasks[0].FileID)
	assert.Equal(t, string(model.FileKindAudio), pub.tasks[0].Kind)
}

func TestUploadFallsBackWhenPublishFails(t *testing.T) {
	f := newFixture(t)
	id := f.identity(t, "anna", model.RoleUser)
	svc, _ := newFileService(t, f, docsStub{text: "Text"}, &publisherStub{err: errors.New("broker down")})

	info, err := svc.Upload(context.Background(), id, testMeta, UploadInput{FileName: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionCompleted, info.Status)
}

func TestUploadToSessionAndDelete(t *testing.T) {
	f := newFixture(t)
	id := f.identity(t, "anna", model.RoleUser)
	svc, store := newFileService(t, f, docsStub{text: "x"}, nil)
	chat := newChatService(f, &fakeLLM{}, nil)
	ctx := context.Background()

	session, err := chat.CreateSession(ctx, id, CreateSessionRequest{})
	require.NoError(t, err)

	missing := "does-not-exist"
	_, err = svc.Upload(ctx, id, testMeta, UploadInput{FileName: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF"), SessionID: &missing})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	info, err := svc.Upload(ctx, id, testMeta, UploadInput{FileName: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF"), SessionID: &session.ID})
	require.NoError(t, err)

	list, err := svc.ListBySession(ctx, id, session.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].ProcessedContent)

	url, err := svc.DownloadURL(ctx, id, info.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	require.NoError(t, svc.Delete(ctx, id, testMeta, info.ID))
	assert.Empty(t, store.Objects)
	assert.ErrorIs(t, svc.Delete(ctx, id, testMeta, info.ID), ErrFileNotFound)

	events := f.auditEvents(t, model.AuditFileDelete)
	require.Len(t, events, 2)
}
