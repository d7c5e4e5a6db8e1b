package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/internal/testutil"
	"praivio-go/pkg/llm"
)

// fakeLLM 按顺序发出 tokens，然后以 Done、err 或等待取消结束。
type fakeLLM struct {
	tokens        []string
	tokensUsed    int
	err           error
	waitForCancel bool

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

func (f *fakeLLM) Stream(ctx context.Context, req llm.CompletionRequest) <-chan llm.Event {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	ch := make(chan llm.Event, len(f.tokens)+1)
	go func() {
		defer close(ch)
		var acc strings.Builder
		for _, tok := range f.tokens {
			acc.WriteString(tok)
			ch <- llm.Event{Type: llm.EventToken, Text: tok}
		}
		switch {
		case f.waitForCancel:
			<-ctx.Done()
			ch <- llm.Event{Type: llm.EventError, Text: acc.String(), Err: ctx.Err()}
		case f.err != nil:
			ch <- llm.Event{Type: llm.EventError, Text: acc.String(), Err: f.err}
		default:
			ch <- llm.Event{Type: llm.EventDone, Text: acc.String(), TokensUsed: f.tokensUsed, ProcessingTime: 1500 * time.Millisecond}
		}
	}()
	return ch
}

func (f *fakeLLM) ListModels(context.Context) ([]llm.ModelInfo, error) {
	return nil, nil
}

func (f *fakeLLM) lastPrompt(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1].Prompt
}

// recordingSink 记录流式输出；cancelAfter 个片段之后取消请求上下文，0 表示在 Begin 时取消。
type recordingSink struct {
	cancel      context.CancelFunc
	cancelAfter int

	began   bool
	tokens  []string
	summary *StreamSummary
	failure string
}

func (s *recordingSink) Begin() error {
	s.began = true
	if s.cancel != nil && s.cancelAfter == 0 {
		s.cancel()
	}
	return nil
}

func (s *recordingSink) Token(text string) error {
	s.tokens = append(s.tokens, text)
	if s.cancel != nil && len(s.tokens) == s.cancelAfter {
		s.cancel()
	}
	return nil
}

func (s *recordingSink) Complete(summary StreamSummary) error {
	s.summary = &summary
	return nil
}

func (s *recordingSink) Fail(message string) error {
	s.failure = message
	return nil
}

type fixture struct {
	db          *gorm.DB
	users       repository.UserRepository
	chats       repository.ChatRepository
	generations repository.GenerationRepository
	files       repository.FileRepository
	audits      repository.AuditRepository
	audit       AuditTrail
	recorder    Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	f := &fixture{
		db:          db,
		users:       repository.NewUserRepository(db),
		chats:       repository.NewChatRepository(db),
		generations: repository.NewGenerationRepository(db),
		files:       repository.NewFileRepository(db),
		audits:      repository.NewAuditRepository(db),
	}
	f.audit = NewAuditTrail(f.audits, nil)
	f.recorder = NewRecorder(f.generations, f.chats)
	return f
}

func (f *fixture) identity(t *testing.T, username string, role model.Role) model.Identity {
	t.Helper()
	return model.NewIdentity(testutil.CreateUser(t, f.db, username, role))
}

func (f *fixture) auditEvents(t *testing.T, action string) []model.AuditEvent {
	t.Helper()
	events, _, err := f.audits.List(context.Background(), repository.AuditFilter{Action: action})
	require.NoError(t, err)
	return events
}

var testMeta = RequestMeta{IP: "127.0.0.1", UserAgent: "go-test"}
