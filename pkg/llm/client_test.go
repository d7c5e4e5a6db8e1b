package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praivio-go/internal/config"
)

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
			return out
		}
	}
}

func terminalCount(events []Event) int {
	n := 0
	for _, ev := range events {
		if ev.Terminal() {
			n++
		}
	}
	return n
}

func newTestClient(url string) Client {
	return NewClient(config.LLMConfig{BaseURL: url, Timeout: 2 * time.Second})
}

func TestStreamForwardsTokensInOrder(t *testing.T) {
	gotCh := make(chan generateRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotCh <- body
		for _, tok := range []string{"Sehr ", "geehrte ", "Damen"} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", tok)
		}
		fmt.Fprintln(w, `{"response":"","done":true,"eval_count":42}`)
	}))
	defer srv.Close()

	temp := 0.7
	events := drain(t, newTestClient(srv.URL).Stream(context.Background(), CompletionRequest{
		Model:   "llama2",
		Prompt:  "Brief",
		Options: Options{MaxTokens: 100, Temperature: &temp},
	}))

	require.Len(t, events, 4)
	assert.Equal(t, "Sehr ", events[0].Text)
	assert.Equal(t, "geehrte ", events[1].Text)
	assert.Equal(t, "Damen", events[2].Text)
	assert.Equal(t, EventDone, events[3].Type)
	assert.Equal(t, 42, events[3].TokensUsed)
	assert.Equal(t, "Sehr geehrte Damen", events[3].Text)
	assert.Equal(t, 1, terminalCount(events))

	got := <-gotCh
	assert.True(t, got.Stream)
	assert.Equal(t, "llama2", got.Model)
	assert.Equal(t, 100, got.Options.NumPredict)
	require.NotNil(t, got.Options.Temperature)
	assert.Equal(t, 0.7, *got.Options.Temperature)
	assert.Nil(t, got.Options.TopP)
}

func TestStreamSynthesizesDoneOnEOF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"a","eval_count":3}`)
		fmt.Fprintln(w, `not json`)
		fmt.Fprint(w, `{"response":"b"}`)
	}))
	defer srv.Close()

	events := drain(t, newTestClient(srv.URL).Stream(context.Background(), CompletionRequest{Model: "m", Prompt: "p"}))
	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, EventDone, last.Type)
	assert.Equal(t, "ab", last.Text)
	assert.Equal(t, 3, last.TokensUsed)
	assert.GreaterOrEqual(t, last.ProcessingTime, time.Duration(0))
}

func TestStreamNon2xxIsSingleError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	events := drain(t, newTestClient(srv.URL).Stream(context.Background(), CompletionRequest{Model: "x"}))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	var statusErr *StatusError
	require.ErrorAs(t, events[0].Err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestStreamConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	events := drain(t, newTestClient(url).Stream(context.Background(), CompletionRequest{Model: "x"}))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Error(t, events[0].Err)
}

func TestStreamUpstreamErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"x"}`)
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer srv.Close()

	events := drain(t, newTestClient(srv.URL).Stream(context.Background(), CompletionRequest{Model: "x"}))
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, "x", events[1].Text)
	assert.Contains(t, events[1].Err.Error(), "out of memory")
}

func TestStreamCancellationEndsWithError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"first"}`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch := newTestClient(srv.URL).Stream(ctx, CompletionRequest{Model: "x"})

	first := <-ch
	require.Equal(t, EventToken, first.Type)
	cancel()

	rest := drain(t, ch)
	require.Len(t, rest, 1)
	assert.Equal(t, EventError, rest[0].Type)
	assert.Equal(t, "first", rest[0].Text)
}

func TestStreamTimeoutIsReported(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(config.LLMConfig{BaseURL: srv.URL, Timeout: 100 * time.Millisecond})
	events := drain(t, c.Stream(context.Background(), CompletionRequest{Model: "x"}))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.True(t, IsTimeout(events[0].Err))
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama2:7b","size":3825819519,"details":{"parameter_size":"7B"}},{"name":"tiny","size":512}]}`)
	}))
	defer srv.Close()

	models, err := newTestClient(srv.URL).ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, ModelInfo{Name: "llama2:7b", Size: "3.6 GB", Parameters: "7B", Status: "available"}, models[0])
	assert.Equal(t, "512.0 B", models[1].Size)
	assert.Equal(t, "Unknown", models[1].Parameters)
}
