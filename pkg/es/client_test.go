package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praivio-go/internal/config"
	"praivio-go/internal/model"
)

func newFakeES(t *testing.T, handler http.HandlerFunc) *AuditIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)
	return NewAuditIndex(client, "audit")
}

func TestIndexAuditEvent(t *testing.T) {
	got := make(chan map[string]interface{}, 1)
	idx := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/audit/_doc/12", r.URL.Path)
		var doc map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		got <- doc
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})

	err := idx.Index(context.Background(), &model.AuditEvent{ID: 12, Action: model.AuditLogin, Details: "ok", Success: true})
	require.NoError(t, err)
	doc := <-got
	assert.Equal(t, model.AuditLogin, doc["action"])
	assert.Equal(t, true, doc["success"])
}

func TestSearchAuditEvents(t *testing.T) {
	idx := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audit/_search", r.URL.Path)
		var q map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.EqualValues(t, 5, q["size"])
		_, _ = io.WriteString(w, `{"hits":{"hits":[{"_source":{"id":3,"action":"AUTH_FAILED","details":"invalid token","success":false}}]}}`)
	})

	events, err := idx.Search(context.Background(), "invalid", 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint(3), events[0].ID)
	assert.Equal(t, model.AuditAuthFailed, events[0].Action)
	assert.False(t, events[0].Success)
}

func TestEnsureIndexCreatesMissingIndex(t *testing.T) {
	created := make(chan struct{}, 1)
	idx := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created <- struct{}{}
			_, _ = io.WriteString(w, `{"acknowledged":true}`)
		}
	})
	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Len(t, created, 1)
}
