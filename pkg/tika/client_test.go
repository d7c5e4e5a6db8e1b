package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praivio-go/internal/config"
)

func TestExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "deu+eng", r.Header.Get("X-Tika-OCRLanguage"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "PNGDATA", string(body))
		_, _ = io.WriteString(w, "\n  Röntgen Thorax  \n")
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL + "/", OCRLanguage: "deu+eng"})
	text, err := c.ExtractText(context.Background(), []byte("PNGDATA"), "scan.png", "")
	require.NoError(t, err)
	assert.Equal(t, "Röntgen Thorax", text)
}

func TestExtractTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Tika-OCRLanguage"))
		http.Error(w, "unsupported", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL, OCRLanguage: "deu"})
	_, err := c.ExtractText(context.Background(), []byte("%PDF"), "a.pdf", "application/pdf")
	assert.Error(t, err)
}
