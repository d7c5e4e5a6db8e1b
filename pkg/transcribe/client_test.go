package transcribe

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

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "de", r.FormValue("language"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "diktat.mp3", hdr.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "ID3", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" Patient klagt über Kopfschmerzen. "}`)
	}))
	defer srv.Close()

	c := NewClient(config.TranscriptionConfig{BaseURL: srv.URL + "/v1", APIKey: "local", Language: "de"})
	text, err := c.Transcribe(context.Background(), []byte("ID3"), "diktat.mp3")
	require.NoError(t, err)
	assert.Equal(t, "Patient klagt über Kopfschmerzen.", text)
}
