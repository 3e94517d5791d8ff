package pipeline

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/auth"
	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/store"
)

func fallbackConfig(baseURL string) config.Config {
	return config.Config{
		PublicBaseURL:    baseURL,
		APIPrefix:        "/api/v1",
		JWTSecret:        "fallback-test-secret-value",
		JWTAlgorithm:     "HS256",
		AITimeoutSeconds: 5,
	}
}

func TestHTTPFallbackAnalyzesThenLogs(t *testing.T) {
	var paths []string
	var logged LogRequest
	var cfg config.Config
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		subject, err := auth.Verify(cfg, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, auth.ServiceSubject, subject)

		switch r.URL.Path {
		case "/api/v1/analyze-audio":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "false", r.FormValue("preprocess"))
			assert.Equal(t, "111", r.FormValue("user_id"))
			file, header, err := r.FormFile("file")
			if assert.NoError(t, err) {
				data, _ := io.ReadAll(file)
				assert.Equal(t, "raw", string(data))
				assert.Equal(t, "voice-note.ogg", header.Filename)
			}
			_ = json.NewEncoder(w).Encode(AnalyzeResponse{
				Kind:     "composite",
				Calories: 200,
				Record:   json.RawMessage(`{"food":{"type":"food","details":[{"item":"upma","calories":200}],"totals":{"calories":200}},"workout":null,"transcript":"upma"}`),
			})
		case "/api/v1/log-analysis":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&logged))
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	cfg = fallbackConfig(server.URL)

	record, err := NewHTTPFallback(cfg).AnalyzeAudio(t.Context(), ai.Audio{Data: []byte("raw"), MIMEType: "audio/ogg"}, "111", "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/v1/analyze-audio", "/api/v1/log-analysis"}, paths)
	assert.Equal(t, "upma", record.Transcript)
	require.True(t, record.HasFood())
	assert.Equal(t, 200.0, record.Food.Totals.Calories)

	assert.Equal(t, "111", logged.UserID)
	assert.Equal(t, "m1", logged.MessageID)
	assert.Equal(t, "composite", logged.Kind)
	assert.Equal(t, store.SourceFallback, logged.Source)
}

func TestHTTPFallbackReportsEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"transcription failed"}`))
	}))
	defer server.Close()

	_, err := NewHTTPFallback(fallbackConfig(server.URL)).AnalyzeAudio(t.Context(), ai.Audio{Data: []byte("raw")}, "111", "m1")
	require.ErrorIs(t, err, ErrFallbackFailed)
	assert.Contains(t, err.Error(), "status=502")
}

func TestHTTPFallbackNeedsSigningAlgorithm(t *testing.T) {
	cfg := fallbackConfig("http://127.0.0.1:1")
	cfg.JWTAlgorithm = "nope"
	_, err := NewHTTPFallback(cfg).AnalyzeAudio(t.Context(), ai.Audio{Data: []byte("raw")}, "111", "m1")
	require.ErrorIs(t, err, ErrFallbackFailed)
}

func TestFileArchivePreserveAndPrune(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	archive := NewFileArchive(dir, time.Hour)

	ref, err := archive.Preserve([]byte("voice"), "audio/mpeg")
	require.NoError(t, err)
	path, ok := archive.Path(ref)
	require.True(t, ok)
	assert.Equal(t, ".mp3", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "voice", string(data))

	removed, err := archive.Prune()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	archive.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err = archive.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok = archive.Path(ref)
	assert.False(t, ok)
}

func TestFileArchivePathRejectsNonReferences(t *testing.T) {
	archive := NewFileArchive(t.TempDir(), time.Hour)
	_, ok := archive.Path("../etc/passwd")
	assert.False(t, ok)
}

func TestFileArchivePruneMissingDir(t *testing.T) {
	removed, err := NewFileArchive(filepath.Join(t.TempDir(), "absent"), time.Hour).Prune()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSchedulePruneRejectsBadSchedule(t *testing.T) {
	_, err := NewFileArchive(t.TempDir(), time.Hour).SchedulePrune("not a schedule")
	require.Error(t, err)

	scheduler, err := NewFileArchive(t.TempDir(), time.Hour).SchedulePrune("@every 1h")
	require.NoError(t, err)
	<-scheduler.Stop().Done()
}
