package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/auth"
	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/db"
	"github.com/udaypartap979/cal2/internal/media"
	"github.com/udaypartap979/cal2/internal/metrics"
	"github.com/udaypartap979/cal2/internal/pipeline"
	"github.com/udaypartap979/cal2/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sentText struct {
	to   string
	body string
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentText
}

func (m *recordingMessenger) SendText(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentText{to: to, body: body})
	return nil
}

func (m *recordingMessenger) messages() []sentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentText(nil), m.sent...)
}

type staticTranscriber struct {
	text string
}

func (s staticTranscriber) Transcribe(context.Context, ai.Audio, string) (string, error) {
	return s.text, nil
}

type mediaSource struct{}

func (mediaSource) Fetch(context.Context, string) (media.Media, error) {
	return media.Media{Bytes: []byte("voice"), MIMEType: "audio/ogg"}, nil
}

type testEnv struct {
	cfg       config.Config
	app       *App
	router    *gin.Engine
	messenger *recordingMessenger
	logger    *store.SQLiteLogger
}

func newTestConfig() config.Config {
	return config.Config{
		AppEnv:                 "test",
		APIPrefix:              "/api/v1",
		CORSAllowOrigins:       []string{"http://localhost:3000"},
		JWTSecret:              "server-test-secret-value",
		JWTAlgorithm:           "HS256",
		WhatsAppVerifyToken:    "verify-me",
		DeliveryTimeoutSeconds: 5,
		MediaMaxBytes:          1 << 20,
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := newTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	logger, err := store.NewSQLiteLogger(context.Background(), conn)
	if err != nil {
		t.Fatalf("init sqlite logger: %v", err)
	}

	client := ai.MockClient{}
	messenger := &recordingMessenger{}
	m := metrics.New()
	orchestrator := pipeline.New(pipeline.Deps{
		Analyzer: analysis.NewAnalyzer(
			analysis.NewClassifier(client),
			analysis.NewExtractor(client, analysis.ExtractorOptions{WeightKg: 70, DeviceBias: 1}),
		),
		Media:       mediaSource{},
		Transcriber: staticTranscriber{text: "had poha and walked 30 minutes"},
		Logger:      logger,
		Messenger:   messenger,
		Metrics:     m,
	})

	app := New(cfg, orchestrator, logger, m)
	return &testEnv{cfg: cfg, app: app, router: app.Router(), messenger: messenger, logger: logger}
}

func signToken(t *testing.T, cfg config.Config, sub string) string {
	t.Helper()
	token, err := auth.Issue(cfg, sub, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func performRequest(
	t *testing.T,
	router http.Handler,
	method, targetPath, token string,
	body any,
	headers map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		payload = v
	default:
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, targetPath, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSONMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response JSON: %v; body=%s", err, rec.Body.String())
	}
	return payload
}

func responseDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeJSONMap(t, rec)
	detail, _ := body["detail"].(string)
	return detail
}
