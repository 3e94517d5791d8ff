package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/auth"
	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/store"
)

var ErrFallbackFailed = errors.New("audio fallback failed")

const fallbackTokenTTL = 5 * time.Minute

// AnalyzeResponse is the body returned by the analysis endpoints.
type AnalyzeResponse struct {
	Kind     string          `json:"kind"`
	Calories int             `json:"calories"`
	Reply    string          `json:"reply"`
	Record   json.RawMessage `json:"record"`
}

// LogRequest is the body accepted by the log endpoint.
type LogRequest struct {
	UserID    string          `json:"user_id"`
	MessageID string          `json:"message_id"`
	Kind      string          `json:"kind"`
	Source    string          `json:"source"`
	Record    json.RawMessage `json:"record"`
}

// HTTPFallback sends a voice note to the service's own public audio endpoint,
// skipping preprocessing, and logs the result through the log endpoint.
type HTTPFallback struct {
	cfg        config.Config
	baseURL    string
	httpClient *http.Client
}

func NewHTTPFallback(cfg config.Config) *HTTPFallback {
	timeout := time.Duration(cfg.AITimeoutSeconds) * time.Second * 2
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPFallback{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.PublicBaseURL, "/") + "/" + strings.Trim(cfg.APIPrefix, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFallback) AnalyzeAudio(ctx context.Context, audio ai.Audio, userID, messageID string) (*analysis.CompositeRecord, error) {
	token, err := auth.Issue(f.cfg, auth.ServiceSubject, fallbackTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign token: %v", ErrFallbackFailed, err)
	}

	body, contentType, err := fallbackForm(audio, userID, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFallbackFailed, err)
	}
	var analyzed AnalyzeResponse
	if err := f.post(ctx, "/analyze-audio", token, contentType, body, &analyzed); err != nil {
		return nil, err
	}

	var record analysis.CompositeRecord
	if err := json.Unmarshal(analyzed.Record, &record); err != nil {
		return nil, fmt.Errorf("%w: decode record: %v", ErrFallbackFailed, err)
	}

	logBody, err := json.Marshal(LogRequest{
		UserID:    userID,
		MessageID: messageID,
		Kind:      string(analysis.KindComposite),
		Source:    store.SourceFallback,
		Record:    analyzed.Record,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode log request: %v", ErrFallbackFailed, err)
	}
	if err := f.post(ctx, "/log-analysis", token, "application/json", bytes.NewReader(logBody), nil); err != nil {
		return nil, err
	}
	return &record, nil
}

func (f *HTTPFallback) post(ctx context.Context, path, token, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrFallbackFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFallbackFailed, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s status=%d body=%s", ErrFallbackFailed, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrFallbackFailed, path, err)
	}
	return nil
}

func fallbackForm(audio ai.Audio, userID, messageID string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"preprocess": "false",
		"user_id":    userID,
		"message_id": messageID,
		"mime_type":  audio.MIMEType,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	filename := audio.Filename
	if filename == "" {
		filename = "voice-note" + ai.ExtensionFor(audio.MIMEType)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
