// Package media downloads inbound message attachments from the messaging
// platform.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/udaypartap979/cal2/internal/config"
)

// ErrMediaUnavailable is returned once every download attempt has failed.
var ErrMediaUnavailable = errors.New("media unavailable")

type Media struct {
	Bytes    []byte
	MIMEType string
}

type Options struct {
	GraphBaseURL string
	Token        string
	MaxRetries   int
	Backoff      time.Duration
	MaxBytes     int64
	HTTPClient   *http.Client
	// OnAttempt observes every download attempt; outcome is "ok" or "error".
	OnAttempt func(attempt int, outcome string)
}

type Fetcher struct {
	graphBaseURL string
	token        string
	maxRetries   int
	backoff      time.Duration
	maxBytes     int64
	httpClient   *http.Client
	onAttempt    func(attempt int, outcome string)
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewFetcher(opts Options) *Fetcher {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 300 * time.Millisecond
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 25 << 20
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		graphBaseURL: strings.TrimRight(strings.TrimSpace(opts.GraphBaseURL), "/"),
		token:        strings.TrimSpace(opts.Token),
		maxRetries:   opts.MaxRetries,
		backoff:      opts.Backoff,
		maxBytes:     opts.MaxBytes,
		httpClient:   opts.HTTPClient,
		onAttempt:    opts.OnAttempt,
		sleep:        sleepContext,
	}
}

func NewFetcherFromConfig(cfg config.Config, onAttempt func(int, string)) *Fetcher {
	timeoutSeconds := cfg.MediaTimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return NewFetcher(Options{
		GraphBaseURL: cfg.WhatsAppGraphBaseURL,
		Token:        cfg.WhatsAppToken,
		MaxRetries:   cfg.MediaMaxRetries,
		Backoff:      time.Duration(cfg.MediaBackoffMillis) * time.Millisecond,
		MaxBytes:     cfg.MediaMaxBytes,
		HTTPClient:   &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		OnAttempt:    onAttempt,
	})
}

type mediaMetadata struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
}

// Fetch resolves the media id to a temporary URL and downloads it.
func (f *Fetcher) Fetch(ctx context.Context, mediaID string) (Media, error) {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return Media{}, fmt.Errorf("%w: empty media id", ErrMediaUnavailable)
	}
	meta, err := f.lookup(ctx, mediaID)
	if err != nil {
		return Media{}, fmt.Errorf("%w: lookup %s: %v", ErrMediaUnavailable, mediaID, err)
	}
	body, err := f.Download(ctx, meta.URL)
	if err != nil {
		return Media{}, err
	}
	return Media{Bytes: body, MIMEType: meta.MIMEType}, nil
}

func (f *Fetcher) lookup(ctx context.Context, mediaID string) (mediaMetadata, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, f.graphBaseURL+"/"+mediaID, nil)
	if err != nil {
		return mediaMetadata{}, err
	}
	request.Header.Set("Authorization", "Bearer "+f.token)

	response, err := f.httpClient.Do(request)
	if err != nil {
		return mediaMetadata{}, err
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if err != nil {
		return mediaMetadata{}, err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return mediaMetadata{}, fmt.Errorf("graph media lookup error (%d): %s", response.StatusCode, strings.TrimSpace(string(raw)))
	}

	var meta mediaMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return mediaMetadata{}, fmt.Errorf("decode media metadata: %w", err)
	}
	if strings.TrimSpace(meta.URL) == "" {
		return mediaMetadata{}, errors.New("media metadata has no url")
	}
	return meta, nil
}

// Download fetches url with up to maxRetries additional attempts. The first
// attempt is anonymous; later attempts carry the bearer token.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		body, err := f.downloadOnce(ctx, url, attempt > 0)
		if err == nil {
			f.observe(attempt, "ok")
			return body, nil
		}
		f.observe(attempt, "error")
		lastErr = err
		log.Printf("media download failed attempt=%d auth=%t err=%v", attempt, attempt > 0, err)

		if attempt == f.maxRetries {
			break
		}
		if err := f.sleep(ctx, f.backoff*time.Duration(1<<attempt)); err != nil {
			lastErr = err
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, lastErr)
}

func (f *Fetcher) downloadOnce(ctx context.Context, url string, withAuth bool) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if withAuth && f.token != "" {
		request.Header.Set("Authorization", "Bearer "+f.token)
	}

	response, err := f.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4<<10))
		return nil, fmt.Errorf("media download status %d", response.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", f.maxBytes)
	}
	return body, nil
}

func (f *Fetcher) observe(attempt int, outcome string) {
	if f.onAttempt != nil {
		f.onAttempt(attempt, outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
