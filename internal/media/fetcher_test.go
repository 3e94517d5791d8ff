package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func newTestFetcher(baseURL string, retries int, sleeps *recordedSleeps) *Fetcher {
	f := NewFetcher(Options{
		GraphBaseURL: baseURL,
		Token:        "graph-token",
		MaxRetries:   retries,
		Backoff:      10 * time.Millisecond,
		MaxBytes:     1024,
	})
	f.sleep = sleeps.sleep
	return f
}

func TestFetchAuthenticatesOnlyFromSecondAttempt(t *testing.T) {
	var mu sync.Mutex
	var downloadAuth []string

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media-1":
			if r.Header.Get("Authorization") != "Bearer graph-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"url":"` + srv.URL + `/download/media-1","mime_type":"audio/ogg"}`))
		case "/download/media-1":
			mu.Lock()
			downloadAuth = append(downloadAuth, r.Header.Get("Authorization"))
			mu.Unlock()
			if r.Header.Get("Authorization") == "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte("OggS-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	got, err := newTestFetcher(srv.URL, 3, sleeps).Fetch(context.Background(), "media-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS-bytes"), got.Bytes)
	assert.Equal(t, "audio/ogg", got.MIMEType)
	assert.Equal(t, []string{"", "Bearer graph-token"}, downloadAuth)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, sleeps.delays)
}

func TestDownloadGivesUpAfterRetryBudget(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var outcomes []string
	sleeps := &recordedSleeps{}
	f := newTestFetcher(srv.URL, 3, sleeps)
	f.onAttempt = func(_ int, outcome string) { outcomes = append(outcomes, outcome) }

	_, err := f.Download(context.Background(), srv.URL+"/file")
	require.ErrorIs(t, err, ErrMediaUnavailable)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []string{"error", "error", "error", "error"}, outcomes)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, sleeps.delays)
}

func TestDownloadZeroRetriesMakesOneAnonymousAttempt(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL, 0, &recordedSleeps{}).Download(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrMediaUnavailable)
	assert.Equal(t, []string{""}, auth)
}

func TestDownloadRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL, 1, &recordedSleeps{}).Download(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrMediaUnavailable)
}

func TestFetchLookupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"Unsupported get request"}}`))
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL, 2, &recordedSleeps{}).Fetch(context.Background(), "missing")
	require.ErrorIs(t, err, ErrMediaUnavailable)

	_, err = newTestFetcher(srv.URL, 2, &recordedSleeps{}).Fetch(context.Background(), " ")
	require.ErrorIs(t, err, ErrMediaUnavailable)
}

func TestSleepContextHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
