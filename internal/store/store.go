// Package store persists analysis results. Persistence failures are never
// surfaced to the user; callers log them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/db"
)

var ErrPersistenceFailed = errors.New("persistence failed")

// Entry is one logged analysis.
type Entry struct {
	ID            string
	UserID        string
	MessageID     string
	Kind          string
	Calories      int
	Record        json.RawMessage
	Transcript    string
	Media         []byte
	MediaMIMEType string
	Source        string
	CreatedAt     time.Time
}

type AnalysisLogger interface {
	PersistAnalysis(ctx context.Context, entry Entry) error
}

// HistoryReader is implemented by loggers that can list past entries.
type HistoryReader interface {
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
}

const (
	SourceWebhook  = "webhook"
	SourceAPI      = "api"
	SourceFallback = "fallback"
)

// NewEntry serializes record and resolves its total energy.
func NewEntry(userID, messageID, source string, record analysis.Record) (Entry, error) {
	if record == nil {
		return Entry{}, fmt.Errorf("%w: nil record", ErrPersistenceFailed)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: encode record: %v", ErrPersistenceFailed, err)
	}
	entry := Entry{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(userID),
		MessageID: strings.TrimSpace(messageID),
		Kind:      string(record.Kind()),
		Calories:  analysis.ResolveTotalEnergy(record),
		Record:    raw,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if composite, ok := record.(*analysis.CompositeRecord); ok && composite != nil {
		entry.Transcript = composite.Transcript
	}
	return entry, nil
}

func (e Entry) WithMedia(data []byte, mimeType string) Entry {
	e.Media = data
	e.MediaMIMEType = strings.TrimSpace(mimeType)
	return e
}

func (e Entry) normalized() (Entry, error) {
	if strings.TrimSpace(e.UserID) == "" {
		return e, fmt.Errorf("%w: user id is required", ErrPersistenceFailed)
	}
	if len(e.Record) == 0 || !json.Valid(e.Record) {
		return e, fmt.Errorf("%w: record is not valid JSON", ErrPersistenceFailed)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Calories < 0 {
		e.Calories = 0
	}
	return e, nil
}

// Nop discards every entry. It backs STORAGE_DRIVER=none.
type Nop struct{}

func (Nop) PersistAnalysis(context.Context, Entry) error { return nil }

// Open builds the logger selected by STORAGE_DRIVER. The returned close
// function is never nil.
func Open(ctx context.Context, cfg config.Config) (AnalysisLogger, func(), error) {
	switch cfg.StorageDriver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, err
		}
		if err := ValidateRuntimeSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return NewPostgresLogger(pool), pool.Close, nil
	case "sqlite":
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		logger, err := NewSQLiteLogger(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, func() {}, err
		}
		return logger, func() { _ = conn.Close() }, nil
	case "none", "":
		return Nop{}, func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
