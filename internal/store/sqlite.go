package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sqliteTimeLayout is fixed width so created_at text sorts chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteLogger struct {
	db *sql.DB
}

func NewSQLiteLogger(ctx context.Context, conn *sql.DB) (*SQLiteLogger, error) {
	logger := &SQLiteLogger{db: conn}
	if err := logger.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return logger, nil
}

func (l *SQLiteLogger) initSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS analysis_log (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        message_id TEXT NOT NULL DEFAULT '',
        kind TEXT NOT NULL,
        calories INTEGER NOT NULL DEFAULT 0,
        record TEXT NOT NULL,
        transcript TEXT NOT NULL DEFAULT '',
        media BLOB,
        media_mime_type TEXT NOT NULL DEFAULT '',
        source TEXT NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_analysis_log_user_created ON analysis_log(user_id, created_at);
    `
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (l *SQLiteLogger) PersistAnalysis(ctx context.Context, entry Entry) error {
	entry, err := entry.normalized()
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `
        INSERT INTO analysis_log (id, user_id, message_id, kind, calories, record, transcript, media, media_mime_type, source, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		entry.ID, entry.UserID, entry.MessageID, entry.Kind, entry.Calories,
		string(entry.Record), entry.Transcript, entry.Media, entry.MediaMIMEType,
		entry.Source, entry.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: insert analysis log: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// Recent returns the newest entries for a user, media omitted.
func (l *SQLiteLogger) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
        SELECT id, user_id, message_id, kind, calories, record, transcript, media_mime_type, source, created_at
        FROM analysis_log
        WHERE user_id = ?
        ORDER BY created_at DESC
        LIMIT ?
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var record, createdAt string
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.MessageID, &entry.Kind, &entry.Calories,
			&record, &entry.Transcript, &entry.MediaMIMEType, &entry.Source, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis log: %w", err)
		}
		entry.Record = []byte(record)
		if parsed, err := time.Parse(sqliteTimeLayout, createdAt); err == nil {
			entry.CreatedAt = parsed
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
