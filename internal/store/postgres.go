package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresLogger(pool *pgxpool.Pool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) PersistAnalysis(ctx context.Context, entry Entry) error {
	entry, err := entry.normalized()
	if err != nil {
		return err
	}
	if _, err := l.pool.Exec(
		ctx,
		`INSERT INTO "AnalysisLog" (
			id, "userId", "messageId", kind, calories, record, transcript, media, "mediaMimeType", source, "createdAt"
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11)`,
		entry.ID,
		entry.UserID,
		entry.MessageID,
		entry.Kind,
		entry.Calories,
		string(entry.Record),
		entry.Transcript,
		entry.Media,
		entry.MediaMIMEType,
		entry.Source,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("%w: insert analysis log: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// Recent returns the newest entries for a user, media omitted.
func (l *PostgresLogger) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(
		ctx,
		`SELECT id::text, "userId", "messageId", kind, calories, record::text, transcript, "mediaMimeType", source, "createdAt"
		 FROM "AnalysisLog"
		 WHERE "userId" = $1
		 ORDER BY "createdAt" DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var record string
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.MessageID, &entry.Kind, &entry.Calories,
			&record, &entry.Transcript, &entry.MediaMIMEType, &entry.Source, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis log: %w", err)
		}
		entry.Record = []byte(record)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ValidateRuntimeSchema fails fast when the AnalysisLog table has not been
// migrated.
func ValidateRuntimeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	requiredColumns := []string{
		"id", "userId", "messageId", "kind", "calories", "record",
		"transcript", "media", "mediaMimeType", "source", "createdAt",
	}
	for _, column := range requiredColumns {
		ok, err := columnExists(ctx, pool, "AnalysisLog", column)
		if err != nil {
			return fmt.Errorf("failed checking schema for AnalysisLog.%s: %w", column, err)
		}
		if !ok {
			return fmt.Errorf("required column AnalysisLog.%s is missing; apply migrations/001_analysis_log.sql", column)
		}
	}
	return nil
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	table := strings.TrimSpace(tableName)
	column := strings.TrimSpace(columnName)
	if table == "" || column == "" {
		return false, fmt.Errorf("table/column must not be empty")
	}
	var exists bool
	err := pool.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM information_schema.columns
		   WHERE table_schema = current_schema()
		     AND lower(table_name) = lower($1)
		     AND lower(column_name) = lower($2)
		 )`,
		table,
		column,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
