package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/sergeymorykov/events-backend/internal/models"
)

// PostgresProcessingRepository stores processing records in PostgreSQL.
type PostgresProcessingRepository struct {
	db *sql.DB
}

// NewPostgresProcessingRepository creates a new PostgreSQL processing
// repository.
func NewPostgresProcessingRepository(db *sql.DB) *PostgresProcessingRepository {
	return &PostgresProcessingRepository{db: db}
}

// IsProcessed reports whether the post already has a processing record.
func (r *PostgresProcessingRepository) IsProcessed(ctx context.Context, channel string, postID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM processing_records WHERE channel = $1 AND post_id = $2)",
		channel, postID,
	).Scan(&exists)
	if err != nil {
		return false, storeErr("failed to check processing record", err)
	}
	return exists, nil
}

// MarkProcessed writes the post's processing record, keeping the first write
// when the record already exists.
func (r *PostgresProcessingRepository) MarkProcessed(ctx context.Context, record models.ProcessingRecord) error {
	query := `
		INSERT INTO processing_records (channel, post_id, status, event_ids, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel, post_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		record.Channel,
		record.PostID,
		record.Status,
		pq.Array(record.EventIDs),
		record.CompletedAt,
	)
	if err != nil {
		return storeErr("failed to mark post processed", err)
	}
	return nil
}
