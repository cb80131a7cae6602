package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/sergeymorykov/events-backend/internal/models"
)

// PostgresPostRepository stores captured posts in PostgreSQL.
type PostgresPostRepository struct {
	db *sql.DB
}

// NewPostgresPostRepository creates a new PostgreSQL post repository.
func NewPostgresPostRepository(db *sql.DB) *PostgresPostRepository {
	return &PostgresPostRepository{db: db}
}

// StorePost saves a captured post. Re-storing the same (channel, post_id)
// is a no-op; posts are immutable.
func (r *PostgresPostRepository) StorePost(ctx context.Context, post models.RawPost) error {
	query := `
		INSERT INTO raw_posts (channel, post_id, text, photo_refs, hashtags, message_date, post_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (channel, post_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		post.Channel,
		post.PostID,
		post.Text,
		pq.Array(post.PhotoRefs),
		pq.Array(post.Hashtags),
		post.MessageDate,
		post.PostURL,
	)
	if err != nil {
		return storeErr("failed to store post", err)
	}
	return nil
}

// ListUnprocessed returns posts without a processing record, oldest first.
func (r *PostgresPostRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.RawPost, error) {
	query := `
		SELECT p.channel, p.post_id, p.text, p.photo_refs, p.hashtags, p.message_date, p.post_url
		FROM raw_posts p
		LEFT JOIN processing_records r
		  ON r.channel = p.channel AND r.post_id = p.post_id
		WHERE r.channel IS NULL
		ORDER BY p.message_date, p.channel, p.post_id
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storeErr("failed to list unprocessed posts", err)
	}
	defer rows.Close()

	var posts []models.RawPost
	for rows.Next() {
		var post models.RawPost
		err := rows.Scan(
			&post.Channel,
			&post.PostID,
			&post.Text,
			pq.Array(&post.PhotoRefs),
			pq.Array(&post.Hashtags),
			&post.MessageDate,
			&post.PostURL,
		)
		if err != nil {
			return nil, storeErr("failed to scan post", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to read posts", err)
	}

	return posts, nil
}
