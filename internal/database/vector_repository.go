package database

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/sergeymorykov/events-backend/internal/dedup"
)

// PostgresVectorIndex implements the resolver's nearest-neighbor index on
// pgvector. Scores are cosine similarity, 1 - cosine distance.
type PostgresVectorIndex struct {
	db *sql.DB
}

// NewPostgresVectorIndex creates a new pgvector-backed index.
func NewPostgresVectorIndex(db *sql.DB) *PostgresVectorIndex {
	return &PostgresVectorIndex{db: db}
}

// Upsert stores the embedding for an event, replacing any previous one.
func (r *PostgresVectorIndex) Upsert(ctx context.Context, eventID string, embedding []float32, canonicalHash string) error {
	query := `
		INSERT INTO event_vectors (event_id, canonical_hash, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id)
		DO UPDATE SET canonical_hash = EXCLUDED.canonical_hash, embedding = EXCLUDED.embedding
	`

	_, err := r.db.ExecContext(ctx, query, eventID, canonicalHash, pgvector.NewVector(embedding))
	if err != nil {
		return storeErr("failed to upsert embedding", err)
	}
	return nil
}

// Query returns up to topK neighbors with similarity >= minScore, best first.
func (r *PostgresVectorIndex) Query(ctx context.Context, embedding []float32, topK int, minScore float64) ([]dedup.Neighbor, error) {
	query := `
		SELECT event_id, 1 - (embedding <=> $1) AS score
		FROM event_vectors
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(embedding), minScore, topK)
	if err != nil {
		return nil, storeErr("failed to query neighbors", err)
	}
	defer rows.Close()

	var neighbors []dedup.Neighbor
	for rows.Next() {
		var n dedup.Neighbor
		if err := rows.Scan(&n.EventID, &n.Score); err != nil {
			return nil, storeErr("failed to scan neighbor", err)
		}
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to read neighbors", err)
	}

	return neighbors, nil
}
