package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/sergeymorykov/events-backend/internal/models"
)

// PostgresEventStore implements the resolver's event store on PostgreSQL.
type PostgresEventStore struct {
	db *sql.DB
}

// NewPostgresEventStore creates a new PostgreSQL event store.
func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// InsertEvent persists a new event with its canonical hash.
func (r *PostgresEventStore) InsertEvent(ctx context.Context, event models.Event) error {
	scheduleJSON, err := nullableJSON(event.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}
	priceJSON, err := nullableJSON(event.Price)
	if err != nil {
		return fmt.Errorf("failed to marshal price: %w", err)
	}
	sourcesJSON, err := json.Marshal(event.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	query := `
		INSERT INTO events (
			id, title, description, schedule, location, address, price,
			categories, user_interests, images, poster_generated,
			canonical_hash, sources, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.Title,
		event.Description,
		scheduleJSON,
		event.Location,
		event.Address,
		priceJSON,
		pq.Array(event.Categories),
		pq.Array(event.UserInterests),
		pq.Array(event.Images),
		event.PosterGenerated,
		event.CanonicalHash,
		sourcesJSON,
		event.CreatedAt,
	)
	if err != nil {
		return storeErr("failed to insert event", err)
	}

	return nil
}

// FindIDByHash returns the id of the event owning the canonical hash, or ""
// when no event does.
func (r *PostgresEventStore) FindIDByHash(ctx context.Context, canonicalHash string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		"SELECT id FROM events WHERE canonical_hash = $1", canonicalHash,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storeErr("failed to look up canonical hash", err)
	}
	return id, nil
}

// AppendSource adds a source to an event's sources array unless one with the
// same (channel, post_id) is already present. The jsonb containment check
// makes the append idempotent without a read-modify-write cycle.
func (r *PostgresEventStore) AppendSource(ctx context.Context, eventID string, source models.EventSource) error {
	sourceJSON, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("failed to marshal source: %w", err)
	}
	identityJSON, err := json.Marshal([]map[string]any{{
		"channel": source.Channel,
		"post_id": source.PostID,
	}})
	if err != nil {
		return fmt.Errorf("failed to marshal source identity: %w", err)
	}

	query := `
		UPDATE events
		SET sources = sources || $2::jsonb
		WHERE id = $1 AND NOT sources @> $3::jsonb
	`

	_, err = r.db.ExecContext(ctx, query, eventID, sourceJSON, identityJSON)
	if err != nil {
		return storeErr("failed to append source", err)
	}
	return nil
}

// GetEvent retrieves an event by id, or nil when absent.
func (r *PostgresEventStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	query := `
		SELECT id, title, description, schedule, location, address, price,
		       categories, user_interests, images, poster_generated,
		       canonical_hash, sources, created_at
		FROM events
		WHERE id = $1
	`

	var event models.Event
	var scheduleJSON, priceJSON, sourcesJSON []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&scheduleJSON,
		&event.Location,
		&event.Address,
		&priceJSON,
		pq.Array(&event.Categories),
		pq.Array(&event.UserInterests),
		pq.Array(&event.Images),
		&event.PosterGenerated,
		&event.CanonicalHash,
		&sourcesJSON,
		&event.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to get event", err)
	}

	if len(scheduleJSON) > 0 {
		if err := json.Unmarshal(scheduleJSON, &event.Schedule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
		}
	}
	if len(priceJSON) > 0 {
		if err := json.Unmarshal(priceJSON, &event.Price); err != nil {
			return nil, fmt.Errorf("failed to unmarshal price: %w", err)
		}
	}
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &event.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}

	return &event, nil
}

// nullableJSON marshals v, mapping a nil pointer to SQL NULL.
func nullableJSON(v any) (any, error) {
	switch val := v.(type) {
	case *models.Schedule:
		if val == nil {
			return nil, nil
		}
	case *models.PriceInfo:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
