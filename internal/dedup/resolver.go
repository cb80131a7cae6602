package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sergeymorykov/events-backend/internal/models"
	"github.com/sergeymorykov/events-backend/internal/retry"
)

const neighborTopK = 5

// DefaultSimilarityThreshold is the minimum nearest-neighbor score (inclusive)
// at which two embeddings are treated as the same real-world event.
const DefaultSimilarityThreshold = 0.92

// Resolution describes how a candidate was settled against the catalog.
type Resolution struct {
	EventID string
	Merged  bool
}

// Resolver classifies candidates as new or duplicate and persists them
// accordingly. The document store and vector index are its only shared state.
type Resolver struct {
	events    EventStore
	index     VectorIndex
	threshold float64
	locks     *hashLocks
	retries   retry.Policy
	logger    *slog.Logger
}

// NewResolver creates a resolver. A non-positive threshold falls back to the
// default.
func NewResolver(events EventStore, index VectorIndex, threshold float64, logger *slog.Logger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		events:    events,
		index:     index,
		threshold: threshold,
		locks:     newHashLocks(),
		retries:   retry.DefaultPolicy(),
		logger:    logger,
	}
}

// Resolve merges the candidate into an existing event or persists it as a new
// one. The candidate must carry its canonical hash and embedding.
//
// The check-then-insert section runs under a mutex keyed by the canonical
// hash, closing the race where two concurrently processed posts yield the
// same candidate before either is indexed.
func (r *Resolver) Resolve(ctx context.Context, cand models.EventCandidate) (Resolution, error) {
	if cand.CanonicalHash == "" {
		return Resolution{}, fmt.Errorf("candidate %q has no canonical hash", cand.Title)
	}

	release := r.locks.Acquire(cand.CanonicalHash)
	defer release()

	// Exact path: hash hit skips the vector search entirely.
	var existingID string
	err := retry.Do(ctx, r.retries, func() error {
		var lookupErr error
		existingID, lookupErr = r.events.FindIDByHash(ctx, cand.CanonicalHash)
		return lookupErr
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("hash lookup: %w", err)
	}

	if existingID != "" {
		r.logger.Info("exact duplicate",
			"title", cand.Title,
			"event_id", existingID,
			"hash", cand.CanonicalHash[:8])
		if err := r.merge(ctx, existingID, cand.Source); err != nil {
			return Resolution{}, err
		}
		return Resolution{EventID: existingID, Merged: true}, nil
	}

	// Approximate path.
	if len(cand.Embedding) > 0 {
		var neighbors []Neighbor
		err := retry.Do(ctx, r.retries, func() error {
			var queryErr error
			neighbors, queryErr = r.index.Query(ctx, cand.Embedding, neighborTopK, r.threshold)
			return queryErr
		})
		if err != nil {
			return Resolution{}, fmt.Errorf("vector query: %w", err)
		}

		if len(neighbors) > 0 && neighbors[0].Score >= r.threshold {
			best := neighbors[0]
			r.logger.Info("semantic duplicate",
				"title", cand.Title,
				"event_id", best.EventID,
				"score", best.Score,
				"threshold", r.threshold)
			if err := r.merge(ctx, best.EventID, cand.Source); err != nil {
				return Resolution{}, err
			}
			return Resolution{EventID: best.EventID, Merged: true}, nil
		}
	}

	return r.insert(ctx, cand)
}

func (r *Resolver) merge(ctx context.Context, eventID string, source models.EventSource) error {
	err := retry.Do(ctx, r.retries, func() error {
		return r.events.AppendSource(ctx, eventID, source)
	})
	if err != nil {
		return fmt.Errorf("append source to event %s: %w", eventID, err)
	}
	return nil
}

func (r *Resolver) insert(ctx context.Context, cand models.EventCandidate) (Resolution, error) {
	event := models.NewEventFromCandidate(uuid.NewString(), cand, time.Now().UTC())

	err := retry.Do(ctx, r.retries, func() error {
		return r.events.InsertEvent(ctx, event)
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("insert event: %w", err)
	}

	// The document write and the vector write form one logical append, but
	// only the document write is required for durability: a failed vector
	// upsert leaves the event discoverable via exact hash on replay, and the
	// index is reconciled by external maintenance.
	if len(cand.Embedding) > 0 {
		err = retry.Do(ctx, r.retries, func() error {
			return r.index.Upsert(ctx, event.ID, cand.Embedding, cand.CanonicalHash)
		})
		if err != nil {
			r.logger.Warn("vector index write failed, event remains hash-discoverable",
				"event_id", event.ID,
				"error", err)
		}
	}

	r.logger.Info("new event persisted",
		"title", cand.Title,
		"event_id", event.ID)

	return Resolution{EventID: event.ID, Merged: false}, nil
}
