package dedup

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/sergeymorykov/events-backend/internal/models"
)

// EventStore is the document-store contract the resolver needs: insert,
// exact-hash lookup, and source merging.
type EventStore interface {
	// InsertEvent persists a new event and its canonical hash.
	InsertEvent(ctx context.Context, event models.Event) error

	// FindIDByHash returns the id of the event owning the canonical hash,
	// or "" when no event does.
	FindIDByHash(ctx context.Context, canonicalHash string) (string, error)

	// AppendSource adds a source to an existing event unless one with the
	// same (channel, post_id) is already recorded. Descriptive fields are
	// never touched.
	AppendSource(ctx context.Context, eventID string, source models.EventSource) error

	// GetEvent retrieves an event by id, or nil when absent.
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// Neighbor is one nearest-neighbor hit from the vector index.
type Neighbor struct {
	EventID string
	Score   float64
}

// VectorIndex is the nearest-neighbor index contract.
type VectorIndex interface {
	// Upsert stores the embedding for an event, replacing any previous one.
	Upsert(ctx context.Context, eventID string, embedding []float32, canonicalHash string) error

	// Query returns up to topK neighbors with score >= minScore, best first.
	Query(ctx context.Context, embedding []float32, topK int, minScore float64) ([]Neighbor, error)
}

// MemoryEventStore is an in-memory EventStore for tests and development.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string]models.Event
	byHash map[string]string
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events: make(map[string]models.Event),
		byHash: make(map[string]string),
	}
}

// InsertEvent stores the event in memory.
func (s *MemoryEventStore) InsertEvent(ctx context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	if event.CanonicalHash != "" {
		s.byHash[event.CanonicalHash] = event.ID
	}
	return nil
}

// FindIDByHash looks up an event id by canonical hash.
func (s *MemoryEventStore) FindIDByHash(ctx context.Context, canonicalHash string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byHash[canonicalHash], nil
}

// AppendSource adds a source if (channel, post_id) is not yet recorded.
func (s *MemoryEventStore) AppendSource(ctx context.Context, eventID string, source models.EventSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil
	}
	if event.HasSource(source.Channel, source.PostID) {
		return nil
	}
	event.Sources = append(event.Sources, source)
	s.events[eventID] = event
	return nil
}

// GetEvent retrieves an event by id.
func (s *MemoryEventStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &event, nil
}

// Count returns the number of stored events.
func (s *MemoryEventStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

type memoryVectorEntry struct {
	eventID   string
	embedding []float32
}

// MemoryVectorIndex is an in-memory VectorIndex using cosine similarity.
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	entries map[string]memoryVectorEntry
}

// NewMemoryVectorIndex creates an empty in-memory vector index.
func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{entries: make(map[string]memoryVectorEntry)}
}

// Upsert stores the embedding for an event.
func (i *MemoryVectorIndex) Upsert(ctx context.Context, eventID string, embedding []float32, canonicalHash string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[eventID] = memoryVectorEntry{eventID: eventID, embedding: embedding}
	return nil
}

// Query scans all entries and returns neighbors above minScore, best first.
func (i *MemoryVectorIndex) Query(ctx context.Context, embedding []float32, topK int, minScore float64) ([]Neighbor, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var neighbors []Neighbor
	for _, entry := range i.entries {
		score := CosineSimilarity(embedding, entry.embedding)
		if score >= minScore {
			neighbors = append(neighbors, Neighbor{EventID: entry.eventID, Score: score})
		}
	}

	sortNeighbors(neighbors)
	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}
	return neighbors, nil
}

func sortNeighbors(neighbors []Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Score > neighbors[j].Score })
}

// CosineSimilarity computes the cosine similarity of two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
