package ingestion

import (
	"context"
	"sync"

	"github.com/sergeymorykov/events-backend/internal/models"
)

// PostRepository provides access to captured raw posts.
type PostRepository interface {
	// ListUnprocessed returns posts with no processing record, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]models.RawPost, error)

	// StorePost saves a captured post. Storing the same (channel, post_id)
	// twice is a no-op.
	StorePost(ctx context.Context, post models.RawPost) error
}

// ProcessingRepository records which posts completed the pipeline.
type ProcessingRepository interface {
	// IsProcessed reports whether the post already has a processing record.
	IsProcessed(ctx context.Context, channel string, postID int64) (bool, error)

	// MarkProcessed writes the post's processing record. Writing a record
	// that already exists is a no-op.
	MarkProcessed(ctx context.Context, record models.ProcessingRecord) error
}

// MemoryStore implements both repositories in memory for tests and
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	posts   []models.RawPost
	present map[string]bool
	records map[string]models.ProcessingRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		present: make(map[string]bool),
		records: make(map[string]models.ProcessingRecord),
	}
}

// StorePost saves a post, ignoring duplicates by identity.
func (s *MemoryStore) StorePost(_ context.Context, post models.RawPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.present[post.Key()] {
		return nil
	}
	s.present[post.Key()] = true
	s.posts = append(s.posts, post)
	return nil
}

// ListUnprocessed returns stored posts without a processing record, in
// insertion order.
func (s *MemoryStore) ListUnprocessed(_ context.Context, limit int) ([]models.RawPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var batch []models.RawPost
	for _, post := range s.posts {
		if _, done := s.records[post.Key()]; done {
			continue
		}
		batch = append(batch, post)
		if limit > 0 && len(batch) >= limit {
			break
		}
	}
	return batch, nil
}

// IsProcessed reports whether a processing record exists for the post.
func (s *MemoryStore) IsProcessed(_ context.Context, channel string, postID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[recordKey(channel, postID)]
	return ok, nil
}

// MarkProcessed stores the processing record, keeping the first write.
func (s *MemoryStore) MarkProcessed(_ context.Context, record models.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.Channel, record.PostID)
	if _, ok := s.records[key]; ok {
		return nil
	}
	s.records[key] = record
	return nil
}

// Record returns the processing record for a post, if present.
func (s *MemoryStore) Record(channel string, postID int64) (models.ProcessingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey(channel, postID)]
	return rec, ok
}

func recordKey(channel string, postID int64) string {
	return models.RawPost{Channel: channel, PostID: postID}.Key()
}
