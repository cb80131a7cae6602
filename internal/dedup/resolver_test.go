package dedup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sergeymorykov/events-backend/internal/models"
	"github.com/sergeymorykov/events-backend/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidate(title string, channel string, postID int64) models.EventCandidate {
	start := time.Date(2025, 1, 11, 20, 0, 0, 0, time.UTC)
	cand := models.EventCandidate{
		Title:    title,
		Schedule: models.NewExactSchedule(start, nil),
		Location: "City Hall",
		Source: models.EventSource{
			Channel:    channel,
			PostID:     postID,
			PostURL:    "https://t.me/c/1",
			IngestedAt: time.Now().UTC(),
		},
		Embedding: []float32{1, 0, 0},
	}
	cand.CanonicalHash = CanonicalHash(cand.Title, cand.Schedule, cand.Location)
	return cand
}

func TestResolve_NewEventPersistedAndIndexed(t *testing.T) {
	events := NewMemoryEventStore()
	index := NewMemoryVectorIndex()
	resolver := NewResolver(events, index, 0.92, testLogger())

	res, err := resolver.Resolve(context.Background(), candidate("Jazz Night", "chan_a", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Merged {
		t.Error("first candidate must not be a merge")
	}
	if events.Count() != 1 {
		t.Fatalf("expected 1 event, got %d", events.Count())
	}

	event, _ := events.GetEvent(context.Background(), res.EventID)
	if event == nil || len(event.Sources) != 1 {
		t.Fatalf("expected persisted event with one source, got %+v", event)
	}

	neighbors, err := index.Query(context.Background(), []float32{1, 0, 0}, 5, 0.9)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].EventID != res.EventID {
		t.Errorf("expected the new event in the vector index, got %v", neighbors)
	}
}

func TestResolve_ExactDuplicateMergesSources(t *testing.T) {
	events := NewMemoryEventStore()
	index := NewMemoryVectorIndex()
	resolver := NewResolver(events, index, 0.92, testLogger())

	first, err := resolver.Resolve(context.Background(), candidate("Jazz Night", "chan_a", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := resolver.Resolve(context.Background(), candidate("Jazz Night", "chan_b", 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !second.Merged {
		t.Error("matching hash must merge")
	}
	if second.EventID != first.EventID {
		t.Errorf("merge must target original event %s, got %s", first.EventID, second.EventID)
	}
	if events.Count() != 1 {
		t.Fatalf("expected 1 event after merge, got %d", events.Count())
	}

	event, _ := events.GetEvent(context.Background(), first.EventID)
	if len(event.Sources) != 2 {
		t.Fatalf("expected 2 sources after merge, got %d", len(event.Sources))
	}
	if event.Sources[0].Channel != "chan_a" || event.Sources[1].Channel != "chan_b" {
		t.Errorf("unexpected source order: %+v", event.Sources)
	}
}

func TestResolve_MergeIsIdempotentPerSource(t *testing.T) {
	events := NewMemoryEventStore()
	resolver := NewResolver(events, NewMemoryVectorIndex(), 0.92, testLogger())

	first, _ := resolver.Resolve(context.Background(), candidate("Jazz Night", "chan_a", 1))
	resolver.Resolve(context.Background(), candidate("Jazz Night", "chan_a", 1))

	event, _ := events.GetEvent(context.Background(), first.EventID)
	if len(event.Sources) != 1 {
		t.Fatalf("replayed source must not duplicate, got %d sources", len(event.Sources))
	}
}

func TestResolve_MergeNeverOverwritesDescriptiveFields(t *testing.T) {
	events := NewMemoryEventStore()
	resolver := NewResolver(events, NewMemoryVectorIndex(), 0.92, testLogger())

	first := candidate("Jazz Night", "chan_a", 1)
	first.Description = "original description"
	res, _ := resolver.Resolve(context.Background(), first)

	second := candidate("Jazz Night", "chan_b", 2)
	second.Description = "a different take"
	resolver.Resolve(context.Background(), second)

	event, _ := events.GetEvent(context.Background(), res.EventID)
	if event.Description != "original description" {
		t.Errorf("descriptive fields must be frozen at first insertion, got %q", event.Description)
	}
}

// scriptedIndex returns a fixed neighbor list regardless of the query vector.
type scriptedIndex struct {
	neighbors []Neighbor
	upserts   int
}

func (s *scriptedIndex) Upsert(ctx context.Context, eventID string, embedding []float32, canonicalHash string) error {
	s.upserts++
	return nil
}

func (s *scriptedIndex) Query(ctx context.Context, embedding []float32, topK int, minScore float64) ([]Neighbor, error) {
	var out []Neighbor
	for _, n := range s.neighbors {
		if n.Score >= minScore {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestResolve_ThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	seed := func(score float64) (*MemoryEventStore, *scriptedIndex, string) {
		events := NewMemoryEventStore()
		existing := models.Event{
			ID:            "existing-id",
			Title:         "Jazz Night",
			CanonicalHash: "unrelated-hash",
			Sources:       []models.EventSource{{Channel: "chan_a", PostID: 1}},
		}
		events.InsertEvent(ctx, existing)
		return events, &scriptedIndex{neighbors: []Neighbor{{EventID: "existing-id", Score: score}}}, existing.ID
	}

	t.Run("exactly at threshold is a duplicate", func(t *testing.T) {
		events, index, existingID := seed(0.92)
		resolver := NewResolver(events, index, 0.92, testLogger())

		res, err := resolver.Resolve(ctx, candidate("Jazz Evening", "chan_b", 2))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Merged || res.EventID != existingID {
			t.Errorf("score == threshold must merge, got %+v", res)
		}
		if events.Count() != 1 {
			t.Errorf("no new event expected, got %d", events.Count())
		}
	})

	t.Run("strictly below threshold is new", func(t *testing.T) {
		events, index, _ := seed(0.9199)
		resolver := NewResolver(events, index, 0.92, testLogger())

		res, err := resolver.Resolve(ctx, candidate("Jazz Evening", "chan_b", 2))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Merged {
			t.Error("score below threshold must create a new event")
		}
		if events.Count() != 2 {
			t.Errorf("expected 2 events, got %d", events.Count())
		}
	})
}

func TestResolve_ExactHitSkipsVectorSearch(t *testing.T) {
	ctx := context.Background()
	events := NewMemoryEventStore()

	cand := candidate("Jazz Night", "chan_a", 1)
	events.InsertEvent(ctx, models.Event{
		ID:            "existing-id",
		Title:         "Jazz Night",
		CanonicalHash: cand.CanonicalHash,
		Sources:       []models.EventSource{{Channel: "chan_z", PostID: 9}},
	})

	// A scripted sub-threshold neighbor would create a new event if the
	// vector path ran; the hash hit must win without consulting it.
	index := &scriptedIndex{neighbors: []Neighbor{{EventID: "other", Score: 0.5}}}
	resolver := NewResolver(events, index, 0.92, testLogger())

	res, err := resolver.Resolve(ctx, cand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Merged || res.EventID != "existing-id" {
		t.Errorf("expected exact-hash merge, got %+v", res)
	}
}

// failingIndex simulates a vector index outage.
type failingIndex struct{}

func (failingIndex) Upsert(ctx context.Context, eventID string, embedding []float32, canonicalHash string) error {
	return errors.New("index unavailable")
}

func (failingIndex) Query(ctx context.Context, embedding []float32, topK int, minScore float64) ([]Neighbor, error) {
	return nil, nil
}

func TestResolve_VectorWriteFailureDoesNotFailInsert(t *testing.T) {
	events := NewMemoryEventStore()
	resolver := NewResolver(events, failingIndex{}, 0.92, testLogger())

	res, err := resolver.Resolve(context.Background(), candidate("Jazz Night", "chan_a", 1))
	if err != nil {
		t.Fatalf("document write succeeded; vector failure must be tolerated: %v", err)
	}

	if id, _ := events.FindIDByHash(context.Background(), candidate("Jazz Night", "chan_a", 1).CanonicalHash); id != res.EventID {
		t.Error("event must remain discoverable via exact hash")
	}
}

func TestResolve_ConcurrentIdenticalCandidates(t *testing.T) {
	events := NewMemoryEventStore()
	index := NewMemoryVectorIndex()
	resolver := NewResolver(events, index, 0.92, testLogger())

	const workers = 8
	var wg sync.WaitGroup
	results := make([]Resolution, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := resolver.Resolve(context.Background(), candidate("Jazz Night", "chan_a", int64(n+1)))
			if err != nil {
				t.Errorf("worker %d: %v", n, err)
				return
			}
			results[n] = res
		}(i)
	}
	wg.Wait()

	if events.Count() != 1 {
		t.Fatalf("concurrent identical candidates must yield one event, got %d", events.Count())
	}

	merges := 0
	for _, res := range results {
		if res.Merged {
			merges++
		}
	}
	if merges != workers-1 {
		t.Errorf("expected %d merges, got %d", workers-1, merges)
	}
}

// flakyStore fails each lookup a fixed number of times with a transient
// error before delegating to the real store.
type flakyStore struct {
	*MemoryEventStore
	remaining int
	calls     int
}

func (s *flakyStore) FindIDByHash(ctx context.Context, canonicalHash string) (string, error) {
	s.calls++
	if s.remaining > 0 {
		s.remaining--
		return "", retry.Transient(errors.New("read tcp 10.0.0.1:5432: connection reset by peer"))
	}
	return s.MemoryEventStore.FindIDByHash(ctx, canonicalHash)
}

func TestResolve_TransientLookupFailureRecovers(t *testing.T) {
	store := &flakyStore{MemoryEventStore: NewMemoryEventStore(), remaining: 1}
	resolver := NewResolver(store, NewMemoryVectorIndex(), 0.92, testLogger())
	resolver.retries = retry.Policy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}

	res, err := resolver.Resolve(context.Background(), candidate("Jazz Night", "chan_a", 1))
	if err != nil {
		t.Fatalf("resolve after transient failure: %v", err)
	}
	if res.Merged {
		t.Error("first candidate must not be a merge")
	}
	if store.calls < 2 {
		t.Errorf("expected the lookup to be retried, got %d calls", store.calls)
	}
	if store.Count() != 1 {
		t.Fatalf("expected one persisted event, got %d", store.Count())
	}
}
