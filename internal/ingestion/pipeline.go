package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sergeymorykov/events-backend/internal/dedup"
	"github.com/sergeymorykov/events-backend/internal/metrics"
	"github.com/sergeymorykov/events-backend/internal/models"
)

// Extractor turns one raw post into event candidates.
type Extractor interface {
	Extract(ctx context.Context, post models.RawPost) ([]models.EventCandidate, error)
}

// Embedder computes the embedding vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DuplicateResolver settles one candidate against the event catalog.
type DuplicateResolver interface {
	Resolve(ctx context.Context, cand models.EventCandidate) (dedup.Resolution, error)
}

// Config holds orchestrator settings.
type Config struct {
	Concurrency int
	BatchLimit  int
	Interval    time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		BatchLimit:  50,
	}
}

// Orchestrator drives posts through extraction, embedding and duplicate
// resolution, and records completion. Posts are independent: one post's
// failure never stops the batch.
type Orchestrator struct {
	posts      PostRepository
	processing ProcessingRepository
	extractor  Extractor
	embedder   Embedder
	resolver   DuplicateResolver
	collector  *metrics.PipelineCollector
	logger     *slog.Logger
	config     Config
}

// NewOrchestrator creates a pipeline orchestrator. collector may be nil.
func NewOrchestrator(
	posts PostRepository,
	processing ProcessingRepository,
	extractor Extractor,
	embedder Embedder,
	resolver DuplicateResolver,
	collector *metrics.PipelineCollector,
	logger *slog.Logger,
	config Config,
) *Orchestrator {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Orchestrator{
		posts:      posts,
		processing: processing,
		extractor:  extractor,
		embedder:   embedder,
		resolver:   resolver,
		collector:  collector,
		logger:     logger,
		config:     config,
	}
}

// PostOutcome reports how one post was settled.
type PostOutcome struct {
	Skipped  bool
	EventIDs []string
	Created  int
	Merged   int
}

// BatchStats aggregates one batch run.
type BatchStats struct {
	Seen             int
	Succeeded        int
	Failed           int
	Skipped          int
	EventsExtracted  int
	DuplicatesMerged int
}

// Run processes batches until the context is cancelled. With no interval
// configured it processes one batch and returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.ProcessBatch(ctx); err != nil {
		o.logger.Error("batch failed", "error", err)
	}

	if o.config.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("pipeline shutting down")
			return ctx.Err()
		case <-ticker.C:
			if _, err := o.ProcessBatch(ctx); err != nil {
				o.logger.Error("batch failed", "error", err)
			}
		}
	}
}

// ProcessBatch pulls one batch of unprocessed posts and runs them
// concurrently. Per-post failures are logged and counted, not returned.
func (o *Orchestrator) ProcessBatch(ctx context.Context) (BatchStats, error) {
	batch, err := o.posts.ListUnprocessed(ctx, o.config.BatchLimit)
	if err != nil {
		return BatchStats{}, fmt.Errorf("list unprocessed posts: %w", err)
	}

	stats := BatchStats{Seen: len(batch)}
	if len(batch) == 0 {
		return stats, nil
	}

	o.logger.Info("processing batch",
		"posts", len(batch),
		"concurrency", o.config.Concurrency,
	)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)

	for _, post := range batch {
		post := post
		g.Go(func() error {
			start := time.Now()
			outcome, err := o.ProcessOne(ctx, post)
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err != nil:
				stats.Failed++
				o.collector.ObservePost("failed", elapsed)
				o.logger.Error("post failed", "post", post.Key(), "error", err)
			case outcome.Skipped:
				stats.Skipped++
				o.collector.ObservePost("skipped", elapsed)
			default:
				stats.Succeeded++
				stats.EventsExtracted += outcome.Created
				stats.DuplicatesMerged += outcome.Merged
				o.collector.ObservePost("succeeded", elapsed)
				o.collector.AddExtracted(outcome.Created)
				o.collector.AddMerged(outcome.Merged)
			}
			return nil
		})
	}

	g.Wait()

	o.logger.Info("batch complete",
		"seen", stats.Seen,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"events", stats.EventsExtracted,
		"merged", stats.DuplicatesMerged,
	)

	return stats, nil
}

// ProcessOne runs a single post through the pipeline. The post is marked
// processed only when every extracted candidate was settled; a partial
// failure keeps persisted candidates but leaves the post retryable, relying
// on deterministic hashing to avoid duplicates on replay.
func (o *Orchestrator) ProcessOne(ctx context.Context, post models.RawPost) (PostOutcome, error) {
	done, err := o.processing.IsProcessed(ctx, post.Channel, post.PostID)
	if err != nil {
		return PostOutcome{}, fmt.Errorf("check processing record for %s: %w", post.Key(), err)
	}
	if done {
		return PostOutcome{Skipped: true}, nil
	}

	// Extraction can fail on some segments yet still hand back the
	// candidates that survived. Those are settled now so a replay merges
	// into them instead of re-creating; the extract error is carried to
	// keep the post retryable.
	candidates, extractErr := o.extractor.Extract(ctx, post)
	if extractErr != nil && len(candidates) == 0 {
		return PostOutcome{}, fmt.Errorf("extract %s: %w", post.Key(), extractErr)
	}

	outcome := PostOutcome{}
	var failed int
	for i := range candidates {
		if err := o.settleCandidate(ctx, &candidates[i], &outcome); err != nil {
			failed++
			o.logger.Error("candidate failed",
				"post", post.Key(),
				"title", candidates[i].Title,
				"error", err,
			)
		}
	}

	if extractErr != nil {
		return outcome, fmt.Errorf("extract %s: %w", post.Key(), extractErr)
	}
	if failed > 0 {
		return outcome, fmt.Errorf("post %s: %d of %d candidates failed", post.Key(), failed, len(candidates))
	}

	record := models.ProcessingRecord{
		Channel:     post.Channel,
		PostID:      post.PostID,
		Status:      models.ProcessingStatusCompleted,
		EventIDs:    outcome.EventIDs,
		CompletedAt: time.Now().UTC(),
	}
	if err := o.processing.MarkProcessed(ctx, record); err != nil {
		return outcome, fmt.Errorf("mark %s processed: %w", post.Key(), err)
	}

	return outcome, nil
}

func (o *Orchestrator) settleCandidate(ctx context.Context, cand *models.EventCandidate, outcome *PostOutcome) error {
	embedding, err := o.embedder.Embed(ctx, cand.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	cand.Embedding = embedding
	cand.CanonicalHash = dedup.CanonicalHash(cand.Title, cand.Schedule, cand.Location)

	res, err := o.resolver.Resolve(ctx, *cand)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	outcome.EventIDs = append(outcome.EventIDs, res.EventID)
	if res.Merged {
		outcome.Merged++
	} else {
		outcome.Created++
	}
	return nil
}
