package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sergeymorykov/events-backend/internal/models"
	"github.com/sergeymorykov/events-backend/internal/schedule"
)

// LanguageModel produces a JSON document from a prompt pair.
type LanguageModel interface {
	Structure(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error)
}

// Illustrator generates a poster image for an event and returns its URL.
type Illustrator interface {
	Illustrate(ctx context.Context, title, description string) (string, error)
}

// Workflow turns one raw post into zero or more event candidates. It runs
// three stages: split the post into event segments, structure each segment
// into fields, then attach imagery.
type Workflow struct {
	llm         LanguageModel
	illustrator Illustrator
	prompts     *PromptTemplates
	maxEvents   int
	logger      *slog.Logger
}

// NewWorkflow creates an extraction workflow. illustrator may be nil to
// disable poster generation. maxEvents caps how many events one post can
// yield.
func NewWorkflow(llm LanguageModel, illustrator Illustrator, maxEvents int, logger *slog.Logger) *Workflow {
	if maxEvents <= 0 {
		maxEvents = 10
	}
	return &Workflow{
		llm:         llm,
		illustrator: illustrator,
		prompts:     NewPromptTemplates(),
		maxEvents:   maxEvents,
		logger:      logger,
	}
}

// Extract runs the full workflow for one post. Segments that fail field
// validation are dropped silently; segments that fail on a model or
// transport error are dropped too, but Extract then returns the surviving
// candidates together with an error so the caller keeps the post
// unprocessed and retries the failed segments later. Only a failed split
// call fails the whole post. An empty result with a nil error means the
// post announces no events.
func (w *Workflow) Extract(ctx context.Context, post models.RawPost) ([]models.EventCandidate, error) {
	if strings.TrimSpace(post.Text) == "" {
		return nil, nil
	}

	segments, err := w.splitPost(ctx, post)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		w.logger.Info("post contains no event announcements", "post", post.Key())
		return nil, nil
	}

	if len(segments) > w.maxEvents {
		w.logger.Warn("post exceeds event cap, truncating",
			"post", post.Key(),
			"segments", len(segments),
			"cap", w.maxEvents,
		)
		segments = segments[:w.maxEvents]
	}

	candidates := make([]models.EventCandidate, 0, len(segments))
	var failed int
	var lastErr error
	for i, segment := range segments {
		fields, err := w.structureSegment(ctx, post, segment)
		if err != nil {
			if IsValidationError(err) {
				w.logger.Warn("segment dropped",
					"post", post.Key(),
					"segment", i,
					"error", err,
				)
				continue
			}
			// A transport or model failure on one segment must not take
			// its siblings down with it.
			w.logger.Error("segment structuring failed",
				"post", post.Key(),
				"segment", i,
				"error", err,
			)
			failed++
			lastErr = err
			continue
		}
		candidates = append(candidates, w.buildCandidate(post, fields))
	}

	w.attachImagery(ctx, post, candidates)

	if failed > 0 {
		return candidates, fmt.Errorf("%d of %d segments failed for %s: %w",
			failed, len(segments), post.Key(), lastErr)
	}
	return candidates, nil
}

// splitPost asks the model to partition the post into event segments. A
// malformed response falls back to treating the whole post as one segment;
// only a failed model call fails the post.
func (w *Workflow) splitPost(ctx context.Context, post models.RawPost) ([]string, error) {
	raw, err := w.llm.Structure(ctx, w.prompts.SplitSystemPrompt, w.prompts.BuildSplitPrompt(post))
	if err != nil {
		return nil, fmt.Errorf("split post %s: %w", post.Key(), err)
	}

	var parsed struct {
		Segments []string `json:"segments"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		w.logger.Warn("split response unparseable, using whole post",
			"post", post.Key(),
			"error", err,
		)
		return []string{post.Text}, nil
	}

	segments := make([]string, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		if strings.TrimSpace(s) != "" {
			segments = append(segments, s)
		}
	}
	return segments, nil
}

func (w *Workflow) structureSegment(ctx context.Context, post models.RawPost, segment string) (*EventFields, error) {
	raw, err := w.llm.Structure(ctx, w.prompts.StructureSystemPrompt, w.prompts.BuildStructurePrompt(post, segment))
	if err != nil {
		return nil, err
	}
	return ValidateEventFields(raw)
}

// buildCandidate converts validated fields into a candidate, resolving the
// raw scheduling phrase against the post's own timestamp.
func (w *Workflow) buildCandidate(post models.RawPost, fields *EventFields) models.EventCandidate {
	cand := models.EventCandidate{
		Title:         strings.TrimSpace(fields.Title),
		Description:   strings.TrimSpace(fields.Description),
		Schedule:      schedule.Normalize(fields.DateText, post.MessageDate),
		Location:      strings.TrimSpace(fields.Location),
		Address:       strings.TrimSpace(fields.Address),
		Categories:    mergeCategories(fields.Categories, post.Hashtags),
		UserInterests: fields.UserInterests,
		Source: models.EventSource{
			Channel:    post.Channel,
			PostID:     post.PostID,
			PostURL:    post.PostURL,
			IngestedAt: time.Now().UTC(),
		},
	}

	if fields.Price != nil {
		cand.Price = &models.PriceInfo{
			Amount:     fields.Price.Amount,
			Currency:   fields.Price.Currency,
			IsFree:     fields.Price.IsFree,
			PriceRange: fields.Price.PriceRange,
		}
	}

	return cand
}

// attachImagery reuses the post's own photos for every candidate. Posts
// without photos get a generated poster per candidate; a generation failure
// leaves the candidate without images rather than failing the post.
func (w *Workflow) attachImagery(ctx context.Context, post models.RawPost, candidates []models.EventCandidate) {
	if len(post.PhotoRefs) > 0 {
		for i := range candidates {
			candidates[i].Images = append([]string(nil), post.PhotoRefs...)
		}
		return
	}

	if w.illustrator == nil {
		return
	}

	for i := range candidates {
		url, err := w.illustrator.Illustrate(ctx, candidates[i].Title, candidates[i].Description)
		if err != nil {
			w.logger.Warn("poster generation failed",
				"post", post.Key(),
				"title", candidates[i].Title,
				"error", err,
			)
			continue
		}
		candidates[i].Images = []string{url}
		candidates[i].PosterGenerated = true
	}
}

// mergeCategories folds the post's hashtags into the model's categories,
// stripping the leading # and dropping duplicates.
func mergeCategories(categories, hashtags []string) []string {
	seen := make(map[string]bool, len(categories)+len(hashtags))
	merged := make([]string, 0, len(categories)+len(hashtags))

	add := func(raw string) {
		tag := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "#")))
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		merged = append(merged, tag)
	}

	for _, c := range categories {
		add(c)
	}
	for _, h := range hashtags {
		add(h)
	}

	if len(merged) == 0 {
		return nil
	}
	return merged
}
