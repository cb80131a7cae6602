package models

import (
	"strings"
	"time"
)

// PriceInfo describes admission cost as extracted from the post.
type PriceInfo struct {
	Amount     *int   `json:"amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	IsFree     bool   `json:"is_free"`
	PriceRange string `json:"price_range,omitempty"`
}

// EventSource records which post contributed a persisted event.
type EventSource struct {
	Channel    string    `json:"channel"`
	PostID     int64     `json:"post_id"`
	PostURL    string    `json:"post_url,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// EventCandidate is an event extracted from a post, before duplicate
// resolution. Candidates exist only during one pipeline run.
type EventCandidate struct {
	Title           string
	Description     string
	Schedule        *Schedule
	Location        string
	Address         string
	Price           *PriceInfo
	Categories      []string
	UserInterests   []string
	Images          []string
	PosterGenerated bool
	Source          EventSource

	// Filled by the orchestrator before duplicate resolution.
	CanonicalHash string
	Embedding     []float32
}

// EmbeddingText assembles the text embedded for semantic comparison.
func (c *EventCandidate) EmbeddingText() string {
	parts := []string{c.Title}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	if c.Location != "" {
		parts = append(parts, c.Location)
	}
	return strings.Join(parts, " ")
}

// Event is a persisted catalog entry. Descriptive fields are set at first
// insertion and never overwritten by later merges; only Sources grows.
type Event struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Schedule        *Schedule     `json:"schedule,omitempty"`
	Location        string        `json:"location,omitempty"`
	Address         string        `json:"address,omitempty"`
	Price           *PriceInfo    `json:"price,omitempty"`
	Categories      []string      `json:"categories,omitempty"`
	UserInterests   []string      `json:"user_interests,omitempty"`
	Images          []string      `json:"images,omitempty"`
	PosterGenerated bool          `json:"poster_generated"`
	CanonicalHash   string        `json:"canonical_hash"`
	Sources         []EventSource `json:"sources"`
	CreatedAt       time.Time     `json:"created_at"`
}

// HasSource reports whether the event already records the given post.
func (e *Event) HasSource(channel string, postID int64) bool {
	for _, src := range e.Sources {
		if src.Channel == channel && src.PostID == postID {
			return true
		}
	}
	return false
}

// NewEventFromCandidate freezes a candidate into a persisted event.
func NewEventFromCandidate(id string, c EventCandidate, now time.Time) Event {
	return Event{
		ID:              id,
		Title:           c.Title,
		Description:     c.Description,
		Schedule:        c.Schedule,
		Location:        c.Location,
		Address:         c.Address,
		Price:           c.Price,
		Categories:      c.Categories,
		UserInterests:   c.UserInterests,
		Images:          c.Images,
		PosterGenerated: c.PosterGenerated,
		CanonicalHash:   c.CanonicalHash,
		Sources:         []EventSource{c.Source},
		CreatedAt:       now,
	}
}
