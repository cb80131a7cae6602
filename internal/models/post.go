package models

import (
	"fmt"
	"time"
)

// RawPost is one social-media post as captured by the acquisition layer.
// Posts are immutable; identity is (Channel, PostID).
type RawPost struct {
	Channel     string    `json:"channel"`
	PostID      int64     `json:"post_id"`
	Text        string    `json:"text"`
	PhotoRefs   []string  `json:"photo_refs,omitempty"`
	Hashtags    []string  `json:"hashtags,omitempty"`
	MessageDate time.Time `json:"message_date"`
	PostURL     string    `json:"post_url,omitempty"`
}

// Key returns the identity key of the post.
func (p RawPost) Key() string {
	return fmt.Sprintf("%s/%d", p.Channel, p.PostID)
}

// ProcessingStatus describes how a post's pipeline run concluded.
type ProcessingStatus string

const (
	ProcessingStatusCompleted ProcessingStatus = "completed"
)

// ProcessingRecord marks a post as semantically processed. Its presence gives
// at-most-once completion regardless of how many times the post is retried.
type ProcessingRecord struct {
	Channel     string           `json:"channel"`
	PostID      int64            `json:"post_id"`
	Status      ProcessingStatus `json:"status"`
	EventIDs    []string         `json:"event_ids"`
	CompletedAt time.Time        `json:"completed_at"`
}
