// Package dedup resolves event candidates against the persisted catalog,
// classifying each as a new event or a duplicate of an existing one. Exact
// duplicates are caught by a canonical hash; near-duplicates by vector search.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/sergeymorykov/events-backend/internal/models"
)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeText standardizes text for hashing: lowercase, punctuation
// stripped, whitespace collapsed.
func NormalizeText(text string) string {
	normalized := strings.ToLower(text)
	normalized = punctRe.ReplaceAllString(normalized, "")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// CanonicalHash fingerprints a candidate's identity fields. Two candidates
// with equal normalized title, schedule date and location always hash equal,
// which makes retried posts idempotent.
func CanonicalHash(title string, sched *models.Schedule, location string) string {
	dateStr := ""
	if date, ok := sched.StartDate(); ok {
		dateStr = date.Format("2006-01-02")
	}

	input := NormalizeText(title) + "|" + dateStr + "|" + NormalizeText(location)

	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
