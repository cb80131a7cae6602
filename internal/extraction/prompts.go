package extraction

import (
	"strings"

	"github.com/sergeymorykov/events-backend/internal/models"
)

// PromptTemplates holds system and user prompt templates for the two model
// stages: splitting a post into event segments, then structuring each
// segment into event fields.
type PromptTemplates struct {
	SplitSystemPrompt     string
	SplitTemplate         string
	StructureSystemPrompt string
	StructureTemplate     string
}

// NewPromptTemplates creates the prompts used by the extraction workflow.
func NewPromptTemplates() *PromptTemplates {
	return &PromptTemplates{
		SplitSystemPrompt:     buildSplitSystemPrompt(),
		SplitTemplate:         buildSplitTemplate(),
		StructureSystemPrompt: buildStructureSystemPrompt(),
		StructureTemplate:     buildStructureTemplate(),
	}
}

func buildSplitSystemPrompt() string {
	return `CRITICAL: You MUST output ONLY valid JSON. Do not include any text before or after the JSON object. Do not wrap it in markdown code blocks.

You are an assistant that reads social-media announcement posts (Russian or English) and splits them into individual event announcements.

A post may announce one event, several events (a digest or weekly roundup), or no event at all.

Rules:
- Each segment must be the full original text describing ONE event, copied verbatim from the post. Do not paraphrase, translate, or summarize.
- Keep dates, times, addresses and prices inside the segment they belong to.
- Shared context (venue intro, channel boilerplate) that applies to every event should be repeated in each segment only if needed to understand it.
- If the post announces a single event, return it as one segment containing the whole relevant text.
- If the post contains no event announcement at all (memes, ads, discussion), return an empty list.

Output Format: Your response MUST be ONLY this exact JSON structure:
{
  "segments": ["full text of event 1", "full text of event 2"]
}`
}

func buildSplitTemplate() string {
	return `Split the following post into individual event announcements.

CHANNEL: {{.Channel}}
POSTED: {{.MessageDate}}

POST TEXT:
{{.Text}}`
}

func buildStructureSystemPrompt() string {
	return `CRITICAL: You MUST output ONLY valid JSON. Do not include any text before or after the JSON object. Do not wrap it in markdown code blocks.

You are an assistant that extracts structured event data from a single event announcement (Russian or English).

Output Format: Your response MUST be ONLY this exact JSON structure:
{
  "title": "Short event title in the language of the post (REQUIRED)",
  "description": "What the event is, 1-3 sentences taken from the announcement",
  "date_text": "The scheduling phrase EXACTLY as written in the text",
  "location": "Venue or place name",
  "address": "Street address if given",
  "price": {
    "amount": 500,
    "currency": "RUB",
    "is_free": false,
    "price_range": "500-800 RUB"
  },
  "categories": ["concert", "exhibition"],
  "user_interests": ["jazz", "photography"]
}

CRITICAL - DATE HANDLING:
- Copy the scheduling phrase into "date_text" VERBATIM, exactly as the post wrote it ("завтра в 20:00", "every Friday", "23 ноября 19:00-22:00").
- Do NOT resolve, reformat, or translate dates. Never invent a date the post does not state.
- If the post gives no scheduling information, use an empty string.

Other rules:
- "title" is required. If the text does not describe an event, still produce your best title for what it announces.
- Omit fields the text does not support rather than guessing. Use null for unknown price.
- "amount" must be a whole number in the smallest stated unit (500 for "500 рублей"). Use "price_range" for ranges and keep "amount" null.
- Set "is_free" true only when the post says admission is free ("вход свободный", "free entry").
- "categories" are broad event kinds (concert, lecture, exhibition, party, workshop).
- "user_interests" are specific topical tags a reader might follow (jazz, standup, oil painting).`
}

func buildStructureTemplate() string {
	return `Extract structured event fields from this announcement.

CHANNEL: {{.Channel}}
POSTED: {{.MessageDate}}

ANNOUNCEMENT:
{{.Segment}}`
}

// BuildSplitPrompt creates the user prompt for the split stage.
func (p *PromptTemplates) BuildSplitPrompt(post models.RawPost) string {
	template := p.SplitTemplate
	template = strings.ReplaceAll(template, "{{.Channel}}", post.Channel)
	template = strings.ReplaceAll(template, "{{.MessageDate}}", post.MessageDate.Format("2006-01-02 15:04 MST"))
	template = strings.ReplaceAll(template, "{{.Text}}", post.Text)
	return template
}

// BuildStructurePrompt creates the user prompt for structuring one segment.
func (p *PromptTemplates) BuildStructurePrompt(post models.RawPost, segment string) string {
	template := p.StructureTemplate
	template = strings.ReplaceAll(template, "{{.Channel}}", post.Channel)
	template = strings.ReplaceAll(template, "{{.MessageDate}}", post.MessageDate.Format("2006-01-02 15:04 MST"))
	template = strings.ReplaceAll(template, "{{.Segment}}", segment)
	return template
}
