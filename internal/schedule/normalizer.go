// Package schedule resolves free-text date expressions into one of the typed
// schedule variants. Resolution is always anchored to the post's own
// timestamp, never the processing time, so replays produce identical results.
package schedule

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sergeymorykov/events-backend/internal/models"
)

// Month names as they appear in posts. Russian months are in the genitive
// case ("23 ноября"); both languages include common abbreviations.
var months = map[string]time.Month{
	"january": 1, "jan": 1, "января": 1, "янв": 1,
	"february": 2, "feb": 2, "февраля": 2, "фев": 2, "февр": 2,
	"march": 3, "mar": 3, "марта": 3, "мар": 3,
	"april": 4, "apr": 4, "апреля": 4, "апр": 4,
	"may": 5, "мая": 5, "май": 5,
	"june": 6, "jun": 6, "июня": 6, "июн": 6,
	"july": 7, "jul": 7, "июля": 7, "июл": 7,
	"august": 8, "aug": 8, "августа": 8, "авг": 8,
	"september": 9, "sep": 9, "sept": 9, "сентября": 9, "сен": 9, "сент": 9,
	"october": 10, "oct": 10, "октября": 10, "окт": 10,
	"november": 11, "nov": 11, "ноября": 11, "ноя": 11, "нояб": 11,
	"december": 12, "dec": 12, "декабря": 12, "дек": 12,
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "понедельник": time.Monday,
	"tuesday": time.Tuesday, "вторник": time.Tuesday,
	"wednesday": time.Wednesday, "среда": time.Wednesday, "среду": time.Wednesday,
	"thursday": time.Thursday, "четверг": time.Thursday,
	"friday": time.Friday, "пятница": time.Friday, "пятницу": time.Friday,
	"saturday": time.Saturday, "суббота": time.Saturday, "субботу": time.Saturday,
	"sunday": time.Sunday, "воскресенье": time.Sunday,
}

// Plural/dative weekday forms signal a recurring pattern ("по пятницам",
// "fridays").
var recurringWeekdays = map[string]time.Weekday{
	"mondays": time.Monday, "понедельникам": time.Monday,
	"tuesdays": time.Tuesday, "вторникам": time.Tuesday,
	"wednesdays": time.Wednesday, "средам": time.Wednesday,
	"thursdays": time.Thursday, "четвергам": time.Thursday,
	"fridays": time.Friday, "пятницам": time.Friday,
	"saturdays": time.Saturday, "субботам": time.Saturday,
	"sundays": time.Sunday, "воскресеньям": time.Sunday,
}

var scheduleKeys = map[time.Weekday]string{
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
	time.Sunday:    "sunday",
}

var (
	timeRangeRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*[-–—]\s*(\d{1,2}):(\d{2})\b`)
	timeRe      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)

	dayMonthRe = regexp.MustCompile(`\b(\d{1,2})\s+(\p{L}+)\.?(?:\s+(\d{4}))?`)
	monthDayRe = regexp.MustCompile(`\b(\p{L}+)\.?\s+(\d{1,2})(?:\s*,\s*(\d{4}))?`)
	dmyDotsRe  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{2,4})\b`)
	ymdRe      = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dmySlashRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)

	everyDayRe = regexp.MustCompile(`(?i)\b(?:every|кажд(?:ый|ую|ое))\s+(\p{L}+)`)
	pluralRe   = regexp.MustCompile(`(?i)\b(\p{L}+)\b`)

	nextDayRe = regexp.MustCompile(`(?i)\b(?:next|след(?:ующий|ующую|ующее)?\.?)\s+(\p{L}+)`)
)

// Normalize resolves a free-text date expression into exactly one schedule
// variant, anchored to the given reference timestamp:
//
//  1. absolute (or relative) date plus a time of day -> Exact
//  2. recurring weekday pattern with times -> RecurringWeekly
//  3. anything else -> Fuzzy, keeping the phrase and a best-effort date
func Normalize(text string, anchor time.Time) *models.Schedule {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.NewFuzzySchedule("", nil)
	}

	lower := strings.ToLower(trimmed)

	if sched := detectRecurring(lower, anchor); sched != nil {
		return sched
	}

	date, hasDate := resolveDate(lower, anchor)
	start, end, hasTime := resolveTimes(lower)

	switch {
	case hasDate && hasTime:
		startAt := time.Date(date.Year(), date.Month(), date.Day(),
			start.hour, start.minute, 0, 0, anchor.Location())
		var endAt *time.Time
		if end != nil {
			e := time.Date(date.Year(), date.Month(), date.Day(),
				end.hour, end.minute, 0, 0, anchor.Location())
			endAt = &e
		}
		return models.NewExactSchedule(startAt, endAt)
	case hasDate:
		approx := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, anchor.Location())
		return models.NewFuzzySchedule(trimmed, &approx)
	default:
		return models.NewFuzzySchedule(trimmed, nil)
	}
}

type clock struct {
	hour, minute int
}

func resolveTimes(lower string) (clock, *clock, bool) {
	if m := timeRangeRe.FindStringSubmatch(lower); m != nil {
		start := clock{atoi(m[1]), atoi(m[2])}
		end := clock{atoi(m[3]), atoi(m[4])}
		if validClock(start) && validClock(end) {
			return start, &end, true
		}
	}
	if m := timeRe.FindStringSubmatch(lower); m != nil {
		start := clock{atoi(m[1]), atoi(m[2])}
		if validClock(start) {
			return start, nil, true
		}
	}
	return clock{}, nil, false
}

func validClock(c clock) bool {
	return c.hour < 24 && c.minute < 60
}

func resolveDate(lower string, anchor time.Time) (time.Time, bool) {
	if d, ok := resolveRelativeDate(lower, anchor); ok {
		return d, true
	}
	if d, ok := resolveAbsoluteDate(lower, anchor); ok {
		return d, true
	}
	return resolveWeekdayDate(lower, anchor)
}

func resolveRelativeDate(lower string, anchor time.Time) (time.Time, bool) {
	day := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())

	switch {
	case strings.Contains(lower, "послезавтра"), strings.Contains(lower, "day after tomorrow"):
		return day.AddDate(0, 0, 2), true
	case strings.Contains(lower, "завтра"), strings.Contains(lower, "tomorrow"):
		return day.AddDate(0, 0, 1), true
	case strings.Contains(lower, "сегодня"), strings.Contains(lower, "today"), strings.Contains(lower, "tonight"):
		return day, true
	}
	return time.Time{}, false
}

// resolveWeekdayDate handles "friday" / "next friday": the next occurrence of
// that weekday strictly after the anchor date.
func resolveWeekdayDate(lower string, anchor time.Time) (time.Time, bool) {
	var target time.Weekday
	found := false

	if m := nextDayRe.FindStringSubmatch(lower); m != nil {
		if wd, ok := weekdayNames[strings.ToLower(m[1])]; ok {
			target = wd
			found = true
		}
	}
	if !found {
		// A phrase can name several weekdays; take the one mentioned first
		// so replays resolve the same date.
		best := -1
		for name, wd := range weekdayNames {
			idx := indexWord(lower, name)
			if idx < 0 {
				continue
			}
			if best < 0 || idx < best {
				best = idx
				target = wd
			}
		}
		found = best >= 0
	}
	if !found {
		return time.Time{}, false
	}

	day := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())
	offset := (int(target) - int(anchor.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, offset), true
}

func resolveAbsoluteDate(lower string, anchor time.Time) (time.Time, bool) {
	if m := ymdRe.FindStringSubmatch(lower); m != nil {
		if d, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), anchor); ok {
			return d, true
		}
	}
	if m := dmyDotsRe.FindStringSubmatch(lower); m != nil {
		year := atoi(m[3])
		if year < 100 {
			year += 2000
		}
		if d, ok := makeDate(year, atoi(m[2]), atoi(m[1]), anchor); ok {
			return d, true
		}
	}
	if m := dmySlashRe.FindStringSubmatch(lower); m != nil {
		if d, ok := makeDate(atoi(m[3]), atoi(m[2]), atoi(m[1]), anchor); ok {
			return d, true
		}
	}
	for _, m := range dayMonthRe.FindAllStringSubmatch(lower, -1) {
		if month, ok := months[m[2]]; ok {
			year := anchor.Year()
			if m[3] != "" {
				year = atoi(m[3])
			}
			if d, ok := makeDate(year, int(month), atoi(m[1]), anchor); ok {
				return d, true
			}
		}
	}
	for _, m := range monthDayRe.FindAllStringSubmatch(lower, -1) {
		if month, ok := months[m[1]]; ok {
			year := anchor.Year()
			if m[3] != "" {
				year = atoi(m[3])
			}
			if d, ok := makeDate(year, int(month), atoi(m[2]), anchor); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func makeDate(year, month, day int, anchor time.Time) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, anchor.Location())
	// Reject rollovers such as February 31.
	if d.Day() != day || d.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return d, true
}

type recurringMatch struct {
	day time.Weekday
	pos int
	end int
}

func detectRecurring(lower string, anchor time.Time) *models.Schedule {
	var matches []recurringMatch

	for _, m := range everyDayRe.FindAllStringSubmatchIndex(lower, -1) {
		name := strings.ToLower(lower[m[2]:m[3]])
		if wd, ok := weekdayNames[name]; ok {
			matches = append(matches, recurringMatch{day: wd, pos: m[0], end: m[1]})
		}
	}
	for _, m := range pluralRe.FindAllStringSubmatchIndex(lower, -1) {
		name := lower[m[2]:m[3]]
		if wd, ok := recurringWeekdays[name]; ok {
			matches = append(matches, recurringMatch{day: wd, pos: m[0], end: m[1]})
		}
	}

	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	allTimes := collectTimes(lower, 0, len(lower))
	if len(allTimes) == 0 {
		// A weekday pattern without any time of day stays fuzzy.
		return nil
	}

	byDay := make(map[string][]string)
	for i, match := range matches {
		spanEnd := len(lower)
		if i+1 < len(matches) {
			spanEnd = matches[i+1].pos
		}
		times := collectTimes(lower, match.end, spanEnd)
		if len(times) == 0 {
			times = allTimes
		}
		key := scheduleKeys[match.day]
		byDay[key] = mergeTimes(byDay[key], times)
	}

	validFrom := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())
	sched, err := models.NewWeeklySchedule(byDay, &validFrom)
	if err != nil {
		return nil
	}
	return sched
}

func collectTimes(lower string, from, to int) []string {
	if from > to {
		return nil
	}
	var times []string
	for _, m := range timeRe.FindAllStringSubmatch(lower[from:to], -1) {
		c := clock{atoi(m[1]), atoi(m[2])}
		if validClock(c) {
			times = append(times, formatClock(c))
		}
	}
	return times
}

func mergeTimes(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range incoming {
		if !seen[t] {
			existing = append(existing, t)
			seen[t] = true
		}
	}
	return existing
}

func formatClock(c clock) string {
	return pad2(c.hour) + ":" + pad2(c.minute)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func containsWord(lower, word string) bool {
	return indexWord(lower, word) >= 0
}

// indexWord returns the byte offset of the first whole-word occurrence of
// word, or -1.
func indexWord(lower, word string) int {
	idx := strings.Index(lower, word)
	for idx >= 0 {
		before := idx == 0 || !isLetter(rune(lower[idx-1]))
		afterIdx := idx + len(word)
		after := afterIdx >= len(lower) || !isLetter(rune(lower[afterIdx]))
		if before && after {
			return idx
		}
		next := strings.Index(lower[idx+1:], word)
		if next < 0 {
			return -1
		}
		idx = idx + 1 + next
	}
	return -1
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
