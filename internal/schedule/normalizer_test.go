package schedule

import (
	"testing"
	"time"

	"github.com/sergeymorykov/events-backend/internal/models"
)

var anchor = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func TestNormalize_TomorrowWithTime(t *testing.T) {
	sched := Normalize("tomorrow 20:00", anchor)

	if sched.Type != models.ScheduleTypeExact {
		t.Fatalf("expected exact schedule, got %s", sched.Type)
	}
	want := time.Date(2025, 1, 11, 20, 0, 0, 0, time.UTC)
	if !sched.Exact.Start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, sched.Exact.Start)
	}
	if sched.Exact.End != nil {
		t.Errorf("expected no end time, got %v", sched.Exact.End)
	}
}

func TestNormalize_RussianRelativeDates(t *testing.T) {
	tests := []struct {
		text string
		want time.Time
	}{
		{"сегодня в 19:00", time.Date(2025, 1, 10, 19, 0, 0, 0, time.UTC)},
		{"завтра 20:00", time.Date(2025, 1, 11, 20, 0, 0, 0, time.UTC)},
		{"послезавтра 18:30", time.Date(2025, 1, 12, 18, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		sched := Normalize(tt.text, anchor)
		if sched.Type != models.ScheduleTypeExact {
			t.Errorf("%q: expected exact, got %s", tt.text, sched.Type)
			continue
		}
		if !sched.Exact.Start.Equal(tt.want) {
			t.Errorf("%q: expected %v, got %v", tt.text, tt.want, sched.Exact.Start)
		}
	}
}

func TestNormalize_AbsoluteDateFormats(t *testing.T) {
	want := time.Date(2025, 11, 23, 19, 0, 0, 0, time.UTC)

	tests := []string{
		"23 ноября 19:00",
		"23 ноября 2025 в 19:00",
		"November 23, 2025 19:00",
		"23.11.2025 19:00",
		"23.11.25 19:00",
		"2025-11-23 19:00",
		"23/11/2025 19:00",
	}

	for _, text := range tests {
		sched := Normalize(text, anchor)
		if sched.Type != models.ScheduleTypeExact {
			t.Errorf("%q: expected exact, got %s", text, sched.Type)
			continue
		}
		if !sched.Exact.Start.Equal(want) {
			t.Errorf("%q: expected %v, got %v", text, want, sched.Exact.Start)
		}
	}
}

func TestNormalize_MissingYearDefaultsToAnchorYear(t *testing.T) {
	sched := Normalize("23 ноября в 19:00", anchor)
	if sched.Type != models.ScheduleTypeExact {
		t.Fatalf("expected exact, got %s", sched.Type)
	}
	if sched.Exact.Start.Year() != anchor.Year() {
		t.Errorf("expected anchor year %d, got %d", anchor.Year(), sched.Exact.Start.Year())
	}
}

func TestNormalize_TimeRange(t *testing.T) {
	sched := Normalize("tomorrow 19:00-22:00", anchor)
	if sched.Type != models.ScheduleTypeExact {
		t.Fatalf("expected exact, got %s", sched.Type)
	}
	if sched.Exact.End == nil {
		t.Fatal("expected end time from range")
	}
	wantEnd := time.Date(2025, 1, 11, 22, 0, 0, 0, time.UTC)
	if !sched.Exact.End.Equal(wantEnd) {
		t.Errorf("expected end %v, got %v", wantEnd, *sched.Exact.End)
	}
}

func TestNormalize_NextWeekday(t *testing.T) {
	// Anchor 2025-01-10 is a Friday; "next friday" is the 17th.
	sched := Normalize("next friday 20:00", anchor)
	if sched.Type != models.ScheduleTypeExact {
		t.Fatalf("expected exact, got %s", sched.Type)
	}
	want := time.Date(2025, 1, 17, 20, 0, 0, 0, time.UTC)
	if !sched.Exact.Start.Equal(want) {
		t.Errorf("expected %v, got %v", want, sched.Exact.Start)
	}
}

func TestNormalize_MultipleWeekdaysPicksFirstMentioned(t *testing.T) {
	// Two weekdays in one phrase must resolve to the first one named, and
	// identically on every call.
	tests := []struct {
		text string
		want time.Time
	}{
		{"пятницу или субботу в 20:00", time.Date(2025, 1, 17, 20, 0, 0, 0, time.UTC)},
		{"saturday or friday at 20:00", time.Date(2025, 1, 11, 20, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			sched := Normalize(tt.text, anchor)
			if sched.Type != models.ScheduleTypeExact {
				t.Fatalf("%q: expected exact, got %s", tt.text, sched.Type)
			}
			if !sched.Exact.Start.Equal(tt.want) {
				t.Fatalf("%q: call %d resolved to %v, want %v", tt.text, i, sched.Exact.Start, tt.want)
			}
		}
	}
}

func TestNormalize_RecurringWeekly(t *testing.T) {
	tests := []struct {
		text string
		day  string
		time string
	}{
		{"every friday 20:00", "friday", "20:00"},
		{"по пятницам в 20:00", "friday", "20:00"},
		{"каждую субботу 12:00", "saturday", "12:00"},
		{"fridays at 19:30", "friday", "19:30"},
	}

	for _, tt := range tests {
		sched := Normalize(tt.text, anchor)
		if sched.Type != models.ScheduleTypeRecurringWeekly {
			t.Errorf("%q: expected recurring_weekly, got %s", tt.text, sched.Type)
			continue
		}
		times := sched.Weekly.ByDay[tt.day]
		if len(times) != 1 || times[0] != tt.time {
			t.Errorf("%q: expected [%s] on %s, got %v", tt.text, tt.time, tt.day, times)
		}
		if sched.Weekly.ValidFrom == nil || sched.Weekly.ValidFrom.Day() != anchor.Day() {
			t.Errorf("%q: expected valid_from anchored to message date", tt.text)
		}
	}
}

func TestNormalize_RecurringMultipleDays(t *testing.T) {
	sched := Normalize("по понедельникам в 19:00 и по пятницам в 20:00", anchor)
	if sched.Type != models.ScheduleTypeRecurringWeekly {
		t.Fatalf("expected recurring_weekly, got %s", sched.Type)
	}
	if got := sched.Weekly.ByDay["monday"]; len(got) != 1 || got[0] != "19:00" {
		t.Errorf("monday times: %v", got)
	}
	if got := sched.Weekly.ByDay["friday"]; len(got) != 1 || got[0] != "20:00" {
		t.Errorf("friday times: %v", got)
	}
}

func TestNormalize_RecurringWithoutTimeStaysFuzzy(t *testing.T) {
	sched := Normalize("every friday", anchor)
	if sched.Type != models.ScheduleTypeFuzzy {
		t.Fatalf("weekday without time must stay fuzzy, got %s", sched.Type)
	}
}

func TestNormalize_FuzzyFallback(t *testing.T) {
	sched := Normalize("sometime in spring", anchor)

	if sched.Type != models.ScheduleTypeFuzzy {
		t.Fatalf("expected fuzzy, got %s", sched.Type)
	}
	if sched.Fuzzy.Description != "sometime in spring" {
		t.Errorf("fuzzy schedule must keep the original phrase, got %q", sched.Fuzzy.Description)
	}
	if sched.Fuzzy.ApproximateStart != nil {
		t.Errorf("expected nil approximate start, got %v", sched.Fuzzy.ApproximateStart)
	}
}

func TestNormalize_DateWithoutTimeIsFuzzyWithApproximateStart(t *testing.T) {
	sched := Normalize("открытие 23 ноября", anchor)

	if sched.Type != models.ScheduleTypeFuzzy {
		t.Fatalf("expected fuzzy, got %s", sched.Type)
	}
	if sched.Fuzzy.ApproximateStart == nil {
		t.Fatal("expected approximate start from the partially resolved date")
	}
	want := time.Date(2025, 11, 23, 0, 0, 0, 0, time.UTC)
	if !sched.Fuzzy.ApproximateStart.Equal(want) {
		t.Errorf("expected %v, got %v", want, *sched.Fuzzy.ApproximateStart)
	}
}

func TestNormalize_EmptyText(t *testing.T) {
	sched := Normalize("   ", anchor)
	if sched.Type != models.ScheduleTypeFuzzy {
		t.Fatalf("expected fuzzy for empty text, got %s", sched.Type)
	}
}

func TestNormalize_AnchoredNotWallClock(t *testing.T) {
	older := time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)

	first := Normalize("tomorrow 20:00", older)
	second := Normalize("tomorrow 20:00", older)

	want := time.Date(2023, 6, 2, 20, 0, 0, 0, time.UTC)
	if !first.Exact.Start.Equal(want) {
		t.Errorf("expected anchor-relative %v, got %v", want, first.Exact.Start)
	}
	if !first.Exact.Start.Equal(second.Exact.Start) {
		t.Error("normalization must be deterministic for a fixed anchor")
	}
}

func TestNormalize_RejectsInvalidCalendarDate(t *testing.T) {
	sched := Normalize("31.02.2025 19:00", anchor)
	if sched.Type == models.ScheduleTypeExact {
		t.Fatalf("February 31 must not resolve to an exact date, got %+v", sched.Exact)
	}
}
