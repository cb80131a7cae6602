package dedup

import (
	"testing"
	"time"

	"github.com/sergeymorykov/events-backend/internal/models"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jazz Night!", "jazz night"},
		{"  Jazz   Night  ", "jazz night"},
		{"JAZZ-NIGHT, live?", "jazznight live"},
		{"Джаз в Городе!!!", "джаз в городе"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalHash_Deterministic(t *testing.T) {
	start := time.Date(2025, 1, 11, 20, 0, 0, 0, time.UTC)
	schedA := models.NewExactSchedule(start, nil)
	schedB := models.NewExactSchedule(start.Add(2*time.Hour), nil) // same day, later hour

	h1 := CanonicalHash("Jazz Night", schedA, "City Hall")
	h2 := CanonicalHash("JAZZ NIGHT!", schedB, "city hall")

	if h1 != h2 {
		t.Errorf("equal normalized identity fields must hash equal:\n%s\n%s", h1, h2)
	}
}

func TestCanonicalHash_DistinguishesFields(t *testing.T) {
	start := time.Date(2025, 1, 11, 20, 0, 0, 0, time.UTC)
	sched := models.NewExactSchedule(start, nil)

	base := CanonicalHash("Jazz Night", sched, "City Hall")

	if CanonicalHash("Blues Night", sched, "City Hall") == base {
		t.Error("different titles must not hash equal")
	}
	if CanonicalHash("Jazz Night", sched, "Opera House") == base {
		t.Error("different locations must not hash equal")
	}

	otherDay := models.NewExactSchedule(start.AddDate(0, 0, 1), nil)
	if CanonicalHash("Jazz Night", otherDay, "City Hall") == base {
		t.Error("different dates must not hash equal")
	}
}

func TestCanonicalHash_NilScheduleAndLocation(t *testing.T) {
	h1 := CanonicalHash("Jazz Night", nil, "")
	h2 := CanonicalHash("Jazz Night", nil, "")
	if h1 != h2 {
		t.Error("nil schedule and empty location must hash deterministically")
	}

	fuzzy := models.NewFuzzySchedule("sometime in spring", nil)
	if CanonicalHash("Jazz Night", fuzzy, "") != h1 {
		t.Error("fuzzy schedule without approximate start contributes no date")
	}
}
