package database

import (
	"testing"
	"time"

	"github.com/sergeymorykov/events-backend/internal/models"
)

func TestNullableJSON(t *testing.T) {
	var sched *models.Schedule
	v, err := nullableJSON(sched)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Errorf("nil schedule must map to SQL NULL, got %v", v)
	}

	var price *models.PriceInfo
	v, err = nullableJSON(price)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Errorf("nil price must map to SQL NULL, got %v", v)
	}

	start := time.Date(2025, 11, 23, 19, 0, 0, 0, time.UTC)
	v, err = nullableJSON(models.NewExactSchedule(start, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok := v.([]byte)
	if !ok || len(b) == 0 {
		t.Errorf("expected marshaled JSON, got %T", v)
	}
}
