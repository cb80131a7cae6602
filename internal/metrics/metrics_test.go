package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPipelineCollector_Handler(t *testing.T) {
	collector, err := NewPipelineCollector()
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}

	collector.ObservePost("succeeded", 120*time.Millisecond)
	collector.ObservePost("failed", 40*time.Millisecond)
	collector.AddExtracted(3)
	collector.AddMerged(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`eventsbackend_pipeline_posts_processed_total{result="succeeded"} 1`,
		`eventsbackend_pipeline_posts_processed_total{result="failed"} 1`,
		`eventsbackend_pipeline_events_extracted_total 3`,
		`eventsbackend_pipeline_duplicates_merged_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestPipelineCollector_NilSafe(t *testing.T) {
	var collector *PipelineCollector
	collector.ObservePost("succeeded", time.Second)
	collector.AddExtracted(1)
	collector.AddMerged(1)
}
