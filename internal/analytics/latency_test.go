package analytics

import (
	"math"
	"reflect"
	"testing"

	"compareboard/pkg/models"
)

func completedEvent(stageNumber int, durationMs any) models.AnalyticsEvent {
	n := stageNumber
	return models.AnalyticsEvent{
		EventName:   models.EventStageCompleted,
		StageNumber: &n,
		Properties:  map[string]any{"duration_ms": durationMs},
	}
}

func TestSummarize_NearestRankPercentiles(t *testing.T) {
	var events []models.AnalyticsEvent
	for _, d := range []float64{100, 200, 300, 400, 500} {
		events = append(events, completedEvent(1, d))
	}

	rows := Summarize(events)
	expected := []StageLatency{{Stage: 1, Samples: 5, P50Ms: 300, P95Ms: 500}}
	if !reflect.DeepEqual(rows, expected) {
		t.Errorf("expected %+v, got %+v", expected, rows)
	}
}

func TestSummarize_SingleSample(t *testing.T) {
	rows := Summarize([]models.AnalyticsEvent{completedEvent(3, 250.0)})
	expected := []StageLatency{{Stage: 3, Samples: 1, P50Ms: 250, P95Ms: 250}}
	if !reflect.DeepEqual(rows, expected) {
		t.Errorf("expected %+v, got %+v", expected, rows)
	}
}

func TestSummarize_FiltersNonQualifyingEvents(t *testing.T) {
	two := 2
	events := []models.AnalyticsEvent{
		// Wrong event name.
		{EventName: "job_submitted", StageNumber: &two, Properties: map[string]any{"duration_ms": 100.0}},
		// No stage number.
		{EventName: models.EventStageCompleted, Properties: map[string]any{"duration_ms": 100.0}},
		// Zero and negative durations are measurement errors.
		completedEvent(2, 0.0),
		completedEvent(2, -50.0),
		// Non-numeric and non-finite durations.
		completedEvent(2, "fast"),
		completedEvent(2, math.NaN()),
		completedEvent(2, math.Inf(1)),
		// Missing properties bag.
		{EventName: models.EventStageCompleted, StageNumber: &two},
		// The only qualifying sample.
		completedEvent(2, 120.0),
	}

	rows := Summarize(events)
	expected := []StageLatency{{Stage: 2, Samples: 1, P50Ms: 120, P95Ms: 120}}
	if !reflect.DeepEqual(rows, expected) {
		t.Errorf("expected %+v, got %+v", expected, rows)
	}
}

func TestSummarize_EmptyStagesOmitted(t *testing.T) {
	rows := Summarize([]models.AnalyticsEvent{completedEvent(4, 0.0)})
	if len(rows) != 0 {
		t.Errorf("expected no rows when no stage has qualifying samples, got %+v", rows)
	}
}

func TestSummarize_RowsSortedByStage(t *testing.T) {
	events := []models.AnalyticsEvent{
		completedEvent(5, 900.0),
		completedEvent(0, 100.0),
		completedEvent(3, 400.0),
	}

	rows := Summarize(events)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, expected := range []int{0, 3, 5} {
		if rows[i].Stage != expected {
			t.Errorf("row %d: expected stage %d, got %d", i, expected, rows[i].Stage)
		}
	}
}

func TestSummarize_RoundsToNearestMillisecond(t *testing.T) {
	rows := Summarize([]models.AnalyticsEvent{completedEvent(1, 123.6)})
	if rows[0].P50Ms != 124 {
		t.Errorf("expected 124, got %d", rows[0].P50Ms)
	}
}
