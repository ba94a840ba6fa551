// Package analytics reduces raw usage events into per-stage latency
// summaries for the dashboard.
package analytics

import (
	"math"
	"sort"

	"compareboard/pkg/models"
)

// StageLatency is one row of the latency table: percentile summaries of
// stage_completed durations for a single stage.
type StageLatency struct {
	Stage   int   `json:"stage"`
	Samples int   `json:"samples"`
	P50Ms   int64 `json:"p50_ms"`
	P95Ms   int64 `json:"p95_ms"`
}

// Summarize reduces an event log into per-stage latency rows, sorted
// ascending by stage number. Only stage_completed events with a stage number
// and a positive finite duration_ms qualify; a zero or negative duration is
// a measurement error, not a sample. Stages with no qualifying samples are
// omitted.
func Summarize(events []models.AnalyticsEvent) []StageLatency {
	byStage := make(map[int][]float64)
	for _, event := range events {
		if event.EventName != models.EventStageCompleted {
			continue
		}
		if event.StageNumber == nil {
			continue
		}
		duration, ok := durationMs(event.Properties)
		if !ok {
			continue
		}
		byStage[*event.StageNumber] = append(byStage[*event.StageNumber], duration)
	}

	rows := make([]StageLatency, 0, len(byStage))
	for stageNumber, durations := range byStage {
		sort.Float64s(durations)
		rows = append(rows, StageLatency{
			Stage:   stageNumber,
			Samples: len(durations),
			P50Ms:   int64(math.Round(percentile(durations, 0.5))),
			P95Ms:   int64(math.Round(percentile(durations, 0.95))),
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Stage < rows[j].Stage })
	return rows
}

// percentile selects the nearest-rank percentile from sorted ascending
// samples: index = clamp(ceil(n*q)-1, 0, n-1). This picks an actual sample
// rather than interpolating, so p95 of [100..500] is 500, not 480.
func percentile(sorted []float64, quantile float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(float64(len(sorted))*quantile)) - 1
	if index < 0 {
		index = 0
	}
	if index > len(sorted)-1 {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func durationMs(properties map[string]any) (float64, bool) {
	if properties == nil {
		return 0, false
	}
	var value float64
	switch v := properties["duration_ms"].(type) {
	case float64:
		value = v
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0, false
	}
	return value, true
}
