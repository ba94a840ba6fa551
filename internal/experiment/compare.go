// Package experiment compares saved experiment snapshots against a baseline.
package experiment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"compareboard/internal/stage"
	"compareboard/pkg/models"
)

// ErrInsufficientSelection is returned when fewer than two experiments are
// selected; a single row would produce a degenerate zero-delta comparison.
var ErrInsufficientSelection = errors.New("select at least 2 experiments to compare")

// Snapshot score paths.
const (
	SideA = "item_a"
	SideB = "item_b"
)

// DeltaRow is one experiment's totals and deltas relative to the baseline.
// The baseline row is included with zero deltas.
type DeltaRow struct {
	ExperimentID  uuid.UUID `json:"experiment_id"`
	ItemA         string    `json:"item_a"`
	ItemB         string    `json:"item_b"`
	TotalA        float64   `json:"total_a"`
	TotalB        float64   `json:"total_b"`
	DeltaA        float64   `json:"delta_a"`
	DeltaB        float64   `json:"delta_b"`
	DeltaADisplay string    `json:"delta_a_display"`
	DeltaBDisplay string    `json:"delta_b_display"`
	IsBaseline    bool      `json:"is_baseline"`
}

// ReadTotal extracts scores_snapshot.scores[side].total, defaulting to 0 on
// any missing or malformed path.
func ReadTotal(snapshot any, side string) float64 {
	root, _ := stage.AsObject(snapshot)
	scores, _ := stage.Object(root, "scores")
	perItem, _ := stage.Object(scores, side)
	return stage.Num(perItem, "total")
}

// Compare computes per-side score deltas for the selected experiments. The
// first element is the baseline (selection order, not chronological order).
func Compare(selected []models.Experiment) ([]DeltaRow, error) {
	if len(selected) < 2 {
		return nil, ErrInsufficientSelection
	}

	baseA := ReadTotal(selected[0].ScoresSnapshot, SideA)
	baseB := ReadTotal(selected[0].ScoresSnapshot, SideB)

	rows := make([]DeltaRow, 0, len(selected))
	for i, exp := range selected {
		totalA := ReadTotal(exp.ScoresSnapshot, SideA)
		totalB := ReadTotal(exp.ScoresSnapshot, SideB)
		deltaA := totalA - baseA
		deltaB := totalB - baseB
		rows = append(rows, DeltaRow{
			ExperimentID:  exp.ID,
			ItemA:         exp.ItemA,
			ItemB:         exp.ItemB,
			TotalA:        totalA,
			TotalB:        totalB,
			DeltaA:        deltaA,
			DeltaB:        deltaB,
			DeltaADisplay: FormatDelta(deltaA),
			DeltaBDisplay: FormatDelta(deltaB),
			IsBaseline:    i == 0,
		})
	}
	return rows, nil
}

// FormatDelta renders a delta with three decimals and an explicit plus sign
// on gains.
func FormatDelta(delta float64) string {
	if delta > 0 {
		return fmt.Sprintf("+%.3f", delta)
	}
	return fmt.Sprintf("%.3f", delta)
}
