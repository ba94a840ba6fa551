// Package verdict derives the comparison verdict view from an aggregated
// stage map. Project is pure: it never mutates its input and is safe to
// re-run on every refresh cycle.
package verdict

import (
	"fmt"

	"compareboard/internal/stage"
	"compareboard/pkg/models"
)

// maxVisionEvidence caps the evidence list for display.
const maxVisionEvidence = 8

// WinnerTie marks a split verdict; it renders distinctly from a winner badge.
const WinnerTie = "TIE"

// Projection is the derived verdict view for one job. Display fields carry
// the exact formatting the dashboard renders (confidence as a percentage
// with one decimal, scores with three decimals).
type Projection struct {
	HasVerdict        bool                 `json:"has_verdict"`
	Winner            string               `json:"winner"`
	SplitVerdict      bool                 `json:"split_verdict"`
	Confidence        float64              `json:"confidence"`
	ConfidenceDisplay string               `json:"confidence_display"`
	ScoreA            float64              `json:"score_a"`
	ScoreB            float64              `json:"score_b"`
	ScoreADisplay     string               `json:"score_a_display"`
	ScoreBDisplay     string               `json:"score_b_display"`
	Avatars           []stage.Avatar       `json:"avatars"`
	PrioritizedFixes  []stage.Fix          `json:"prioritized_fixes"`
	VisionEvidence    []stage.EvidenceItem `json:"vision_evidence"`
}

// Project derives the verdict view from an aggregated stage map. Vision
// evidence concatenates stage 1 before stage 2 and truncates to the first
// eight entries; prioritized fixes keep producer order.
func Project(agg map[int]models.StageRecord) Projection {
	verdictOut := stage.Output(agg, 5)
	parsed := stage.ParseVerdict(verdictOut)

	evidence := stage.ParseEvidence(stage.Output(agg, 1))
	evidence = append(evidence, stage.ParseEvidence(stage.Output(agg, 2))...)
	if len(evidence) > maxVisionEvidence {
		evidence = evidence[:maxVisionEvidence]
	}

	return Projection{
		HasVerdict:        verdictOut != nil,
		Winner:            parsed.Winner,
		SplitVerdict:      parsed.Winner == WinnerTie,
		Confidence:        parsed.Confidence,
		ConfidenceDisplay: fmt.Sprintf("%.1f%%", parsed.Confidence*100),
		ScoreA:            parsed.ScoreA,
		ScoreB:            parsed.ScoreB,
		ScoreADisplay:     fmt.Sprintf("%.3f", parsed.ScoreA),
		ScoreBDisplay:     fmt.Sprintf("%.3f", parsed.ScoreB),
		Avatars:           stage.ParseAvatars(stage.Output(agg, 4)),
		PrioritizedFixes:  parsed.PrioritizedFixes,
		VisionEvidence:    evidence,
	}
}
