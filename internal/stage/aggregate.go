package stage

import "compareboard/pkg/models"

// Meta describes the fixed semantic role of one stage slot.
type Meta struct {
	Number int    `json:"number"`
	Key    string `json:"key"`
	Label  string `json:"label"`
}

// Metas lists the six stage slots in pipeline order.
var Metas = []Meta{
	{Number: 0, Key: "listing_fetch", Label: "Listing Fetch"},
	{Number: 1, Key: "main_image_eval", Label: "Main Image Evaluation"},
	{Number: 2, Key: "gallery_eval", Label: "Gallery Evaluation"},
	{Number: 3, Key: "text_alignment", Label: "Text Alignment"},
	{Number: 4, Key: "avatars", Label: "Avatars"},
	{Number: 5, Key: "verdict", Label: "Verdict"},
}

// Aggregate indexes stage records by stage number. When two records share a
// number the one later in the input wins; the upstream feed sorts by stage
// number and the store enforces uniqueness per job+stage, so last-wins is a
// safeguard against non-deduplicated feeds rather than a tie-break anyone
// relies on.
func Aggregate(records []models.StageRecord) map[int]models.StageRecord {
	agg := make(map[int]models.StageRecord, len(records))
	for _, rec := range records {
		agg[rec.StageNumber] = rec
	}
	return agg
}

// StatusFor reports the status of one stage slot, treating an absent slot
// as pending.
func StatusFor(agg map[int]models.StageRecord, number int) string {
	rec, ok := agg[number]
	if !ok {
		return models.StageStatusPending
	}
	return rec.Status
}

// CompletedCount counts how many of the fixed stage slots are completed.
func CompletedCount(agg map[int]models.StageRecord) int {
	count := 0
	for _, meta := range Metas {
		if StatusFor(agg, meta.Number) == models.StageStatusCompleted {
			count++
		}
	}
	return count
}

// Output returns the parsed object payload for one stage slot, or nil when
// the slot is absent or its output is not an object.
func Output(agg map[int]models.StageRecord, number int) map[string]any {
	rec, ok := agg[number]
	if !ok {
		return nil
	}
	obj, _ := AsObject(rec.Output)
	return obj
}
