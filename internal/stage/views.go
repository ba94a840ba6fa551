package stage

// Typed views over the per-stage output payloads. All parse functions accept
// an arbitrary value and never fail; fields missing from the payload come
// back as the documented defaults.

// ListingItem is one side of the stage-0 listing fetch output.
type ListingItem struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	ImageURL   string `json:"image_url"`
	Provider   string `json:"provider"`
}

// ListingOutput is the stage-0 output: the two fetched listings.
type ListingOutput struct {
	Provider string      `json:"provider"`
	ItemA    ListingItem `json:"item_a"`
	ItemB    ListingItem `json:"item_b"`
}

// EvidenceItem is one structured observation from the vision stages (1, 2).
type EvidenceItem struct {
	Identifier string `json:"identifier"`
	Factor     string `json:"factor"`
	Detail     string `json:"detail"`
}

// Avatar is one generated persona from stage 4.
type Avatar struct {
	Name          string   `json:"name"`
	LeansTo       string   `json:"leans_to"`
	CaresAbout    []string `json:"cares_about"`
	FixSuggestion string   `json:"fix_suggestion,omitempty"`
}

// Fix is one prioritized improvement suggestion from stage 5. Order within
// the output array is the producer's priority ranking.
type Fix struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// VerdictOutput is the stage-5 output: the final comparison verdict.
type VerdictOutput struct {
	Winner           string  `json:"winner"`
	Confidence       float64 `json:"confidence"`
	ScoreA           float64 `json:"score_a"`
	ScoreB           float64 `json:"score_b"`
	PrioritizedFixes []Fix   `json:"prioritized_fixes"`
}

// ParseListing reads a stage-0 output payload.
func ParseListing(output any) ListingOutput {
	obj, _ := AsObject(output)
	provider := Str(obj, "provider", "unknown")
	return ListingOutput{
		Provider: provider,
		ItemA:    parseListingItem(obj, "item_a", provider),
		ItemB:    parseListingItem(obj, "item_b", provider),
	}
}

func parseListingItem(obj map[string]any, key, provider string) ListingItem {
	item, _ := Object(obj, key)
	return ListingItem{
		Identifier: Str(item, "identifier", ""),
		Title:      Str(item, "title", "No title"),
		ImageURL:   Str(item, "image_url", ""),
		Provider:   Str(item, "provider", provider),
	}
}

// ParseEvidence reads the evidence list from a stage-1 or stage-2 output.
func ParseEvidence(output any) []EvidenceItem {
	obj, _ := AsObject(output)
	var out []EvidenceItem
	for _, raw := range List(obj, "evidence") {
		item, ok := AsObject(raw)
		if !ok {
			continue
		}
		out = append(out, EvidenceItem{
			Identifier: Str(item, "identifier", "?"),
			Factor:     Str(item, "factor", "factor"),
			Detail:     Str(item, "detail", ""),
		})
	}
	return out
}

// ParseAvatars reads the persona list from a stage-4 output.
func ParseAvatars(output any) []Avatar {
	obj, _ := AsObject(output)
	var out []Avatar
	for _, raw := range List(obj, "avatars") {
		item, ok := AsObject(raw)
		if !ok {
			continue
		}
		out = append(out, Avatar{
			Name:          Str(item, "name", "Persona"),
			LeansTo:       Str(item, "leans_to", "TIE"),
			CaresAbout:    Strings(item, "cares_about"),
			FixSuggestion: Str(item, "fix_suggestion", ""),
		})
	}
	return out
}

// ParseVerdict reads a stage-5 output payload. Confidence is clamped to
// [0,1]; scores default to 0 on any missing or malformed path.
func ParseVerdict(output any) VerdictOutput {
	obj, _ := AsObject(output)
	scores, _ := Object(obj, "scores")
	itemA, _ := Object(scores, "item_a")
	itemB, _ := Object(scores, "item_b")

	var fixes []Fix
	for _, raw := range List(obj, "prioritized_fixes") {
		item, ok := AsObject(raw)
		if !ok {
			continue
		}
		fixes = append(fixes, Fix{
			Title:  Str(item, "title", "Suggestion"),
			Reason: Str(item, "reason", ""),
		})
	}

	return VerdictOutput{
		Winner:           Str(obj, "winner", "TIE"),
		Confidence:       Clamp01(Num(obj, "confidence")),
		ScoreA:           Num(itemA, "total"),
		ScoreB:           Num(itemB, "total"),
		PrioritizedFixes: fixes,
	}
}
