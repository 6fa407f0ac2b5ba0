package resolver

import (
	"encoding/json"
	"strings"

	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// BuildAdjudicationJSONSchema returns the schema the adjudicator's payload
// must satisfy before its verdict is trusted.
func BuildAdjudicationJSONSchema() map[string]any {
	update := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"vendor_id": map[string]any{"type": "string"},
			"field":     map[string]any{"type": "string"},
			"value":     map[string]any{"type": "string"},
		},
		"required":             []string{"vendor_id", "field", "value"},
		"additionalProperties": false,
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"verdict": map[string]any{
				"type": "string",
				"enum": []string{"MATCH", "NEW_VENDOR", "AMBIGUOUS"},
			},
			"vendor_id":  map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"entity_type": map[string]any{
				"type": "string",
				"enum": []string{"BILLABLE", "BANK_NOTIFICATION", "GOVERNMENT_AGENCY", "PAYMENT_PROCESSOR"},
			},
			"reasoning":        map[string]any{"type": "string"},
			"proposed_updates": map[string]any{"type": "array", "items": update},
		},
		"required": []string{"verdict", "confidence", "entity_type", "reasoning"},
	}
}

// BuildAdjudicationPrompt composes the evidence-hierarchy prompt that turns a
// ranked candidate set into a single verdict.
func BuildAdjudicationPrompt(ext *entity.CanonicalExtraction, candidates []entity.CandidateVendor) string {
	schema, _ := json.MarshalIndent(BuildAdjudicationJSONSchema(), "", "  ")
	candidateJSON, _ := json.MarshalIndent(candidates, "", "  ")

	extracted := map[string]string{
		"vendor_name": ext.VendorNameRaw,
		"tax_id":      ext.TaxID,
		"country":     ext.VendorCountry,
		"domain":      ext.VendorDomain,
		"currency":    ext.Currency,
	}
	extractedJSON, _ := json.MarshalIndent(extracted, "", "  ")

	parts := []string{
		"You adjudicate vendor identity for an accounts-payable system.",
		"Decide whether the extracted vendor below is one of the known candidates, a new vendor, or undecidable.",
		"Return ONLY a JSON object matching the schema below.",
		"",
		"Weigh evidence by tier:",
		"- GOLD (confidence 0.95-1.0): identical tax or bank identifiers, or a corporate domain uniquely tied to one candidate.",
		"- SILVER (0.75-0.90): strong semantic name equivalence (including abbreviation or brand vs. legal-entity forms), matching address, matching phone.",
		"- BRONZE (0.50-0.70): generic or partial name overlap only.",
		"",
		"Apply these rules:",
		"- Parent/subsidiary: a subsidiary billing under its parent's name is a MATCH to the subsidiary when both exist; otherwise to the parent.",
		"- Brand vs. legal entity: 'AWS' matches 'Amazon Web Services, Inc.'.",
		"- Geographic subsidiaries: 'Acme GmbH' and 'Acme Ltd' are the same group entity in different countries.",
		"- OCR tolerance: allow digit-for-letter substitutions and similar scanning noise ('G00gle' ~ 'Google').",
		"- False friends: REJECT lexically similar but unrelated entities (a landscaping company sharing a brand word with a large unrelated corporation is NOT a match).",
		"",
		"Classify 'entity_type': BILLABLE for a real supplier; BANK_NOTIFICATION, GOVERNMENT_AGENCY, or PAYMENT_PROCESSOR when the named party is not a billable vendor at all.",
		"A MATCH verdict MUST carry the chosen candidate's id in 'vendor_id'.",
		"If several candidates remain plausible with no confident winner, return AMBIGUOUS.",
		"You may propose registry updates (new alias, new address) in 'proposed_updates'; they are advisory only.",
	}

	var b strings.Builder
	b.WriteString(strings.Join(parts, "\n"))
	b.WriteString("\n\nJSON Schema:\n")
	b.Write(schema)
	b.WriteString("\n\nExtracted vendor:\n")
	b.Write(extractedJSON)
	b.WriteString("\n\nCandidates:\n")
	b.Write(candidateJSON)
	return b.String()
}
