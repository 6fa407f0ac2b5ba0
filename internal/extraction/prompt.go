package extraction

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// maxPromptChars bounds the raw text sent to the reasoning service so one
// oversized document cannot blow the model's context window.
const maxPromptChars = 6000

// BuildExtractionPrompt composes the single-round-trip extraction prompt:
// instructions, JSON schema, optional historical context, and the (truncated)
// OCR text.
func BuildExtractionPrompt(rawText, historicalContext string) string {
	schema, _ := json.MarshalIndent(BuildExtractionJSONSchema(), "", "  ")

	parts := []string{
		"You are an accounts-payable document parser. Return ONLY a JSON object matching the schema below.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Currency must be a 3-letter ISO 4217 code; default to USD if uncertain.",
		"'amount' is the grand total payable. Put the pre-tax total in 'subtotal' and taxes in 'tax_amount' when visible.",
		"'document_type' is 'receipt' for point-of-sale slips, otherwise 'invoice'.",
		"Include the vendor's tax/VAT identifier under 'tax_id' when printed on the document.",
		"Report your own extraction certainty in 'confidence' (0 to 1).",
		"Never output null. If a field is not present, omit it.",
	}

	var b strings.Builder
	b.WriteString(strings.Join(parts, " "))
	b.WriteString("\n\nJSON Schema:\n")
	b.Write(schema)

	if strings.TrimSpace(historicalContext) != "" {
		b.WriteString("\n\nHistorical context:\n")
		b.WriteString(historicalContext)
	}

	b.WriteString("\n\nDocument text (first ~6k chars):\n")
	text := strings.TrimSpace(rawText)
	if len(text) > maxPromptChars {
		// Back off to a rune boundary so the cut never splits a UTF-8
		// sequence.
		cut := maxPromptChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		b.WriteString(text[:cut])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}

	return b.String()
}
