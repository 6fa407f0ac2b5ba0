package extraction

// BuildExtractionJSONSchema returns the JSON-Schema the reasoning service's
// extraction payload must satisfy. It is sent with the prompt and enforced
// locally before the payload is trusted.
func BuildExtractionJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{"type": "string"},
			"quantity":    map[string]any{"type": "number"},
			"unit_price":  map[string]any{"type": "number"},
			"amount":      map[string]any{"type": "number"},
		},
		"required":             []string{"description", "amount"},
		"additionalProperties": false,
	}

	props := map[string]any{
		"vendor_name":    map[string]any{"type": "string"},
		"invoice_number": map[string]any{"type": "string"},
		"invoice_date":   map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"due_date":       map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"amount":         map[string]any{"type": "number"},
		"subtotal":       map[string]any{"type": "number"},
		"tax_amount":     map[string]any{"type": "number"},
		"currency":       map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"document_type":  map[string]any{"type": "string", "enum": []string{"invoice", "receipt"}},
		"line_items":     map[string]any{"type": "array", "items": lineItem},
		"payment_type":   map[string]any{"type": "string"},
		"tax_id":         map[string]any{"type": "string"},
		"vendor_country": map[string]any{"type": "string"},
		"vendor_domain":  map[string]any{"type": "string"},
		"confidence":     map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"vendor_name", "amount", "currency", "document_type", "confidence"},
	}
}
