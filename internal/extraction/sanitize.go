package extraction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var numericFields = []string{"amount", "subtotal", "tax_amount"}

var allowedKeys = map[string]struct{}{
	"vendor_name": {}, "invoice_number": {}, "invoice_date": {}, "due_date": {},
	"amount": {}, "subtotal": {}, "tax_amount": {}, "currency": {},
	"document_type": {}, "line_items": {}, "payment_type": {}, "tax_id": {},
	"vendor_country": {}, "vendor_domain": {}, "confidence": {},
}

// SanitizePayload normalizes a model extraction payload so a near-miss can
// still validate: drops nulls and unknown keys, coerces numeric strings
// ("1,234.56") to numbers, uppercases the currency, and defaults
// document_type. Returns the cleaned JSON and the keys it touched.
func SanitizePayload(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var touched []string

	for k, v := range m {
		if v == nil {
			delete(m, k)
			touched = append(touched, k+"(null)")
			continue
		}
		if _, ok := allowedKeys[k]; !ok {
			delete(m, k)
			touched = append(touched, k+"(unknown)")
		}
	}

	for _, k := range numericFields {
		if s, ok := m[k].(string); ok {
			s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				m[k] = f
				touched = append(touched, k+"(coerced)")
			} else {
				delete(m, k)
				touched = append(touched, k+"(unparseable)")
			}
		}
	}

	if v, ok := m["currency"].(string); ok {
		m["currency"] = strings.ToUpper(strings.TrimSpace(v))
	}

	if v, ok := m["document_type"].(string); ok {
		dt := strings.ToLower(strings.TrimSpace(v))
		if dt != "invoice" && dt != "receipt" {
			dt = "invoice"
			touched = append(touched, "document_type(defaulted)")
		}
		m["document_type"] = dt
	} else {
		m["document_type"] = "invoice"
		touched = append(touched, "document_type(defaulted)")
	}

	if v, ok := m["confidence"].(float64); ok {
		switch {
		case v < 0:
			m["confidence"] = 0.0
			touched = append(touched, "confidence(clamped)")
		case v > 1:
			m["confidence"] = 1.0
			touched = append(touched, "confidence(clamped)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, touched, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, touched, nil
}
