package extraction

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-capture/internal/client"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// Adapter wraps the OCR service and guarantees the pipeline always receives a
// RawExtraction: a failed or degraded OCR call yields an empty entity bag so
// the deterministic fallback path downstream can engage.
type Adapter struct {
	ocr client.OCRClientInterface
	log zerolog.Logger
}

// NewAdapter creates a new extraction adapter.
func NewAdapter(ocr client.OCRClientInterface, log zerolog.Logger) *Adapter {
	return &Adapter{ocr: ocr, log: log}
}

// Extract runs OCR over the document. Never returns an error: OCR failure is
// absorbed into an empty extraction and logged.
func (a *Adapter) Extract(ctx context.Context, document []byte, mimeType string) *entity.RawExtraction {
	raw, err := a.ocr.Extract(ctx, document, mimeType)
	if err != nil {
		a.log.Warn().Err(err).Str("mime_type", mimeType).
			Msg("ocr extraction failed, continuing with empty extraction")
		return &entity.RawExtraction{Entities: map[entity.EntityType][]entity.EntityMention{}}
	}
	if raw.Entities == nil {
		raw.Entities = map[entity.EntityType][]entity.EntityMention{}
	}
	return raw
}

var nonAmountChars = regexp.MustCompile(`[^\d.,\-]`)

// CleanAmount parses an OCR amount string, tolerating currency symbols and
// thousands separators ("$1,234.56", "1.234,56 EUR"). Returns 0 for
// unparseable input.
func CleanAmount(s string) float64 {
	s = nonAmountChars.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return 0
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// European style: dot groups, comma decimal
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// A lone comma followed by exactly two digits is a decimal point;
		// otherwise it groups thousands.
		if len(s)-lastComma == 3 {
			s = strings.ReplaceAll(s[:lastComma], ",", "") + "." + s[lastComma+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006/01/02",
}

// NormalizeDate converts common OCR date renderings to YYYY-MM-DD. Returns ""
// when no known layout matches.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// FallbackExtraction builds a CanonicalExtraction directly from OCR entities.
// Used when the reasoning service is unavailable or returned an unusable
// payload. Confidence is fixed at 0.5.
func FallbackExtraction(raw *entity.RawExtraction) *entity.CanonicalExtraction {
	currency := strings.ToUpper(strings.TrimSpace(raw.FirstEntity(entity.EntityCurrency)))
	if len(currency) != 3 {
		currency = "USD"
	}

	var subtotal, taxAmount *float64
	if s := raw.FirstEntity(entity.EntitySubtotal); s != "" {
		v := CleanAmount(s)
		subtotal = &v
	}
	if s := raw.FirstEntity(entity.EntityTaxAmount); s != "" {
		v := CleanAmount(s)
		taxAmount = &v
	}

	return &entity.CanonicalExtraction{
		VendorNameRaw: strings.TrimSpace(raw.FirstEntity(entity.EntityVendorName)),
		InvoiceNumber: strings.TrimSpace(raw.FirstEntity(entity.EntityInvoiceNumber)),
		InvoiceDate:   NormalizeDate(raw.FirstEntity(entity.EntityInvoiceDate)),
		DueDate:       NormalizeDate(raw.FirstEntity(entity.EntityDueDate)),
		Amount:        CleanAmount(raw.FirstEntity(entity.EntityTotalAmount)),
		Subtotal:      subtotal,
		TaxAmount:     taxAmount,
		Currency:      currency,
		DocumentType:  entity.DocumentInvoice,
		TaxID:         strings.TrimSpace(raw.FirstEntity(entity.EntityTaxID)),
		VendorCountry: strings.TrimSpace(raw.FirstEntity(entity.EntityCountry)),
		Confidence:    0.5,
	}
}
