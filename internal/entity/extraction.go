package entity

// EntityType identifies a class of value pulled out of a document by the
// OCR/layout service.
type EntityType string

const (
	EntityVendorName    EntityType = "VENDOR_NAME"
	EntityInvoiceNumber EntityType = "INVOICE_NUMBER"
	EntityInvoiceDate   EntityType = "INVOICE_DATE"
	EntityDueDate       EntityType = "DUE_DATE"
	EntityTotalAmount   EntityType = "TOTAL_AMOUNT"
	EntitySubtotal      EntityType = "SUBTOTAL"
	EntityTaxAmount     EntityType = "TAX_AMOUNT"
	EntityTaxID         EntityType = "TAX_ID"
	EntityCurrency      EntityType = "CURRENCY"
	EntityCountry       EntityType = "COUNTRY"
)

// EntityMention is a single extracted value with the OCR service's own
// confidence in it.
type EntityMention struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// RawExtraction is the normalized output of one OCR pass over a document.
// Produced once per pipeline run and never mutated afterwards.
type RawExtraction struct {
	Text      string                         `json:"text"`
	Entities  map[EntityType][]EntityMention `json:"entities"`
	PageCount int                            `json:"page_count"`
}

// FirstEntity returns the highest-ranked mention for a type, or "" if the
// OCR service produced none.
func (r *RawExtraction) FirstEntity(t EntityType) string {
	if r == nil {
		return ""
	}
	mentions := r.Entities[t]
	if len(mentions) == 0 {
		return ""
	}
	return mentions[0].Value
}

// DocumentType distinguishes full invoices from point-of-sale receipts.
type DocumentType string

const (
	DocumentInvoice DocumentType = "invoice"
	DocumentReceipt DocumentType = "receipt"
)

// LineItem is one billed line on an invoice.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Amount      float64  `json:"amount"`
}

// CanonicalExtraction is the schema-conformant structured representation of an
// invoice's content, independent of the source document format. It is produced
// by the semantic extractor and mutated only by the validation engine
// (confidence clamp and warning attach).
type CanonicalExtraction struct {
	VendorNameRaw     string       `json:"vendor_name"`
	InvoiceNumber     string       `json:"invoice_number,omitempty"`
	InvoiceDate       string       `json:"invoice_date,omitempty"`
	DueDate           string       `json:"due_date,omitempty"`
	Amount            float64      `json:"amount"`
	Subtotal          *float64     `json:"subtotal,omitempty"`
	TaxAmount         *float64     `json:"tax_amount,omitempty"`
	Currency          string       `json:"currency"`
	DocumentType      DocumentType `json:"document_type"`
	LineItems         []LineItem   `json:"line_items,omitempty"`
	PaymentType       string       `json:"payment_type,omitempty"`
	TaxID             string       `json:"tax_id,omitempty"`
	VendorCountry     string       `json:"vendor_country,omitempty"`
	VendorDomain      string       `json:"vendor_domain,omitempty"`
	Confidence        float64      `json:"confidence"`
	ValidationWarning string       `json:"validation_warning,omitempty"`
}
