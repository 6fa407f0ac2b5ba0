package entity

import "time"

// InvoiceStatus is the lifecycle state of a stored invoice record.
type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "pending"
	StatusApproved  InvoiceStatus = "approved"
	StatusRejected  InvoiceStatus = "rejected"
	StatusPaid      InvoiceStatus = "paid"
	StatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceRecord is the durable record created at the end of a successful
// pipeline run. InvoiceID is immutable and globally unique for the life of
// the record; status changes only through lifecycle transitions and the
// record is never physically deleted.
type InvoiceRecord struct {
	InvoiceID       string        `json:"invoice_id"`
	OwnerIdentity   string        `json:"owner_identity"`
	VendorID        *string       `json:"vendor_id,omitempty"`
	VendorNameRaw   string        `json:"vendor_name"`
	InvoiceNumber   string        `json:"invoice_number,omitempty"`
	InvoiceDate     string        `json:"invoice_date,omitempty"`
	DueDate         string        `json:"due_date,omitempty"`
	Amount          float64       `json:"amount"`
	Subtotal        *float64      `json:"subtotal,omitempty"`
	TaxAmount       *float64      `json:"tax_amount,omitempty"`
	Currency        string        `json:"currency"`
	DocumentType    DocumentType  `json:"document_type"`
	LineItems       []LineItem    `json:"line_items,omitempty"`
	PaymentType     string        `json:"payment_type,omitempty"`
	Confidence      float64       `json:"confidence"`
	Warning         string        `json:"validation_warning,omitempty"`
	Status          InvoiceStatus `json:"status"`
	ApprovedBy      *string       `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	RejectedBy      *string       `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	ScheduledDate   *string       `json:"scheduled_date,omitempty"`
	DocumentLocator string        `json:"document_locator,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Terminal reports whether the record can no longer transition.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusRejected
}
