// Package lifecycle owns the invoice record state machine:
//
//	pending → approved | rejected
//	pending | approved → cancelled
//	approved → paid
//
// paid, cancelled and rejected are terminal. The only legal repeat is
// approve() with an identical actor, which is a no-op success.
package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/client"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// idCollisionRetries bounds regeneration attempts when a generated invoice id
// is already taken.
const idCollisionRetries = 3

// RecordStore is the persistence surface the manager drives. Conditional
// updates return false when the status precondition did not hold.
type RecordStore interface {
	Insert(ctx context.Context, rec *entity.InvoiceRecord, dedupKey string) error
	ExistsID(ctx context.Context, invoiceID string) (bool, error)
	FindDuplicate(ctx context.Context, owner, dedupKey string) (string, error)
	GetByID(ctx context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error)
	Approve(ctx context.Context, owner, invoiceID, actor string, scheduledDate *string) (bool, error)
	Reject(ctx context.Context, owner, invoiceID, actor, reason string) (bool, error)
	MarkPaid(ctx context.Context, owner, invoiceID string) (bool, error)
	Cancel(ctx context.Context, owner, invoiceID string) (bool, error)
}

// Locker serializes the dedup-check-then-insert window per dedup key. The
// store's unique constraint remains the backstop if locking is unavailable.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Manager enforces transition legality, id uniqueness and deduplication for
// invoice records.
type Manager struct {
	store  RecordStore
	locker Locker
	events *client.NotificationPublisher
	log    zerolog.Logger
}

// NewManager creates a lifecycle manager. locker and events may be nil.
func NewManager(store RecordStore, locker Locker, events *client.NotificationPublisher, log zerolog.Logger) *Manager {
	return &Manager{store: store, locker: locker, events: events, log: log}
}

// CreateResult reports the outcome of Create: either a new record or the id
// of the duplicate that short-circuited it.
type CreateResult struct {
	Record      *entity.InvoiceRecord
	Duplicate   bool
	DuplicateOf string
}

// Create persists a validated extraction as a new pending record. A record
// with the same dedup key in the owner scope short-circuits with a duplicate
// result instead of a second row.
func (m *Manager) Create(ctx context.Context, owner string, ext *entity.CanonicalExtraction, verdict *entity.ResolutionVerdict, documentLocator string) (*CreateResult, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner", "owner identity is required")
	}
	if ext == nil {
		return nil, apperrors.InvalidInput("extraction", "extraction is required")
	}

	dedupKey := DedupKey(ext, verdict)

	if m.locker != nil {
		release, err := m.locker.Lock(ctx, "invoice-dedup:"+owner+":"+dedupKey, 10*time.Second)
		if err != nil {
			m.log.Warn().Err(err).Msg("dedup lock unavailable, relying on unique constraint")
		} else {
			defer release()
		}
	}

	existing, err := m.store.FindDuplicate(ctx, owner, dedupKey)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		m.log.Info().Str("duplicate_of", existing).Str("vendor", ext.VendorNameRaw).
			Msg("duplicate upload detected")
		m.publish("duplicate_detected", entity.InvoiceRecord{InvoiceID: existing, OwnerIdentity: owner}, "")
		return &CreateResult{Duplicate: true, DuplicateOf: existing}, nil
	}

	invoiceID, err := m.generateID(ctx)
	if err != nil {
		return nil, err
	}

	rec := &entity.InvoiceRecord{
		InvoiceID:       invoiceID,
		OwnerIdentity:   owner,
		VendorNameRaw:   ext.VendorNameRaw,
		InvoiceNumber:   ext.InvoiceNumber,
		InvoiceDate:     ext.InvoiceDate,
		DueDate:         ext.DueDate,
		Amount:          ext.Amount,
		Subtotal:        ext.Subtotal,
		TaxAmount:       ext.TaxAmount,
		Currency:        ext.Currency,
		DocumentType:    ext.DocumentType,
		LineItems:       ext.LineItems,
		PaymentType:     ext.PaymentType,
		Confidence:      ext.Confidence,
		Warning:         ext.ValidationWarning,
		Status:          entity.StatusPending,
		DocumentLocator: documentLocator,
	}
	if verdict != nil && verdict.Verdict == entity.VerdictMatch && verdict.VendorID != "" {
		id := verdict.VendorID
		rec.VendorID = &id
	}

	if err := m.store.Insert(ctx, rec, dedupKey); err != nil {
		if apperrors.Is(err, apperrors.ErrCodeDuplicate) {
			// Lost the race to a concurrent upload of the same invoice.
			existing, findErr := m.store.FindDuplicate(ctx, owner, dedupKey)
			if findErr == nil && existing != "" {
				return &CreateResult{Duplicate: true, DuplicateOf: existing}, nil
			}
			return &CreateResult{Duplicate: true}, nil
		}
		return nil, err
	}

	m.log.Info().
		Str("invoice_id", rec.InvoiceID).
		Str("owner", owner).
		Str("vendor", rec.VendorNameRaw).
		Float64("amount", rec.Amount).
		Float64("confidence", rec.Confidence).
		Msg("invoice record created")
	m.publish("created", *rec, "")

	return &CreateResult{Record: rec}, nil
}

// Approve transitions pending → approved. Calling it again with the same
// actor is a no-op success; anything else from a non-pending state is an
// InvalidTransition.
func (m *Manager) Approve(ctx context.Context, owner, invoiceID, actor string, scheduledDate *string) (*entity.InvoiceRecord, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.InvalidInput("actor", "approver identity is required")
	}

	rec, err := m.store.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case entity.StatusPending:
		updated, err := m.store.Approve(ctx, owner, invoiceID, actor, scheduledDate)
		if err != nil {
			return nil, err
		}
		if !updated {
			// Raced with a concurrent transition; re-read once and settle.
			rec, err = m.store.GetByID(ctx, owner, invoiceID)
			if err != nil {
				return nil, err
			}
			if rec.Status == entity.StatusApproved && rec.ApprovedBy != nil && *rec.ApprovedBy == actor {
				return rec, nil
			}
			return nil, invalidTransition(rec.Status, "approve")
		}
	case entity.StatusApproved:
		if rec.ApprovedBy != nil && *rec.ApprovedBy == actor {
			return rec, nil
		}
		return nil, invalidTransition(rec.Status, "approve")
	default:
		return nil, invalidTransition(rec.Status, "approve")
	}

	rec, err = m.store.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("invoice_id", invoiceID).Str("approved_by", actor).Msg("invoice approved")
	m.publish("approved", *rec, actor)
	return rec, nil
}

// Reject transitions pending → rejected. The reason is mandatory.
func (m *Manager) Reject(ctx context.Context, owner, invoiceID, actor, reason string) (*entity.InvoiceRecord, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.InvalidInput("actor", "rejecter identity is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.InvalidInput("reason", "rejection reason is required")
	}

	rec, err := m.store.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}
	if rec.Status != entity.StatusPending {
		return nil, invalidTransition(rec.Status, "reject")
	}

	updated, err := m.store.Reject(ctx, owner, invoiceID, actor, reason)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, invalidTransition(rec.Status, "reject")
	}

	rec, err = m.store.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("invoice_id", invoiceID).Str("rejected_by", actor).Str("reason", reason).
		Msg("invoice rejected")
	m.publish("rejected", *rec, actor)
	return rec, nil
}

// MarkPaid transitions approved → paid.
func (m *Manager) MarkPaid(ctx context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error) {
	rec, err := m.store.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}
	if rec.Status != entity.StatusApproved {
		return nil, invalidTransition(rec.Status, "mark paid")
	}

	updated, err := m.store.MarkPaid(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, invalidTransition(rec.Status, "mark paid")
	}

	rec, err = m.store.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("invoice_id", invoiceID).Msg("invoice marked paid")
	m.publish("paid", *rec, "")
	return rec, nil
}

// Cancel transitions pending|approved → cancelled. Paid records can never be
// cancelled.
func (m *Manager) Cancel(ctx context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error) {
	rec, err := m.store.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}
	if rec.Status != entity.StatusPending && rec.Status != entity.StatusApproved {
		return nil, invalidTransition(rec.Status, "cancel")
	}

	updated, err := m.store.Cancel(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, invalidTransition(rec.Status, "cancel")
	}

	rec, err = m.store.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("invoice_id", invoiceID).Msg("invoice cancelled")
	m.publish("cancelled", *rec, "")
	return rec, nil
}

// DedupKey derives the duplicate-detection key for an extraction: resolved
// vendor id (or the raw name), the amount at two decimals, and the invoice
// date — or a hash of vendor+invoice-number when the date is missing.
func DedupKey(ext *entity.CanonicalExtraction, verdict *entity.ResolutionVerdict) string {
	vendorKey := strings.ToLower(strings.TrimSpace(ext.VendorNameRaw))
	if verdict != nil && verdict.Verdict == entity.VerdictMatch && verdict.VendorID != "" {
		vendorKey = verdict.VendorID
	}

	dateKey := ext.InvoiceDate
	if dateKey == "" {
		subject := sha256.Sum256([]byte(vendorKey + "|" + ext.InvoiceNumber))
		dateKey = hex.EncodeToString(subject[:8])
	}

	amount := decimal.NewFromFloat(ext.Amount).StringFixed(2)
	sum := sha256.Sum256([]byte(vendorKey + "|" + amount + "|" + dateKey))
	return hex.EncodeToString(sum[:])
}

// generateID produces a date-prefixed, random-suffixed invoice id and
// re-checks it against existing ids before use.
func (m *Manager) generateID(ctx context.Context) (string, error) {
	for i := 0; i < idCollisionRetries; i++ {
		suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
		id := fmt.Sprintf("INV-%s-%s", time.Now().UTC().Format("20060102"), suffix)

		exists, err := m.store.ExistsID(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		m.log.Warn().Str("invoice_id", id).Msg("invoice id collision, regenerating")
	}
	return "", apperrors.New(apperrors.ErrCodeInternal, "could not generate a unique invoice id")
}

func (m *Manager) publish(eventType string, rec entity.InvoiceRecord, actor string) {
	if m.events == nil {
		return
	}
	vendorID := ""
	if rec.VendorID != nil {
		vendorID = *rec.VendorID
	}
	m.events.PublishInvoiceEvent(eventType, client.LifecycleEvent{
		InvoiceID:     rec.InvoiceID,
		OwnerIdentity: rec.OwnerIdentity,
		ActorID:       actor,
		VendorID:      vendorID,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
	})
}

func invalidTransition(from entity.InvoiceStatus, action string) error {
	return apperrors.New(apperrors.ErrCodeInvalidTransition,
		fmt.Sprintf("cannot %s invoice with status '%s'", action, from))
}
