package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

const uniqueViolation = "23505"

const recordColumns = `
	invoice_id, owner_identity, vendor_id, vendor_name, invoice_number,
	invoice_date, due_date, amount, subtotal, tax_amount, currency,
	document_type, line_items, payment_type, confidence, validation_warning,
	status, approved_by, approved_at, rejected_by, rejected_at,
	rejection_reason, scheduled_date, document_locator, created_at, updated_at`

// InvoiceRepository handles invoice record persistence. Records are only
// soft-lifecycled: there is no delete path.
type InvoiceRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewInvoiceRepository creates a new invoice record repository.
func NewInvoiceRepository(pool *pgxpool.Pool, log zerolog.Logger) *InvoiceRepository {
	return &InvoiceRepository{pool: pool, log: log}
}

// Insert stores a new record. The (owner_identity, dedup_key) unique index is
// the serialization backstop for concurrent duplicate uploads: a violation
// surfaces as a DUPLICATE-coded error, never a second row.
func (r *InvoiceRepository) Insert(ctx context.Context, rec *entity.InvoiceRecord, dedupKey string) error {
	lineItems, err := json.Marshal(rec.LineItems)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal line items")
	}

	query := `
		INSERT INTO invoice_records (invoice_id, owner_identity, vendor_id, vendor_name,
		                             invoice_number, invoice_date, due_date, amount, subtotal,
		                             tax_amount, currency, document_type, line_items,
		                             payment_type, confidence, validation_warning, status,
		                             scheduled_date, document_locator, dedup_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17::invoice_status, $18, $19, $20)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		rec.InvoiceID,
		rec.OwnerIdentity,
		rec.VendorID,
		rec.VendorNameRaw,
		rec.InvoiceNumber,
		rec.InvoiceDate,
		rec.DueDate,
		rec.Amount,
		rec.Subtotal,
		rec.TaxAmount,
		rec.Currency,
		rec.DocumentType,
		lineItems,
		rec.PaymentType,
		rec.Confidence,
		rec.Warning,
		rec.Status,
		rec.ScheduledDate,
		rec.DocumentLocator,
		dedupKey,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.Wrap(err, apperrors.ErrCodeDuplicate, "record already exists for this dedup key")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to insert invoice record")
	}
	return nil
}

// ExistsID reports whether an invoice id is already taken, in any owner scope.
func (r *InvoiceRepository) ExistsID(ctx context.Context, invoiceID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM invoice_records WHERE invoice_id = $1)`, invoiceID,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to check invoice id")
	}
	return exists, nil
}

// FindDuplicate returns the invoice id of an existing record with the same
// dedup key in the owner scope, or "".
func (r *InvoiceRepository) FindDuplicate(ctx context.Context, owner, dedupKey string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx,
		`SELECT invoice_id FROM invoice_records WHERE owner_identity = $1 AND dedup_key = $2`,
		owner, dedupKey,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to check for duplicate")
	}
	return id, nil
}

// GetByID retrieves one record in an owner scope.
func (r *InvoiceRepository) GetByID(ctx context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM invoice_records
		WHERE owner_identity = $1 AND invoice_id = $2`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, owner, invoiceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("invoice", invoiceID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to get invoice record")
	}
	return rec, nil
}

// List retrieves records with filtering and pagination.
func (r *InvoiceRepository) List(ctx context.Context, owner string, status, vendorID, fromDate, toDate *string, limit, offset int) ([]*entity.InvoiceRecord, int64, error) {
	query := `SELECT ` + recordColumns + ` FROM invoice_records WHERE owner_identity = $1`
	countQuery := `SELECT COUNT(*) FROM invoice_records WHERE owner_identity = $1`

	args := []any{owner}
	argCount := 2

	if status != nil {
		clause := fmt.Sprintf(" AND status = $%d::invoice_status", argCount)
		query += clause
		countQuery += clause
		args = append(args, *status)
		argCount++
	}
	if vendorID != nil {
		clause := fmt.Sprintf(" AND vendor_id = $%d", argCount)
		query += clause
		countQuery += clause
		args = append(args, *vendorID)
		argCount++
	}
	if fromDate != nil {
		clause := fmt.Sprintf(" AND invoice_date >= $%d", argCount)
		query += clause
		countQuery += clause
		args = append(args, *fromDate)
		argCount++
	}
	if toDate != nil {
		clause := fmt.Sprintf(" AND invoice_date <= $%d", argCount)
		query += clause
		countQuery += clause
		args = append(args, *toDate)
		argCount++
	}

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to count invoice records")
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to list invoice records")
	}
	defer rows.Close()

	records := make([]*entity.InvoiceRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to scan invoice record")
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// Approve sets approval fields iff the record is still pending. Returns false
// when the precondition did not hold (caller decides whether that is the
// idempotent repeat or an illegal transition).
func (r *InvoiceRepository) Approve(ctx context.Context, owner, invoiceID, actor string, scheduledDate *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoice_records
		SET status = 'approved'::invoice_status,
		    approved_by = $3,
		    approved_at = NOW(),
		    scheduled_date = COALESCE($4, scheduled_date),
		    updated_at = NOW()
		WHERE owner_identity = $1 AND invoice_id = $2 AND status = 'pending'
	`, owner, invoiceID, actor, scheduledDate)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to approve invoice")
	}
	return tag.RowsAffected() > 0, nil
}

// Reject sets rejection fields iff the record is still pending.
func (r *InvoiceRepository) Reject(ctx context.Context, owner, invoiceID, actor, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoice_records
		SET status = 'rejected'::invoice_status,
		    rejected_by = $3,
		    rejected_at = NOW(),
		    rejection_reason = $4,
		    updated_at = NOW()
		WHERE owner_identity = $1 AND invoice_id = $2 AND status = 'pending'
	`, owner, invoiceID, actor, reason)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to reject invoice")
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPaid transitions approved → paid.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, owner, invoiceID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoice_records
		SET status = 'paid'::invoice_status, updated_at = NOW()
		WHERE owner_identity = $1 AND invoice_id = $2 AND status = 'approved'
	`, owner, invoiceID)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to mark invoice paid")
	}
	return tag.RowsAffected() > 0, nil
}

// Cancel transitions pending|approved → cancelled.
func (r *InvoiceRepository) Cancel(ctx context.Context, owner, invoiceID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoice_records
		SET status = 'cancelled'::invoice_status, updated_at = NOW()
		WHERE owner_identity = $1 AND invoice_id = $2 AND status IN ('pending', 'approved')
	`, owner, invoiceID)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to cancel invoice")
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*entity.InvoiceRecord, error) {
	rec := &entity.InvoiceRecord{}
	var lineItems []byte
	var invoiceDate, dueDate *string

	err := row.Scan(
		&rec.InvoiceID,
		&rec.OwnerIdentity,
		&rec.VendorID,
		&rec.VendorNameRaw,
		&rec.InvoiceNumber,
		&invoiceDate,
		&dueDate,
		&rec.Amount,
		&rec.Subtotal,
		&rec.TaxAmount,
		&rec.Currency,
		&rec.DocumentType,
		&lineItems,
		&rec.PaymentType,
		&rec.Confidence,
		&rec.Warning,
		&rec.Status,
		&rec.ApprovedBy,
		&rec.ApprovedAt,
		&rec.RejectedBy,
		&rec.RejectedAt,
		&rec.RejectionReason,
		&rec.ScheduledDate,
		&rec.DocumentLocator,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if invoiceDate != nil {
		rec.InvoiceDate = *invoiceDate
	}
	if dueDate != nil {
		rec.DueDate = *dueDate
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &rec.LineItems); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
