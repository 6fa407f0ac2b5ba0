package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/client"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
	"github.com/pesio-ai/be-ap-capture/internal/extraction"
	"github.com/pesio-ai/be-ap-capture/internal/lifecycle"
	"github.com/pesio-ai/be-ap-capture/internal/resolver"
	"github.com/pesio-ai/be-ap-capture/internal/validation"
)

// Upload statuses reported per document.
const (
	UploadStatusCreated   = "created"
	UploadStatusDuplicate = "duplicate"
	UploadStatusFailed    = "failed"
)

// RecordReader is the read/transition surface the service needs beyond
// record creation.
type RecordReader interface {
	GetByID(ctx context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error)
	List(ctx context.Context, owner string, status, vendorID, fromDate, toDate *string, limit, offset int) ([]*entity.InvoiceRecord, int64, error)
}

// CaptureService runs the document pipeline end to end: durable storage,
// structural extraction, context retrieval, semantic extraction, validation,
// vendor resolution, record creation. Every stage after storage degrades
// rather than fails: a bad OCR response, empty context or malformed model
// payload still produces a pending record.
type CaptureService struct {
	adapter   *extraction.Adapter
	retriever *extraction.ContextRetriever
	semantic  *extraction.SemanticExtractor
	resolver  *resolver.Resolver
	lifecycle *lifecycle.Manager
	records   RecordReader
	blobs     client.BlobStoreInterface
	log       zerolog.Logger
}

// NewCaptureService wires the pipeline stages together. blobs may be nil, in
// which case originals are not retained and document URLs are unavailable.
func NewCaptureService(
	adapter *extraction.Adapter,
	retriever *extraction.ContextRetriever,
	semantic *extraction.SemanticExtractor,
	res *resolver.Resolver,
	lc *lifecycle.Manager,
	records RecordReader,
	blobs client.BlobStoreInterface,
	log zerolog.Logger,
) *CaptureService {
	return &CaptureService{
		adapter:   adapter,
		retriever: retriever,
		semantic:  semantic,
		resolver:  res,
		lifecycle: lc,
		records:   records,
		blobs:     blobs,
		log:       log,
	}
}

// UploadRequest is one document to capture.
type UploadRequest struct {
	Owner    string
	Filename string
	MimeType string
	Data     []byte
}

// UploadResult is the per-document pipeline outcome.
type UploadResult struct {
	Status        string                      `json:"status"`
	InvoiceID     string                      `json:"invoice_id,omitempty"`
	DuplicateOf   string                      `json:"duplicate_of,omitempty"`
	ExtractedData *entity.CanonicalExtraction `json:"extracted_data,omitempty"`
	Resolution    *entity.ResolutionVerdict   `json:"resolution,omitempty"`
	Error         string                      `json:"error,omitempty"`
}

// BatchResult aggregates a multi-document upload.
type BatchResult struct {
	Total     int             `json:"total"`
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Results   []*UploadResult `json:"results"`
}

// ProcessUpload runs one document through the full pipeline.
func (s *CaptureService) ProcessUpload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if req.Owner == "" {
		return nil, apperrors.InvalidInput("owner", "owner identity is required")
	}
	if len(req.Data) == 0 {
		return nil, apperrors.InvalidInput("document", "document is empty")
	}

	start := time.Now()

	locator := s.storeOriginal(ctx, req)

	raw := s.adapter.Extract(ctx, req.Data, req.MimeType)

	vendorHint := raw.FirstEntity(entity.EntityVendorName)
	country := raw.FirstEntity(entity.EntityCountry)
	historicalContext := s.retriever.Retrieve(ctx, vendorHint, country)

	ext := s.semantic.Extract(ctx, raw, historicalContext)
	ext = validation.Apply(ext)

	// Registry and search failures surface after the client's single retry;
	// only an unusable adjudicator payload degrades inside the resolver.
	verdict, err := s.resolver.Resolve(ctx, ext)
	if err != nil {
		s.log.Warn().Err(err).Str("vendor", ext.VendorNameRaw).Msg("vendor resolution failed")
		return nil, err
	}

	created, err := s.lifecycle.Create(ctx, req.Owner, ext, verdict, locator)
	if err != nil {
		return nil, err
	}

	if created.Duplicate {
		return &UploadResult{
			Status:        UploadStatusDuplicate,
			DuplicateOf:   created.DuplicateOf,
			ExtractedData: ext,
			Resolution:    verdict,
		}, nil
	}

	s.log.Info().
		Str("invoice_id", created.Record.InvoiceID).
		Str("verdict", string(verdict.Verdict)).
		Dur("elapsed", time.Since(start)).
		Msg("document captured")

	return &UploadResult{
		Status:        UploadStatusCreated,
		InvoiceID:     created.Record.InvoiceID,
		ExtractedData: ext,
		Resolution:    verdict,
	}, nil
}

// ProcessBatch captures documents sequentially. A failed document is recorded
// in its slot and processing continues; only context cancellation stops the
// batch early, and even then the partial result is returned so records that
// already persisted stay reported.
func (s *CaptureService) ProcessBatch(ctx context.Context, reqs []*UploadRequest) (*BatchResult, error) {
	if len(reqs) == 0 {
		return nil, apperrors.InvalidInput("documents", "no documents provided")
	}

	batch := &BatchResult{Total: len(reqs), Results: make([]*UploadResult, 0, len(reqs))}
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return batch, apperrors.Wrap(err, apperrors.ErrCodeTransient, "batch interrupted")
		}

		res, err := s.ProcessUpload(ctx, req)
		if err != nil {
			s.log.Error().Err(err).Int("index", i).Str("filename", req.Filename).
				Msg("document failed in batch")
			batch.Failed++
			batch.Results = append(batch.Results, &UploadResult{
				Status: UploadStatusFailed,
				Error:  err.Error(),
			})
			continue
		}
		batch.Processed++
		batch.Results = append(batch.Results, res)
	}
	return batch, nil
}

// Get returns one record in the owner scope.
func (s *CaptureService) Get(ctx context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error) {
	return s.records.GetByID(ctx, owner, invoiceID)
}

// List returns records with filtering and pagination. Limit is clamped to
// [1, 100].
func (s *CaptureService) List(ctx context.Context, owner string, status, vendorID, fromDate, toDate *string, limit, offset int) ([]*entity.InvoiceRecord, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if status != nil {
		switch entity.InvoiceStatus(*status) {
		case entity.StatusPending, entity.StatusApproved, entity.StatusRejected, entity.StatusPaid, entity.StatusCancelled:
		default:
			return nil, 0, apperrors.InvalidInput("status", fmt.Sprintf("unknown status '%s'", *status))
		}
	}
	return s.records.List(ctx, owner, status, vendorID, fromDate, toDate, limit, offset)
}

// DocumentURL returns a short-lived signed URL for a record's stored
// original.
func (s *CaptureService) DocumentURL(ctx context.Context, owner, invoiceID string) (string, error) {
	rec, err := s.records.GetByID(ctx, owner, invoiceID)
	if err != nil {
		return "", err
	}
	if s.blobs == nil || rec.DocumentLocator == "" {
		return "", apperrors.NotFound("document", invoiceID)
	}
	return s.blobs.SignedURL(ctx, rec.DocumentLocator, 15*time.Minute)
}

// Approve transitions a record pending → approved.
func (s *CaptureService) Approve(ctx context.Context, owner, invoiceID, actor string, scheduledDate *string) (*entity.InvoiceRecord, error) {
	return s.lifecycle.Approve(ctx, owner, invoiceID, actor, scheduledDate)
}

// Reject transitions a record pending → rejected.
func (s *CaptureService) Reject(ctx context.Context, owner, invoiceID, actor, reason string) (*entity.InvoiceRecord, error) {
	return s.lifecycle.Reject(ctx, owner, invoiceID, actor, reason)
}

// MarkPaid transitions a record approved → paid.
func (s *CaptureService) MarkPaid(ctx context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error) {
	return s.lifecycle.MarkPaid(ctx, owner, invoiceID)
}

// Cancel transitions a record pending|approved → cancelled.
func (s *CaptureService) Cancel(ctx context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error) {
	return s.lifecycle.Cancel(ctx, owner, invoiceID)
}

// storeOriginal writes the uploaded bytes to blob storage. Failures are
// logged and absorbed: losing the archive copy is not worth losing the
// capture.
func (s *CaptureService) storeOriginal(ctx context.Context, req *UploadRequest) string {
	if s.blobs == nil {
		return ""
	}

	name := strings.TrimSpace(req.Filename)
	if name == "" {
		name = "document"
	}
	objectPath := path.Join(req.Owner, fmt.Sprintf("%d-%s", time.Now().UnixNano(), path.Base(name)))

	locator, err := s.blobs.Put(ctx, req.Data, objectPath, req.MimeType)
	if err != nil {
		s.log.Warn().Err(err).Str("path", objectPath).Msg("failed to archive original document")
		return ""
	}
	return locator
}
