package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service *service.CaptureService
	log     zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc *service.CaptureService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: svc,
		log:     log,
	}
}

type uploadDocument struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
}

type uploadRequest struct {
	Owner     string           `json:"owner"`
	Documents []uploadDocument `json:"documents"`
}

// Upload handles single and bulk document capture requests.
func (h *HTTPHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Owner == "" {
		http.Error(w, "Owner is required", http.StatusBadRequest)
		return
	}
	if len(req.Documents) == 0 {
		http.Error(w, "At least one document is required", http.StatusBadRequest)
		return
	}

	reqs := make([]*service.UploadRequest, 0, len(req.Documents))
	for _, d := range req.Documents {
		data, err := base64.StdEncoding.DecodeString(d.Content)
		if err != nil {
			http.Error(w, "Document content must be base64", http.StatusBadRequest)
			return
		}
		reqs = append(reqs, &service.UploadRequest{
			Owner:    req.Owner,
			Filename: d.Filename,
			MimeType: d.MimeType,
			Data:     data,
		})
	}

	if len(reqs) == 1 {
		result, err := h.service.ProcessUpload(r.Context(), reqs[0])
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, result)
		return
	}

	batch, err := h.service.ProcessBatch(r.Context(), reqs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, batch)
}

// GetInvoice handles get invoice record HTTP requests.
func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner := r.URL.Query().Get("owner")
	invoiceID := r.URL.Query().Get("id")
	if owner == "" || invoiceID == "" {
		http.Error(w, "Owner and invoice ID are required", http.StatusBadRequest)
		return
	}

	rec, err := h.service.Get(r.Context(), owner, invoiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// ListInvoices handles list invoice records HTTP requests.
func (h *HTTPHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "Owner is required", http.StatusBadRequest)
		return
	}

	status := optional(r.URL.Query().Get("status"))
	vendorID := optional(r.URL.Query().Get("vendor_id"))
	fromDate := optional(r.URL.Query().Get("from_date"))
	toDate := optional(r.URL.Query().Get("to_date"))

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, total, err := h.service.List(r.Context(), owner, status, vendorID, fromDate, toDate, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
	})
}

type transitionRequest struct {
	Owner         string  `json:"owner"`
	InvoiceID     string  `json:"invoice_id"`
	Actor         string  `json:"actor,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	ScheduledDate *string `json:"scheduled_date,omitempty"`
}

// ApproveInvoice handles approve HTTP requests.
func (h *HTTPHandler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTransition(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Approve(r.Context(), req.Owner, req.InvoiceID, req.Actor, req.ScheduledDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// RejectInvoice handles reject HTTP requests.
func (h *HTTPHandler) RejectInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTransition(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Reject(r.Context(), req.Owner, req.InvoiceID, req.Actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// PayInvoice handles mark-paid HTTP requests.
func (h *HTTPHandler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTransition(w, r)
	if !ok {
		return
	}
	rec, err := h.service.MarkPaid(r.Context(), req.Owner, req.InvoiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// CancelInvoice handles cancel HTTP requests.
func (h *HTTPHandler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTransition(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Cancel(r.Context(), req.Owner, req.InvoiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// GetDocumentURL handles signed document URL HTTP requests.
func (h *HTTPHandler) GetDocumentURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner := r.URL.Query().Get("owner")
	invoiceID := r.URL.Query().Get("id")
	if owner == "" || invoiceID == "" {
		http.Error(w, "Owner and invoice ID are required", http.StatusBadRequest)
		return
	}

	url, err := h.service.DocumentURL(r.Context(), owner, invoiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Health handles health check HTTP requests.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decodeTransition(w http.ResponseWriter, r *http.Request) (*transitionRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	if req.Owner == "" || req.InvoiceID == "" {
		http.Error(w, "Owner and invoice ID are required", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to write response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.Code(err) {
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeInvalidTransition, apperrors.ErrCodeConflict, apperrors.ErrCodeDuplicate:
		status = http.StatusConflict
	case apperrors.ErrCodeTransient:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  string(apperrors.Code(err)),
		"error": err.Error(),
	})
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
