package client

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// OCRClient calls the document OCR/layout service.
type OCRClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     zerolog.Logger
}

// NewOCRClient creates a new OCR service client.
func NewOCRClient(baseURL, apiKey string, hc *http.Client, log zerolog.Logger) *OCRClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &OCRClient{baseURL: baseURL, apiKey: apiKey, hc: hc, log: log}
}

type ocrExtractRequest struct {
	DocumentB64 string `json:"document_b64"`
	MimeType    string `json:"mime_type"`
}

type ocrEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type ocrExtractResponse struct {
	Text     string      `json:"text"`
	Pages    int         `json:"pages"`
	Entities []ocrEntity `json:"entities"`
}

// Extract runs OCR over a document and normalizes the response into a
// RawExtraction. A degraded response (no text, no entities) is returned as an
// empty bag, not an error, so the downstream fallback path can engage.
func (c *OCRClient) Extract(ctx context.Context, document []byte, mimeType string) (*entity.RawExtraction, error) {
	req := ocrExtractRequest{
		DocumentB64: base64.StdEncoding.EncodeToString(document),
		MimeType:    mimeType,
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp ocrExtractResponse
	if err := postJSON(ctx, c.hc, c.log, c.baseURL+"/v1/extract", headers, req, &resp); err != nil {
		return nil, err
	}

	raw := &entity.RawExtraction{
		Text:      resp.Text,
		Entities:  make(map[entity.EntityType][]entity.EntityMention),
		PageCount: resp.Pages,
	}
	for _, e := range resp.Entities {
		t := entity.EntityType(e.Type)
		raw.Entities[t] = append(raw.Entities[t], entity.EntityMention{
			Value:      e.Value,
			Confidence: e.Confidence,
		})
	}

	c.log.Debug().
		Int("pages", raw.PageCount).
		Int("text_len", len(raw.Text)).
		Int("entity_types", len(raw.Entities)).
		Msg("ocr extraction complete")

	return raw, nil
}
