package client

import (
	"context"
	"time"

	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// OCRClientInterface defines the interface for the document OCR service.
type OCRClientInterface interface {
	Extract(ctx context.Context, document []byte, mimeType string) (*entity.RawExtraction, error)
}

// SearchClientInterface defines the interface for the vendor similarity
// search service.
type SearchClientInterface interface {
	FindSimilar(ctx context.Context, query, country string, limit int) ([]entity.CandidateVendor, error)
}

// ReasoningClientInterface defines the interface for the semantic reasoning
// service. Complete is a single round trip; callers own extraction of
// structured payloads from the raw text response.
type ReasoningClientInterface interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// BlobStoreInterface defines the interface for durable document storage.
// The core writes each original exactly once and records the locator; it
// never reads stored bytes back.
type BlobStoreInterface interface {
	Put(ctx context.Context, data []byte, path, contentType string) (string, error)
	SignedURL(ctx context.Context, locator string, ttl time.Duration) (string, error)
}
