package extraction

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/client"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// SemanticExtractor turns raw OCR output into a CanonicalExtraction using the
// reasoning service, with a deterministic entity-based fallback so the
// pipeline never aborts because the model is down or returned garbage. A
// malformed payload is never retried against the model.
type SemanticExtractor struct {
	reasoning client.ReasoningClientInterface
	log       zerolog.Logger
}

// NewSemanticExtractor creates a new semantic extractor.
func NewSemanticExtractor(reasoning client.ReasoningClientInterface, log zerolog.Logger) *SemanticExtractor {
	return &SemanticExtractor{reasoning: reasoning, log: log}
}

// Extract produces a CanonicalExtraction from one document's OCR output plus
// optional historical context.
func (e *SemanticExtractor) Extract(ctx context.Context, raw *entity.RawExtraction, historicalContext string) *entity.CanonicalExtraction {
	prompt := BuildExtractionPrompt(raw.Text, historicalContext)

	response, err := e.reasoning.Complete(ctx, prompt)
	if err != nil {
		e.log.Warn().Err(err).Msg("reasoning service unavailable, using fallback extraction")
		return FallbackExtraction(raw)
	}

	payload, err := ExtractJSONObject(response)
	if err != nil {
		e.log.Warn().Err(err).Int("response_len", len(response)).
			Msg("reasoning response is not JSON, using fallback extraction")
		return FallbackExtraction(raw)
	}

	schema := BuildExtractionJSONSchema()
	if err := ValidateAgainstSchema(schema, payload); err != nil {
		cleaned, touched, sErr := SanitizePayload(payload)
		if sErr != nil || ValidateAgainstSchema(schema, cleaned) != nil {
			e.log.Warn().Err(err).Msg("extraction payload failed schema validation, using fallback extraction")
			return FallbackExtraction(raw)
		}
		e.log.Debug().Strs("touched", touched).Msg("extraction payload sanitized")
		payload = cleaned
	}

	var out entity.CanonicalExtraction
	if err := json.Unmarshal(payload, &out); err != nil {
		e.log.Warn().Err(err).Msg("extraction payload unmarshal failed, using fallback extraction")
		return FallbackExtraction(raw)
	}

	e.log.Info().
		Str("vendor", out.VendorNameRaw).
		Float64("amount", out.Amount).
		Str("currency", out.Currency).
		Float64("confidence", out.Confidence).
		Msg("semantic extraction complete")

	return &out
}
