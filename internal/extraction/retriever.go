package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/client"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// maxHistoricalCandidates bounds the context retrieval result set.
const maxHistoricalCandidates = 5

// ContextRetriever looks up historically similar vendors for a hint pulled
// from the document, and summarizes them for the extraction prompt. Retrieval
// failure is absorbed: historical context is an enrichment, never a
// prerequisite.
type ContextRetriever struct {
	search client.SearchClientInterface
	log    zerolog.Logger
}

// NewContextRetriever creates a new context retriever.
func NewContextRetriever(search client.SearchClientInterface, log zerolog.Logger) *ContextRetriever {
	return &ContextRetriever{search: search, log: log}
}

// Retrieve returns a prompt-ready summary of up to five similar past vendors.
// An empty hint or a failed search yields an empty summary.
func (r *ContextRetriever) Retrieve(ctx context.Context, vendorHint, country string) string {
	hint := strings.TrimSpace(vendorHint)
	if hint == "" {
		return ""
	}

	candidates, err := r.search.FindSimilar(ctx, hint, country, maxHistoricalCandidates)
	if err != nil {
		r.log.Warn().Err(err).Str("hint", hint).
			Msg("historical context retrieval failed, continuing without context")
		return ""
	}
	if len(candidates) == 0 {
		return ""
	}
	return summarizeCandidates(candidates)
}

func summarizeCandidates(candidates []entity.CandidateVendor) string {
	lines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		var traits []string
		if c.TypicalCategory != "" {
			traits = append(traits, "category: "+c.TypicalCategory)
		}
		if c.TypicalPaymentType != "" {
			traits = append(traits, "payment: "+c.TypicalPaymentType)
		}
		if len(c.KnownCountries) > 0 {
			traits = append(traits, "countries: "+strings.Join(c.KnownCountries, "/"))
		}
		line := "- " + c.CanonicalName
		if len(traits) > 0 {
			line += fmt.Sprintf(" (%s)", strings.Join(traits, ", "))
		}
		lines = append(lines, line)
	}
	return "Similar vendors billed before:\n" + strings.Join(lines, "\n")
}
