package client

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// SearchClient calls the vendor similarity search service.
type SearchClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     zerolog.Logger
}

// NewSearchClient creates a new similarity search client.
func NewSearchClient(baseURL, apiKey string, hc *http.Client, log zerolog.Logger) *SearchClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &SearchClient{baseURL: baseURL, apiKey: apiKey, hc: hc, log: log}
}

type vendorSearchRequest struct {
	Query   string `json:"query"`
	Country string `json:"country,omitempty"`
	Limit   int    `json:"limit"`
}

type vendorSearchResponse struct {
	Candidates []struct {
		ID                 string   `json:"id"`
		CanonicalName      string   `json:"canonical_name"`
		TaxIDs             []string `json:"tax_ids"`
		Domains            []string `json:"domains"`
		Countries          []string `json:"countries"`
		Score              float64  `json:"score"`
		TypicalCategory    string   `json:"typical_category"`
		TypicalPaymentType string   `json:"typical_payment_type"`
	} `json:"candidates"`
}

// FindSimilar returns up to limit vendors semantically similar to the query,
// ranked by the service's own score, optionally narrowed by country.
func (c *SearchClient) FindSimilar(ctx context.Context, query, country string, limit int) ([]entity.CandidateVendor, error) {
	req := vendorSearchRequest{Query: query, Country: country, Limit: limit}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp vendorSearchResponse
	if err := postJSON(ctx, c.hc, c.log, c.baseURL+"/v1/vendors/search", headers, req, &resp); err != nil {
		return nil, err
	}

	candidates := make([]entity.CandidateVendor, 0, len(resp.Candidates))
	for _, cand := range resp.Candidates {
		candidates = append(candidates, entity.CandidateVendor{
			ID:                 cand.ID,
			CanonicalName:      cand.CanonicalName,
			KnownTaxIDs:        cand.TaxIDs,
			KnownDomains:       cand.Domains,
			KnownCountries:     cand.Countries,
			Score:              cand.Score,
			TypicalCategory:    cand.TypicalCategory,
			TypicalPaymentType: cand.TypicalPaymentType,
		})
	}

	c.log.Debug().Str("query", query).Int("candidates", len(candidates)).
		Msg("vendor similarity search complete")

	return candidates, nil
}
