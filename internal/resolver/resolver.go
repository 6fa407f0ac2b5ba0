// Package resolver maps an extracted vendor name to a canonical vendor
// identity using a strictly ordered evidence pipeline: hard tax-ID match,
// candidate retrieval, then semantic adjudication. Earlier steps
// short-circuit later ones.
package resolver

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/client"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
	"github.com/pesio-ai/be-ap-capture/internal/extraction"
	"github.com/pesio-ai/be-ap-capture/internal/validation"
)

// maxCandidates bounds step-1 retrieval.
const maxCandidates = 5

// bronzeThreshold is the floor below which an adjudicated MATCH is not
// trusted and the verdict downgrades to AMBIGUOUS.
const bronzeThreshold = 0.50

// VendorRegistry is the registry read surface the resolver needs. A miss is
// (nil, nil), not an error.
type VendorRegistry interface {
	FindByTaxID(ctx context.Context, normalizedTaxID string) (*entity.CandidateVendor, error)
}

// Resolver runs the evidence-hierarchy + adjudication algorithm.
type Resolver struct {
	registry  VendorRegistry
	search    client.SearchClientInterface
	reasoning client.ReasoningClientInterface
	log       zerolog.Logger
}

// New creates a resolver over the given collaborators.
func New(registry VendorRegistry, search client.SearchClientInterface, reasoning client.ReasoningClientInterface, log zerolog.Logger) *Resolver {
	return &Resolver{registry: registry, search: search, reasoning: reasoning, log: log}
}

// NormalizeTaxID strips whitespace and punctuation and uppercases, so OCR
// renderings like "us 12-3456789" compare equal to registry values.
func NormalizeTaxID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Resolve returns the verdict for one extraction. Registry and search
// failures surface as errors; an unusable adjudicator payload downgrades to
// AMBIGUOUS rather than guessing.
func (r *Resolver) Resolve(ctx context.Context, ext *entity.CanonicalExtraction) (*entity.ResolutionVerdict, error) {
	// Step 0: hard tax-ID match. Definitive evidence, preferred over any
	// semantic step regardless of how dissimilar the name text is.
	if taxID := NormalizeTaxID(ext.TaxID); taxID != "" {
		vendor, err := r.registry.FindByTaxID(ctx, taxID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "registry tax-id lookup failed")
		}
		if vendor != nil {
			r.log.Info().Str("vendor_id", vendor.ID).Str("tax_id", taxID).
				Msg("vendor resolved by tax id")
			return &entity.ResolutionVerdict{
				Verdict:    entity.VerdictMatch,
				VendorID:   vendor.ID,
				Confidence: 1.0,
				Method:     entity.MethodHardTaxID,
				Reasoning:  "exact tax identifier match",
			}, nil
		}
	}

	// A sentinel or blank vendor name has no signal worth searching on.
	if name := strings.TrimSpace(ext.VendorNameRaw); name == "" || name == validation.UnknownVendor {
		return &entity.ResolutionVerdict{
			Verdict:    entity.VerdictNewVendor,
			Confidence: 0.0,
			Method:     entity.MethodNewVendor,
			Reasoning:  "no usable vendor name extracted",
		}, nil
	}

	// Step 1: candidate retrieval.
	candidates, err := r.search.FindSimilar(ctx, ext.VendorNameRaw, ext.VendorCountry, maxCandidates)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransient, "candidate retrieval failed")
	}
	if len(candidates) == 0 {
		r.log.Info().Str("vendor", ext.VendorNameRaw).Msg("no similar vendors, treating as new")
		return &entity.ResolutionVerdict{
			Verdict:    entity.VerdictNewVendor,
			Confidence: 0.0,
			Method:     entity.MethodNewVendor,
			Reasoning:  "no similar vendors in registry",
		}, nil
	}

	// Step 2: adjudication.
	return r.adjudicate(ctx, ext, candidates)
}

type adjudicationPayload struct {
	Verdict         string                  `json:"verdict"`
	VendorID        string                  `json:"vendor_id"`
	Confidence      float64                 `json:"confidence"`
	EntityType      string                  `json:"entity_type"`
	Reasoning       string                  `json:"reasoning"`
	ProposedUpdates []entity.RegistryUpdate `json:"proposed_updates"`
}

func (r *Resolver) adjudicate(ctx context.Context, ext *entity.CanonicalExtraction, candidates []entity.CandidateVendor) (*entity.ResolutionVerdict, error) {
	prompt := BuildAdjudicationPrompt(ext, candidates)

	response, err := r.reasoning.Complete(ctx, prompt)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransient, "adjudication call failed")
	}

	payload, err := extraction.ExtractJSONObject(response)
	if err != nil {
		r.log.Warn().Err(err).Msg("adjudicator returned non-JSON, downgrading to ambiguous")
		return ambiguous("adjudicator output unparseable", nil), nil
	}
	if err := extraction.ValidateAgainstSchema(BuildAdjudicationJSONSchema(), payload); err != nil {
		r.log.Warn().Err(err).Msg("adjudicator payload failed schema validation, downgrading to ambiguous")
		return ambiguous("adjudicator output violated schema", nil), nil
	}

	var p adjudicationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ambiguous("adjudicator output unparseable", nil), nil
	}

	if p.EntityType != "BILLABLE" {
		r.log.Info().Str("entity_type", p.EntityType).Str("vendor", ext.VendorNameRaw).
			Msg("extracted party is not a billable vendor")
		return &entity.ResolutionVerdict{
			Verdict:         entity.VerdictInvalidVendor,
			Confidence:      p.Confidence,
			Method:          entity.MethodSemanticJudge,
			Reasoning:       p.Reasoning,
			ProposedUpdates: p.ProposedUpdates,
		}, nil
	}

	switch p.Verdict {
	case "MATCH":
		// The adjudicator's output is advisory evidence: a MATCH must name a
		// known candidate and clear the bronze floor, or it is not trusted.
		if p.VendorID == "" || !candidateKnown(candidates, p.VendorID) {
			r.log.Warn().Str("vendor_id", p.VendorID).
				Msg("adjudicator MATCH without a valid candidate id, downgrading to ambiguous")
			return ambiguous("match verdict without a valid candidate id", p.ProposedUpdates), nil
		}
		if p.Confidence < bronzeThreshold {
			r.log.Warn().Float64("confidence", p.Confidence).
				Msg("adjudicator MATCH below bronze threshold, downgrading to ambiguous")
			return ambiguous("match confidence below bronze threshold", p.ProposedUpdates), nil
		}
		return &entity.ResolutionVerdict{
			Verdict:         entity.VerdictMatch,
			VendorID:        p.VendorID,
			Confidence:      p.Confidence,
			Method:          entity.MethodSemanticJudge,
			Reasoning:       p.Reasoning,
			ProposedUpdates: p.ProposedUpdates,
		}, nil

	case "NEW_VENDOR":
		return &entity.ResolutionVerdict{
			Verdict:         entity.VerdictNewVendor,
			Confidence:      p.Confidence,
			Method:          entity.MethodSemanticJudge,
			Reasoning:       p.Reasoning,
			ProposedUpdates: p.ProposedUpdates,
		}, nil

	default:
		return &entity.ResolutionVerdict{
			Verdict:         entity.VerdictAmbiguous,
			Confidence:      p.Confidence,
			Method:          entity.MethodSemanticJudge,
			Reasoning:       p.Reasoning,
			ProposedUpdates: p.ProposedUpdates,
		}, nil
	}
}

func candidateKnown(candidates []entity.CandidateVendor, id string) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

func ambiguous(reason string, updates []entity.RegistryUpdate) *entity.ResolutionVerdict {
	return &entity.ResolutionVerdict{
		Verdict:         entity.VerdictAmbiguous,
		Confidence:      0,
		Method:          entity.MethodSemanticJudge,
		Reasoning:       reason,
		ProposedUpdates: updates,
	}
}
