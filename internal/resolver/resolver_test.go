package resolver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
	"github.com/pesio-ai/be-ap-capture/internal/validation"
)

type fakeRegistry struct {
	byTaxID map[string]*entity.CandidateVendor
	err     error
}

func (f *fakeRegistry) FindByTaxID(_ context.Context, taxID string) (*entity.CandidateVendor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byTaxID[taxID], nil
}

type fakeSearch struct {
	candidates []entity.CandidateVendor
	err        error
	calls      int
}

func (f *fakeSearch) FindSimilar(_ context.Context, _, _ string, _ int) ([]entity.CandidateVendor, error) {
	f.calls++
	return f.candidates, f.err
}

type fakeJudge struct {
	response string
	err      error
	calls    int
}

func (f *fakeJudge) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func extractionFor(vendor, taxID string) *entity.CanonicalExtraction {
	return &entity.CanonicalExtraction{
		VendorNameRaw: vendor,
		TaxID:         taxID,
		Amount:        250,
		Currency:      "USD",
		Confidence:    0.9,
	}
}

func acmeCandidates() []entity.CandidateVendor {
	return []entity.CandidateVendor{
		{ID: "ven_1", CanonicalName: "ACME Corporation", Score: 0.91},
		{ID: "ven_2", CanonicalName: "ACME Industrial Supply", Score: 0.74},
	}
}

func TestNormalizeTaxID(t *testing.T) {
	assert.Equal(t, "US123456789", NormalizeTaxID("us 12-345 6789"))
	assert.Equal(t, "DE987654321", NormalizeTaxID("DE 987.654.321"))
	assert.Equal(t, "", NormalizeTaxID(" --- "))
}

func TestResolveHardTaxIDMatchWins(t *testing.T) {
	registry := &fakeRegistry{byTaxID: map[string]*entity.CandidateVendor{
		"US123456789": {ID: "ven_7", CanonicalName: "ACME Corporation"},
	}}
	search := &fakeSearch{}
	judge := &fakeJudge{}
	r := New(registry, search, judge, zerolog.Nop())

	// Name text is nothing like the registry entry; the tax id decides anyway.
	v, err := r.Resolve(context.Background(), extractionFor("Totally Different Name", "us 12-345-6789"))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictMatch, v.Verdict)
	assert.Equal(t, "ven_7", v.VendorID)
	assert.Equal(t, 1.0, v.Confidence)
	assert.Equal(t, entity.MethodHardTaxID, v.Method)
	assert.Equal(t, 0, search.calls)
	assert.Equal(t, 0, judge.calls)
}

func TestResolveRegistryErrorSurfaces(t *testing.T) {
	registry := &fakeRegistry{err: apperrors.New(apperrors.ErrCodePersistence, "db down")}
	r := New(registry, &fakeSearch{}, &fakeJudge{}, zerolog.Nop())

	_, err := r.Resolve(context.Background(), extractionFor("Acme", "US123"))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePersistence, apperrors.Code(err))
}

func TestResolveSentinelVendorNameShortCircuits(t *testing.T) {
	search := &fakeSearch{}
	r := New(&fakeRegistry{}, search, &fakeJudge{}, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor(validation.UnknownVendor, ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictNewVendor, v.Verdict)
	assert.Equal(t, 0.0, v.Confidence)
	assert.Equal(t, 0, search.calls)
}

func TestResolveNoCandidatesMeansNewVendor(t *testing.T) {
	judge := &fakeJudge{}
	r := New(&fakeRegistry{}, &fakeSearch{}, judge, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor("Brand New Vendor LLC", ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictNewVendor, v.Verdict)
	assert.Equal(t, entity.MethodNewVendor, v.Method)
	assert.Equal(t, 0, judge.calls)
}

func TestResolveSearchErrorSurfacesAsTransient(t *testing.T) {
	search := &fakeSearch{err: apperrors.New(apperrors.ErrCodeTransient, "search down")}
	r := New(&fakeRegistry{}, search, &fakeJudge{}, zerolog.Nop())

	_, err := r.Resolve(context.Background(), extractionFor("Acme", ""))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransient, apperrors.Code(err))
}

func TestResolveAdjudicatedMatch(t *testing.T) {
	judge := &fakeJudge{response: `{
		"verdict": "MATCH",
		"vendor_id": "ven_1",
		"confidence": 0.96,
		"entity_type": "BILLABLE",
		"reasoning": "same legal entity, OCR typo in suffix"
	}`}
	r := New(&fakeRegistry{}, &fakeSearch{candidates: acmeCandidates()}, judge, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor("ACME Corporaton", ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictMatch, v.Verdict)
	assert.Equal(t, "ven_1", v.VendorID)
	assert.Equal(t, 0.96, v.Confidence)
	assert.Equal(t, entity.MethodSemanticJudge, v.Method)
}

func TestResolveMatchWithUnknownCandidateDowngrades(t *testing.T) {
	judge := &fakeJudge{response: `{
		"verdict": "MATCH",
		"vendor_id": "ven_999",
		"confidence": 0.97,
		"entity_type": "BILLABLE",
		"reasoning": "looks right"
	}`}
	r := New(&fakeRegistry{}, &fakeSearch{candidates: acmeCandidates()}, judge, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor("ACME Corp", ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictAmbiguous, v.Verdict)
	assert.Empty(t, v.VendorID)
}

func TestResolveMatchBelowBronzeDowngrades(t *testing.T) {
	judge := &fakeJudge{response: `{
		"verdict": "MATCH",
		"vendor_id": "ven_1",
		"confidence": 0.35,
		"entity_type": "BILLABLE",
		"reasoning": "weak similarity"
	}`}
	r := New(&fakeRegistry{}, &fakeSearch{candidates: acmeCandidates()}, judge, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor("ACME Corp", ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictAmbiguous, v.Verdict)
	assert.Equal(t, 0.0, v.Confidence)
}

func TestResolveNonBillableEntityIsInvalidVendor(t *testing.T) {
	judge := &fakeJudge{response: `{
		"verdict": "MATCH",
		"vendor_id": "ven_1",
		"confidence": 0.9,
		"entity_type": "BANK_NOTIFICATION",
		"reasoning": "this is a payment advice from a bank"
	}`}
	r := New(&fakeRegistry{}, &fakeSearch{candidates: acmeCandidates()}, judge, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor("First National Bank", ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictInvalidVendor, v.Verdict)
}

func TestResolveUnparseableJudgeOutputDowngrades(t *testing.T) {
	judge := &fakeJudge{response: "the vendor is probably Acme"}
	r := New(&fakeRegistry{}, &fakeSearch{candidates: acmeCandidates()}, judge, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor("ACME Corp", ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictAmbiguous, v.Verdict)
	assert.Equal(t, 1, judge.calls)
}

func TestResolveSchemaViolatingJudgeOutputDowngrades(t *testing.T) {
	// confidence out of range
	judge := &fakeJudge{response: `{
		"verdict": "MATCH",
		"vendor_id": "ven_1",
		"confidence": 3.5,
		"entity_type": "BILLABLE",
		"reasoning": "x"
	}`}
	r := New(&fakeRegistry{}, &fakeSearch{candidates: acmeCandidates()}, judge, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor("ACME Corp", ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictAmbiguous, v.Verdict)
}

func TestResolveJudgeNewVendorPassesThrough(t *testing.T) {
	judge := &fakeJudge{response: `{
		"verdict": "NEW_VENDOR",
		"vendor_id": "",
		"confidence": 0.88,
		"entity_type": "BILLABLE",
		"reasoning": "false friend: similar name, unrelated business"
	}`}
	r := New(&fakeRegistry{}, &fakeSearch{candidates: acmeCandidates()}, judge, zerolog.Nop())

	v, err := r.Resolve(context.Background(), extractionFor("ACME Plumbing", ""))

	require.NoError(t, err)
	assert.Equal(t, entity.VerdictNewVendor, v.Verdict)
	assert.Equal(t, 0.88, v.Confidence)
}
