package entity

// CandidateVendor is a read-only snapshot of a registry vendor considered
// during resolution. The registry owns its lifecycle; this core never writes
// it back.
type CandidateVendor struct {
	ID             string   `json:"id"`
	CanonicalName  string   `json:"canonical_name"`
	KnownTaxIDs    []string `json:"tax_ids,omitempty"`
	KnownDomains   []string `json:"domains,omitempty"`
	KnownCountries []string `json:"countries,omitempty"`
	Score          float64  `json:"score,omitempty"`

	// Behavioral aggregates from the historical record index, used only to
	// build prompt context.
	TypicalCategory    string `json:"typical_category,omitempty"`
	TypicalPaymentType string `json:"typical_payment_type,omitempty"`
}

// Verdict is the outcome class of vendor resolution.
type Verdict string

const (
	VerdictMatch         Verdict = "MATCH"
	VerdictNewVendor     Verdict = "NEW_VENDOR"
	VerdictAmbiguous     Verdict = "AMBIGUOUS"
	VerdictInvalidVendor Verdict = "INVALID_VENDOR"
)

// ResolutionMethod records which evidence path produced the verdict.
type ResolutionMethod string

const (
	MethodHardTaxID     ResolutionMethod = "HARD_TAX_ID"
	MethodSemanticJudge ResolutionMethod = "SEMANTIC_JUDGE"
	MethodNewVendor     ResolutionMethod = "NEW_VENDOR"
)

// RegistryUpdate is an advisory change the adjudicator proposed for the
// vendor registry (new alias, new address). Forwarded to callers untouched;
// this core never applies it.
type RegistryUpdate struct {
	VendorID string `json:"vendor_id"`
	Field    string `json:"field"`
	Value    string `json:"value"`
}

// ResolutionVerdict is the immutable result of one resolver run.
type ResolutionVerdict struct {
	Verdict         Verdict          `json:"verdict"`
	VendorID        string           `json:"vendor_id,omitempty"`
	Confidence      float64          `json:"confidence"`
	Method          ResolutionMethod `json:"method"`
	Reasoning       string           `json:"reasoning,omitempty"`
	ProposedUpdates []RegistryUpdate `json:"proposed_updates,omitempty"`
}
