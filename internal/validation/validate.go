// Package validation applies deterministic consistency checks to a canonical
// extraction. Validation never rejects a record; it attaches warnings and
// degrades confidence, leaving acceptance policy to the approval step.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// UnknownVendor is substituted when the extraction carries no vendor name.
const UnknownVendor = "Unknown Vendor"

const (
	mismatchCap     = 0.7
	completenessCap = 0.5
)

// amountTolerance is the absolute tolerance for arithmetic checks.
var amountTolerance = decimal.NewFromFloat(0.01)

// Apply runs all checks on a copy of the extraction and returns it. Checks
// compose: the final confidence is the minimum of all applicable caps,
// clamped to [0,1].
func Apply(in *entity.CanonicalExtraction) *entity.CanonicalExtraction {
	out := *in
	conf := out.Confidence
	var warnings []string

	if out.Subtotal != nil && out.TaxAmount != nil {
		sub := decimal.NewFromFloat(*out.Subtotal)
		tax := decimal.NewFromFloat(*out.TaxAmount)
		total := decimal.NewFromFloat(out.Amount)
		if sub.Add(tax).Sub(total).Abs().GreaterThan(amountTolerance) {
			warnings = append(warnings, fmt.Sprintf("Total mismatch: %s + %s != %s",
				sub.String(), tax.String(), total.String()))
			conf = min(conf, mismatchCap)
		}
	}

	if out.InvoiceDate != "" && out.DueDate != "" {
		invDate, err1 := time.Parse("2006-01-02", out.InvoiceDate)
		dueDate, err2 := time.Parse("2006-01-02", out.DueDate)
		if err1 == nil && err2 == nil && dueDate.Before(invDate) {
			warnings = append(warnings, "Due date is before invoice date")
			conf = min(conf, mismatchCap)
		}
	}

	if strings.TrimSpace(out.VendorNameRaw) == "" {
		out.VendorNameRaw = UnknownVendor
		warnings = append(warnings, "Vendor name missing")
		conf = min(conf, completenessCap)
	}

	if out.Amount <= 0 {
		out.Amount = 0
		warnings = append(warnings, "Amount missing or zero")
		conf = min(conf, completenessCap)
	}

	out.Confidence = max(0, min(conf, 1))
	if len(warnings) > 0 {
		out.ValidationWarning = strings.Join(warnings, "; ")
	}
	return &out
}
