package extraction

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

type fakeOCR struct {
	raw *entity.RawExtraction
	err error
}

func (f *fakeOCR) Extract(_ context.Context, _ []byte, _ string) (*entity.RawExtraction, error) {
	return f.raw, f.err
}

func TestCleanAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$1,234.56", 1234.56},
		{"1.234,56 EUR", 1234.56},
		{"1234.56", 1234.56},
		{"1,234", 1234},
		{"12,34", 12.34},
		{"€99", 99},
		{"-15.00", -15},
		{"", 0},
		{"N/A", 0},
		{"12.345.678,90", 12345678.90},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.InDelta(t, tc.want, CleanAmount(tc.in), 0.0001)
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-03-15", "2026-03-15"},
		{"03/15/2026", "2026-03-15"},
		{"15.03.2026", "2026-03-15"},
		{"Mar 15, 2026", "2026-03-15"},
		{"March 15, 2026", "2026-03-15"},
		{"15 Mar 2026", "2026-03-15"},
		{"2026/03/15", "2026-03-15"},
		{"next week", ""},
		{"", ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeDate(tc.in))
		})
	}
}

func TestAdapterExtractAbsorbsOCRFailure(t *testing.T) {
	a := NewAdapter(&fakeOCR{err: apperrors.New(apperrors.ErrCodeTransient, "ocr down")}, zerolog.Nop())

	raw := a.Extract(context.Background(), []byte("pdf"), "application/pdf")

	require.NotNil(t, raw)
	assert.Empty(t, raw.Entities)
}

func TestFallbackExtraction(t *testing.T) {
	raw := &entity.RawExtraction{
		Text: "invoice text",
		Entities: map[entity.EntityType][]entity.EntityMention{
			entity.EntityVendorName:    {{Value: " Acme GmbH ", Confidence: 0.9}},
			entity.EntityInvoiceNumber: {{Value: "RE-2026-17"}},
			entity.EntityInvoiceDate:   {{Value: "15.03.2026"}},
			entity.EntityTotalAmount:   {{Value: "1.234,56 EUR"}},
			entity.EntitySubtotal:      {{Value: "1.037,45"}},
			entity.EntityTaxAmount:     {{Value: "197,11"}},
			entity.EntityCurrency:      {{Value: "eur"}},
			entity.EntityTaxID:         {{Value: "DE 123 456 789"}},
		},
	}

	out := FallbackExtraction(raw)

	assert.Equal(t, "Acme GmbH", out.VendorNameRaw)
	assert.Equal(t, "RE-2026-17", out.InvoiceNumber)
	assert.Equal(t, "2026-03-15", out.InvoiceDate)
	assert.InDelta(t, 1234.56, out.Amount, 0.0001)
	require.NotNil(t, out.Subtotal)
	assert.InDelta(t, 1037.45, *out.Subtotal, 0.0001)
	assert.Equal(t, "EUR", out.Currency)
	assert.Equal(t, entity.DocumentInvoice, out.DocumentType)
	assert.Equal(t, "DE 123 456 789", out.TaxID)
	assert.Equal(t, 0.5, out.Confidence)
}

func TestFallbackExtractionEmptyEntities(t *testing.T) {
	out := FallbackExtraction(&entity.RawExtraction{
		Entities: map[entity.EntityType][]entity.EntityMention{},
	})

	assert.Equal(t, "", out.VendorNameRaw)
	assert.Equal(t, 0.0, out.Amount)
	assert.Equal(t, "USD", out.Currency)
	assert.Equal(t, 0.5, out.Confidence)
}
