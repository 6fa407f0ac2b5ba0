package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

// VendorRepository reads the vendor master registry. This core never writes
// it; the registry service owns vendor lifecycle.
type VendorRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewVendorRepository creates a new vendor registry reader.
func NewVendorRepository(pool *pgxpool.Pool, log zerolog.Logger) *VendorRepository {
	return &VendorRepository{pool: pool, log: log}
}

// FindByTaxID looks up a vendor by a normalized tax identifier. A miss is
// (nil, nil).
func (r *VendorRepository) FindByTaxID(ctx context.Context, normalizedTaxID string) (*entity.CandidateVendor, error) {
	query := `
		SELECT id, canonical_name, tax_ids, domains, countries
		FROM vendors
		WHERE $1 = ANY(tax_ids_normalized)
	`

	v := &entity.CandidateVendor{}
	err := r.pool.QueryRow(ctx, query, normalizedTaxID).Scan(
		&v.ID,
		&v.CanonicalName,
		&v.KnownTaxIDs,
		&v.KnownDomains,
		&v.KnownCountries,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to look up vendor by tax id")
	}
	return v, nil
}
