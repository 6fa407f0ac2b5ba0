package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
	"github.com/pesio-ai/be-ap-capture/internal/entity"
)

type fakeStore struct {
	records map[string]*entity.InvoiceRecord
	dedup   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: map[string]*entity.InvoiceRecord{},
		dedup:   map[string]string{},
	}
}

func (s *fakeStore) Insert(_ context.Context, rec *entity.InvoiceRecord, dedupKey string) error {
	key := rec.OwnerIdentity + "/" + dedupKey
	if _, ok := s.dedup[key]; ok {
		return apperrors.New(apperrors.ErrCodeDuplicate, "record already exists for this dedup key")
	}
	cp := *rec
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.records[rec.InvoiceID] = &cp
	s.dedup[key] = rec.InvoiceID
	rec.CreatedAt = cp.CreatedAt
	rec.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *fakeStore) ExistsID(_ context.Context, invoiceID string) (bool, error) {
	_, ok := s.records[invoiceID]
	return ok, nil
}

func (s *fakeStore) FindDuplicate(_ context.Context, owner, dedupKey string) (string, error) {
	return s.dedup[owner+"/"+dedupKey], nil
}

func (s *fakeStore) GetByID(_ context.Context, owner, invoiceID string) (*entity.InvoiceRecord, error) {
	rec, ok := s.records[invoiceID]
	if !ok || rec.OwnerIdentity != owner {
		return nil, apperrors.NotFound("invoice", invoiceID)
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Approve(_ context.Context, owner, invoiceID, actor string, scheduledDate *string) (bool, error) {
	rec, ok := s.records[invoiceID]
	if !ok || rec.OwnerIdentity != owner || rec.Status != entity.StatusPending {
		return false, nil
	}
	now := time.Now()
	rec.Status = entity.StatusApproved
	rec.ApprovedBy = &actor
	rec.ApprovedAt = &now
	if scheduledDate != nil {
		rec.ScheduledDate = scheduledDate
	}
	return true, nil
}

func (s *fakeStore) Reject(_ context.Context, owner, invoiceID, actor, reason string) (bool, error) {
	rec, ok := s.records[invoiceID]
	if !ok || rec.OwnerIdentity != owner || rec.Status != entity.StatusPending {
		return false, nil
	}
	now := time.Now()
	rec.Status = entity.StatusRejected
	rec.RejectedBy = &actor
	rec.RejectedAt = &now
	rec.RejectionReason = &reason
	return true, nil
}

func (s *fakeStore) MarkPaid(_ context.Context, owner, invoiceID string) (bool, error) {
	rec, ok := s.records[invoiceID]
	if !ok || rec.OwnerIdentity != owner || rec.Status != entity.StatusApproved {
		return false, nil
	}
	rec.Status = entity.StatusPaid
	return true, nil
}

func (s *fakeStore) Cancel(_ context.Context, owner, invoiceID string) (bool, error) {
	rec, ok := s.records[invoiceID]
	if !ok || rec.OwnerIdentity != owner {
		return false, nil
	}
	if rec.Status != entity.StatusPending && rec.Status != entity.StatusApproved {
		return false, nil
	}
	rec.Status = entity.StatusCancelled
	return true, nil
}

type countingLocker struct {
	locks int
}

func (l *countingLocker) Lock(_ context.Context, _ string, _ time.Duration) (func(), error) {
	l.locks++
	return func() {}, nil
}

func testExtraction() *entity.CanonicalExtraction {
	return &entity.CanonicalExtraction{
		VendorNameRaw: "Acme Corp",
		InvoiceNumber: "INV-2026-001",
		InvoiceDate:   "2026-05-01",
		Amount:        150.75,
		Currency:      "USD",
		DocumentType:  entity.DocumentInvoice,
		Confidence:    0.9,
	}
}

func matchVerdict(vendorID string) *entity.ResolutionVerdict {
	return &entity.ResolutionVerdict{
		Verdict:    entity.VerdictMatch,
		VendorID:   vendorID,
		Confidence: 0.95,
		Method:     entity.MethodSemanticJudge,
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return NewManager(store, nil, nil, zerolog.Nop()), store
}

func TestCreateNewRecord(t *testing.T) {
	m, store := newTestManager(t)

	res, err := m.Create(context.Background(), "org_1", testExtraction(), matchVerdict("ven_1"), "gs://b/doc.pdf")

	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.NotNil(t, res.Record)
	assert.Regexp(t, `^INV-\d{8}-[0-9a-f]{12}$`, res.Record.InvoiceID)
	assert.Equal(t, entity.StatusPending, res.Record.Status)
	require.NotNil(t, res.Record.VendorID)
	assert.Equal(t, "ven_1", *res.Record.VendorID)
	assert.Equal(t, "gs://b/doc.pdf", res.Record.DocumentLocator)
	assert.Len(t, store.records, 1)
}

func TestCreateWithoutMatchLeavesVendorUnlinked(t *testing.T) {
	m, _ := newTestManager(t)

	res, err := m.Create(context.Background(), "org_1", testExtraction(), &entity.ResolutionVerdict{
		Verdict: entity.VerdictAmbiguous,
		Method:  entity.MethodSemanticJudge,
	}, "")

	require.NoError(t, err)
	assert.Nil(t, res.Record.VendorID)
}

func TestCreateDuplicateShortCircuits(t *testing.T) {
	m, store := newTestManager(t)

	first, err := m.Create(context.Background(), "org_1", testExtraction(), matchVerdict("ven_1"), "")
	require.NoError(t, err)

	second, err := m.Create(context.Background(), "org_1", testExtraction(), matchVerdict("ven_1"), "")
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Record.InvoiceID, second.DuplicateOf)
	assert.Len(t, store.records, 1)
}

func TestCreateSameInvoiceDifferentOwnersBothStored(t *testing.T) {
	m, store := newTestManager(t)

	_, err := m.Create(context.Background(), "org_1", testExtraction(), matchVerdict("ven_1"), "")
	require.NoError(t, err)
	res, err := m.Create(context.Background(), "org_2", testExtraction(), matchVerdict("ven_1"), "")
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	assert.Len(t, store.records, 2)
}

func TestCreateUsesLocker(t *testing.T) {
	store := newFakeStore()
	locker := &countingLocker{}
	m := NewManager(store, locker, nil, zerolog.Nop())

	_, err := m.Create(context.Background(), "org_1", testExtraction(), nil, "")

	require.NoError(t, err)
	assert.Equal(t, 1, locker.locks)
}

func TestDedupKeyPrefersVendorID(t *testing.T) {
	ext := testExtraction()

	withID := DedupKey(ext, matchVerdict("ven_1"))
	withName := DedupKey(ext, nil)

	assert.NotEqual(t, withID, withName)
	assert.Equal(t, withID, DedupKey(ext, matchVerdict("ven_1")))
}

func TestDedupKeyMissingDateFallsBackToInvoiceNumber(t *testing.T) {
	a := testExtraction()
	a.InvoiceDate = ""
	b := testExtraction()
	b.InvoiceDate = ""
	b.InvoiceNumber = "INV-2026-002"

	assert.NotEqual(t, DedupKey(a, nil), DedupKey(b, nil))
	assert.Equal(t, DedupKey(a, nil), DedupKey(a, nil))
}

func createPending(t *testing.T, m *Manager) *entity.InvoiceRecord {
	t.Helper()
	res, err := m.Create(context.Background(), "org_1", testExtraction(), matchVerdict("ven_1"), "")
	require.NoError(t, err)
	return res.Record
}

func TestApprovePending(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)

	out, err := m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_7", nil)

	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, out.Status)
	require.NotNil(t, out.ApprovedBy)
	assert.Equal(t, "user_7", *out.ApprovedBy)
}

func TestApproveRepeatSameActorIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)

	_, err := m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_7", nil)
	require.NoError(t, err)

	out, err := m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_7", nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, out.Status)
}

func TestApproveRepeatDifferentActorFails(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)

	_, err := m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_7", nil)
	require.NoError(t, err)

	_, err = m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_8", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.Code(err))
}

func TestApproveRequiresActor(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)

	_, err := m.Approve(context.Background(), "org_1", rec.InvoiceID, "  ", nil)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
}

func TestRejectRequiresReason(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)

	_, err := m.Reject(context.Background(), "org_1", rec.InvoiceID, "user_7", "   ")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
}

func TestRejectPending(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)

	out, err := m.Reject(context.Background(), "org_1", rec.InvoiceID, "user_7", "amount disputed")

	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, out.Status)
	require.NotNil(t, out.RejectionReason)
	assert.Equal(t, "amount disputed", *out.RejectionReason)
}

func TestRejectApprovedFails(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)
	_, err := m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_7", nil)
	require.NoError(t, err)

	_, err = m.Reject(context.Background(), "org_1", rec.InvoiceID, "user_7", "too late")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.Code(err))
}

func TestMarkPaidRequiresApproved(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)

	_, err := m.MarkPaid(context.Background(), "org_1", rec.InvoiceID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.Code(err))

	_, err = m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_7", nil)
	require.NoError(t, err)

	out, err := m.MarkPaid(context.Background(), "org_1", rec.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaid, out.Status)
}

func TestCancelPending(t *testing.T) {
	m, _ := newTestManager(t)

	rec := createPending(t, m)
	out, err := m.Cancel(context.Background(), "org_1", rec.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, out.Status)
}

func TestCancelApproved(t *testing.T) {
	m, _ := newTestManager(t)

	rec := createPending(t, m)
	_, err := m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_7", nil)
	require.NoError(t, err)

	out, err := m.Cancel(context.Background(), "org_1", rec.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, out.Status)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createPending(t, m)

	_, err := m.Approve(context.Background(), "org_1", rec.InvoiceID, "user_7", nil)
	require.NoError(t, err)
	_, err = m.MarkPaid(context.Background(), "org_1", rec.InvoiceID)
	require.NoError(t, err)

	_, err = m.Cancel(context.Background(), "org_1", rec.InvoiceID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.Code(err))

	_, err = m.MarkPaid(context.Background(), "org_1", rec.InvoiceID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.Code(err))
}

type stuckApproveStore struct {
	*fakeStore
	attempts int
}

func (s *stuckApproveStore) Approve(_ context.Context, _, _, _ string, _ *string) (bool, error) {
	s.attempts++
	return false, nil
}

func TestApproveRaceSettlesAfterOneReread(t *testing.T) {
	// The conditional update keeps reporting zero rows while the read side
	// still says pending. One re-read, then a transition error; never a loop.
	store := &stuckApproveStore{fakeStore: newFakeStore()}
	m := NewManager(store, nil, nil, zerolog.Nop())

	res, err := m.Create(context.Background(), "org_1", testExtraction(), matchVerdict("ven_1"), "")
	require.NoError(t, err)

	_, err = m.Approve(context.Background(), "org_1", res.Record.InvoiceID, "user_7", nil)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.Code(err))
	assert.Equal(t, 1, store.attempts)
}

type staleReadStore struct {
	*fakeStore
	reads int
}

func (s *staleReadStore) GetByID(ctx context.Context, owner, id string) (*entity.InvoiceRecord, error) {
	rec, err := s.fakeStore.GetByID(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	s.reads++
	if s.reads == 1 {
		// First read races ahead of a concurrent approve by the same actor.
		rec.Status = entity.StatusPending
		rec.ApprovedBy = nil
	}
	return rec, nil
}

func (s *staleReadStore) Approve(_ context.Context, _, _, _ string, _ *string) (bool, error) {
	return false, nil
}

func TestApproveRaceLostToSameActorIsIdempotent(t *testing.T) {
	// Another request by the same actor wins the conditional update between
	// our read and our update; the loser settles as a no-op success.
	base := newFakeStore()
	res, err := NewManager(base, nil, nil, zerolog.Nop()).
		Create(context.Background(), "org_1", testExtraction(), matchVerdict("ven_1"), "")
	require.NoError(t, err)

	actor := "user_7"
	rec := base.records[res.Record.InvoiceID]
	rec.Status = entity.StatusApproved
	rec.ApprovedBy = &actor

	m := NewManager(&staleReadStore{fakeStore: base}, nil, nil, zerolog.Nop())
	out, err := m.Approve(context.Background(), "org_1", res.Record.InvoiceID, actor, nil)

	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, out.Status)
	require.NotNil(t, out.ApprovedBy)
	assert.Equal(t, actor, *out.ApprovedBy)
}

func TestUnknownInvoiceNotFound(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Approve(context.Background(), "org_1", "INV-none", "user_7", nil)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.Code(err))
}
