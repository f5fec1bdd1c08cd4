package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	coupon *Coupon
	err    error
}

func (m *mockRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	return m.coupon, m.err
}
func (m *mockRepo) Create(context.Context, *Coupon) error   { return nil }
func (m *mockRepo) Update(context.Context, *Coupon) error   { return nil }
func (m *mockRepo) List(context.Context) ([]Coupon, error)  { return nil, nil }
func (m *mockRepo) Deactivate(context.Context, string) error { return nil }

type mockLedger struct {
	usage      Usage
	usageErr   error
	confirmErr error

	usageCalls   int
	confirmCalls int
	confirmed    map[string]struct{}
}

func (m *mockLedger) Usage(_ context.Context, _, _ string) (Usage, error) {
	m.usageCalls++
	return m.usage, m.usageErr
}

func (m *mockLedger) Confirm(_ context.Context, _, _, orderID string) error {
	m.confirmCalls++
	if m.confirmErr != nil {
		return m.confirmErr
	}
	if m.confirmed == nil {
		m.confirmed = make(map[string]struct{})
	}
	if _, ok := m.confirmed[orderID]; ok {
		return nil
	}
	m.confirmed[orderID] = struct{}{}
	m.usage.GlobalUsed++
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func testCart() Cart {
	return Cart{{ProductID: "p1", UnitPrice: d("250"), Quantity: 1}}
}

func TestServicePreview(t *testing.T) {
	repo := &mockRepo{coupon: &Coupon{
		Code: "SAVE10", Kind: KindPercentage, Value: d("10"),
		Active: true, UsageLimit: 100, Description: "10% off",
	}}
	ledger := &mockLedger{}

	svc := NewService(repo, ledger)
	svc.now = fixedNow

	got, err := svc.Preview(context.Background(), "save10", testCart(), "u1")
	require.NoError(t, err)
	require.True(t, got.Eligible)
	assert.True(t, d("25").Equal(got.DiscountAmount))
	assert.True(t, d("225").Equal(got.FinalTotal))
	assert.Equal(t, "10% off", got.Description)

	// Preview is read-only: the ledger is queried, never written.
	assert.Equal(t, 1, ledger.usageCalls)
	assert.Zero(t, ledger.confirmCalls)
}

func TestServicePreviewNotFound(t *testing.T) {
	svc := NewService(&mockRepo{err: ErrNotFound}, &mockLedger{})
	svc.now = fixedNow

	got, err := svc.Preview(context.Background(), "BOGUS", testCart(), "")
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonNotFound, got.Reason)
}

func TestServicePreviewBlankCode(t *testing.T) {
	svc := NewService(&mockRepo{}, &mockLedger{})

	got, err := svc.Preview(context.Background(), "  ", testCart(), "")
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, got.Reason)
}

func TestServicePreviewRepoError(t *testing.T) {
	svc := NewService(&mockRepo{err: errors.New("db down")}, &mockLedger{})

	_, err := svc.Preview(context.Background(), "SAVE10", testCart(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestServicePreviewSkipsUsageWhenUnlimited(t *testing.T) {
	repo := &mockRepo{coupon: &Coupon{
		Code: "SAVE10", Kind: KindPercentage, Value: d("10"), Active: true,
	}}
	ledger := &mockLedger{usageErr: errors.New("must not be called")}

	svc := NewService(repo, ledger)
	svc.now = fixedNow

	got, err := svc.Preview(context.Background(), "SAVE10", testCart(), "")
	require.NoError(t, err)
	assert.True(t, got.Eligible)
	assert.Zero(t, ledger.usageCalls)
}

func TestServicePreviewIdempotent(t *testing.T) {
	repo := &mockRepo{coupon: &Coupon{
		Code: "SAVE10", Kind: KindPercentage, Value: d("10"),
		Active: true, UsageLimit: 100,
	}}
	svc := NewService(repo, &mockLedger{usage: Usage{GlobalUsed: 7}})
	svc.now = fixedNow

	first, err := svc.Preview(context.Background(), "SAVE10", testCart(), "u1")
	require.NoError(t, err)
	second, err := svc.Preview(context.Background(), "SAVE10", testCart(), "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestServiceConfirm(t *testing.T) {
	ledger := &mockLedger{}
	svc := NewService(&mockRepo{}, ledger)

	require.NoError(t, svc.Confirm(context.Background(), "save10", "u1", "order-1"))
	assert.Equal(t, 1, ledger.usage.GlobalUsed)

	// Confirming the same order again must not double-count.
	require.NoError(t, svc.Confirm(context.Background(), "save10", "u1", "order-1"))
	assert.Equal(t, 1, ledger.usage.GlobalUsed)

	require.NoError(t, svc.Confirm(context.Background(), "save10", "u1", "order-2"))
	assert.Equal(t, 2, ledger.usage.GlobalUsed)
}

func TestServiceConfirmLimitRace(t *testing.T) {
	ledger := &mockLedger{confirmErr: ErrGlobalLimitExceeded}
	svc := NewService(&mockRepo{}, ledger)

	err := svc.Confirm(context.Background(), "SAVE10", "u1", "order-1")
	require.ErrorIs(t, err, ErrGlobalLimitExceeded)
}

func TestServiceConfirmRequiresOrderID(t *testing.T) {
	svc := NewService(&mockRepo{}, &mockLedger{})

	require.Error(t, svc.Confirm(context.Background(), "SAVE10", "u1", ""))
	require.Error(t, svc.Confirm(context.Background(), "", "u1", "order-1"))
}
