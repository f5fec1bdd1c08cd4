package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkart/coupon-service/internal/domain/coupon"
	"github.com/openkart/coupon-service/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockEvaluator struct {
	decision coupon.Decision
	err      error

	previewCart    coupon.Cart
	previewUser    string
	confirmedCode  string
	confirmedUser  string
	confirmedOrder string
	confirmErr     error
}

func (m *mockEvaluator) Preview(_ context.Context, _ string, cart coupon.Cart, userID string) (coupon.Decision, error) {
	m.previewCart = cart
	m.previewUser = userID
	return m.decision, m.err
}

func (m *mockEvaluator) Confirm(_ context.Context, code, userID, orderID string) error {
	if m.confirmErr != nil {
		return m.confirmErr
	}
	m.confirmedCode = code
	m.confirmedUser = userID
	m.confirmedOrder = orderID
	return nil
}

type mockOrderRepo struct {
	lastOrder *Order
	err       error
	deleteErr error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if m.lastOrder != nil && m.lastOrder.ID == id {
		m.lastOrder = nil
	}
	return nil
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestProduct(id string, price decimal.Decimal, category, brand string) product.Product {
	return product.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    price,
		Category: category,
		Brand:    brand,
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

// --- Tests ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc := NewService(newProductRepo(), &mockEvaluator{}, &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	p1 := newTestProduct("p1", d("10"), "books", "acme")
	svc := NewService(newProductRepo(p1), &mockEvaluator{}, &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []OrderItem{{ProductID: "p1", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	svc := NewService(newProductRepo(), &mockEvaluator{}, &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []OrderItem{{ProductID: "missing", Quantity: 1}},
	})

	var nfErr *ProductNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "missing", nfErr.ProductID)
}

func TestPlaceOrder_NoCoupon(t *testing.T) {
	p1 := newTestProduct("p1", d("19.99"), "books", "acme")
	p2 := newTestProduct("p2", d("5"), "toys", "bolt")
	repo := &mockOrderRepo{}
	ev := &mockEvaluator{}

	svc := NewService(newProductRepo(p1, p2), ev, repo)
	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []OrderItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 3},
		},
	})

	require.NoError(t, err)
	require.NotNil(t, repo.lastOrder)
	assert.True(t, d("54.98").Equal(result.Order.Subtotal))
	assert.True(t, result.Order.Discount.IsZero())
	assert.True(t, d("54.98").Equal(result.Order.Total))
	assert.Empty(t, result.Order.CouponCode)
	assert.NotEmpty(t, result.Order.ID)
	assert.Len(t, result.Products, 2)
	// No coupon: the evaluator is never consulted.
	assert.Empty(t, ev.confirmedOrder)
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	p1 := newTestProduct("p1", d("125"), "books", "acme")
	repo := &mockOrderRepo{}
	ev := &mockEvaluator{decision: coupon.Decision{
		Eligible:       true,
		DiscountAmount: d("25"),
		FinalTotal:     d("225"),
	}}

	svc := NewService(newProductRepo(p1), ev, repo)
	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:      []OrderItem{{ProductID: "p1", Quantity: 2}},
		CouponCode: "save10",
		UserID:     "u1",
	})

	require.NoError(t, err)
	assert.True(t, d("25").Equal(result.Order.Discount))
	assert.True(t, d("225").Equal(result.Order.Total))
	assert.Equal(t, "SAVE10", result.Order.CouponCode)

	// The cart snapshot handed to the evaluator is fully materialized.
	require.Len(t, ev.previewCart, 1)
	assert.Equal(t, "books", ev.previewCart[0].CategoryID)
	assert.Equal(t, "acme", ev.previewCart[0].BrandID)
	assert.Equal(t, "u1", ev.previewUser)

	// Redemption confirmed against the persisted order id.
	assert.Equal(t, "SAVE10", ev.confirmedCode)
	assert.Equal(t, result.Order.ID, ev.confirmedOrder)
}

func TestPlaceOrder_CouponRejected(t *testing.T) {
	p1 := newTestProduct("p1", d("10"), "books", "acme")
	repo := &mockOrderRepo{}
	ev := &mockEvaluator{decision: coupon.Decision{Reason: coupon.ReasonExpired}}

	svc := NewService(newProductRepo(p1), ev, repo)
	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:      []OrderItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "OLD",
	})

	var rejErr *CouponRejectedError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, coupon.ReasonExpired, rejErr.Reason)
	// Rejected coupon: nothing persisted.
	assert.Nil(t, repo.lastOrder)
}

func TestPlaceOrder_ConfirmLosesLimitRace(t *testing.T) {
	p1 := newTestProduct("p1", d("10"), "books", "acme")
	repo := &mockOrderRepo{}
	ev := &mockEvaluator{
		decision:   coupon.Decision{Eligible: true, DiscountAmount: d("1"), FinalTotal: d("9")},
		confirmErr: coupon.ErrGlobalLimitExceeded,
	}

	svc := NewService(newProductRepo(p1), ev, repo)
	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:      []OrderItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "LIMITED",
	})

	var rejErr *CouponRejectedError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, coupon.ReasonGlobalLimit, rejErr.Reason)
	// The discounted order must not survive the lost race.
	assert.Nil(t, repo.lastOrder)
}

func TestPlaceOrder_ConfirmCompensationFails(t *testing.T) {
	p1 := newTestProduct("p1", d("10"), "books", "acme")
	repo := &mockOrderRepo{deleteErr: errors.New("db down")}
	ev := &mockEvaluator{
		decision:   coupon.Decision{Eligible: true, DiscountAmount: d("1"), FinalTotal: d("9")},
		confirmErr: coupon.ErrGlobalLimitExceeded,
	}

	svc := NewService(newProductRepo(p1), ev, repo)
	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:      []OrderItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "LIMITED",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after failed redemption")
}

func TestPlaceOrder_RepoError(t *testing.T) {
	p1 := newTestProduct("p1", d("10"), "books", "acme")
	repo := &mockOrderRepo{err: errors.New("db down")}

	svc := NewService(newProductRepo(p1), &mockEvaluator{}, repo)
	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []OrderItem{{ProductID: "p1", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}
