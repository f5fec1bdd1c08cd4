//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestPlaceOrder_NoCoupon(t *testing.T) {
	resp := doPost(t, "/api/orders", orderRequest{
		Items: []orderItem{
			{ProductID: "p-ceramic-mug", Quantity: 1},
			{ProductID: "p-cold-brew-bottle", Quantity: 1},
		},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	// 12.75 + 18.25 = 31.00.
	o := decodeJSON[orderResponse](t, resp)
	if o.ID == "" {
		t.Error("order id is empty")
	}
	if !almostEqual(o.Subtotal, 31.0) {
		t.Errorf("subtotal: got %v, want 31.00", o.Subtotal)
	}
	if o.Discount != 0 {
		t.Errorf("discount: got %v, want 0", o.Discount)
	}
	if !almostEqual(o.Total, 31.0) {
		t.Errorf("total: got %v, want 31.00", o.Total)
	}
	if len(o.Items) != 2 {
		t.Errorf("items: got %d, want 2", len(o.Items))
	}
	if len(o.Products) != 2 {
		t.Errorf("products: got %d, want 2", len(o.Products))
	}
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	resp := doPost(t, "/api/orders", orderRequest{
		Items: []orderItem{
			{ProductID: "p-ceramic-mug", Quantity: 2},
		},
		CouponCode: "HAPPYHOURS",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	// 25.50 at 18% off = 4.59.
	o := decodeJSON[orderResponse](t, resp)
	if !almostEqual(o.Subtotal, 25.5) {
		t.Errorf("subtotal: got %v, want 25.50", o.Subtotal)
	}
	if !almostEqual(o.Discount, 4.59) {
		t.Errorf("discount: got %v, want 4.59", o.Discount)
	}
	if !almostEqual(o.Total, 20.91) {
		t.Errorf("total: got %v, want 20.91", o.Total)
	}
	if o.CouponCode != "HAPPYHOURS" {
		t.Errorf("couponCode: got %q, want HAPPYHOURS", o.CouponCode)
	}
}

func TestPlaceOrder_PerUserLimit(t *testing.T) {
	const userID = "user-per-user-limit"

	// WELCOME5 allows one redemption per user: the first order succeeds.
	resp := doPost(t, "/api/orders", orderRequest{
		Items: []orderItem{
			{ProductID: "p-ceramic-mug", Quantity: 1},
		},
		CouponCode: "WELCOME5",
		UserID:     userID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first order: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The second order for the same user is rejected.
	resp = doPost(t, "/api/orders", orderRequest{
		Items: []orderItem{
			{ProductID: "p-ceramic-mug", Quantity: 1},
		},
		CouponCode: "WELCOME5",
		UserID:     userID,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("second order: expected 422, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Reason != "per_user_limit_exceeded" {
		t.Errorf("reason: got %q, want per_user_limit_exceeded", errResp.Reason)
	}
}

func TestPlaceOrder_RejectedCouponNothingPersisted(t *testing.T) {
	resp := doPost(t, "/api/orders", orderRequest{
		Items: []orderItem{
			{ProductID: "p-ceramic-mug", Quantity: 1},
		},
		CouponCode: "NOSUCHCODE",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Reason != "not_found" {
		t.Errorf("reason: got %q, want not_found", errResp.Reason)
	}
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	resp := doPost(t, "/api/orders", orderRequest{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	resp := doPost(t, "/api/orders", orderRequest{
		Items: []orderItem{
			{ProductID: "no-such-product", Quantity: 1},
		},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	resp := doPost(t, "/api/orders", orderRequest{
		Items: []orderItem{
			{ProductID: "p-ceramic-mug", Quantity: 0},
		},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_ConfirmMovesUsage(t *testing.T) {
	// Create a dedicated coupon so other tests cannot interfere with the
	// usage counter.
	create := map[string]any{
		"code":       "usagetrack",
		"kind":       "flat",
		"value":      "1",
		"usageLimit": 10,
	}
	resp := doPostWithAuth(t, "/api/coupons", create, adminAPIKey)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doPost(t, "/api/orders", orderRequest{
		Items: []orderItem{
			{ProductID: "p-ceramic-mug", Quantity: 1},
		},
		CouponCode: "USAGETRACK",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("order: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, "/api/coupons/USAGETRACK", nil, adminAPIKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	c := decodeJSON[couponResponse](t, resp)
	if c.UsedCount != 1 {
		t.Errorf("usedCount: got %d, want 1", c.UsedCount)
	}
}
