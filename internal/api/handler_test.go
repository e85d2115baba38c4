package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-service/internal/catalog"
	"checkout-service/internal/discount"
	"checkout-service/internal/inventory"
	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(t *testing.T, deps map[string]Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := catalog.SampleRepository()
	svc := service.NewCheckoutService(repo, discount.StaticSource{Config: discount.DefaultConfig()},
		inventory.NewManager(repo, time.Second), service.NewMemoryCheckoutStore(), nil, time.Second)

	router := gin.New()
	NewHandler(svc, deps).SetupRoutes(router)
	return router
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func cart(productID string, qty int, reserve bool, code string) gin.H {
	return gin.H{
		"items":             []gin.H{{"product_id": productID, "quantity": qty}},
		"customer":          gin.H{"id": "cust-1", "tier": "REGULAR"},
		"payment":           gin.H{"method": "UPI"},
		"coupon_code":       code,
		"reserve_inventory": reserve,
	}
}

func TestCalculateCartDiscounts_OK(t *testing.T) {
	router := newRouter(t, nil)

	w := do(router, http.MethodPost, "/api/v1/cart/discounts", cart("1", 2, true, ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report models.CartDiscountReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, models.CheckoutStateComplete, report.State)
	assert.Equal(t, models.ReservationReserved, report.Reservation.Status)
	assert.True(t, report.FinalPrice.LessThan(report.OriginalPrice))

	w = do(router, http.MethodGet, "/api/v1/checkouts/"+report.CheckoutID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCalculateCartDiscounts_ErrorMapping(t *testing.T) {
	router := newRouter(t, nil)

	cases := []struct {
		name string
		body interface{}
		want int
	}{
		{"bad json", "not an object", http.StatusBadRequest},
		{"zero quantity", cart("1", 0, false, ""), http.StatusBadRequest},
		{"unknown product", cart("999", 1, false, ""), http.StatusNotFound},
		{"unknown coupon", cart("1", 1, false, "SUMMER20"), http.StatusUnprocessableEntity},
		{"insufficient stock", cart("1", 11, true, ""), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/v1/cart/discounts", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestCalculateCartDiscounts_ConflictCarriesReport(t *testing.T) {
	router := newRouter(t, nil)

	w := do(router, http.MethodPost, "/api/v1/cart/discounts", cart("2", 11, true, ""))
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Error     string                     `json:"error"`
		Retryable bool                       `json:"retryable"`
		Report    *models.CartDiscountReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Retryable)
	require.NotNil(t, body.Report)
	assert.Equal(t, models.ReservationFailed, body.Report.Reservation.Status)
	assert.Contains(t, body.Report.Reservation.Lines[0].Reason, "short by 1")
}

func TestWriteError_RetryableSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, models.ErrReservationTimeout, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	writeError(c, models.ErrInvalidPriceCalculation, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReleaseReservation(t *testing.T) {
	router := newRouter(t, nil)

	w := do(router, http.MethodPost, "/api/v1/cart/discounts", cart("3", 4, true, ""))
	require.Equal(t, http.StatusOK, w.Code)
	var report models.CartDiscountReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))

	w = do(router, http.MethodPost, "/api/v1/reservations/release", gin.H{"checkout_id": report.CheckoutID})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodPost, "/api/v1/reservations/release", gin.H{"checkout_id": report.CheckoutID})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = do(router, http.MethodPost, "/api/v1/reservations/release", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCheckout_NotFound(t *testing.T) {
	router := newRouter(t, nil)
	w := do(router, http.MethodGet, "/api/v1/checkouts/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadiness(t *testing.T) {
	ok := newRouter(t, map[string]Pinger{"redis": pingFunc(func(ctx context.Context) error { return nil })})
	assert.Equal(t, http.StatusOK, do(ok, http.MethodGet, "/ready", nil).Code)

	down := newRouter(t, map[string]Pinger{"postgres": pingFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	})})
	w := do(down, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	assert.Equal(t, http.StatusOK, do(ok, http.MethodGet, "/health", nil).Code)
}

func TestValidateCoupon(t *testing.T) {
	router := newRouter(t, nil)

	body := gin.H{
		"items":    []gin.H{{"product_id": "3", "quantity": 2}},
		"customer": gin.H{"id": "cust-1", "tier": "REGULAR"},
		"code":     "nike",
	}
	w := do(router, http.MethodPost, "/api/v1/coupons/validate", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result service.CouponValidation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, "NIKE", result.Code)
	assert.Equal(t, "2000", result.CartValue.String())

	// premium only
	body["code"] = "NIKE10"
	w = do(router, http.MethodPost, "/api/v1/coupons/validate", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body["code"] = "SUMMER20"
	w = do(router, http.MethodPost, "/api/v1/coupons/validate", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body["items"] = []gin.H{{"product_id": "3", "quantity": 11}}
	w = do(router, http.MethodPost, "/api/v1/coupons/validate", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPost, "/api/v1/coupons/validate", gin.H{"code": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProducts(t *testing.T) {
	router := newRouter(t, nil)

	w := do(router, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Products []models.Product `json:"products"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "1", body.Products[0].ID)
}
