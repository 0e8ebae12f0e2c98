package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/storefront-coupon-service/internal/metrics"
	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
	"github.com/Cheertaboi/storefront-coupon-service/internal/orchestrator"
	"github.com/Cheertaboi/storefront-coupon-service/internal/repository"
	"github.com/Cheertaboi/storefront-coupon-service/internal/service"
	"github.com/Cheertaboi/storefront-coupon-service/internal/store"
)

type memCoupons struct {
	mu  sync.Mutex
	m   map[string]models.Coupon
	err error
}

func (s *memCoupons) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.m[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memCoupons) ListAutoApply(ctx context.Context, now time.Time) ([]models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Coupon
	for _, c := range s.m {
		if c.AutoApply {
			out = append(out, c)
		}
	}
	return out, s.err
}

func (s *memCoupons) Upsert(ctx context.Context, c models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[c.Code] = c
	return s.err
}

func (s *memCoupons) SetActive(ctx context.Context, code string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[code]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsActive = active
	s.m[code] = c
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memCoupons) {
	t.Helper()
	coupons := &memCoupons{m: map[string]models.Coupon{
		"SAVE20": {Code: "SAVE20", DiscountType: models.DiscountPercentAll, DiscountValue: decimal.NewFromInt(20), Stackable: true, IsActive: true},
	}}
	reg := prometheus.NewRegistry()
	svc := service.NewCouponService(coupons, nil, nil, service.Options{})
	srv := httptest.NewServer(NewRouter(Deps{
		Logger:   zerolog.Nop(),
		Coupons:  svc,
		Carts:    orchestrator.NewRegistry(svc, store.NewMemoryStore(), orchestrator.Options{}),
		Metrics:  metrics.New(reg),
		Gatherer: reg,
	}))
	t.Cleanup(srv.Close)
	return srv, coupons
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

const cartJSON = `[{"sku":"TSHIRT","quantity":2,"price":"100"}]`

func TestRouter_Apply(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/coupons/apply",
		`{"code":"save20","cartItems":`+cartJSON+`,"currency":"ILS","locale":"he","existingCouponCodes":[]}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-Id"))

	var out models.ApplyResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.Success)
	assert.True(t, out.DiscountAmount.Equal(decimal.NewFromInt(40)))
	assert.True(t, out.NewSubtotal.Equal(decimal.NewFromInt(160)))
	assert.Equal(t, []string{"SAVE20"}, out.AppliedCodes)
	assert.Contains(t, out.Messages[models.LocaleHE], "SAVE20")
}

func TestRouter_ApplyFailureShape(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/coupons/apply",
		`{"code":"nope","cartItems":`+cartJSON+`,"currency":"ILS","locale":"en","existingCouponCodes":[]}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.JSONEq(t, `false`, string(raw["success"]))
	assert.JSONEq(t, `"COUPON_NOT_FOUND"`, string(raw["code"]))
	assert.Contains(t, raw, "messages")
	assert.NotContains(t, raw, "subtotal")
	assert.NotContains(t, raw, "discountAmount")
}

func TestRouter_AutoApplyNothing(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/coupons/auto-apply", `{"cartItems":`+cartJSON+`,"currency":"ILS"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":false}`, string(body))
}

func TestRouter_Revalidate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/coupons/revalidate",
		`{"codes":["SAVE20","GONE"],"cartItems":`+cartJSON+`,"currency":"ILS"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out models.RevalidateResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, []string{"SAVE20"}, models.Codes(out.Coupons))
	assert.Equal(t, []string{"GONE"}, out.DroppedCodes)
}

func TestRouter_Errors(t *testing.T) {
	tests := map[string]struct {
		path     string
		body     string
		storeErr error
		want     int
		wantErr  string
	}{
		"undecodable body": {path: "/api/coupons/apply", body: `{"code":`, want: http.StatusBadRequest, wantErr: "invalid_body"},
		"store failure": {
			path: "/api/coupons/apply", body: `{"code":"SAVE20","cartItems":` + cartJSON + `}`,
			storeErr: errors.New("db down"), want: http.StatusInternalServerError, wantErr: "internal_error",
		},
		"invalid definition": {
			path: "/admin/coupons", body: `{"code":"X","discountType":"percent_all","discountValue":"150"}`,
			want: http.StatusBadRequest, wantErr: "invalid_definition",
		},
		"oversized body": {
			path: "/api/coupons/apply", body: `{"code":"` + strings.Repeat("A", 1<<20) + `"}`,
			want: http.StatusRequestEntityTooLarge, wantErr: "body_too_large",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			srv, coupons := newTestServer(t)
			coupons.err = tc.storeErr

			resp, body := do(t, http.MethodPost, srv.URL+tc.path, tc.body)

			assert.Equal(t, tc.want, resp.StatusCode)
			var out map[string]string
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, tc.wantErr, out["error"])
		})
	}
}

func TestRouter_Admin(t *testing.T) {
	srv, coupons := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/admin/coupons",
		`{"code":" bogo ","discountType":"bogo","discountValue":"50","bogoBuyQuantity":1,"bogoGetQuantity":1,"isActive":true,"discountLabel":{"he":"1+1"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Equal(t, models.DiscountBogo, coupons.m["BOGO"].DiscountType)

	resp, body = do(t, http.MethodGet, srv.URL+"/admin/coupons/bogo", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Coupon
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "1+1", got.DiscountLabel.Get(models.LocaleHE))

	resp, _ = do(t, http.MethodPost, srv.URL+"/admin/coupons/bogo/deactivate", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, coupons.m["BOGO"].IsActive)

	resp, _ = do(t, http.MethodGet, srv.URL+"/admin/coupons/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/admin/coupons/missing/deactivate", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_CartSession(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/carts/cart-9"

	resp, body := do(t, http.MethodPost, base+"/coupons", `{"code":"save20","cartItems":`+cartJSON+`,"currency":"ILS"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var applied struct {
		Result  models.ApplyResponse `json:"result"`
		Summary orchestrator.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(body, &applied))
	assert.True(t, applied.Result.Success)
	assert.Equal(t, []string{"SAVE20"}, applied.Summary.Codes)
	assert.True(t, applied.Summary.TotalDiscount.Equal(decimal.NewFromInt(40)))

	resp, body = do(t, http.MethodPost, base+"/revalidate", `{"cartItems":[],"currency":"ILS"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum orchestrator.Summary
	require.NoError(t, json.Unmarshal(body, &sum))
	assert.Empty(t, sum.Codes)

	_, _ = do(t, http.MethodPost, base+"/coupons", `{"code":"SAVE20","cartItems":`+cartJSON+`}`)
	resp, body = do(t, http.MethodDelete, base+"/coupons/save20", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &sum))
	assert.Empty(t, sum.Codes)
	assert.True(t, sum.TotalDiscount.IsZero())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	_, _ = do(t, http.MethodPost, srv.URL+"/api/coupons/apply", `{"code":"SAVE20","cartItems":`+cartJSON+`}`)
	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, bytes.Contains(body, []byte(`coupon_service_http_request_duration_seconds_count{method="POST",route="/api/coupons/apply",status="2xx"}`)))
}
