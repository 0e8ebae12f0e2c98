package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
	"github.com/Cheertaboi/storefront-coupon-service/internal/service"
)

// CouponService is what the coupon handlers need from the service layer.
type CouponService interface {
	Apply(ctx context.Context, req models.ApplyRequest) (models.ApplyResponse, error)
	AutoApply(ctx context.Context, req models.AutoApplyRequest) (models.ApplyResponse, error)
	Revalidate(ctx context.Context, req models.RevalidateRequest) (models.RevalidateResponse, error)
	Create(ctx context.Context, c models.Coupon) (models.Coupon, error)
	Get(ctx context.Context, code string) (*models.Coupon, error)
	Deactivate(ctx context.Context, code string) error
}

// --- Response DTOs ---

// failureResponse is the apply/auto-apply failure shape: no amounts, only the kind and text.
type failureResponse struct {
	Success  bool                 `json:"success"`
	Code     models.ErrorKind     `json:"code,omitempty"`
	Messages models.LocalizedText `json:"messages,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// --- Handler struct & constructor ---

type CouponHandler struct {
	service CouponService
}

func NewCouponHandler(svc CouponService) *CouponHandler {
	return &CouponHandler{service: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// maxBodyBytes caps request bodies; a real cart is a few KB.
const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "body_too_large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Detail: err.Error()})
		return false
	}
	return true
}

func internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
}

// applyBody picks the success or failure shape for an apply outcome.
func applyBody(resp models.ApplyResponse) interface{} {
	if !resp.Success {
		return failureResponse{Success: false, Code: resp.Code, Messages: resp.Messages}
	}
	return resp
}

// --- Handlers ---

// Apply handles POST /api/coupons/apply
func (h *CouponHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req models.ApplyRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.Apply(r.Context(), req)
	if err != nil {
		internalError(w, r, err, "apply coupon")
		return
	}
	writeJSON(w, http.StatusOK, applyBody(resp))
}

// AutoApply handles POST /api/coupons/auto-apply
func (h *CouponHandler) AutoApply(w http.ResponseWriter, r *http.Request) {
	var req models.AutoApplyRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.AutoApply(r.Context(), req)
	if err != nil {
		internalError(w, r, err, "auto-apply coupon")
		return
	}
	writeJSON(w, http.StatusOK, applyBody(resp))
}

// Revalidate handles POST /api/coupons/revalidate
func (h *CouponHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	var req models.RevalidateRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.Revalidate(r.Context(), req)
	if err != nil {
		internalError(w, r, err, "revalidate coupons")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCoupon handles POST /admin/coupons (create or replace)
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.Coupon
	if !decode(w, r, &req) {
		return
	}
	c, err := h.service.Create(r.Context(), req)
	if err != nil {
		var defErr *service.DefinitionError
		if errors.As(err, &defErr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_definition", Field: defErr.Field, Detail: defErr.Reason})
			return
		}
		internalError(w, r, err, "save coupon")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GetCoupon handles GET /admin/coupons/{code}
func (h *CouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, service.ErrCouponNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "coupon_not_found"})
			return
		}
		internalError(w, r, err, "get coupon")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeactivateCoupon handles POST /admin/coupons/{code}/deactivate
func (h *CouponHandler) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	code := models.NormalizeCode(chi.URLParam(r, "code"))
	if err := h.service.Deactivate(r.Context(), code); err != nil {
		if errors.Is(err, service.ErrCouponNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "coupon_not_found"})
			return
		}
		internalError(w, r, err, "deactivate coupon")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "coupon_deactivated", "code": code})
}
