package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
	"github.com/Cheertaboi/storefront-coupon-service/internal/orchestrator"
)

// CartHandler exposes the per-cart orchestrator for storefronts that do not keep the
// applied-code list themselves.
type CartHandler struct {
	carts *orchestrator.Registry
}

func NewCartHandler(carts *orchestrator.Registry) *CartHandler {
	return &CartHandler{carts: carts}
}

type cartRequest struct {
	Code           string                `json:"code,omitempty"`
	CartItems      []models.CartLineItem `json:"cartItems"`
	Currency       string                `json:"currency"`
	Locale         string                `json:"locale"`
	UserIdentifier string                `json:"userIdentifier,omitempty"`
}

func (req cartRequest) cart() orchestrator.Cart {
	return orchestrator.Cart{
		Items:          req.CartItems,
		Currency:       req.Currency,
		Locale:         req.Locale,
		UserIdentifier: req.UserIdentifier,
	}
}

type cartApplyResponse struct {
	Result  interface{}          `json:"result"`
	Summary orchestrator.Summary `json:"summary"`
}

func (h *CartHandler) session(r *http.Request) *orchestrator.Session {
	return h.carts.Session(chi.URLParam(r, "cartID"))
}

// conflict maps orchestrator guard errors to 409. It reports whether it wrote a response.
func conflict(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "busy"})
	case errors.Is(err, orchestrator.ErrStale):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "stale"})
	default:
		return false
	}
	return true
}

// Summary handles GET /api/carts/{cartID}/coupons
func (h *CartHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session(r).Summary())
}

// Apply handles POST /api/carts/{cartID}/coupons
func (h *CartHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if !decode(w, r, &req) {
		return
	}
	s := h.session(r)
	resp, err := s.Apply(r.Context(), req.Code, req.cart())
	if err != nil {
		if !conflict(w, err) {
			internalError(w, r, err, "cart apply")
		}
		return
	}
	writeJSON(w, http.StatusOK, cartApplyResponse{Result: applyBody(resp), Summary: s.Summary()})
}

// AutoApply handles POST /api/carts/{cartID}/auto-apply
func (h *CartHandler) AutoApply(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if !decode(w, r, &req) {
		return
	}
	s := h.session(r)
	resp, err := s.AutoApply(r.Context(), req.cart())
	if err != nil {
		if !conflict(w, err) {
			internalError(w, r, err, "cart auto-apply")
		}
		return
	}
	writeJSON(w, http.StatusOK, cartApplyResponse{Result: applyBody(resp), Summary: s.Summary()})
}

// Revalidate handles POST /api/carts/{cartID}/revalidate
func (h *CartHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if !decode(w, r, &req) {
		return
	}
	sum, err := h.session(r).Revalidate(r.Context(), req.cart())
	if err != nil {
		if !conflict(w, err) {
			internalError(w, r, err, "cart revalidate")
		}
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Remove handles DELETE /api/carts/{cartID}/coupons/{code}
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	sum, err := h.session(r).Remove(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if !conflict(w, err) {
			internalError(w, r, err, "cart remove")
		}
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
