package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/jedilnik/internal/approval"
)

// VerificationHandler serves approval queues and approval actions.
type VerificationHandler struct {
	Authorizer *approval.Authorizer
}

type approveRequest struct {
	RestaurantID int64   `json:"restaurant_id,omitempty"`
	IDs          []int64 `json:"ids"`
}

type approveResponse struct {
	approval.Outcome
	RestaurantID int64 `json:"restaurant_id,omitempty"`
}

// Queue handles GET /api/verification.
func (h *VerificationHandler) Queue(w http.ResponseWriter, r *http.Request) {
	var restaurantID int64
	if v := r.URL.Query().Get("restaurant_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid restaurant id")
			return
		}
		restaurantID = id
	}

	q, err := h.Authorizer.Queue(r.Context(), principal(r.Context()), restaurantID)
	if err != nil {
		approvalError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, q)
}

// ApproveRestaurants handles POST /api/verification/restaurants.
func (h *VerificationHandler) ApproveRestaurants(w http.ResponseWriter, r *http.Request) {
	p := principal(r.Context())
	req, ok := decodeApproveRequest(w, r, p)
	if !ok {
		return
	}

	out, err := h.Authorizer.ApproveRestaurants(r.Context(), p, req.IDs)
	if err != nil {
		if p.Authenticated {
			slog.Warn("restaurant approval rejected", "user", p.Email, "ids", req.IDs, "error", err)
		}
		approvalError(w, err)
		return
	}

	if out.Approved > 0 {
		slog.Info("restaurants approved", "user", p.Email, "count", out.Approved)
	}
	jsonResponse(w, http.StatusOK, approveResponse{Outcome: out})
}

// ApproveMenuItems handles POST /api/verification/menu-items.
func (h *VerificationHandler) ApproveMenuItems(w http.ResponseWriter, r *http.Request) {
	p := principal(r.Context())
	req, ok := decodeApproveRequest(w, r, p)
	if !ok {
		return
	}

	out, err := h.Authorizer.ApproveMenuItems(r.Context(), p, req.IDs)
	if err != nil {
		if p.Authenticated {
			slog.Warn("menu item approval rejected", "user", p.Email, "ids", req.IDs, "error", err)
		}
		approvalError(w, err)
		return
	}

	if out.Approved > 0 {
		slog.Info("menu items approved", "user", p.Email, "restaurant", req.RestaurantID, "count", out.Approved)
	}
	jsonResponse(w, http.StatusOK, approveResponse{Outcome: out, RestaurantID: req.RestaurantID})
}

// decodeApproveRequest reads the id list. An empty body selects nothing.
func decodeApproveRequest(w http.ResponseWriter, r *http.Request, p approval.Principal) (approveRequest, bool) {
	var req approveRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := decodeJSON(r, &req); err != nil {
		if !p.Authenticated {
			approvalError(w, approval.ErrUnauthenticated)
			return req, false
		}
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}
