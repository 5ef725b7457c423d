package freetrial

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/examprep/practice-api/internal/api"
	"github.com/examprep/practice-api/internal/auth"
)

// Handler provides HTTP handlers for the free trial endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// Status handles GET /free-trial-status?userId=.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.ResolveUserID(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status, err := h.svc.Status(r.Context(), userID, h.svc.Today())
	if errors.Is(err, ErrNoActivePolicy) {
		api.JSON(w, http.StatusOK, map[string]bool{"active": false})
		return
	}
	if err != nil {
		slog.Error("getting free trial status", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// RecordUsage handles POST /free-trial-usage.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req UsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userID, err := auth.ResolveUserID(r.Context(), req.UserID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	count := 1
	if req.Count != nil {
		count = *req.Count
	}

	status, err := h.svc.Consume(r.Context(), userID, *req.CategoryID, count, h.svc.Today())
	if err != nil {
		handleUsageError(w, err, userID)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

func handleUsageError(w http.ResponseWriter, err error, userID string) {
	var denial *DenialError
	switch {
	case errors.As(err, &denial):
		switch denial.Reason {
		case ReasonCategoryNotAllowed:
			api.HandleError(w, api.ErrCategoryNotAllowed)
		case ReasonDailyLimitExceeded:
			api.HandleError(w, api.ErrDailyLimitExceeded.WithDetails(denialDetails(denial)))
		default:
			api.HandleError(w, api.ErrInsufficientRemaining.WithDetails(denialDetails(denial)))
		}
	case errors.Is(err, ErrNoActivePolicy):
		api.HandleError(w, api.ErrFreeTrialInactive)
	case errors.Is(err, ErrInvalidCount):
		api.HandleError(w, api.NewValidationError(err.Error()))
	default:
		slog.Error("recording free trial usage", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
	}
}

func denialDetails(d *DenialError) map[string]any {
	return map[string]any{
		"limit":     d.Limit,
		"used":      d.Used,
		"remaining": d.Remaining,
	}
}

// GetPolicy handles GET /free-trial-policy (admin).
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.ActivePolicy(r.Context())
	if errors.Is(err, ErrNoActivePolicy) {
		api.JSON(w, http.StatusOK, map[string]bool{"active": false})
		return
	}
	if err != nil {
		slog.Error("getting free trial policy", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, p)
}

// ReplacePolicy handles PUT /free-trial-policy (admin).
func (h *Handler) ReplacePolicy(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req ReplacePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	p, err := h.svc.ReplacePolicy(r.Context(), claims.UserID(), req.DailyLimit, req.AllowedCategories)
	if err != nil {
		if errors.Is(err, ErrInvalidPolicy) {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
		if errors.Is(err, ErrPolicyConflict) {
			api.HandleError(w, api.ErrConflict)
			return
		}
		slog.Error("replacing free trial policy", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, p)
}

// ListPolicies handles GET /free-trial-policies (admin).
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	page := api.ParsePage(r)

	policies, total, err := h.svc.ListPolicies(r.Context(), page.PageSize, page.Offset())
	if err != nil {
		slog.Error("listing free trial policies", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, policies, total, page.Page, page.PageSize)
}
