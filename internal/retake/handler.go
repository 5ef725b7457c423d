package retake

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/examprep/practice-api/internal/api"
	"github.com/examprep/practice-api/internal/auth"
)

// Handler provides HTTP handlers for retake endpoints.
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

// GetLimit handles GET /retake-limit?userId=.
func (h *Handler) GetLimit(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.ResolveUserID(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	view, err := h.svc.GetLimit(r.Context(), userID)
	if err != nil {
		slog.Error("getting retake limit", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, view)
}

// SetLimit handles POST /retake-limit (admin).
func (h *Handler) SetLimit(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req SetLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	l, err := h.svc.SetLimit(r.Context(), claims.UserID(), req.UserID, *req.MaxRetakes)
	if err != nil {
		if errors.Is(err, ErrInvalidValue) {
			api.HandleError(w, api.ErrInvalidValue)
			return
		}
		slog.Error("setting retake limit", "error", err, "user_id", req.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, l)
}

// ClearLimit handles DELETE /retake-limit?userId= (admin).
func (h *Handler) ClearLimit(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("userId is required"))
		return
	}

	if err := h.svc.ClearLimit(r.Context(), claims.UserID(), userID); err != nil {
		slog.Error("clearing retake limit", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "retake limit cleared")
}

// ListLimits handles GET /retake-limits (admin).
func (h *Handler) ListLimits(w http.ResponseWriter, r *http.Request) {
	page := api.ParsePage(r)

	limits, total, err := h.svc.ListLimits(r.Context(), page.PageSize, page.Offset())
	if err != nil {
		slog.Error("listing retake limits", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, limits, total, page.Page, page.PageSize)
}

// Retake handles POST /retake.
func (h *Handler) Retake(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req RetakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	instanceID, err := uuid.Parse(req.TestInstanceID)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid test instance ID"))
		return
	}

	created, err := h.svc.Retake(r.Context(), claims.UserID(), instanceID)
	if err != nil {
		var limitErr *LimitReachedError
		switch {
		case errors.As(err, &limitErr):
			api.HandleError(w, api.ErrLimitReached.WithDetails(map[string]any{
				"maxRetakes":     limitErr.MaxRetakes,
				"currentRetakes": limitErr.CurrentRetakes,
			}))
		case errors.Is(err, ErrNotOwner):
			api.HandleError(w, api.ErrNotOwner)
		case errors.Is(err, ErrNotFound):
			api.HandleError(w, api.NewNotFoundError("test instance not found"))
		default:
			slog.Error("creating retake", "error", err, "instance_id", instanceID)
			api.HandleError(w, api.ErrInternalServer)
		}
		return
	}

	api.JSON(w, http.StatusOK, created)
}
