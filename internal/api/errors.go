package api

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    int            `json:"-"`
	Message string         `json:"error"`
	Details map[string]any `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

// WithDetails returns a copy of e whose body carries the given fields
// next to "error".
func (e *AppError) WithDetails(details map[string]any) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Details: details}
}

var (
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized   = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden      = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrConflict       = &AppError{Code: http.StatusConflict, Message: "conflict"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidToken   = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrValidation     = &AppError{Code: http.StatusBadRequest, Message: "validation error"}

	// Free trial
	ErrCategoryNotAllowed    = &AppError{Code: http.StatusForbidden, Message: "CategoryNotAllowed"}
	ErrDailyLimitExceeded    = &AppError{Code: http.StatusTooManyRequests, Message: "DailyLimitExceeded"}
	ErrInsufficientRemaining = &AppError{Code: http.StatusTooManyRequests, Message: "InsufficientRemaining"}
	ErrFreeTrialInactive     = &AppError{Code: http.StatusConflict, Message: "FreeTrialInactive"}

	// Retakes
	ErrLimitReached = &AppError{Code: http.StatusBadRequest, Message: "LimitReached"}
	ErrNotOwner     = &AppError{Code: http.StatusForbidden, Message: "NotOwner"}
	ErrInvalidValue = &AppError{Code: http.StatusBadRequest, Message: "InvalidValue"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if len(appErr.Details) > 0 {
			JSONErrorDetails(w, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
