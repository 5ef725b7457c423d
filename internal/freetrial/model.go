package freetrial

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoActivePolicy means the free trial quota system is switched off.
	ErrNoActivePolicy = errors.New("free trial: no active policy")
	ErrInvalidCount   = errors.New("free trial: count must not be negative")
	ErrInvalidPolicy  = errors.New("free trial: invalid policy")
	// ErrPolicyConflict means another replacement won the race.
	ErrPolicyConflict = errors.New("free trial: policy replaced concurrently")
)

// Policy is the admin-configured daily cap and category allow-list. Only one
// policy is active at a time; replaced policies are kept for history.
type Policy struct {
	ID                uuid.UUID `json:"id"`
	DailyLimit        int       `json:"dailyLimit"`
	AllowedCategories []int64   `json:"allowedCategories"`
	Active            bool      `json:"active"`
	CreatedBy         string    `json:"createdBy,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Allows reports whether categoryID is metered by the policy.
func (p *Policy) Allows(categoryID int64) bool {
	return slices.Contains(p.AllowedCategories, categoryID)
}

// UsageRecord is the accumulated count for one (user, category, day).
// Records are never reset; a new day is a new key.
type UsageRecord struct {
	ID         uuid.UUID
	UserID     string
	CategoryID int64
	Day        time.Time
	Count      int
}

// Status is a user's aggregate usage for one day.
type Status struct {
	Active            bool    `json:"active"`
	DailyLimit        int     `json:"dailyLimit"`
	Used              int     `json:"used"`
	Remaining         int     `json:"remaining"`
	AllowedCategories []int64 `json:"allowedCategories"`
}

func newStatus(p *Policy, used int) *Status {
	return &Status{
		Active:            true,
		DailyLimit:        p.DailyLimit,
		Used:              used,
		Remaining:         max(0, p.DailyLimit-used),
		AllowedCategories: p.AllowedCategories,
	}
}

// DenialReason names the boundary a usage request hit.
type DenialReason string

const (
	ReasonCategoryNotAllowed    DenialReason = "CategoryNotAllowed"
	ReasonDailyLimitExceeded    DenialReason = "DailyLimitExceeded"
	ReasonInsufficientRemaining DenialReason = "InsufficientRemaining"
)

// DenialError is returned when a usage request is not eligible.
type DenialError struct {
	Reason    DenialReason
	Limit     int
	Used      int
	Remaining int
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("free trial: %s (used %d of %d, %d remaining)", e.Reason, e.Used, e.Limit, e.Remaining)
}

// evaluate decides whether requested units of categoryID may be consumed
// given what the user already used today. It returns the remaining quota
// after consumption.
func evaluate(p *Policy, used int, categoryID int64, requested int) (int, error) {
	remaining := max(0, p.DailyLimit-used)
	deny := func(reason DenialReason) error {
		return &DenialError{Reason: reason, Limit: p.DailyLimit, Used: used, Remaining: remaining}
	}

	if !p.Allows(categoryID) {
		return 0, deny(ReasonCategoryNotAllowed)
	}
	// A hard stop: once the limit is reached even a zero-unit request fails.
	if used >= p.DailyLimit {
		return 0, deny(ReasonDailyLimitExceeded)
	}
	// Partial grants are never made.
	if remaining < requested {
		return 0, deny(ReasonInsufficientRemaining)
	}
	return remaining - requested, nil
}

// UsageRequest is the body of POST /free-trial-usage. Count defaults to 1.
type UsageRequest struct {
	UserID     string `json:"userId" validate:"omitempty,max=255"`
	CategoryID *int64 `json:"categoryId" validate:"required"`
	Count      *int   `json:"count" validate:"omitempty,gte=0"`
}

// ReplacePolicyRequest is the body of PUT /free-trial-policy. An empty
// allowedCategories list is a valid policy that meters nothing.
type ReplacePolicyRequest struct {
	DailyLimit        int     `json:"dailyLimit" validate:"required,gt=0"`
	AllowedCategories []int64 `json:"allowedCategories" validate:"required,dive,gte=0"`
}
