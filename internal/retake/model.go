package retake

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Unlimited is the MaxRetakes value meaning no ceiling.
const Unlimited = -1

var (
	ErrNotOwner     = errors.New("retake: test instance belongs to another user")
	ErrInvalidValue = errors.New("retake: max retakes must be -1 or greater")
	ErrNotFound     = errors.New("retake: test instance not found")
)

// LimitReachedError is returned when the lineage has used its ceiling.
type LimitReachedError struct {
	MaxRetakes     int
	CurrentRetakes int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("retake: limit reached (%d of %d)", e.CurrentRetakes, e.MaxRetakes)
}

// CountSource selects which counter is compared against the ceiling.
type CountSource string

const (
	// CountLineage counts every retake spawned from the lineage root.
	CountLineage CountSource = "lineage"
	// CountAttempt uses the position of the instance being retaken.
	CountAttempt CountSource = "attempt"
)

// ParseCountSource maps a config value to a CountSource, defaulting to
// CountLineage.
func ParseCountSource(s string) CountSource {
	if CountSource(s) == CountAttempt {
		return CountAttempt
	}
	return CountLineage
}

// Limit is a per-user retake ceiling override.
type Limit struct {
	UserID     string    `json:"userId"`
	MaxRetakes int       `json:"maxRetakes"`
	UpdatedBy  string    `json:"updatedBy,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// LimitView is what a user's ceiling resolves to.
type LimitView struct {
	MaxRetakes  int  `json:"maxRetakes"`
	IsUnlimited bool `json:"isUnlimited"`
}

func newLimitView(l *Limit) *LimitView {
	if l == nil || l.MaxRetakes == Unlimited {
		return &LimitView{MaxRetakes: Unlimited, IsUnlimited: true}
	}
	return &LimitView{MaxRetakes: l.MaxRetakes}
}

// Instance is one attempt of a test. The first attempt is the lineage root
// (RootID == ID, no parent); every retake points at the instance it was
// spawned from and at the root.
type Instance struct {
	ID             uuid.UUID  `json:"id"`
	UserID         string     `json:"userId"`
	RootID         uuid.UUID  `json:"rootId"`
	ParentID       *uuid.UUID `json:"parentId,omitempty"`
	TestType       string     `json:"testType"`
	QuestionIDs    []int64    `json:"questionIds"`
	TotalQuestions int        `json:"totalQuestions"`
	// AttemptNumber is the instance's position in its lineage, 0 for the root.
	AttemptNumber int `json:"attemptNumber"`
	// LineageRetakeCount is the number of retakes spawned in the whole
	// lineage. It is stored on the root and reported on every instance.
	LineageRetakeCount int       `json:"lineageRetakeCount"`
	CreatedAt          time.Time `json:"createdAt"`
}

// IsRoot reports whether i started its lineage.
func (i *Instance) IsRoot() bool {
	return i.RootID == i.ID
}

// spawn builds the next attempt from i.
func (i *Instance) spawn(id uuid.UUID, now time.Time) *Instance {
	parent := i.ID
	return &Instance{
		ID:                 id,
		UserID:             i.UserID,
		RootID:             i.RootID,
		ParentID:           &parent,
		TestType:           i.TestType,
		QuestionIDs:        append([]int64(nil), i.QuestionIDs...),
		TotalQuestions:     i.TotalQuestions,
		AttemptNumber:      i.AttemptNumber + 1,
		LineageRetakeCount: i.LineageRetakeCount + 1,
		CreatedAt:          now,
	}
}

// SetLimitRequest is the body of POST /retake-limit.
type SetLimitRequest struct {
	UserID     string `json:"userId" validate:"required,max=255"`
	MaxRetakes *int   `json:"maxRetakes" validate:"required"`
}

// RetakeRequest is the body of POST /retake.
type RetakeRequest struct {
	TestInstanceID string `json:"testInstanceId" validate:"required,uuid"`
}
