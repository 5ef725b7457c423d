package retake

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestInstanceSpawn(t *testing.T) {
	rootID := uuid.New()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	parent := &Instance{
		ID:                 rootID,
		UserID:             "u1",
		RootID:             rootID,
		TestType:           "mock",
		QuestionIDs:        []int64{11, 12, 13},
		TotalQuestions:     3,
		AttemptNumber:      0,
		LineageRetakeCount: 2,
		CreatedAt:          created,
	}

	childID := uuid.New()
	now := created.Add(time.Hour)
	got := parent.spawn(childID, now)

	want := &Instance{
		ID:                 childID,
		UserID:             "u1",
		RootID:             rootID,
		ParentID:           &rootID,
		TestType:           "mock",
		QuestionIDs:        []int64{11, 12, 13},
		TotalQuestions:     3,
		AttemptNumber:      1,
		LineageRetakeCount: 3,
		CreatedAt:          now,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("spawn mismatch (-want +got):\n%s", diff)
	}

	got.QuestionIDs[0] = 99
	assert.Equal(t, int64(11), parent.QuestionIDs[0], "question ids must not alias the parent")
	assert.False(t, got.IsRoot())
	assert.True(t, parent.IsRoot())
}

func TestNewLimitView(t *testing.T) {
	tests := []struct {
		name  string
		limit *Limit
		want  *LimitView
	}{
		{"absent", nil, &LimitView{MaxRetakes: Unlimited, IsUnlimited: true}},
		{"zero", &Limit{UserID: "u1", MaxRetakes: 0}, &LimitView{MaxRetakes: 0}},
		{"three", &Limit{UserID: "u1", MaxRetakes: 3}, &LimitView{MaxRetakes: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, newLimitView(tt.limit)); diff != "" {
				t.Errorf("newLimitView mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
