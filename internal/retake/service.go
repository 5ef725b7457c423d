package retake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/examprep/practice-api/internal/clock"
	"github.com/examprep/practice-api/internal/metrics"
	inats "github.com/examprep/practice-api/internal/nats"
)

// EventPublisher receives retake decisions and limit changes.
type EventPublisher interface {
	PublishRetakeEvent(ctx context.Context, event inats.RetakeEvent) error
	PublishAdminEvent(ctx context.Context, event inats.AdminEvent) error
}

// Service is the retake guard.
type Service struct {
	repo   Repository
	source CountSource
	clock  clock.Clock
	events EventPublisher
}

// NewService creates a Service. events may be nil.
func NewService(repo Repository, source CountSource, clk clock.Clock, events EventPublisher) *Service {
	if clk == nil {
		clk = clock.System
	}
	if source == "" {
		source = CountLineage
	}
	return &Service{
		repo:   repo,
		source: source,
		clock:  clk,
		events: events,
	}
}

// GetLimit resolves the user's ceiling. Users without an override are
// unlimited.
func (s *Service) GetLimit(ctx context.Context, userID string) (*LimitView, error) {
	l, err := s.repo.GetLimit(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newLimitView(l), nil
}

func (s *Service) currentRetakes(inst *Instance) int {
	if s.source == CountAttempt {
		return inst.AttemptNumber
	}
	return inst.LineageRetakeCount
}

// AuthorizeRetake returns nil if userID may retake inst, ErrNotOwner or a
// *LimitReachedError otherwise.
func (s *Service) AuthorizeRetake(ctx context.Context, userID string, inst *Instance) error {
	if inst.UserID != userID {
		return ErrNotOwner
	}

	view, err := s.GetLimit(ctx, userID)
	if err != nil {
		return err
	}
	return s.checkLimit(inst, view)
}

func (s *Service) checkLimit(inst *Instance, view *LimitView) error {
	current := s.currentRetakes(inst)
	if !view.IsUnlimited && current >= view.MaxRetakes {
		return &LimitReachedError{MaxRetakes: view.MaxRetakes, CurrentRetakes: current}
	}
	return nil
}

// CreateRetake spawns the next attempt of inst without checking the
// ceiling. Use Retake to authorize and create in one step.
func (s *Service) CreateRetake(ctx context.Context, inst *Instance) (*Instance, error) {
	return s.repo.CreateRetake(ctx, inst.ID, func(source *Instance, _ *Limit) (*Instance, error) {
		return source.spawn(uuid.New(), s.clock.Now().UTC()), nil
	})
}

// Retake authorizes userID against the instance and creates the retake.
// The check runs under the lineage lock against the limit read with it, so
// concurrent retakes never exceed the ceiling.
func (s *Service) Retake(ctx context.Context, userID string, instanceID uuid.UUID) (*Instance, error) {
	var checked *Instance
	created, err := s.repo.CreateRetake(ctx, instanceID, func(source *Instance, limit *Limit) (*Instance, error) {
		checked = source
		if source.UserID != userID {
			return nil, ErrNotOwner
		}
		if err := s.checkLimit(source, newLimitView(limit)); err != nil {
			return nil, err
		}
		return source.spawn(uuid.New(), s.clock.Now().UTC()), nil
	})

	event := inats.RetakeEvent{
		UserID:         userID,
		TestInstanceID: instanceID.String(),
		Timestamp:      s.clock.Now().UTC(),
	}

	var limitErr *LimitReachedError
	switch {
	case errors.As(err, &limitErr):
		metrics.RetakeDecisions.WithLabelValues("LimitReached").Inc()
		event.Outcome = "LimitReached"
		event.MaxRetakes = limitErr.MaxRetakes
		event.CurrentRetakes = limitErr.CurrentRetakes
		s.publish(ctx, event)
		return nil, err
	case errors.Is(err, ErrNotOwner):
		metrics.RetakeDecisions.WithLabelValues("NotOwner").Inc()
		event.Outcome = "NotOwner"
		s.publish(ctx, event)
		return nil, err
	case err != nil:
		return nil, err
	}

	metrics.RetakeDecisions.WithLabelValues("created").Inc()
	event.Outcome = "created"
	event.RetakeID = created.ID.String()
	event.CurrentRetakes = s.currentRetakes(checked) + 1
	s.publish(ctx, event)

	slog.Info("retake created", "user_id", userID, "source_id", instanceID, "retake_id", created.ID,
		"attempt", created.AttemptNumber)
	return created, nil
}

// SetLimit stores a ceiling for userID. -1 means unlimited.
func (s *Service) SetLimit(ctx context.Context, actorID, userID string, maxRetakes int) (*Limit, error) {
	if maxRetakes < Unlimited {
		return nil, ErrInvalidValue
	}

	l := &Limit{
		UserID:     userID,
		MaxRetakes: maxRetakes,
		UpdatedBy:  actorID,
		UpdatedAt:  s.clock.Now().UTC(),
	}
	if err := s.repo.UpsertLimit(ctx, l); err != nil {
		return nil, err
	}

	s.publishAdmin(ctx, actorID, "retake_limit_set", userID, fmt.Sprintf("max_retakes=%d", maxRetakes))
	return l, nil
}

// ClearLimit removes userID's override, making them unlimited again.
func (s *Service) ClearLimit(ctx context.Context, actorID, userID string) error {
	existed, err := s.repo.DeleteLimit(ctx, userID)
	if err != nil {
		return err
	}
	if existed {
		s.publishAdmin(ctx, actorID, "retake_limit_cleared", userID, "")
	}
	return nil
}

func (s *Service) ListLimits(ctx context.Context, limit, offset int) ([]*Limit, int64, error) {
	return s.repo.ListLimits(ctx, limit, offset)
}

func (s *Service) publish(ctx context.Context, event inats.RetakeEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRetakeEvent(ctx, event); err != nil {
		slog.Warn("retake: publishing event", "error", err, "user_id", event.UserID)
	}
}

func (s *Service) publishAdmin(ctx context.Context, actorID, action, targetID, details string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishAdminEvent(ctx, inats.AdminEvent{
		ActorID:   actorID,
		Action:    action,
		TargetID:  targetID,
		Details:   details,
		Timestamp: s.clock.Now().UTC(),
	})
	if err != nil {
		slog.Warn("retake: publishing admin event", "error", err, "action", action)
	}
}
