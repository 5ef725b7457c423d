package freetrial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/examprep/practice-api/internal/clock"
	"github.com/examprep/practice-api/internal/metrics"
	inats "github.com/examprep/practice-api/internal/nats"
)

// EventPublisher receives usage decisions and policy changes.
type EventPublisher interface {
	PublishFreeTrialEvent(ctx context.Context, event inats.FreeTrialEvent) error
	PublishAdminEvent(ctx context.Context, event inats.AdminEvent) error
}

// Service is the free trial quota ledger.
type Service struct {
	repo   Repository
	cache  *PolicyCache
	clock  clock.Clock
	loc    *time.Location
	events EventPublisher
}

// NewService creates a Service. cache and events may be nil. Days roll over
// at midnight in loc.
func NewService(repo Repository, cache *PolicyCache, clk clock.Clock, loc *time.Location, events EventPublisher) *Service {
	if clk == nil {
		clk = clock.System
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		clock:  clk,
		loc:    loc,
		events: events,
	}
}

// Today returns the current usage day. Handlers call it once per request
// and pass the result down.
func (s *Service) Today() time.Time {
	return clock.Day(s.clock.Now(), s.loc)
}

// ActivePolicy returns the active policy or ErrNoActivePolicy.
func (s *Service) ActivePolicy(ctx context.Context) (*Policy, error) {
	// gen stays empty unless the cache missed and can be refilled.
	var gen string
	if s.cache != nil {
		p, hit, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			metrics.PolicyCacheLookups.WithLabelValues("error").Inc()
			slog.Warn("freetrial: policy cache read failed, using database", "error", err)
		case hit:
			metrics.PolicyCacheLookups.WithLabelValues("hit").Inc()
			if p == nil {
				return nil, ErrNoActivePolicy
			}
			return p, nil
		default:
			metrics.PolicyCacheLookups.WithLabelValues("miss").Inc()
			if gen, err = s.cache.Generation(ctx); err != nil {
				slog.Warn("freetrial: policy generation read failed, not caching", "error", err)
			}
		}
	}

	p, err := s.repo.ActivePolicy(ctx)
	if err != nil {
		return nil, err
	}

	if gen != "" {
		stored, err := s.cache.Set(ctx, p, gen)
		switch {
		case err != nil:
			slog.Warn("freetrial: policy cache write failed", "error", err)
		case !stored:
			slog.Debug("freetrial: policy replaced during lookup, not caching")
		}
	}

	if p == nil {
		return nil, ErrNoActivePolicy
	}
	return p, nil
}

// Status returns the user's aggregate usage for day.
func (s *Service) Status(ctx context.Context, userID string, day time.Time) (*Status, error) {
	p, err := s.ActivePolicy(ctx)
	if err != nil {
		return nil, err
	}

	used, err := s.repo.UsedOn(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return newStatus(p, used), nil
}

// CheckEligibility reports whether the user may consume requested units of
// categoryID on day. On success it returns the remaining quota after that
// consumption; otherwise a *DenialError.
//
// The check is not a reservation: callers must follow it with RecordUsage,
// or use Consume which does both without a race.
func (s *Service) CheckEligibility(ctx context.Context, userID string, categoryID int64, requested int, day time.Time) (int, error) {
	if requested < 0 {
		return 0, ErrInvalidCount
	}
	p, err := s.ActivePolicy(ctx)
	if err != nil {
		return 0, err
	}
	used, err := s.repo.UsedOn(ctx, userID, day)
	if err != nil {
		return 0, err
	}
	return evaluate(p, used, categoryID, requested)
}

// RecordUsage adds count units for categoryID on day and returns the day's
// aggregate status. Calling it twice records twice.
func (s *Service) RecordUsage(ctx context.Context, userID string, categoryID int64, count int, day time.Time) (*Status, error) {
	if count < 0 {
		return nil, ErrInvalidCount
	}
	p, err := s.ActivePolicy(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AddUsage(ctx, userID, categoryID, day, count); err != nil {
		return nil, err
	}
	metrics.FreeTrialUnitsConsumed.Add(float64(count))

	used, err := s.repo.UsedOn(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return newStatus(p, used), nil
}

// Consume checks eligibility and records usage as one step, serialized per
// user and day, so concurrent requests cannot overshoot the daily limit.
func (s *Service) Consume(ctx context.Context, userID string, categoryID int64, count int, day time.Time) (*Status, error) {
	if count < 0 {
		return nil, ErrInvalidCount
	}
	p, err := s.ActivePolicy(ctx)
	if err != nil {
		return nil, err
	}

	var used int
	err = s.repo.WithUserDay(ctx, userID, day, func(store UsageStore) error {
		before, err := store.UsedOn(ctx, userID, day)
		if err != nil {
			return err
		}
		if _, err := evaluate(p, before, categoryID, count); err != nil {
			used = before
			return err
		}
		if err := store.AddUsage(ctx, userID, categoryID, day, count); err != nil {
			return err
		}
		used = before + count
		return nil
	})

	event := inats.FreeTrialEvent{
		UserID:     userID,
		CategoryID: categoryID,
		Count:      count,
		Day:        day.Format(time.DateOnly),
		Used:       used,
		Limit:      p.DailyLimit,
		Timestamp:  s.clock.Now().UTC(),
	}

	var denial *DenialError
	switch {
	case errors.As(err, &denial):
		metrics.FreeTrialDecisions.WithLabelValues(string(denial.Reason)).Inc()
		event.Outcome = string(denial.Reason)
		s.publish(ctx, event)
		return nil, err
	case err != nil:
		return nil, err
	}

	metrics.FreeTrialDecisions.WithLabelValues("recorded").Inc()
	metrics.FreeTrialUnitsConsumed.Add(float64(count))
	event.Outcome = "recorded"
	s.publish(ctx, event)

	return newStatus(p, used), nil
}

// ReplacePolicy makes a new policy active and retires the previous one.
func (s *Service) ReplacePolicy(ctx context.Context, actorID string, dailyLimit int, allowedCategories []int64) (*Policy, error) {
	if dailyLimit <= 0 {
		return nil, fmt.Errorf("%w: daily limit must be positive", ErrInvalidPolicy)
	}
	if allowedCategories == nil {
		allowedCategories = []int64{}
	}

	now := s.clock.Now().UTC()
	p := &Policy{
		ID:                uuid.New(),
		DailyLimit:        dailyLimit,
		AllowedCategories: allowedCategories,
		Active:            true,
		CreatedBy:         actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.ReplacePolicy(ctx, p); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			slog.Warn("freetrial: policy cache invalidation failed", "error", err)
		}
	}

	if s.events != nil {
		err := s.events.PublishAdminEvent(ctx, inats.AdminEvent{
			ActorID:   actorID,
			Action:    "freetrial_policy_replaced",
			TargetID:  p.ID.String(),
			Details:   fmt.Sprintf("daily_limit=%d categories=%v", dailyLimit, allowedCategories),
			Timestamp: now,
		})
		if err != nil {
			slog.Warn("freetrial: publishing admin event", "error", err)
		}
	}

	slog.Info("free trial policy replaced", "policy_id", p.ID, "daily_limit", dailyLimit, "actor", actorID)
	return p, nil
}

// ListPolicies returns current and retired policies, newest first.
func (s *Service) ListPolicies(ctx context.Context, limit, offset int) ([]*Policy, int64, error) {
	return s.repo.ListPolicies(ctx, limit, offset)
}

func (s *Service) publish(ctx context.Context, event inats.FreeTrialEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishFreeTrialEvent(ctx, event); err != nil {
		slog.Warn("freetrial: publishing usage event", "error", err, "user_id", event.UserID)
	}
}
