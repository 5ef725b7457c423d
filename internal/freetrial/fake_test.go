package freetrial

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	inats "github.com/examprep/practice-api/internal/nats"
)

// memRepository is an in-memory Repository. WithUserDay holds a single
// mutex, which serializes at least as strictly as the Postgres advisory lock.
type memRepository struct {
	mu       sync.Mutex
	dayMu    sync.Mutex
	records  []*UsageRecord
	policies []*Policy

	policyReads int
	failUsage   error
	// afterPolicyRead runs once, after the next ActivePolicy read and
	// before it returns.
	afterPolicyRead func()
}

func newMemRepository() *memRepository {
	return &memRepository{}
}

func (m *memRepository) UsedOn(_ context.Context, userID string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsage != nil {
		return 0, m.failUsage
	}
	used := 0
	for _, r := range m.records {
		if r.UserID == userID && r.Day.Equal(day) {
			used += r.Count
		}
	}
	return used, nil
}

func (m *memRepository) AddUsage(_ context.Context, userID string, categoryID int64, day time.Time, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsage != nil {
		return m.failUsage
	}
	for _, r := range m.records {
		if r.UserID == userID && r.CategoryID == categoryID && r.Day.Equal(day) {
			r.Count += count
			return nil
		}
	}
	m.records = append(m.records, &UsageRecord{
		ID: uuid.New(), UserID: userID, CategoryID: categoryID, Day: day, Count: count,
	})
	return nil
}

func (m *memRepository) WithUserDay(_ context.Context, _ string, _ time.Time, fn func(UsageStore) error) error {
	m.dayMu.Lock()
	defer m.dayMu.Unlock()
	return fn(m)
}

func (m *memRepository) ActivePolicy(_ context.Context) (*Policy, error) {
	p := m.readActivePolicy()
	if hook := m.afterPolicyRead; hook != nil {
		m.afterPolicyRead = nil
		hook()
	}
	return p, nil
}

func (m *memRepository) readActivePolicy() *Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policyReads++
	for _, p := range m.policies {
		if p.Active {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (m *memRepository) ReplacePolicy(_ context.Context, p *Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, old := range m.policies {
		old.Active = false
	}
	cp := *p
	cp.Active = true
	m.policies = append(m.policies, &cp)
	return nil
}

func (m *memRepository) ListPolicies(_ context.Context, limit, offset int) ([]*Policy, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := append([]*Policy(nil), m.policies...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	if offset >= len(sorted) {
		return nil, int64(len(sorted)), nil
	}
	end := min(offset+limit, len(sorted))
	return sorted[offset:end], int64(len(sorted)), nil
}

func (m *memRepository) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.policies {
		if p.Active {
			n++
		}
	}
	return n
}

type recordedEvents struct {
	mu    sync.Mutex
	usage []inats.FreeTrialEvent
	admin []inats.AdminEvent
}

func (r *recordedEvents) PublishFreeTrialEvent(_ context.Context, e inats.FreeTrialEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = append(r.usage, e)
	return nil
}

func (r *recordedEvents) PublishAdminEvent(_ context.Context, e inats.AdminEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = append(r.admin, e)
	return nil
}

var errStorage = errors.New("connection refused")
