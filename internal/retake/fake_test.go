package retake

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	inats "github.com/examprep/practice-api/internal/nats"
)

// memRepository keeps instances as stored rows: only roots carry the
// lineage count. CreateRetake holds one lock for the whole call.
type memRepository struct {
	mu        sync.Mutex
	lineageMu sync.Mutex
	limits    map[string]*Limit
	instances map[uuid.UUID]*Instance

	// limitReads counts GetLimit calls. A Postgres transaction holding the
	// lineage lock cannot make them without a second pool connection.
	limitReads atomic.Int64
}

func newMemRepository() *memRepository {
	return &memRepository{
		limits:    make(map[string]*Limit),
		instances: make(map[uuid.UUID]*Instance),
	}
}

func (m *memRepository) GetLimit(_ context.Context, userID string) (*Limit, error) {
	m.limitReads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limits[userID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *memRepository) UpsertLimit(_ context.Context, l *Limit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.limits[l.UserID] = &cp
	return nil
}

func (m *memRepository) DeleteLimit(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.limits[userID]
	delete(m.limits, userID)
	return ok, nil
}

func (m *memRepository) ListLimits(_ context.Context, limit, offset int) ([]*Limit, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Limit, 0, len(m.limits))
	for _, l := range m.limits {
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	if offset >= len(all) {
		return nil, int64(len(all)), nil
	}
	return all[offset:min(offset+limit, len(all))], int64(len(all)), nil
}

func (m *memRepository) GetInstance(_ context.Context, id uuid.UUID) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(id), nil
}

func (m *memRepository) read(id uuid.UUID) *Instance {
	stored, ok := m.instances[id]
	if !ok {
		return nil
	}
	cp := *stored
	cp.LineageRetakeCount = m.instances[stored.RootID].LineageRetakeCount
	return &cp
}

func (m *memRepository) CreateInstance(_ context.Context, inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inst
	m.instances[inst.ID] = &cp
	return nil
}

func (m *memRepository) CreateRetake(_ context.Context, sourceID uuid.UUID, build func(*Instance, *Limit) (*Instance, error)) (*Instance, error) {
	m.lineageMu.Lock()
	defer m.lineageMu.Unlock()

	m.mu.Lock()
	source := m.read(sourceID)
	var limit *Limit
	if source != nil {
		if l, ok := m.limits[source.UserID]; ok {
			cp := *l
			limit = &cp
		}
	}
	m.mu.Unlock()
	if source == nil {
		return nil, ErrNotFound
	}

	next, err := build(source, limit)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *next
	stored.LineageRetakeCount = 0
	m.instances[next.ID] = &stored
	m.instances[source.RootID].LineageRetakeCount++
	return next, nil
}

// seedRoot stores a fresh first attempt owned by userID.
func (m *memRepository) seedRoot(userID string) *Instance {
	id := uuid.New()
	inst := &Instance{
		ID:             id,
		UserID:         userID,
		RootID:         id,
		TestType:       "mock_exam",
		QuestionIDs:    []int64{11, 12, 13},
		TotalQuestions: 3,
	}
	m.CreateInstance(context.Background(), inst)
	return inst
}

type recordedEvents struct {
	mu     sync.Mutex
	retake []inats.RetakeEvent
	admin  []inats.AdminEvent
}

func (r *recordedEvents) PublishRetakeEvent(_ context.Context, e inats.RetakeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retake = append(r.retake, e)
	return nil
}

func (r *recordedEvents) PublishAdminEvent(_ context.Context, e inats.AdminEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = append(r.admin, e)
	return nil
}
