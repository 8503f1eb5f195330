package services_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

var (
	testDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	testNow = time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
)

func fixedNow() time.Time { return testNow }

func intPtr(v int) *int { return &v }

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

// fakeQueueRepo is an in-memory QueueRepository enforcing the same rules as
// the SQL adapter
type fakeQueueRepo struct {
	mu          sync.Mutex
	entries     map[string]*entities.QueueEntry
	replaceErr  error
	updateErr   map[entities.QueueEntryStatus]error
	reorderErr  error
	replaceRuns int
}

func newFakeQueueRepo(entries ...*entities.QueueEntry) *fakeQueueRepo {
	f := &fakeQueueRepo{
		entries:   make(map[string]*entities.QueueEntry),
		updateErr: make(map[entities.QueueEntryStatus]error),
	}
	for _, e := range entries {
		f.entries[e.ID] = e.Clone()
	}
	return f
}

func (f *fakeQueueRepo) ReplaceForDay(ctx context.Context, day time.Time, entries []*entities.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaceRuns++
	for id, e := range f.entries {
		if dayKey(e.QueueDate) == dayKey(day) {
			delete(f.entries, id)
		}
	}
	for _, e := range entries {
		f.entries[e.ID] = e.Clone()
	}
	return nil
}

func (f *fakeQueueRepo) ListByDay(ctx context.Context, day time.Time) ([]*entities.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listLocked(day), nil
}

func (f *fakeQueueRepo) listLocked(day time.Time) []*entities.QueueEntry {
	out := []*entities.QueueEntry{}
	for _, e := range f.entries {
		if dayKey(e.QueueDate) == dayKey(day) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuePosition < out[j].QueuePosition })
	return out
}

func (f *fakeQueueRepo) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found")
	}
	return e.Clone(), nil
}

func (f *fakeQueueRepo) UpdateStatus(ctx context.Context, id string, status entities.QueueEntryStatus, completedTime *time.Time) (*entities.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[status]; err != nil {
		return nil, err
	}
	e, ok := f.entries[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found")
	}
	if err := entities.ValidateQueueTransition(e.Status, status); err != nil {
		return nil, apperrors.NewConflictError(err.Error())
	}
	if status == entities.QueueEntryStatusInProgress {
		if err := f.noneInProgressLocked(e.QueueDate); err != nil {
			return nil, err
		}
	}
	e.Status = status
	if status == entities.QueueEntryStatusCompleted {
		e.CompletedTime = completedTime
	}
	return e.Clone(), nil
}

func (f *fakeQueueRepo) CallNext(ctx context.Context, day time.Time, id string) (*entities.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[entities.QueueEntryStatusInProgress]; err != nil {
		return nil, err
	}
	if err := f.noneInProgressLocked(day); err != nil {
		return nil, err
	}
	e, ok := f.entries[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found")
	}
	if err := entities.ValidateQueueTransition(e.Status, entities.QueueEntryStatusInProgress); err != nil {
		return nil, apperrors.NewConflictError(err.Error())
	}
	e.Status = entities.QueueEntryStatusInProgress
	return e.Clone(), nil
}

func (f *fakeQueueRepo) noneInProgressLocked(day time.Time) error {
	for _, e := range f.entries {
		if dayKey(e.QueueDate) == dayKey(day) && e.Status == entities.QueueEntryStatusInProgress {
			return apperrors.NewConflictError(fmt.Sprintf("queue entry %s is already in progress", e.ID))
		}
	}
	return nil
}

func (f *fakeQueueRepo) Reorder(ctx context.Context, day time.Time, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reorderErr != nil {
		return f.reorderErr
	}
	listed := make(map[string]bool, len(ids))
	pos := 1
	for _, id := range ids {
		if e, ok := f.entries[id]; ok {
			e.QueuePosition = pos
			listed[id] = true
			pos++
		}
	}
	for _, e := range f.listLocked(day) {
		if !listed[e.ID] {
			f.entries[e.ID].QueuePosition = pos
			pos++
		}
	}
	return nil
}

func (f *fakeQueueRepo) Stats(ctx context.Context, day time.Time) (*entities.QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &entities.QueueStats{QueueDate: day}
	for _, e := range f.listLocked(day) {
		stats.Add(e.Status)
	}
	return stats, nil
}

func (f *fakeQueueRepo) status(id string) entities.QueueEntryStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[id].Status
}

// fakeRequestRepo is an in-memory VisitRequestRepository
type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*entities.VisitRequest
	order    []string
	applyErr error
	listErr  error
}

func newFakeRequestRepo(requests ...*entities.VisitRequest) *fakeRequestRepo {
	f := &fakeRequestRepo{requests: make(map[string]*entities.VisitRequest)}
	for _, r := range requests {
		c := *r
		f.requests[r.ID] = &c
		f.order = append(f.order, r.ID)
	}
	return f
}

func (f *fakeRequestRepo) ListPending(ctx context.Context) ([]*entities.VisitRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []*entities.VisitRequest{}
	for _, id := range f.order {
		if r := f.requests[id]; r.Status == entities.VisitRequestStatusPending {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) ApplyDecisions(ctx context.Context, decisions []entities.TriageDecision) ([]*entities.VisitRequest, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, nil, apperrors.NewCommitFailure("triage decisions rolled back", f.applyErr)
	}
	var updated []*entities.VisitRequest
	var unmatched []string
	for _, d := range decisions {
		r, ok := f.requests[d.RequestID]
		if !ok || r.Status != entities.VisitRequestStatusPending {
			unmatched = append(unmatched, d.RequestID)
			continue
		}
		r.PriorityRank = intPtr(d.PriorityRank)
		r.SeverityScore = intPtr(d.SeverityScore)
		r.Status = d.Status
		c := *r
		c.Patient = nil
		updated = append(updated, &c)
	}
	return updated, unmatched, nil
}

func (f *fakeRequestRepo) ListByIDs(ctx context.Context, ids []string) ([]*entities.VisitRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*entities.VisitRequest{}
	for _, id := range ids {
		if r, ok := f.requests[id]; ok {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) get(id string) entities.VisitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.requests[id]
}

// fakeRunRepo keeps batch runs in memory
type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[string]entities.BatchRun
	seq  []string
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]entities.BatchRun)}
}

func (f *fakeRunRepo) Create(ctx context.Context, run *entities.BatchRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	f.seq = append(f.seq, run.ID)
	return nil
}

func (f *fakeRunRepo) Update(ctx context.Context, run *entities.BatchRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; !ok {
		return apperrors.NewNotFoundError("batch run not found")
	}
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeRunRepo) LatestCommitted(ctx context.Context) (*entities.BatchRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.seq) - 1; i >= 0; i-- {
		if r := f.runs[f.seq[i]]; r.CommittedCount > 0 {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRunRepo) List(ctx context.Context, limit int) ([]*entities.BatchRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.BatchRun
	for i := len(f.seq) - 1; i >= 0 && len(out) < limit; i-- {
		r := f.runs[f.seq[i]]
		out = append(out, &r)
	}
	return out, nil
}

// MockPatientRepository mocks PatientRepository
type MockPatientRepository struct {
	mock.Mock
}

func (m *MockPatientRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entities.Patient, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*entities.Patient), args.Error(1)
}

// MockVisitRequestRepository mocks VisitRequestRepository
type MockVisitRequestRepository struct {
	mock.Mock
}

func (m *MockVisitRequestRepository) ListPending(ctx context.Context) ([]*entities.VisitRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.VisitRequest), args.Error(1)
}

func (m *MockVisitRequestRepository) ApplyDecisions(ctx context.Context, decisions []entities.TriageDecision) ([]*entities.VisitRequest, []string, error) {
	args := m.Called(ctx, decisions)
	var updated []*entities.VisitRequest
	if args.Get(0) != nil {
		updated = args.Get(0).([]*entities.VisitRequest)
	}
	var unmatched []string
	if args.Get(1) != nil {
		unmatched = args.Get(1).([]string)
	}
	return updated, unmatched, args.Error(2)
}

func (m *MockVisitRequestRepository) ListByIDs(ctx context.Context, ids []string) ([]*entities.VisitRequest, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.VisitRequest), args.Error(1)
}

// MockMessageSender mocks MessageSender
type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) Send(ctx context.Context, msg *entities.OutboundMessage) error {
	return m.Called(ctx, msg).Error(0)
}

// MockRunLock mocks RunLock
type MockRunLock struct {
	mock.Mock
}

func (m *MockRunLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, name, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockRunLock) Release(ctx context.Context, name, token string) error {
	return m.Called(ctx, name, token).Error(0)
}

// memoryCacheStore is a QueueCacheStore that can be told to fail
type memoryCacheStore struct {
	mu      sync.Mutex
	caches  map[string]*entities.QueueCache
	saveErr error
	saves   int
}

func newMemoryCacheStore() *memoryCacheStore {
	return &memoryCacheStore{caches: make(map[string]*entities.QueueCache)}
}

func (s *memoryCacheStore) Load(ctx context.Context, day time.Time) (*entities.QueueCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[dayKey(day)]
	if !ok {
		return nil, nil
	}
	return copyCache(c), nil
}

func (s *memoryCacheStore) Save(ctx context.Context, cache *entities.QueueCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.caches[dayKey(cache.QueueDate)] = copyCache(cache)
	return nil
}

func (s *memoryCacheStore) get(day time.Time) *entities.QueueCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caches[dayKey(day)]
}

func copyCache(c *entities.QueueCache) *entities.QueueCache {
	cp := *c
	cp.LastKnown = cloneAll(c.LastKnown)
	cp.Completed = cloneAll(c.Completed)
	cp.Unavailable = cloneAll(c.Unavailable)
	cp.PendingSync = append([]string(nil), c.PendingSync...)
	return &cp
}

func cloneAll(entries []*entities.QueueEntry) []*entities.QueueEntry {
	out := make([]*entities.QueueEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

func patientFor(id, first, last string) *entities.Patient {
	birth := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
	return &entities.Patient{
		ID:               id,
		FirstName:        first,
		LastName:         last,
		Gender:           "female",
		BirthDate:        &birth,
		Email:            first + "@example.com",
		PreferredChannel: entities.ChannelEmail,
	}
}
