package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nutrition-enrichment/internal/domain"
	"nutrition-enrichment/internal/models"
)

// MockCompleter implements completion.Completer for tests.
type MockCompleter struct {
	Mu    sync.Mutex
	Resp  map[int64]*models.CompletedData
	Err   map[int64]error
	Calls []int64
}

func NewMockCompleter() *MockCompleter {
	return &MockCompleter{Resp: map[int64]*models.CompletedData{}, Err: map[int64]error{}}
}

func (m *MockCompleter) Complete(ctx context.Context, rec models.FoodRecord) (*models.CompletedData, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls = append(m.Calls, rec.ID)
	if err, ok := m.Err[rec.ID]; ok {
		return nil, err
	}
	if r, ok := m.Resp[rec.ID]; ok {
		return r, nil
	}
	// default: nothing to contribute, middling confidence
	return &models.CompletedData{Confidence: 50}, nil
}

// MockRepository implements domain.Repository in memory.
type MockRepository struct {
	Mu      sync.Mutex
	Records map[int64]*models.FoodRecord
	History []models.EnrichmentHistory

	// error injection per operation
	ClaimErr  error
	StatusErr error
	ListErr   error

	// claim bookkeeping
	Claims map[int64]string
	// records another worker "holds"
	ClaimDenied map[int64]bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Records:     map[int64]*models.FoodRecord{},
		Claims:      map[int64]string{},
		ClaimDenied: map[int64]bool{},
	}
}

var _ domain.Repository = (*MockRepository)(nil)

func (m *MockRepository) Add(rec models.FoodRecord) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	r := rec
	m.Records[rec.ID] = &r
}

// candidate mirrors the store's selection predicate.
func candidate(r *models.FoodRecord) bool {
	switch r.EnrichmentStatus {
	case models.StatusUnset, models.StatusPending, models.StatusFailed:
		return true
	case models.StatusCompleted:
		return r.QualityScore != nil && *r.QualityScore < 70
	default:
		return false
	}
}

// candidateLess mirrors the store's ORDER BY: never-enriched first, then
// ascending quality score with nulls first, then id.
func candidateLess(a, b *models.FoodRecord) bool {
	aTouched := a.EnrichmentStatus != models.StatusUnset
	bTouched := b.EnrichmentStatus != models.StatusUnset
	if aTouched != bTouched {
		return !aTouched
	}
	aNil := a.QualityScore == nil
	bNil := b.QualityScore == nil
	if aNil != bNil {
		return aNil
	}
	if !aNil && *a.QualityScore != *b.QualityScore {
		return *a.QualityScore < *b.QualityScore
	}
	return a.ID < b.ID
}

func (m *MockRepository) GetEnrichmentCandidatesCtx(ctx context.Context, limit int) ([]models.FoodRecord, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []models.FoodRecord
	for _, r := range m.Records {
		if candidate(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return candidateLess(&out[i], &out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepository) CountEnrichmentCandidatesCtx(ctx context.Context) (int, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, r := range m.Records {
		if candidate(r) {
			n++
		}
	}
	return n, nil
}

func (m *MockRepository) GetFoodRecordByIDCtx(ctx context.Context, id int64) (*models.FoodRecord, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if r, ok := m.Records[id]; ok {
		rr := *r
		return &rr, nil
	}
	return nil, fmt.Errorf("record %d not found", id)
}

func (m *MockRepository) ClaimRecordCtx(ctx context.Context, id int64, claim string, expires time.Time) (bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ClaimErr != nil {
		return false, m.ClaimErr
	}
	if m.ClaimDenied[id] {
		return false, nil
	}
	m.Claims[id] = claim
	if r, ok := m.Records[id]; ok {
		r.EnrichmentStatus = models.StatusProcessing
	}
	return true, nil
}

func (m *MockRepository) SetEnrichmentStatusCtx(ctx context.Context, id int64, status models.EnrichmentStatus, retries int, at time.Time) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.StatusErr != nil {
		return m.StatusErr
	}
	if r, ok := m.Records[id]; ok {
		r.EnrichmentStatus = status
		r.EnrichmentRetries = retries
		t := at
		r.LastEnrichment = &t
	}
	delete(m.Claims, id)
	return nil
}

func (m *MockRepository) SaveEnrichedRecordCtx(ctx context.Context, rec *models.EnrichedRecord) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if r, ok := m.Records[rec.ID]; ok {
		r.Nutrients = rec.Nutrients
		score := rec.QualityScore
		r.QualityScore = &score
		r.EnrichmentStatus = rec.Status
		t := rec.LastEnrichment
		r.LastEnrichment = &t
		r.EnrichmentRetries = 0
	}
	delete(m.Claims, rec.ID)
	return nil
}

func (m *MockRepository) SaveEnrichmentHistoryCtx(ctx context.Context, h *models.EnrichmentHistory) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.History = append(m.History, *h)
	return nil
}

func (m *MockRepository) GetEnrichmentHistoryCtx(ctx context.Context, foodID int64, limit int) ([]models.EnrichmentHistory, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []models.EnrichmentHistory
	for _, h := range m.History {
		if h.FoodID == foodID {
			out = append(out, h)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockUnitOfWork applies writes straight through to the repository.
type MockUnitOfWork struct {
	Repo       *MockRepository
	Committed  bool
	RolledBack bool
	CommitErr  error
	SaveErr    error
}

var _ domain.UnitOfWork = (*MockUnitOfWork)(nil)

func (u *MockUnitOfWork) Commit() error {
	if u.CommitErr != nil {
		return u.CommitErr
	}
	u.Committed = true
	return nil
}

func (u *MockUnitOfWork) Rollback() error {
	u.RolledBack = true
	return nil
}

func (u *MockUnitOfWork) SaveEnrichedRecordCtx(ctx context.Context, rec *models.EnrichedRecord) error {
	if u.SaveErr != nil {
		return u.SaveErr
	}
	return u.Repo.SaveEnrichedRecordCtx(ctx, rec)
}

func (u *MockUnitOfWork) SaveEnrichmentHistoryCtx(ctx context.Context, h *models.EnrichmentHistory) error {
	if u.SaveErr != nil {
		return u.SaveErr
	}
	return u.Repo.SaveEnrichmentHistoryCtx(ctx, h)
}

func (u *MockUnitOfWork) GetEnrichmentHistoryCtx(ctx context.Context, foodID int64, limit int) ([]models.EnrichmentHistory, error) {
	return u.Repo.GetEnrichmentHistoryCtx(ctx, foodID, limit)
}

// MockUoWFactory hands out units of work bound to one repository.
type MockUoWFactory struct {
	Repo      *MockRepository
	BeginErr  error
	CommitErr error
	SaveErr   error
	Last      *MockUnitOfWork
}

var _ domain.UnitOfWorkFactory = (*MockUoWFactory)(nil)

func (f *MockUoWFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	f.Last = &MockUnitOfWork{Repo: f.Repo, CommitErr: f.CommitErr, SaveErr: f.SaveErr}
	return f.Last, nil
}
