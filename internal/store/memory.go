package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinic-app-server/internal/models"
)

// MemoryPrincipalStore keeps principals in process memory. Used by tests and
// local runs without a database.
type MemoryPrincipalStore struct {
	mu      sync.RWMutex
	role    models.Role
	byID    map[string]*models.Principal
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryPrincipalStore(role models.Role) *MemoryPrincipalStore {
	return &MemoryPrincipalStore{
		role:    role,
		byID:    make(map[string]*models.Principal),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryPrincipalStore) Role() models.Role { return s.role }

func (s *MemoryPrincipalStore) Create(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Email = models.NormalizeEmail(p.Email)
	if _, taken := s.byEmail[p.Email]; taken {
		return ErrDuplicateEmail
	}
	p.EnsureID()
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Role = s.role

	stored := *p
	s.byID[p.ID] = &stored
	s.byEmail[p.Email] = p.ID
	return nil
}

func (s *MemoryPrincipalStore) FindByID(_ context.Context, id string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *MemoryPrincipalStore) FindByEmail(_ context.Context, email string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.get(id)
}

func (s *MemoryPrincipalStore) UpdatePhoto(_ context.Context, id, photoURL string) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPhoto(id, photoURL)
}

func (s *MemoryPrincipalStore) List(_ context.Context) ([]*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(SearchFilter{}, 0), nil
}

func (s *MemoryPrincipalStore) Search(_ context.Context, filter SearchFilter) ([]*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(filter, MaxSearchResults), nil
}

// get must be called with the lock held.
func (s *MemoryPrincipalStore) get(id string) (*models.Principal, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemoryPrincipalStore) setPhoto(id, photoURL string) (*models.Principal, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.PhotoURL = photoURL
	p.UpdatedAt = s.now()
	out := *p
	return &out, nil
}

// collect returns matching principals newest first. limit <= 0 means no limit.
func (s *MemoryPrincipalStore) collect(filter SearchFilter, limit int) []*models.Principal {
	out := make([]*models.Principal, 0, len(s.byID))
	for _, p := range s.byID {
		if filter.Matches(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MemoryReportStore keeps reports in process memory.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports []*models.Report
	now     func() time.Time
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{now: time.Now}
}

func (s *MemoryReportStore) Create(_ context.Context, r *models.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareReport(r, s.now)
	stored := *r
	s.reports = append(s.reports, &stored)
	return nil
}

func (s *MemoryReportStore) ListByPatient(_ context.Context, patientID string) ([]*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Report, 0)
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].PatientID == patientID {
			r := *s.reports[i]
			out = append(out, &r)
		}
	}
	sortReports(out)
	return out, nil
}

func (s *MemoryReportStore) ListAll(_ context.Context) ([]*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Report, 0, len(s.reports))
	for i := len(s.reports) - 1; i >= 0; i-- {
		r := *s.reports[i]
		out = append(out, &r)
	}
	sortReports(out)
	return out, nil
}

// NewMemoryStores wires in-memory stores for both principal variants and reports.
func NewMemoryStores() *Stores {
	return &Stores{
		Patients: NewMemoryPrincipalStore(models.RolePatient),
		Admins:   NewMemoryPrincipalStore(models.RoleAdmin),
		Reports:  NewMemoryReportStore(),
	}
}
