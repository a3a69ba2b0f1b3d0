package staff

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/codegen"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/staff/entity"
	staffrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/staff/repo"
	wardentity "github.com/ovaphlow/pitchfork/service-municipal/internal/ward/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

// memStore mimics the postgres store closely enough for the service rules:
// unique columns, the ward back-reference and transactional rollback.
type memStore struct {
	staff  map[int64]*entity.Staff
	wards  map[int64]*wardentity.Ward
	nextID int64
	// collide forces this many employee code collisions before inserts succeed
	collide int
	// staleWards hides clerk back-references from reads, as a concurrent
	// writer would
	staleWards bool
}

func newMemStore() *memStore {
	return &memStore{staff: map[int64]*entity.Staff{}, wards: map[int64]*wardentity.Ward{}}
}

func ptr(v int64) *int64 { return &v }

func str(v string) *string { return &v }

func (m *memStore) addWard(id, ulbID int64) {
	w := &wardentity.Ward{ID: id, Number: strconv.FormatInt(id, 10)}
	if ulbID != 0 {
		w.UlbID = ptr(ulbID)
	}
	m.wards[id] = w
}

func (m *memStore) GetWard(_ context.Context, id int64) (*wardentity.Ward, error) {
	w, ok := m.wards[id]
	if !ok {
		return nil, apperr.NotFound("ward")
	}
	cp := *w
	if m.staleWards {
		cp.ClerkID = nil
	}
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return nil, apperr.NotFound("staff")
	}
	cp := *s
	return &cp, nil
}

func eqStr(a, b *string) bool { return a != nil && b != nil && *a == *b }

func (m *memStore) FindContactConflicts(_ context.Context, c entity.Contact, excludeID int64) ([]string, error) {
	var out []string
	for _, s := range m.staff {
		if s.ID == excludeID {
			continue
		}
		if eqStr(s.Email, c.Email) {
			out = append(out, "email")
		}
		if eqStr(s.PhoneNumber, c.Phone) {
			out = append(out, "phoneNumber")
		}
		if eqStr(s.Username, c.Username) {
			out = append(out, "username")
		}
	}
	return out, nil
}

func (m *memStore) ListDependents(_ context.Context, id int64) ([]entity.Staff, error) {
	var out []entity.Staff
	for _, s := range m.staff {
		if refersTo(s.EOID, id) || refersTo(s.SupervisorID, id) || refersTo(s.ContractorID, id) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) FindByLogin(_ context.Context, identifier string) (*entity.Staff, error) {
	for _, s := range m.staff {
		if s.EmployeeCode == strings.ToUpper(identifier) || eqStr(s.Email, &identifier) || eqStr(s.Username, &identifier) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("staff")
}

func (m *memStore) List(_ context.Context, sc scope.Scope, f entity.Filter) ([]entity.Staff, error) {
	if sc.IsDenied() {
		return nil, apperr.Forbidden("no ward scope")
	}
	var out []entity.Staff
	for _, id := range slices.Sorted(maps.Keys(m.staff)) {
		s := m.staff[id]
		if f.Role != "" && s.Role != f.Role {
			continue
		}
		visible := sc.IsAll()
		for _, w := range s.WardIDs {
			visible = visible || sc.Allows(w)
		}
		if visible {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) CountByRole(_ context.Context, role string) (int, error) {
	n := 0
	for _, s := range m.staff {
		if s.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id int64, hash, algo string) error {
	s, ok := m.staff[id]
	if !ok {
		return apperr.NotFound("staff")
	}
	s.PasswordHash, s.PasswordAlgo = hash, algo
	return nil
}

func (m *memStore) SetStatus(_ context.Context, id int64, status string) error {
	s, ok := m.staff[id]
	if !ok {
		return apperr.NotFound("staff")
	}
	s.Status = status
	return nil
}

func (m *memStore) TouchLastLogin(_ context.Context, id int64) error {
	now := time.Now()
	m.staff[id].LastLoginAt = &now
	return nil
}

func (m *memStore) InTx(_ context.Context, fn func(staffrepo.Tx) error) error {
	staffSnap := map[int64]entity.Staff{}
	for id, s := range m.staff {
		staffSnap[id] = *s
	}
	wardSnap := map[int64]wardentity.Ward{}
	for id, w := range m.wards {
		wardSnap[id] = *w
	}
	if err := fn(memTx{m}); err != nil {
		m.staff = map[int64]*entity.Staff{}
		for id, s := range staffSnap {
			m.staff[id] = &s
		}
		m.wards = map[int64]*wardentity.Ward{}
		for id, w := range wardSnap {
			m.wards[id] = &w
		}
		return err
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) Insert(_ context.Context, s *entity.Staff) error {
	if t.m.collide > 0 {
		t.m.collide--
		return codegen.ErrCodeTaken
	}
	for _, x := range t.m.staff {
		if x.EmployeeCode == s.EmployeeCode {
			return codegen.ErrCodeTaken
		}
	}
	t.m.nextID++
	s.ID = t.m.nextID
	cp := *s
	t.m.staff[s.ID] = &cp
	return nil
}

func (t memTx) Update(_ context.Context, s *entity.Staff) error {
	if _, ok := t.m.staff[s.ID]; !ok {
		return apperr.NotFound("staff")
	}
	cp := *s
	t.m.staff[s.ID] = &cp
	return nil
}

func (t memTx) Delete(_ context.Context, id int64) error {
	delete(t.m.staff, id)
	return nil
}

func (t memTx) ReleaseClerkWards(_ context.Context, clerkID int64) error {
	for _, w := range t.m.wards {
		if refersTo(w.ClerkID, clerkID) {
			w.ClerkID = nil
		}
	}
	return nil
}

func (t memTx) ClaimClerkWard(_ context.Context, wardID, clerkID int64) error {
	w, ok := t.m.wards[wardID]
	if !ok || (w.ClerkID != nil && *w.ClerkID != clerkID) {
		return apperr.Conflict(apperr.ReasonWardTaken, "ward already has a clerk")
	}
	w.ClerkID = ptr(clerkID)
	return nil
}

// fixture: ULB 1 owns wards 7, 12 and 13; ULB 2 owns ward 20; ward 30 has no ULB.
func newTestService() (*Service, *memStore) {
	m := newMemStore()
	m.addWard(7, 1)
	m.addWard(12, 1)
	m.addWard(13, 1)
	m.addWard(20, 2)
	m.addWard(30, 0)
	gen := codegen.NewGenerator(codegen.DefaultAttempts, time.Millisecond, nil)
	return NewService(m, m, gen, utilities.BcryptHasher{Cost: 4}, zap.NewNop().Sugar()), m
}

// seed inserts a record directly, bypassing validation.
func (m *memStore) seed(s entity.Staff) *entity.Staff {
	if s.Status == "" {
		s.Status = "active"
	}
	if s.WardIDs == nil && s.WardID != nil {
		s.WardIDs = []int64{*s.WardID}
	}
	m.nextID++
	s.ID = m.nextID
	m.staff[s.ID] = &s
	return &s
}
