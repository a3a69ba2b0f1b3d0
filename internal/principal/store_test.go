package principal

import (
	"context"
	"errors"
	"testing"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
)

type mapFinder struct {
	byID  map[int64]Principal
	err   error
	calls int
}

func (f *mapFinder) FindPrincipal(_ context.Context, id int64) (Principal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("missing")
}

func TestLookupPrefersHintedStore(t *testing.T) {
	users := &mapFinder{byID: map[int64]Principal{7: &Generic{ID: 7, Role: RoleAdmin, Status: StatusActive}}}
	staff := &mapFinder{byID: map[int64]Principal{7: &Staff{ID: 7, Role: RoleClerk, Status: StatusActive}}}
	store := NewStore(users, staff)

	p, err := store.Lookup(context.Background(), 7, OriginStaff)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, ok := p.(*Staff); !ok {
		t.Fatalf("got %T, want *Staff", p)
	}
	if users.calls != 0 {
		t.Errorf("generic store consulted %d times despite a staff hit", users.calls)
	}
}

func TestLookupFallsBackToOtherStore(t *testing.T) {
	users := &mapFinder{byID: map[int64]Principal{}}
	staff := &mapFinder{byID: map[int64]Principal{3: &Staff{ID: 3, Role: RoleEO, Status: StatusActive}}}
	store := NewStore(users, staff)

	// legacy token without origin claim
	p, err := store.Lookup(context.Background(), 3, "")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p.Origin() != OriginStaff || p.PrincipalRole() != RoleEO {
		t.Errorf("got %s/%s", p.Origin(), p.PrincipalRole())
	}
	if users.calls != 1 || staff.calls != 1 {
		t.Errorf("calls users=%d staff=%d, want 1/1", users.calls, staff.calls)
	}
}

func TestLookupNotFound(t *testing.T) {
	store := NewStore(&mapFinder{}, &mapFinder{})
	_, err := store.Lookup(context.Background(), 99, OriginUser)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestLookupStoreFailureIsNotMaskedAsMiss(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewStore(&mapFinder{err: boom}, &mapFinder{})
	_, err := store.Lookup(context.Background(), 1, OriginUser)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want store failure", err)
	}
}

func TestRoleRank(t *testing.T) {
	if !(RoleStaffAdmin.Rank() > RoleEO.Rank() && RoleEO.Rank() > RoleSupervisor.Rank() &&
		RoleSupervisor.Rank() > RoleFieldWorker.Rank()) {
		t.Error("hierarchy ranks out of order")
	}
	if RoleFieldWorker.Rank() != RoleContractor.Rank() {
		t.Error("field worker and contractor should share a rank")
	}
	if RoleClerk.Rank() != 0 || RoleAdmin.Rank() != 0 {
		t.Error("roles outside the hierarchy must rank 0")
	}
	if RoleCitizen.IsStaffRole() || !RoleCollector.IsStaffRole() {
		t.Error("IsStaffRole misclassifies")
	}
}
