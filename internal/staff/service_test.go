package staff

import (
	"context"
	"errors"
	"testing"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

func TestCreateClerkThenMoveWard(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{Name: "Lakshmi", Role: "clerk", WardIDs: []int64{12}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := created.Staff.ID
	if created.Staff.EmployeeCode != "CLK-0001" {
		t.Errorf("employee code = %s", created.Staff.EmployeeCode)
	}
	if len(created.Password) != utilities.GeneratedPasswordLength {
		t.Errorf("password length = %d", len(created.Password))
	}
	if !refersTo(m.wards[12].ClerkID, id) {
		t.Fatalf("ward 12 clerk = %v, want %d", m.wards[12].ClerkID, id)
	}

	updated, err := svc.Update(ctx, id, Input{Name: "Lakshmi", Role: "CLERK", WardIDs: []int64{7}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if m.wards[12].ClerkID != nil {
		t.Errorf("ward 12 still points at clerk %d", *m.wards[12].ClerkID)
	}
	if !refersTo(m.wards[7].ClerkID, id) {
		t.Errorf("ward 7 clerk = %v, want %d", m.wards[7].ClerkID, id)
	}
	if !refersTo(updated.WardID, 7) {
		t.Errorf("ward_id not mirrored: %v", updated.WardID)
	}
}

func TestClerkMoveRollsBackOnConflict(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	a, err := svc.Create(ctx, Input{Name: "A", Role: "CLERK", WardIDs: []int64{12}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Create(ctx, Input{Name: "B", Role: "CLERK", WardIDs: []int64{7}})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Update(ctx, a.Staff.ID, Input{Name: "A", Role: "CLERK", WardIDs: []int64{7}})
	if apperr.ReasonOf(err) != apperr.ReasonWardTaken {
		t.Fatalf("pre-check: err = %v, want WardTaken", err)
	}

	// a concurrent claim the validator could not see must still roll back
	m.staleWards = true
	_, err = svc.Update(ctx, a.Staff.ID, Input{Name: "A", Role: "CLERK", WardIDs: []int64{7}})
	if apperr.ReasonOf(err) != apperr.ReasonWardTaken {
		t.Fatalf("in transaction: err = %v, want WardTaken", err)
	}
	if !refersTo(m.wards[12].ClerkID, a.Staff.ID) || !refersTo(m.wards[7].ClerkID, b.Staff.ID) {
		t.Errorf("back-references changed: 12=%v 7=%v", m.wards[12].ClerkID, m.wards[7].ClerkID)
	}
	if !refersTo(m.staff[a.Staff.ID].WardID, 12) {
		t.Errorf("staff row not rolled back: ward_id=%v", m.staff[a.Staff.ID].WardID)
	}
}

func TestCreateRetriesEmployeeCode(t *testing.T) {
	svc, m := newTestService()
	m.collide = 3
	created, err := svc.Create(context.Background(), Input{Name: "Venkat", Role: "SUPERVISOR", WardID: ptr(7)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Staff.EmployeeCode != "SUP-0004" {
		t.Errorf("employee code = %s, want SUP-0004", created.Staff.EmployeeCode)
	}

	m.collide = 10
	_, err = svc.Create(context.Background(), Input{Name: "Ramesh", Role: "SUPERVISOR", WardID: ptr(12)})
	if !errors.Is(err, apperr.ErrGenerationExhausted) {
		t.Fatalf("err = %v, want GenerationExhausted", err)
	}
	if n, _ := m.CountByRole(context.Background(), "SUPERVISOR"); n != 1 {
		t.Errorf("supervisors = %d, exhausted create must not persist", n)
	}
}

func TestAuthenticateAndResetPassword(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, Input{Name: "Priya", Role: "INSPECTOR", WardIDs: []int64{7, 12}, Email: str("Priya@ULB.gov")})
	if err != nil {
		t.Fatal(err)
	}

	p, err := svc.Authenticate(ctx, created.Staff.EmployeeCode, created.Password)
	if err != nil {
		t.Fatalf("Authenticate by code: %v", err)
	}
	if p.Role != principal.RoleInspector || p.Origin() != principal.OriginStaff {
		t.Errorf("principal = %+v", p)
	}
	if m.staff[p.ID].LastLoginAt == nil {
		t.Error("last login not stamped")
	}
	if _, err := svc.Authenticate(ctx, "priya@ulb.gov", created.Password); err != nil {
		t.Errorf("Authenticate by email: %v", err)
	}
	if _, err := svc.Authenticate(ctx, created.Staff.EmployeeCode, "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}

	fresh, err := svc.ResetPassword(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate(ctx, created.Staff.EmployeeCode, created.Password); err == nil {
		t.Error("old password still accepted")
	}
	if _, err := svc.Authenticate(ctx, created.Staff.EmployeeCode, fresh); err != nil {
		t.Errorf("new password: %v", err)
	}

	if _, err := svc.SetStatus(ctx, p.ID, "inactive"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate(ctx, created.Staff.EmployeeCode, fresh); apperr.ReasonOf(err) != apperr.ReasonInactive {
		t.Errorf("inactive: err = %v", err)
	}
	if _, err := svc.SetStatus(ctx, p.ID, "suspended"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad status: err = %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	admin := m.seed(entity.Staff{Role: "ADMIN"})
	if err := svc.Delete(ctx, admin.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("admin delete: err = %v", err)
	}

	sup, err := svc.Create(ctx, Input{Name: "S", Role: "SUPERVISOR", WardID: ptr(7)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, Input{Name: "W", Role: "FIELD_WORKER", WardID: ptr(7), SupervisorID: ptr(sup.Staff.ID)}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, sup.Staff.ID); !errors.Is(err, apperr.ErrPrecondition) {
		t.Errorf("delete with dependents: err = %v", err)
	}

	clerk, err := svc.Create(ctx, Input{Name: "C", Role: "CLERK", WardIDs: []int64{13}})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, clerk.Staff.ID); err != nil {
		t.Fatalf("delete clerk: %v", err)
	}
	if m.wards[13].ClerkID != nil {
		t.Error("deleted clerk still holds ward 13")
	}
}

func TestGetAndListAreScoped(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	w7, err := svc.Create(ctx, Input{Name: "W7", Role: "FIELD_WORKER", WardID: ptr(7)})
	if err != nil {
		t.Fatal(err)
	}
	w12, err := svc.Create(ctx, Input{Name: "W12", Role: "FIELD_WORKER", WardID: ptr(12)})
	if err != nil {
		t.Fatal(err)
	}
	col, err := svc.Create(ctx, Input{Name: "Collector", Role: "COLLECTOR"})
	if err != nil {
		t.Fatal(err)
	}

	clerk := &principal.Staff{ID: 100, Role: principal.RoleClerk, WardIDs: []int64{7}, WardID: ptr(7)}
	rc := access.RequestContext{Principal: clerk, Scope: scope.Resolve(clerk)}
	if _, err := svc.Get(ctx, rc, w7.Staff.ID); err != nil {
		t.Errorf("own ward: %v", err)
	}
	for _, id := range []int64{w12.Staff.ID, col.Staff.ID} {
		if _, err := svc.Get(ctx, rc, id); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("staff %d: err = %v, want Forbidden", id, err)
		}
	}
	list, err := svc.List(ctx, rc, entity.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != w7.Staff.ID {
		t.Errorf("clerk list = %+v", list)
	}

	citizen := &principal.Generic{ID: 1, Role: principal.RoleCitizen}
	if _, err := svc.List(ctx, access.RequestContext{Principal: citizen, Scope: scope.Resolve(citizen)}, entity.Filter{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("citizen list: err = %v", err)
	}
}
