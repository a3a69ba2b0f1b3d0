package assessment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/assessment/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/codegen"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	shopentity "github.com/ovaphlow/pitchfork/service-municipal/internal/shop/entity"
)

type memRepo struct {
	rows map[int64]*entity.Assessment
	// skipPrecheck makes ExistsForPeriod miss, as when two requests race.
	skipPrecheck bool
	// staleCount is subtracted from CountWithPrefix results.
	staleCount int
}

func (m *memRepo) Insert(_ context.Context, a *entity.Assessment) error {
	for _, r := range m.rows {
		if r.AssessmentNumber == a.AssessmentNumber {
			return codegen.ErrCodeTaken
		}
		if r.ShopID == a.ShopID && r.Period == a.Period {
			return apperr.Conflict(apperr.ReasonDuplicateForPeriod, "assessment already exists for this period")
		}
	}
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id int64) (*entity.Assessment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("assessment")
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) ExistsForPeriod(_ context.Context, shopID int64, period string) (bool, error) {
	if m.skipPrecheck {
		return false, nil
	}
	for _, r := range m.rows {
		if r.ShopID == shopID && r.Period == period {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CountWithPrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, r := range m.rows {
		if strings.HasPrefix(r.AssessmentNumber, prefix) {
			n++
		}
	}
	return max(n-m.staleCount, 0), nil
}

func (m *memRepo) List(_ context.Context, sc scope.Scope, f entity.Filter) ([]entity.Assessment, error) {
	if sc.IsDenied() {
		return nil, apperr.Forbidden("no ward access")
	}
	out := []entity.Assessment{}
	for _, r := range m.rows {
		if (sc.IsAll() || sc.Allows(r.WardID)) && (f.Status == "" || f.Status == r.Status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateDraft(_ context.Context, a *entity.Assessment) (bool, error) {
	r, ok := m.rows[a.ID]
	if !ok || r.Status != entity.StatusDraft {
		return false, nil
	}
	r.Period, r.Amount, r.Remarks = a.Period, a.Amount, a.Remarks
	return true, nil
}

func (m *memRepo) Transition(_ context.Context, id int64, from, to string, d entity.Decision) (bool, error) {
	r, ok := m.rows[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	if d.ApproverID != nil {
		r.ApproverID, r.ApproverType = d.ApproverID, d.ApproverType
	}
	if d.ApprovalDate != nil {
		r.ApprovalDate = d.ApprovalDate
	}
	if d.Remarks != nil {
		r.Remarks = d.Remarks
	}
	return true, nil
}

type shops map[int64]*shopentity.Shop

func (s shops) Lookup(_ context.Context, id int64) (*shopentity.Shop, error) {
	sh, ok := s[id]
	if !ok {
		return nil, apperr.NotFound("shop")
	}
	cp := *sh
	return &cp, nil
}

const (
	openShop   = 100
	closedShop = 101
	farShop    = 102
)

var (
	now       = time.Date(2026, 5, 20, 11, 0, 0, 0, time.UTC)
	clerk     = &principal.Staff{ID: 11, Role: principal.RoleClerk, Status: principal.StatusActive, WardIDs: []int64{7}}
	inspector = &principal.Staff{ID: 12, Role: principal.RoleInspector, Status: principal.StatusActive, WardIDs: []int64{7, 12}}
	officer   = &principal.Staff{ID: 13, Role: principal.RoleOfficer, Status: principal.StatusActive}
	worker    = &principal.Staff{ID: 14, Role: principal.RoleFieldWorker, Status: principal.StatusActive, WardIDs: []int64{7}}
	admin     = &principal.Generic{ID: 1, Role: principal.RoleAdmin, Status: principal.StatusActive}
)

func rcFor(p principal.Principal) access.RequestContext {
	return access.RequestContext{Principal: p, Scope: scope.Resolve(p)}
}

func newService(t *testing.T) (*Service, *memRepo, shops) {
	t.Helper()
	subjects := shops{
		openShop:   {ID: openShop, WardID: 7, Status: shopentity.StatusActive},
		closedShop: {ID: closedShop, WardID: 7, Status: shopentity.StatusClosed},
		farShop:    {ID: farShop, WardID: 20, Status: shopentity.StatusActive},
	}
	repo := &memRepo{rows: map[int64]*entity.Assessment{}}
	codes := codegen.NewGenerator(codegen.DefaultAttempts, time.Millisecond, nil)
	svc := NewService(repo, subjects, codes, clockwork.NewFakeClockAt(now), zap.NewNop().Sugar())
	return svc, repo, subjects
}

func draft(t *testing.T, svc *Service, p principal.Principal, shopID int64, period string) *entity.Assessment {
	t.Helper()
	a, err := svc.Create(context.Background(), rcFor(p), CreateInput{ShopID: shopID, Period: period, Amount: 1250.456})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}

func TestCreateDraft(t *testing.T) {
	svc, _, _ := newService(t)
	a := draft(t, svc, clerk, openShop, "2025-26")
	if a.Status != entity.StatusDraft || a.WardID != 7 || a.AssessorID != clerk.ID || a.AssessorType != "staff" {
		t.Errorf("assessment = %+v", a)
	}
	if a.AssessmentNumber != "SHOP-2025-00001" {
		t.Errorf("number = %s", a.AssessmentNumber)
	}
	if a.Amount != 1250.46 {
		t.Errorf("amount = %v", a.Amount)
	}
	b := draft(t, svc, inspector, openShop, "2025")
	if b.AssessmentNumber != "SHOP-2025-00002" {
		t.Errorf("second number = %s", b.AssessmentNumber)
	}
}

func TestCreateRejections(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	draft(t, svc, clerk, openShop, "2025-26")

	tests := []struct {
		name string
		p    principal.Principal
		in   CreateInput
		want error
	}{
		{"closed shop", clerk, CreateInput{ShopID: closedShop, Period: "2025-26"}, apperr.ErrSubjectClosed},
		{"duplicate period", inspector, CreateInput{ShopID: openShop, Period: "2025-26"}, apperr.ErrDuplicateForPeriod},
		{"shop outside scope", clerk, CreateInput{ShopID: farShop, Period: "2025-26"}, apperr.ErrForbidden},
		{"field worker", worker, CreateInput{ShopID: openShop, Period: "2026-27"}, apperr.ErrForbidden},
		{"bad period", clerk, CreateInput{ShopID: openShop, Period: "FY26"}, apperr.ErrValidation},
		{"negative amount", clerk, CreateInput{ShopID: openShop, Period: "2026-27", Amount: -1}, apperr.ErrValidation},
		{"unknown shop", officer, CreateInput{ShopID: 999, Period: "2026-27"}, apperr.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, rcFor(tc.p), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDuplicatePeriodCaughtAtInsert(t *testing.T) {
	svc, repo, _ := newService(t)
	draft(t, svc, clerk, openShop, "2025-26")
	repo.skipPrecheck = true
	_, err := svc.Create(context.Background(), rcFor(inspector), CreateInput{ShopID: openShop, Period: "2025-26"})
	if !errors.Is(err, apperr.ErrDuplicateForPeriod) {
		t.Fatalf("err = %v, want DuplicateForPeriod", err)
	}
	if len(repo.rows) != 1 {
		t.Errorf("rows = %d", len(repo.rows))
	}
}

func TestNumberCollisionRetries(t *testing.T) {
	svc, repo, _ := newService(t)
	draft(t, svc, clerk, openShop, "2026-27")
	draft(t, svc, clerk, openShop, "2026")
	repo.staleCount = 2
	a := draft(t, svc, officer, farShop, "2026")
	if a.AssessmentNumber != "SHOP-2026-00003" {
		t.Errorf("number = %s, want SHOP-2026-00003", a.AssessmentNumber)
	}
}

func TestWorkflow(t *testing.T) {
	svc, repo, subjects := newService(t)
	ctx := context.Background()
	a := draft(t, svc, clerk, openShop, "2025-26")

	if _, err := svc.Approve(ctx, rcFor(officer), a.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("approve draft: err = %v", err)
	}
	edited, err := svc.Update(ctx, rcFor(clerk), a.ID, UpdateInput{Period: "2025-26", Amount: 900})
	if err != nil || edited.Amount != 900 {
		t.Fatalf("Update = %+v, %v", edited, err)
	}
	got, err := svc.Submit(ctx, rcFor(clerk), a.ID)
	if err != nil || got.Status != entity.StatusPending {
		t.Fatalf("Submit = %+v, %v", got, err)
	}
	if _, err := svc.Submit(ctx, rcFor(clerk), a.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("resubmit: err = %v", err)
	}
	if _, err := svc.Update(ctx, rcFor(clerk), a.ID, UpdateInput{Period: "2025-26", Amount: 1}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("update pending: err = %v", err)
	}
	if _, err := svc.Approve(ctx, rcFor(clerk), a.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("clerk approve: err = %v", err)
	}

	got, err = svc.Approve(ctx, rcFor(officer), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != entity.StatusApproved || got.ApproverID == nil || *got.ApproverID != officer.ID || !got.ApprovalDate.Equal(now) {
		t.Errorf("approved = %+v", got)
	}
	if stored := repo.rows[a.ID]; stored.Status != entity.StatusApproved || stored.ApprovalDate == nil {
		t.Errorf("stored = %+v", stored)
	}
	if _, err := svc.Reject(ctx, rcFor(admin), a.ID, "late"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("reject approved: err = %v", err)
	}

	// reject path, and submit blocked once the shop closes
	b := draft(t, svc, clerk, openShop, "2026-27")
	if _, err := svc.Submit(ctx, rcFor(clerk), b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reject(ctx, rcFor(admin), b.ID, " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("reject without remarks: err = %v", err)
	}
	rej, err := svc.Reject(ctx, rcFor(admin), b.ID, "area mismatch")
	if err != nil || rej.Status != entity.StatusRejected || *rej.Remarks != "area mismatch" || *rej.ApproverType != "user" {
		t.Fatalf("Reject = %+v, %v", rej, err)
	}

	c := draft(t, svc, clerk, openShop, "2027-28")
	subjects[openShop].Status = shopentity.StatusClosed
	if _, err := svc.Submit(ctx, rcFor(clerk), c.ID); !errors.Is(err, apperr.ErrSubjectClosed) {
		t.Errorf("submit on closed shop: err = %v", err)
	}
}

func TestListIsScoped(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	draft(t, svc, clerk, openShop, "2025-26")
	draft(t, svc, officer, farShop, "2025-26")

	mine, err := svc.List(ctx, rcFor(clerk), entity.Filter{})
	if err != nil || len(mine) != 1 || mine[0].WardID != 7 {
		t.Errorf("clerk list = %+v, %v", mine, err)
	}
	all, err := svc.List(ctx, rcFor(officer), entity.Filter{})
	if err != nil || len(all) != 2 {
		t.Errorf("officer list = %d, %v", len(all), err)
	}
	citizen := &principal.Generic{ID: 9, Role: principal.RoleCitizen, Status: principal.StatusActive}
	if _, err := svc.List(ctx, rcFor(citizen), entity.Filter{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("citizen list: err = %v", err)
	}
}
