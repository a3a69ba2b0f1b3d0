// Package task assigns work from supervisors to field workers and contractors
// and tracks its progress.
package task

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	staffentity "github.com/ovaphlow/pitchfork/service-municipal/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/task/entity"
	wardentity "github.com/ovaphlow/pitchfork/service-municipal/internal/ward/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

// Repository is implemented by repo.TaskRepo.
type Repository interface {
	Insert(ctx context.Context, t *entity.Task) error
	Get(ctx context.Context, id int64) (*entity.Task, error)
	List(ctx context.Context, sc scope.Scope, f entity.Filter) ([]entity.Task, error)
	Advance(ctx context.Context, id int64, from, to string, afterPhoto *string, completedAt *time.Time) (bool, error)
	Escalate(ctx context.Context, id int64) error
}

// StaffLookup loads staff records by id.
type StaffLookup interface {
	GetByID(ctx context.Context, id int64) (*staffentity.Staff, error)
}

type WardLookup interface {
	GetWard(ctx context.Context, id int64) (*wardentity.Ward, error)
}

// Assigner is satisfied by *staff.Validator.
type Assigner interface {
	ValidateAssignment(supervisor, worker *staffentity.Staff) error
}

type Service struct {
	repo     Repository
	staff    StaffLookup
	wards    WardLookup
	assigner Assigner
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
}

func NewService(repo Repository, staff StaffLookup, wards WardLookup, assigner Assigner, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, staff: staff, wards: wards, assigner: assigner, clock: clock, logger: logger}
}

// AssignInput is the body of an assignment request. SupervisorID is required
// unless the caller is the supervisor. WardID, when given, must be the
// supervisor's ward.
type AssignInput struct {
	WorkerID     int64   `json:"workerId"`
	SupervisorID *int64  `json:"supervisorId"`
	WardID       *int64  `json:"wardId"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	BeforePhoto  *string `json:"beforePhoto"`
}

var assignerRoles = []principal.Role{principal.RoleEO, principal.RoleStaffAdmin, principal.RoleAdmin}

// Assign creates a task for a worker under a supervisor. The task is stamped
// with the supervisor's ward and ULB.
func (s *Service) Assign(ctx context.Context, rc access.RequestContext, in AssignInput) (*entity.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("", "title is required")
	}
	supervisorID, err := supervisorFor(rc, in.SupervisorID)
	if err != nil {
		return nil, err
	}
	// an EO may only reach into its own ULB
	var actorUlb *int64
	if st, ok := rc.Principal.(*principal.Staff); ok && st.Role == principal.RoleEO {
		actorUlb = st.UlbID
	}

	if in.WardID != nil {
		w, err := s.wards.GetWard(ctx, *in.WardID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return nil, apperr.Validation(apperr.ReasonInvalidWard, "ward does not exist").WithDetail("wardId", *in.WardID)
			}
			return nil, err
		}
		if actorUlb != nil && !w.InULB(*actorUlb) {
			return nil, mismatch([]int64{w.ID}, *actorUlb)
		}
	}

	supervisor, err := s.staff.GetByID(ctx, supervisorID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation(apperr.ReasonInvalidParent, "supervisor does not exist").WithDetail("supervisorId", supervisorID)
		}
		return nil, err
	}
	if supervisor.WardID == nil {
		return nil, apperr.Validation(apperr.ReasonInvalidParent, "supervisor has no ward").WithDetail("supervisorId", supervisorID)
	}
	if actorUlb != nil && (supervisor.UlbID == nil || *supervisor.UlbID != *actorUlb) {
		return nil, mismatch([]int64{*supervisor.WardID}, *actorUlb)
	}
	if in.WardID != nil && *in.WardID != *supervisor.WardID {
		return nil, apperr.Validation(apperr.ReasonInvalidWard, "ward is not the supervisor's ward").
			WithDetail("wardId", *in.WardID)
	}

	worker, err := s.staff.GetByID(ctx, in.WorkerID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation(apperr.ReasonWorkerNotEligible, "worker does not exist").WithDetail("workerId", in.WorkerID)
		}
		return nil, err
	}
	if err := s.assigner.ValidateAssignment(supervisor, worker); err != nil {
		return nil, err
	}
	if err := rc.RequireWard(*supervisor.WardID); err != nil {
		return nil, err
	}

	t := &entity.Task{
		ID:           utilities.NewID(),
		WorkerID:     worker.ID,
		SupervisorID: supervisor.ID,
		WardID:       *supervisor.WardID,
		UlbID:        supervisor.UlbID,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		Status:       entity.StatusAssigned,
		AssignedDate: s.clock.Now().UTC(),
		BeforePhoto:  in.BeforePhoto,
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Infow("task assigned", "task_id", t.ID, "worker_id", t.WorkerID, "supervisor_id", t.SupervisorID, "ward_id", t.WardID)
	return t, nil
}

func supervisorFor(rc access.RequestContext, requested *int64) (int64, error) {
	if rc.Principal == nil {
		return 0, apperr.Forbidden("no principal")
	}
	if rc.HasRole(principal.RoleSupervisor) && rc.Principal.Origin() == principal.OriginStaff {
		self := rc.Principal.PrincipalID()
		if requested != nil && *requested != self {
			return 0, apperr.Forbidden("supervisors assign their own tasks")
		}
		return self, nil
	}
	if !rc.HasRole(assignerRoles...) {
		return 0, apperr.Forbidden("role cannot assign tasks")
	}
	if requested == nil {
		return 0, apperr.Validation("", "supervisorId is required")
	}
	return *requested, nil
}

func mismatch(wards []int64, ulbID int64) error {
	return apperr.Validation(apperr.ReasonWardUlbMismatch, "ward belongs to another ulb").
		WithDetail("wardIds", wards).WithDetail("ulbId", ulbID)
}

// Get returns a task inside the caller's scope.
func (s *Service) Get(ctx context.Context, rc access.RequestContext, id int64) (*entity.Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rc.RequireWard(t.WardID); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns tasks in scope. Workers only see their own.
func (s *Service) List(ctx context.Context, rc access.RequestContext, f entity.Filter) ([]entity.Task, error) {
	if isWorker(rc) {
		id := rc.Principal.PrincipalID()
		f.WorkerID = &id
	}
	return s.repo.List(ctx, rc.Scope, f)
}

func isWorker(rc access.RequestContext) bool {
	return rc.Principal != nil && rc.Principal.Origin() == principal.OriginStaff &&
		rc.HasRole(principal.RoleFieldWorker, principal.RoleContractor)
}

// UpdateStatus moves a task forward. COMPLETED stamps completedAt.
func (s *Service) UpdateStatus(ctx context.Context, rc access.RequestContext, id int64, status string, afterPhoto *string) (*entity.Task, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if entity.StatusRank(status) < 0 {
		return nil, apperr.Validation("", "unknown task status").WithDetail("status", status)
	}
	t, err := s.Get(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	if isWorker(rc) && t.WorkerID != rc.Principal.PrincipalID() {
		return nil, apperr.Forbidden("task is assigned to another worker")
	}
	if entity.StatusRank(status) <= entity.StatusRank(t.Status) {
		return nil, apperr.Precondition(apperr.ReasonInvalidTransition, "task status can only move forward").
			WithDetail("from", t.Status).WithDetail("to", status)
	}
	var completedAt *time.Time
	if status == entity.StatusCompleted {
		now := s.clock.Now().UTC()
		completedAt = &now
	}
	ok, err := s.repo.Advance(ctx, id, t.Status, status, afterPhoto, completedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Precondition(apperr.ReasonInvalidTransition, "task status changed concurrently")
	}
	t.Status, t.CompletedAt = status, completedAt
	if afterPhoto != nil {
		t.AfterPhoto = afterPhoto
	}
	return t, nil
}

// Escalate flags a task for attention. Repeating it is harmless.
func (s *Service) Escalate(ctx context.Context, rc access.RequestContext, id int64) (*entity.Task, error) {
	t, err := s.Get(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	if isWorker(rc) && t.WorkerID != rc.Principal.PrincipalID() {
		return nil, apperr.Forbidden("task is assigned to another worker")
	}
	if err := s.repo.Escalate(ctx, id); err != nil {
		return nil, err
	}
	t.EscalationFlag = true
	s.logger.Infow("task escalated", "task_id", id, "by", rc.Principal.PrincipalID())
	return t, nil
}
