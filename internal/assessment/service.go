// Package assessment drives shop tax assessments through
// draft -> pending -> approved|rejected.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/assessment/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/codegen"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	shopentity "github.com/ovaphlow/pitchfork/service-municipal/internal/shop/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

// NumberPrefix is the type prefix of shop tax assessment numbers.
const NumberPrefix = "SHOP"

// Repository is implemented by repo.AssessmentRepo.
type Repository interface {
	Insert(ctx context.Context, a *entity.Assessment) error
	Get(ctx context.Context, id int64) (*entity.Assessment, error)
	ExistsForPeriod(ctx context.Context, shopID int64, period string) (bool, error)
	CountWithPrefix(ctx context.Context, prefix string) (int, error)
	List(ctx context.Context, sc scope.Scope, f entity.Filter) ([]entity.Assessment, error)
	UpdateDraft(ctx context.Context, a *entity.Assessment) (bool, error)
	Transition(ctx context.Context, id int64, from, to string, d entity.Decision) (bool, error)
}

// Subjects is satisfied by *shop.Service.
type Subjects interface {
	Lookup(ctx context.Context, id int64) (*shopentity.Shop, error)
}

var (
	approverRoles = []principal.Role{
		principal.RoleOfficer, principal.RoleCollector, principal.RoleEO, principal.RoleStaffAdmin, principal.RoleAdmin,
	}
	assessorRoles = append([]principal.Role{principal.RoleClerk, principal.RoleInspector}, approverRoles...)

	// 2025 or 2025-26
	periodPattern = regexp.MustCompile(`^(\d{4})(-\d{2})?$`)
)

type Service struct {
	repo     Repository
	subjects Subjects
	codes    *codegen.Generator
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
}

func NewService(repo Repository, subjects Subjects, codes *codegen.Generator, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, subjects: subjects, codes: codes, clock: clock, logger: logger}
}

type CreateInput struct {
	ShopID  int64   `json:"shopId,string"`
	Period  string  `json:"period"`
	Amount  float64 `json:"amount"`
	Remarks *string `json:"remarks"`
}

type UpdateInput struct {
	Period  string  `json:"period"`
	Amount  float64 `json:"amount"`
	Remarks *string `json:"remarks"`
}

func parsePeriod(p string) (string, int, error) {
	p = strings.TrimSpace(p)
	m := periodPattern.FindStringSubmatch(p)
	if m == nil {
		return "", 0, apperr.Validation("", "period must look like 2025 or 2025-26").WithDetail("period", p)
	}
	year, _ := strconv.Atoi(m[1])
	return p, year, nil
}

func checkAmount(a float64) (float64, error) {
	if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
		return 0, apperr.Validation("", "amount must be a non-negative number")
	}
	return math.Round(a*100) / 100, nil
}

// subject loads the shop and checks the caller may act on its ward.
func (s *Service) subject(ctx context.Context, rc access.RequestContext, shopID int64) (*shopentity.Shop, error) {
	sh, err := s.subjects.Lookup(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if err := rc.RequireWard(sh.WardID); err != nil {
		return nil, err
	}
	return sh, nil
}

func subjectClosed(shopID int64) error {
	return apperr.Precondition(apperr.ReasonSubjectClosed, "shop is closed").WithDetail("shopId", shopID)
}

// Create drafts an assessment for an open shop.
func (s *Service) Create(ctx context.Context, rc access.RequestContext, in CreateInput) (*entity.Assessment, error) {
	if !rc.HasRole(assessorRoles...) {
		return nil, apperr.Forbidden("role cannot create assessments")
	}
	period, year, err := parsePeriod(in.Period)
	if err != nil {
		return nil, err
	}
	amount, err := checkAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	sh, err := s.subject(ctx, rc, in.ShopID)
	if err != nil {
		return nil, err
	}
	if sh.Closed() {
		return nil, subjectClosed(sh.ID)
	}
	exists, err := s.repo.ExistsForPeriod(ctx, sh.ID, period)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict(apperr.ReasonDuplicateForPeriod, "assessment already exists for this period").
			WithDetail("shopId", sh.ID).WithDetail("period", period)
	}

	a := &entity.Assessment{
		ID:           utilities.NewID(),
		ShopID:       sh.ID,
		WardID:       sh.WardID,
		Period:       period,
		Amount:       amount,
		Status:       entity.StatusDraft,
		AssessorID:   rc.Principal.PrincipalID(),
		AssessorType: string(rc.Principal.Origin()),
		Remarks:      in.Remarks,
	}
	count, err := s.repo.CountWithPrefix(ctx, fmt.Sprintf("%s-%d-", NumberPrefix, year))
	if err != nil {
		return nil, err
	}
	_, err = s.codes.Generate(ctx, count,
		func(seq int) string { return codegen.AssessmentNumber(NumberPrefix, year, seq) },
		func(ctx context.Context, code string) error {
			a.AssessmentNumber = code
			return s.repo.Insert(ctx, a)
		})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("assessment drafted", "id", a.ID, "number", a.AssessmentNumber, "shop_id", a.ShopID, "period", period)
	return a, nil
}

func (s *Service) load(ctx context.Context, rc access.RequestContext, id int64) (*entity.Assessment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rc.RequireWard(a.WardID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, rc access.RequestContext, id int64) (*entity.Assessment, error) {
	return s.load(ctx, rc, id)
}

func (s *Service) List(ctx context.Context, rc access.RequestContext, f entity.Filter) ([]entity.Assessment, error) {
	return s.repo.List(ctx, rc.Scope, f)
}

// Update edits a draft. Any other status is immutable here.
func (s *Service) Update(ctx context.Context, rc access.RequestContext, id int64, in UpdateInput) (*entity.Assessment, error) {
	if !rc.HasRole(assessorRoles...) {
		return nil, apperr.Forbidden("role cannot edit assessments")
	}
	period, _, err := parsePeriod(in.Period)
	if err != nil {
		return nil, err
	}
	amount, err := checkAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	a, err := s.load(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	if a.Status != entity.StatusDraft {
		return nil, apperr.Precondition(apperr.ReasonInvalidTransition, "only drafts can be edited").WithDetail("status", a.Status)
	}
	a.Period, a.Amount, a.Remarks = period, amount, in.Remarks
	ok, err := s.repo.UpdateDraft(ctx, a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Precondition(apperr.ReasonInvalidTransition, "only drafts can be edited")
	}
	return a, nil
}

// Submit sends a draft for approval. The shop must still be open.
func (s *Service) Submit(ctx context.Context, rc access.RequestContext, id int64) (*entity.Assessment, error) {
	if !rc.HasRole(assessorRoles...) {
		return nil, apperr.Forbidden("role cannot submit assessments")
	}
	a, err := s.load(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	next, err := Next(a.Status, ActionSubmit)
	if err != nil {
		return nil, err
	}
	sh, err := s.subjects.Lookup(ctx, a.ShopID)
	if err != nil {
		return nil, err
	}
	if sh.Closed() {
		return nil, subjectClosed(sh.ID)
	}
	return s.apply(ctx, a, next, entity.Decision{})
}

// Approve stamps the approver and approval date.
func (s *Service) Approve(ctx context.Context, rc access.RequestContext, id int64) (*entity.Assessment, error) {
	return s.decide(ctx, rc, id, ActionApprove, nil)
}

// Reject stamps the approver and the reason given.
func (s *Service) Reject(ctx context.Context, rc access.RequestContext, id int64, remarks string) (*entity.Assessment, error) {
	remarks = strings.TrimSpace(remarks)
	if remarks == "" {
		return nil, apperr.Validation("", "remarks are required when rejecting")
	}
	return s.decide(ctx, rc, id, ActionReject, &remarks)
}

func (s *Service) decide(ctx context.Context, rc access.RequestContext, id int64, action Action, remarks *string) (*entity.Assessment, error) {
	if !rc.HasRole(approverRoles...) {
		return nil, apperr.Forbidden("role cannot " + string(action) + " assessments")
	}
	a, err := s.load(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	next, err := Next(a.Status, action)
	if err != nil {
		return nil, err
	}
	approver := rc.Principal.PrincipalID()
	origin := string(rc.Principal.Origin())
	d := entity.Decision{ApproverID: &approver, ApproverType: &origin, Remarks: remarks}
	if action == ActionApprove {
		now := s.clock.Now().UTC()
		d.ApprovalDate = &now
	}
	return s.apply(ctx, a, next, d)
}

var errRaced = errors.New("assessment changed concurrently")

func (s *Service) apply(ctx context.Context, a *entity.Assessment, next string, d entity.Decision) (*entity.Assessment, error) {
	ok, err := s.repo.Transition(ctx, a.ID, a.Status, next, d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apperr.Error{Kind: apperr.KindPreconditionFailed, Reason: apperr.ReasonInvalidTransition,
			Message: "status no longer " + a.Status, Err: errRaced}
	}
	s.logger.Infow("assessment transition", "id", a.ID, "from", a.Status, "to", next)
	a.Status = next
	if d.ApproverID != nil {
		a.ApproverID, a.ApproverType = d.ApproverID, d.ApproverType
	}
	if d.ApprovalDate != nil {
		a.ApprovalDate = d.ApprovalDate
	}
	if d.Remarks != nil {
		a.Remarks = d.Remarks
	}
	return a, nil
}
