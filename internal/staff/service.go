// Package staff manages municipal staff records: creation by administrators,
// hierarchy re-parenting, status changes and staff login.
package staff

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/codegen"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/staff/entity"
	staffrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/staff/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

// Store is implemented by repo.StaffRepo.
type Store interface {
	Directory
	FindByLogin(ctx context.Context, identifier string) (*entity.Staff, error)
	List(ctx context.Context, sc scope.Scope, f entity.Filter) ([]entity.Staff, error)
	CountByRole(ctx context.Context, role string) (int, error)
	UpdatePassword(ctx context.Context, id int64, hash, algo string) error
	SetStatus(ctx context.Context, id int64, status string) error
	TouchLastLogin(ctx context.Context, id int64) error
	InTx(ctx context.Context, fn func(staffrepo.Tx) error) error
}

var (
	ErrBadCredentials = apperr.Unauthorized(apperr.ReasonBadCredentials, "invalid credentials")
	ErrInactive       = apperr.Unauthorized(apperr.ReasonInactive, "account is inactive")
)

type Service struct {
	store     Store
	validator *Validator
	codes     *codegen.Generator
	hasher    utilities.PasswordHasher
	logger    *zap.SugaredLogger
}

func NewService(store Store, wards WardLookup, codes *codegen.Generator, hasher utilities.PasswordHasher, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = utilities.BcryptHasher{Cost: 12}
	}
	return &Service{
		store:     store,
		validator: NewValidator(store, wards),
		codes:     codes,
		hasher:    hasher,
		logger:    logger,
	}
}

// Validator exposes the hierarchy validator to the task service.
func (s *Service) Validator() *Validator { return s.validator }

// Input is the full set of writable staff fields.
type Input struct {
	Name         string  `json:"name"`
	Email        *string `json:"email"`
	PhoneNumber  *string `json:"phoneNumber"`
	Username     *string `json:"username"`
	Role         string  `json:"role"`
	WardIDs      []int64 `json:"wardIds"`
	WardID       *int64  `json:"wardId"`
	UlbID        *int64  `json:"ulbId"`
	EOID         *int64  `json:"eoId"`
	SupervisorID *int64  `json:"supervisorId"`
	ContractorID *int64  `json:"contractorId"`
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func (in Input) apply(s *entity.Staff) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Validation("", "name is required")
	}
	s.Name = name
	s.Email = trimmed(in.Email)
	if s.Email != nil {
		e := strings.ToLower(*s.Email)
		s.Email = &e
	}
	s.PhoneNumber = trimmed(in.PhoneNumber)
	s.Username = trimmed(in.Username)
	s.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	s.WardIDs = pq.Int64Array(slices.Clone(in.WardIDs))
	s.WardID = in.WardID
	s.UlbID = in.UlbID
	s.EOID = in.EOID
	s.SupervisorID = in.SupervisorID
	s.ContractorID = in.ContractorID
	return nil
}

// Created is returned once; the plain password is never retrievable again.
type Created struct {
	Staff    *entity.Staff `json:"staff"`
	Password string        `json:"password"`
}

// Create validates and stores a new staff record with a generated employee
// code and password. The clerk ward back-reference is set in the same transaction.
func (s *Service) Create(ctx context.Context, in Input) (*Created, error) {
	cand := &entity.Staff{Status: principal.StatusActive}
	if err := in.apply(cand); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStaff(ctx, cand, nil); err != nil {
		return nil, err
	}
	prefix, _ := codegen.RolePrefix(cand.RoleValue())

	password, err := utilities.GeneratePassword(utilities.GeneratedPasswordLength)
	if err != nil {
		return nil, err
	}
	if cand.PasswordHash, cand.PasswordAlgo, err = s.hasher.Hash(password); err != nil {
		return nil, err
	}
	count, err := s.store.CountByRole(ctx, cand.Role)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx staffrepo.Tx) error {
		_, err := s.codes.Generate(ctx, count,
			func(seq int) string { return codegen.EmployeeCode(prefix, seq) },
			func(ctx context.Context, code string) error {
				cand.EmployeeCode = code
				return tx.Insert(ctx, cand)
			})
		if err != nil {
			return err
		}
		if cand.RoleValue() == principal.RoleClerk {
			return tx.ClaimClerkWard(ctx, *cand.WardID, cand.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("staff created", "id", cand.ID, "employee_code", cand.EmployeeCode, "role", cand.Role)
	return &Created{Staff: cand, Password: password}, nil
}

// Update replaces the writable fields of a staff record. Moving a clerk
// releases the old ward and claims the new one atomically.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*entity.Staff, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cand := *existing
	if err := in.apply(&cand); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStaff(ctx, &cand, existing); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx staffrepo.Tx) error {
		if err := tx.Update(ctx, &cand); err != nil {
			return err
		}
		if existing.RoleValue() == principal.RoleClerk {
			if err := tx.ReleaseClerkWards(ctx, id); err != nil {
				return err
			}
		}
		if cand.RoleValue() == principal.RoleClerk {
			return tx.ClaimClerkWard(ctx, *cand.WardID, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cand, nil
}

// SetStatus toggles a record between active and inactive.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) (*entity.Staff, error) {
	if status != principal.StatusActive && status != principal.StatusInactive {
		return nil, apperr.Validation("", "status must be active or inactive")
	}
	if err := s.store.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}

// Delete removes a staff-role record. Administrator accounts and records that
// still have dependents are kept.
func (s *Service) Delete(ctx context.Context, id int64) error {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.RoleValue() == principal.RoleStaffAdmin {
		return apperr.Forbidden("administrator accounts cannot be deleted")
	}
	deps, err := s.store.ListDependents(ctx, id)
	if err != nil {
		return err
	}
	if len(deps) > 0 {
		ids := make([]int64, 0, len(deps))
		for _, d := range deps {
			ids = append(ids, d.ID)
		}
		return apperr.Precondition("", "staff record still has dependents").WithDetail("staffIds", ids)
	}
	err = s.store.InTx(ctx, func(tx staffrepo.Tx) error {
		if err := tx.ReleaseClerkWards(ctx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if constraint, ok := database.ForeignKeyViolation(err); ok {
		return apperr.Precondition("", "staff record is still referenced").WithDetail("constraint", constraint)
	}
	return err
}

// ResetPassword stores a new generated password and returns it once.
func (s *Service) ResetPassword(ctx context.Context, id int64) (string, error) {
	password, err := utilities.GeneratePassword(utilities.GeneratedPasswordLength)
	if err != nil {
		return "", err
	}
	hash, algo, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdatePassword(ctx, id, hash, algo); err != nil {
		return "", err
	}
	s.logger.Infow("staff password reset", "id", id)
	return password, nil
}

// Authenticate checks staff credentials by employee code, email, username or
// phone number and stamps last_login_at.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*principal.Staff, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrBadCredentials
	}
	st, err := s.store.FindByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if st.PasswordHash == "" || !s.hasher.Verify(st.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !st.IsActive() {
		return nil, ErrInactive
	}
	if err := s.store.TouchLastLogin(ctx, st.ID); err != nil {
		s.logger.Warnw("update last login failed", "id", st.ID, "err", err)
	}
	return st.Principal(), nil
}

// Get returns a record if any of its wards is visible to the caller. Records
// without wards are visible to unrestricted scopes only.
func (s *Service) Get(ctx context.Context, rc access.RequestContext, id int64) (*entity.Staff, error) {
	st, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rc.Scope.IsAll() {
		return st, nil
	}
	for _, w := range st.Wards() {
		if rc.Scope.Allows(w) {
			return st, nil
		}
	}
	return nil, apperr.Forbidden("staff record outside scope")
}

func (s *Service) List(ctx context.Context, rc access.RequestContext, f entity.Filter) ([]entity.Staff, error) {
	return s.store.List(ctx, rc.Scope, f)
}
