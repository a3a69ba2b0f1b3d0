package user

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

// Repository is the subset of the users table the service needs.
type Repository interface {
	Create(ctx context.Context, u *entity.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	IncrementFailedLogin(ctx context.Context, id int64) (int, error)
	LockIfThreshold(ctx context.Context, id int64, threshold int, lockMinutes int) (bool, error)
	ResetLoginSuccess(ctx context.Context, id int64) error
	UnlockIfExpired(ctx context.Context, id int64) (bool, error)
	CountByRole(ctx context.Context, role string) (int, error)
}

// UserService orchestrates authentication and sign-up for the generic store.
type UserService struct {
	repo   Repository
	hasher utilities.PasswordHasher
	clock  clockwork.Clock
	// configuration knobs
	MaxFailed   int
	LockMinutes int
}

func NewUserService(r Repository, hasher utilities.PasswordHasher, clock clockwork.Clock) *UserService {
	if hasher == nil {
		hasher = utilities.BcryptHasher{Cost: 12}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &UserService{repo: r, hasher: hasher, clock: clock, MaxFailed: 6, LockMinutes: 15}
}

var (
	ErrLocked         = apperr.Forbidden("account locked")
	ErrDisabled       = apperr.Unauthorized(apperr.ReasonInactive, "account disabled")
	ErrBadCredentials = apperr.Unauthorized(apperr.ReasonBadCredentials, "invalid credentials")
)

// AuthenticatePassword performs password authentication by email or username.
// Repeated failures lock the account for LockMinutes.
func (s *UserService) AuthenticatePassword(ctx context.Context, identifier, password string) (*principal.Generic, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrBadCredentials
	}

	var (
		u   *entity.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = s.repo.GetByEmail(ctx, identifier)
	} else {
		u, err = s.repo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, ErrBadCredentials // avoid user enumeration
		}
		return nil, err
	}

	if u.Status == entity.StatusLocked && u.LockedUntil != nil && u.LockedUntil.Before(s.clock.Now()) {
		if unlocked, _ := s.repo.UnlockIfExpired(ctx, u.ID); unlocked {
			u.Status = entity.StatusActive
			u.LockedUntil = nil
		}
	}
	switch u.Status {
	case entity.StatusLocked:
		return nil, ErrLocked
	case entity.StatusDisabled:
		return nil, ErrDisabled
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}

	if !s.hasher.Verify(*u.PasswordHash, password) {
		if _, incErr := s.repo.IncrementFailedLogin(ctx, u.ID); incErr == nil {
			_, _ = s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, s.LockMinutes)
		}
		return nil, ErrBadCredentials
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		return nil, err
	}
	return userrepo.ToPrincipal(u), nil
}

// SignupInput carries a self-registration request. Username or email is required.
type SignupInput struct {
	Username string
	Email    string
	Phone    string
	Password string
}

// Signup registers a citizen. Roles other than citizen are never self-assigned.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*principal.Generic, error) {
	return s.create(ctx, in, principal.RoleCitizen)
}

// EnsureAdmin creates a generic admin unless one already exists. It reports
// whether a row was created.
func (s *UserService) EnsureAdmin(ctx context.Context, in SignupInput) (bool, error) {
	n, err := s.repo.CountByRole(ctx, string(principal.RoleAdmin))
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if _, err := s.create(ctx, in, principal.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserService) create(ctx context.Context, in SignupInput, role principal.Role) (*principal.Generic, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" && email == "" {
		return nil, apperr.Validation("", "username or email required")
	}
	if len(in.Password) < 8 {
		return nil, apperr.Validation("", "password must be at least 8 characters")
	}
	if len(in.Password) > utilities.MaxPasswordBytes {
		return nil, apperr.Validation("", "password must be at most 72 bytes")
	}
	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		PasswordHash: &hash,
		PasswordAlgo: &algo,
		Role:         string(role),
		Status:       entity.StatusActive,
	}
	if username != "" {
		u.Username = &username
	}
	if email != "" {
		u.Email = &email
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		u.PhoneNumber = &phone
	}
	if _, err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return userrepo.ToPrincipal(u), nil
}
