// Package auth logs principals in against the staff or generic store, issues
// session tokens and reports who the caller is.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
)

// StaffAuthenticator is satisfied by *staff.Service.
type StaffAuthenticator interface {
	Authenticate(ctx context.Context, identifier, password string) (*principal.Staff, error)
}

// UserAuthenticator is satisfied by *user.UserService.
type UserAuthenticator interface {
	AuthenticatePassword(ctx context.Context, identifier, password string) (*principal.Generic, error)
}

// Issuer is satisfied by *token.Codec.
type Issuer interface {
	Issue(p principal.Principal) (string, time.Time, error)
}

// Attendance is satisfied by *attendance.Recorder. Calls never block the
// response and never fail it.
type Attendance interface {
	Login(ctx context.Context, p principal.Principal, device string, geo entity.Geo)
	Logout(ctx context.Context, p principal.Principal)
}

type Service struct {
	staff      StaffAuthenticator
	users      UserAuthenticator
	tokens     Issuer
	attendance Attendance
	logger     *zap.SugaredLogger
}

func NewService(staff StaffAuthenticator, users UserAuthenticator, tokens Issuer, attendance Attendance, logger *zap.SugaredLogger) *Service {
	return &Service{staff: staff, users: users, tokens: tokens, attendance: attendance, logger: logger}
}

// LoginInput names the store with UserType. When it is empty the staff store
// is tried first and the generic store only on bad credentials.
type LoginInput struct {
	Identifier string     `json:"identifier"`
	Password   string     `json:"password"`
	UserType   string     `json:"userType"`
	DeviceInfo string     `json:"deviceInfo"`
	Location   entity.Geo `json:"location"`
}

// ScopeView is the JSON form of a resolved scope.
type ScopeView struct {
	Kind    string  `json:"kind"`
	WardIDs []int64 `json:"wardIds"`
}

func viewOf(sc scope.Scope) ScopeView {
	ids := sc.WardIDs()
	if ids == nil {
		ids = []int64{}
	}
	return ScopeView{Kind: sc.Kind().String(), WardIDs: ids}
}

type Session struct {
	Token     string              `json:"token"`
	TokenType string              `json:"tokenType"`
	ExpiresAt time.Time           `json:"expiresAt"`
	UserType  principal.Origin    `json:"userType"`
	Principal principal.Principal `json:"principal"`
	Scope     ScopeView           `json:"scope"`
}

var errUnknownStore = apperr.Validation("", "userType must be staff or user")

// Login authenticates, issues a token and schedules the attendance record.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if strings.TrimSpace(in.Identifier) == "" || in.Password == "" {
		return nil, apperr.Validation("", "identifier and password are required")
	}
	p, err := s.authenticate(ctx, in)
	if err != nil {
		s.logger.Infow("login rejected", "user_type", in.UserType, "err", err)
		return nil, err
	}
	tok, exp, err := s.tokens.Issue(p)
	if err != nil {
		return nil, err
	}
	s.attendance.Login(ctx, p, in.DeviceInfo, in.Location)
	s.logger.Infow("login", "principal_id", p.PrincipalID(), "user_type", p.Origin(), "role", p.PrincipalRole())
	return &Session{
		Token:     tok,
		TokenType: "Bearer",
		ExpiresAt: exp,
		UserType:  p.Origin(),
		Principal: p,
		Scope:     viewOf(scope.Resolve(p)),
	}, nil
}

func (s *Service) authenticate(ctx context.Context, in LoginInput) (principal.Principal, error) {
	switch principal.Origin(strings.ToLower(strings.TrimSpace(in.UserType))) {
	case principal.OriginStaff:
		return s.staffLogin(ctx, in)
	case principal.OriginUser:
		return s.userLogin(ctx, in)
	case "":
		p, err := s.staffLogin(ctx, in)
		if err == nil || !errors.Is(err, apperr.ErrBadCredentials) {
			return p, err
		}
		return s.userLogin(ctx, in)
	default:
		return nil, errUnknownStore
	}
}

// staffLogin and userLogin keep a nil *Staff or *Generic out of the interface.
func (s *Service) staffLogin(ctx context.Context, in LoginInput) (principal.Principal, error) {
	p, err := s.staff.Authenticate(ctx, in.Identifier, in.Password)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) userLogin(ctx context.Context, in LoginInput) (principal.Principal, error) {
	p, err := s.users.AuthenticatePassword(ctx, in.Identifier, in.Password)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Logout closes the attendance session. The token stays valid until it expires.
func (s *Service) Logout(ctx context.Context, p principal.Principal) {
	s.attendance.Logout(ctx, p)
	s.logger.Infow("logout", "principal_id", p.PrincipalID(), "user_type", p.Origin())
}

// Me describes the caller.
type Me struct {
	UserType  principal.Origin    `json:"userType"`
	Principal principal.Principal `json:"principal"`
	Scope     ScopeView           `json:"scope"`
}
