// Package attendance tracks working sessions opened at login and closed at
// logout. Its failures never affect the authentication result.
package attendance

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

// Repository is implemented by repo.SessionRepo.
type Repository interface {
	Insert(ctx context.Context, s *entity.Session) error
	CountOpen(ctx context.Context, principalID int64, userType string) (int, error)
	LatestOpen(ctx context.Context, principalID int64, userType string) (*entity.Session, error)
	Close(ctx context.Context, id int64, logoutAt time.Time, minutes int) error
	History(ctx context.Context, principalID int64, userType string, limit int) ([]entity.Session, error)
}

const maxDeviceInfo = 512

// Manager runs the per-principal session state machine Closed -> Open -> Closed.
type Manager struct {
	repo   Repository
	clock  clockwork.Clock
	logger *zap.SugaredLogger
}

func NewManager(repo Repository, clock clockwork.Clock, logger *zap.SugaredLogger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{repo: repo, clock: clock, logger: logger}
}

// OpenSession records a login. An already open session is logged as a
// duplicate login and a new session is opened anyway.
func (m *Manager) OpenSession(ctx context.Context, p principal.Principal, device string, geo entity.Geo) (*entity.Session, error) {
	userType := string(p.Origin())
	open, err := m.repo.CountOpen(ctx, p.PrincipalID(), userType)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		m.logger.Warnw("duplicate login: session already open",
			"principal_id", p.PrincipalID(), "user_type", userType, "open_sessions", open)
	}
	s := &entity.Session{
		ID:             utilities.NewID(),
		PrincipalID:    p.PrincipalID(),
		UserType:       userType,
		LoginAt:        m.clock.Now().UTC(),
		LoginLatitude:  geo.Latitude,
		LoginLongitude: geo.Longitude,
		LoginAddress:   geo.Address,
		DeviceInfo:     clipDevice(device),
	}
	if err := m.repo.Insert(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// clipDevice trims device info to maxDeviceInfo bytes without splitting a rune.
// Invalid UTF-8 is dropped since the column rejects it.
func clipDevice(device string) string {
	device = strings.ToValidUTF8(strings.TrimSpace(device), "")
	if len(device) <= maxDeviceInfo {
		return device
	}
	cut := maxDeviceInfo
	for cut > 0 && !utf8.RuneStart(device[cut]) {
		cut--
	}
	return device[:cut]
}

// CloseSession closes the most recent open session. Without one it is a
// no-op and returns nil, nil.
func (m *Manager) CloseSession(ctx context.Context, p principal.Principal) (*entity.Session, error) {
	s, err := m.repo.LatestOpen(ctx, p.PrincipalID(), string(p.Origin()))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	now := m.clock.Now().UTC()
	minutes := WorkingMinutes(s.LoginAt, now)
	if err := m.repo.Close(ctx, s.ID, now, minutes); err != nil {
		return nil, err
	}
	s.LogoutAt = &now
	s.WorkingDurationMinutes = &minutes
	return s, nil
}

// History lists a principal's own sessions, newest first.
func (m *Manager) History(ctx context.Context, p principal.Principal, limit int) ([]entity.Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 30
	}
	return m.repo.History(ctx, p.PrincipalID(), string(p.Origin()), limit)
}

// WorkingMinutes is the whole number of minutes between login and logout.
func WorkingMinutes(login, logout time.Time) int {
	d := logout.Sub(login)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
