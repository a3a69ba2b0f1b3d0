package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/token"
)

type staffAuth map[string]*principal.Staff

var (
	errStaffBad  = apperr.Unauthorized(apperr.ReasonBadCredentials, "invalid credentials")
	errStaffGone = apperr.Unauthorized(apperr.ReasonInactive, "account is inactive")
)

func (s staffAuth) Authenticate(_ context.Context, identifier, password string) (*principal.Staff, error) {
	p, ok := s[identifier]
	if !ok || password != "pw-"+identifier {
		return nil, errStaffBad
	}
	if !p.Active() {
		return nil, errStaffGone
	}
	return p, nil
}

type userAuth map[string]*principal.Generic

func (u userAuth) AuthenticatePassword(_ context.Context, identifier, password string) (*principal.Generic, error) {
	p, ok := u[identifier]
	if !ok || password != "pw-"+identifier {
		return nil, apperr.Unauthorized(apperr.ReasonBadCredentials, "invalid credentials")
	}
	return p, nil
}

type call struct {
	op     string
	id     int64
	device string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) Login(_ context.Context, p principal.Principal, device string, _ entity.Geo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"open", p.PrincipalID(), device})
}

func (r *recorder) Logout(_ context.Context, p principal.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"close", p.PrincipalID(), ""})
}

func newService(t *testing.T) (*Service, *token.Codec, *recorder) {
	t.Helper()
	codec, err := token.NewCodec(token.Config{Secret: "s3cret", Issuer: "test"}, clockwork.NewFakeClockAt(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	staff := staffAuth{
		"INSP-0001": {ID: 7, Role: principal.RoleInspector, Status: principal.StatusActive, WardIDs: []int64{12, 3}},
		"FW-0002":   {ID: 8, Role: principal.RoleFieldWorker, Status: principal.StatusInactive},
		"shared":    {ID: 9, Role: principal.RoleClerk, Status: principal.StatusActive, WardIDs: []int64{4}},
	}
	users := userAuth{
		"citizen@example.com": {ID: 7, Role: principal.RoleCitizen, Status: principal.StatusActive},
		"shared":              {ID: 10, Role: principal.RoleAdmin, Status: principal.StatusActive},
	}
	rec := &recorder{}
	return NewService(staff, users, codec, rec, zap.NewNop().Sugar()), codec, rec
}

func TestStaffLogin(t *testing.T) {
	svc, codec, rec := newService(t)
	sess, err := svc.Login(context.Background(), LoginInput{Identifier: "INSP-0001", Password: "pw-INSP-0001", DeviceInfo: "android 14"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.UserType != principal.OriginStaff || sess.Scope.Kind != "wards" || len(sess.Scope.WardIDs) != 2 || sess.Scope.WardIDs[0] != 3 {
		t.Errorf("session = %+v", sess)
	}
	claims, err := codec.Verify(sess.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserType != principal.OriginStaff || claims.Subject != "7" {
		t.Errorf("claims = %+v", claims)
	}
	if len(rec.calls) != 1 || rec.calls[0] != (call{"open", 7, "android 14"}) {
		t.Errorf("attendance calls = %+v", rec.calls)
	}
}

func TestLoginStoreSelection(t *testing.T) {
	tests := []struct {
		name     string
		in       LoginInput
		wantType principal.Origin
		wantID   int64
		wantErr  error
	}{
		{"falls back to generic store", LoginInput{Identifier: "citizen@example.com", Password: "pw-citizen@example.com"}, principal.OriginUser, 7, nil},
		{"staff wins when both match", LoginInput{Identifier: "shared", Password: "pw-shared"}, principal.OriginStaff, 9, nil},
		{"explicit user store", LoginInput{Identifier: "shared", Password: "pw-shared", UserType: "user"}, principal.OriginUser, 10, nil},
		{"explicit staff store does not fall back", LoginInput{Identifier: "citizen@example.com", Password: "pw-citizen@example.com", UserType: "staff"}, "", 0, apperr.ErrBadCredentials},
		{"inactive staff does not fall back", LoginInput{Identifier: "FW-0002", Password: "pw-FW-0002"}, "", 0, apperr.ErrInactive},
		{"wrong password", LoginInput{Identifier: "INSP-0001", Password: "nope"}, "", 0, apperr.ErrBadCredentials},
		{"unknown store", LoginInput{Identifier: "shared", Password: "pw-shared", UserType: "vendor"}, "", 0, apperr.ErrValidation},
		{"missing password", LoginInput{Identifier: "shared"}, "", 0, apperr.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, rec := newService(t)
			sess, err := svc.Login(context.Background(), tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				if len(rec.calls) != 0 {
					t.Errorf("attendance recorded for failed login: %+v", rec.calls)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if sess.UserType != tc.wantType || sess.Principal.PrincipalID() != tc.wantID {
				t.Errorf("session = %+v", sess)
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	svc, _, rec := newService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"identifier":"INSP-0001","password":"pw-INSP-0001"}`))
	req.Header.Set("User-Agent", "field-app/2.1")
	rr := httptest.NewRecorder()
	h.Login(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d body = %s", rr.Code, rr.Body)
	}
	var sess struct {
		Token     string `json:"token"`
		TokenType string `json:"tokenType"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &sess); err != nil || sess.Token == "" || sess.TokenType != "Bearer" {
		t.Fatalf("login body = %s", rr.Body)
	}
	if rec.calls[0].device != "field-app/2.1" {
		t.Errorf("device = %q", rec.calls[0].device)
	}

	bad := httptest.NewRecorder()
	h.Login(bad, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"identifier":"INSP-0001","password":"x"}`)))
	if bad.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d", bad.Code)
	}

	p := &principal.Staff{ID: 7, Role: principal.RoleInspector, Status: principal.StatusActive, WardIDs: []int64{12}}
	ctx := access.WithContext(context.Background(), access.RequestContext{Principal: p, Scope: scope.Resolve(p)})

	me := httptest.NewRecorder()
	h.Me(me, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil).WithContext(ctx))
	var body struct {
		UserType string    `json:"userType"`
		Scope    ScopeView `json:"scope"`
	}
	if err := json.Unmarshal(me.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.UserType != "staff" || body.Scope.Kind != "wards" || len(body.Scope.WardIDs) != 1 || body.Scope.WardIDs[0] != 12 {
		t.Errorf("me = %s", me.Body)
	}

	out := httptest.NewRecorder()
	h.Logout(out, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil).WithContext(ctx))
	if out.Code != http.StatusNoContent {
		t.Errorf("logout status = %d", out.Code)
	}
	if last := rec.calls[len(rec.calls)-1]; last.op != "close" || last.id != 7 {
		t.Errorf("last attendance call = %+v", last)
	}
}
