package router

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/assessment"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/auth"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/shop"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/staff"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/task"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/user"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/ward"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

type Config struct {
	Addr           string
	LoginPerMinute int
	LoginBurst     int
	// TrustedProxies are the peers whose X-Forwarded-For is believed.
	TrustedProxies []netip.Prefix
}

// ConfigFromEnv reads HTTP_ADDR, LOGIN_RATE_LIMIT (requests per minute per
// client), LOGIN_RATE_BURST and TRUSTED_PROXIES (comma separated CIDRs).
func ConfigFromEnv() (Config, error) {
	cfg := Config{Addr: os.Getenv("HTTP_ADDR"), LoginPerMinute: 10, LoginBurst: 5}
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:8431"
	}
	if n, err := strconv.Atoi(os.Getenv("LOGIN_RATE_LIMIT")); err == nil && n > 0 {
		cfg.LoginPerMinute = n
	}
	if n, err := strconv.Atoi(os.Getenv("LOGIN_RATE_BURST")); err == nil && n > 0 {
		cfg.LoginBurst = n
	}
	trusted, err := ParseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return Config{}, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = trusted
	return cfg, nil
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware tags each request with an id and logs it when done.
// Server errors are logged at warn level, everything else at debug.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = utilities.NewKSUID()
			}
			w.Header().Set(RequestIDHeader, id)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", ClientIP(r, nil),
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative security headers. HSTS is only
// sent over TLS.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers groups the feature handlers mounted by RegisterRoutes.
type Handlers struct {
	Auth        *auth.Handler
	Users       *user.Handler
	Wards       *ward.Handler
	Staff       *staff.Handler
	Tasks       *task.Handler
	Shops       *shop.Handler
	Assessments *assessment.Handler
	Attendance  *attendance.Handler
}

// Deps is everything the router needs besides the handlers.
type Deps struct {
	Enforcer *access.Enforcer
	Limiter  *RateLimiter
	DB       Pinger
}

func health(logger *zap.SugaredLogger, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Warnw("health check: database unreachable", "err", err)
			httpjson.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
			return
		}
		httpjson.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
	}
}

// RegisterRoutes mounts every endpoint on a stdlib ServeMux. Guards:
// authed resolves the caller, scoped additionally rejects a Denied scope,
// admin requires an administrator role.
func RegisterRoutes(logger *zap.SugaredLogger, deps Deps, h Handlers) http.Handler {
	mux := http.NewServeMux()

	authed := func(fn http.HandlerFunc) http.Handler { return deps.Enforcer.Middleware(fn) }
	scoped := func(fn http.HandlerFunc) http.Handler { return deps.Enforcer.Middleware(access.RequireScope(fn)) }
	requireAdmin := access.RequireRole(principal.RoleStaffAdmin, principal.RoleAdmin)
	admin := func(fn http.HandlerFunc) http.Handler { return deps.Enforcer.Middleware(requireAdmin(fn)) }

	mux.HandleFunc("GET /health", health(logger, deps.DB))

	mux.Handle("POST /api/v1/auth/login", deps.Limiter.Middleware(logger)(http.HandlerFunc(h.Auth.Login)))
	mux.Handle("POST /api/v1/auth/logout", authed(h.Auth.Logout))
	mux.Handle("GET /api/v1/auth/me", authed(h.Auth.Me))
	mux.Handle("POST /api/v1/users/signup", deps.Limiter.Middleware(logger)(http.HandlerFunc(h.Users.Signup)))

	mux.Handle("POST /api/v1/ulbs", admin(h.Wards.CreateULB))
	mux.Handle("POST /api/v1/wards", admin(h.Wards.CreateWard))
	mux.Handle("GET /api/v1/wards", scoped(h.Wards.List))

	mux.Handle("POST /api/v1/staff", admin(h.Staff.Create))
	mux.Handle("GET /api/v1/staff", scoped(h.Staff.List))
	mux.Handle("GET /api/v1/staff/{id}", scoped(h.Staff.Get))
	mux.Handle("PUT /api/v1/staff/{id}", admin(h.Staff.Update))
	mux.Handle("PATCH /api/v1/staff/{id}/status", admin(h.Staff.SetStatus))
	mux.Handle("DELETE /api/v1/staff/{id}", admin(h.Staff.Delete))
	mux.Handle("POST /api/v1/staff/{id}/reset-password", admin(h.Staff.ResetPassword))

	mux.Handle("POST /api/v1/tasks", scoped(h.Tasks.Assign))
	mux.Handle("GET /api/v1/tasks", scoped(h.Tasks.List))
	mux.Handle("GET /api/v1/tasks/{id}", scoped(h.Tasks.Get))
	mux.Handle("PATCH /api/v1/tasks/{id}/status", scoped(h.Tasks.UpdateStatus))
	mux.Handle("POST /api/v1/tasks/{id}/escalate", scoped(h.Tasks.Escalate))

	mux.Handle("POST /api/v1/shops", scoped(h.Shops.Create))
	mux.Handle("GET /api/v1/shops", scoped(h.Shops.List))
	// owners without a ward scope may read their own shop
	mux.Handle("GET /api/v1/shops/{id}", authed(h.Shops.Get))
	mux.Handle("POST /api/v1/shops/{id}/close", scoped(h.Shops.Close))

	mux.Handle("POST /api/v1/assessments", scoped(h.Assessments.Create))
	mux.Handle("GET /api/v1/assessments", scoped(h.Assessments.List))
	mux.Handle("GET /api/v1/assessments/{id}", scoped(h.Assessments.Get))
	mux.Handle("PUT /api/v1/assessments/{id}", scoped(h.Assessments.Update))
	mux.Handle("POST /api/v1/assessments/{id}/submit", scoped(h.Assessments.Submit))
	mux.Handle("POST /api/v1/assessments/{id}/approve", scoped(h.Assessments.Approve))
	mux.Handle("POST /api/v1/assessments/{id}/reject", scoped(h.Assessments.Reject))

	mux.Handle("GET /api/v1/attendance/me", authed(h.Attendance.Mine))

	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}
