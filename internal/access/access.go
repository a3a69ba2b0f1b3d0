// Package access authenticates requests and attaches an immutable
// RequestContext holding the principal and its ward scope.
package access

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/token"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
)

// Verifier checks a bearer token.
type Verifier interface {
	Verify(tok string) (*token.Claims, error)
}

// Locator re-resolves the principal named by a token.
type Locator interface {
	Lookup(ctx context.Context, id int64, hint principal.Origin) (principal.Principal, error)
}

// RequestContext is the authenticated caller. It is built once per request and
// never modified afterwards.
type RequestContext struct {
	Principal principal.Principal
	Scope     scope.Scope
}

// RequireWard checks a ward id taken from the path, query or body against the
// resolved scope. Handlers must call it whenever they act on a specific ward.
func (rc RequestContext) RequireWard(wardID int64) error {
	if !rc.Scope.Allows(wardID) {
		return apperr.Forbidden("ward outside scope").WithDetail("wardId", wardID)
	}
	return nil
}

// RequireOwner authorizes citizens by ownership of the backing resource.
// Generic admins and any principal with a non-denied scope pass through.
func (rc RequestContext) RequireOwner(ownerID *int64) error {
	if rc.Principal == nil {
		return apperr.Forbidden("no principal")
	}
	if rc.Principal.PrincipalRole() == principal.RoleAdmin || !rc.Scope.IsDenied() {
		return nil
	}
	if ownerID != nil && *ownerID == rc.Principal.PrincipalID() && rc.Principal.Origin() == principal.OriginUser {
		return nil
	}
	return apperr.Forbidden("not the owner")
}

// HasRole reports whether the caller holds one of roles.
func (rc RequestContext) HasRole(roles ...principal.Role) bool {
	return rc.Principal != nil && slices.Contains(roles, rc.Principal.PrincipalRole())
}

type ctxKey struct{}

// WithContext returns ctx carrying rc.
func WithContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the RequestContext attached by the middleware.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(ctxKey{}).(RequestContext)
	return rc, ok
}

// Enforcer runs token verification, principal re-resolution and scope
// resolution for every request.
type Enforcer struct {
	tokens Verifier
	store  Locator
	logger *zap.SugaredLogger
}

func NewEnforcer(tokens Verifier, store Locator, logger *zap.SugaredLogger) *Enforcer {
	return &Enforcer{tokens: tokens, store: store, logger: logger}
}

// Authenticate turns an Authorization header into a RequestContext. A Denied
// scope is not an error here; ward-scoped routes reject it with RequireScope.
func (e *Enforcer) Authenticate(ctx context.Context, header string) (RequestContext, error) {
	raw, err := token.ExtractBearer(header)
	if err != nil {
		return RequestContext{}, err
	}
	claims, err := e.tokens.Verify(raw)
	if err != nil {
		return RequestContext{}, err
	}
	id, err := claims.PrincipalID()
	if err != nil {
		return RequestContext{}, err
	}
	// the token is not trusted beyond identifying the principal
	p, err := e.store.Lookup(ctx, id, claims.UserType)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return RequestContext{}, apperr.Unauthorized(apperr.ReasonPrincipalNotFound, "principal no longer exists")
		}
		return RequestContext{}, err
	}
	if !p.Active() {
		return RequestContext{}, apperr.Unauthorized(apperr.ReasonInactive, "principal is inactive")
	}
	return RequestContext{Principal: p, Scope: scope.Resolve(p)}, nil
}

// Middleware authenticates the request and attaches the RequestContext.
func (e *Enforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, err := e.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnauthorized {
				e.logger.Debugw("authentication rejected", "path", r.URL.Path, "reason", apperr.ReasonOf(err))
			}
			httpjson.WriteError(w, e.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), rc)))
	})
}

// RequireScope rejects callers whose scope is Denied. It must be wrapped by Middleware.
func RequireScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := FromContext(r.Context())
		if !ok {
			httpjson.WriteError(w, nil, apperr.Unauthorized(apperr.ReasonMissingToken, "not authenticated"))
			return
		}
		if rc.Scope.IsDenied() {
			httpjson.WriteError(w, nil, apperr.Forbidden("no ward scope"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole restricts a route to the given roles. It must be wrapped by Middleware.
func RequireRole(roles ...principal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := FromContext(r.Context())
			if !ok {
				httpjson.WriteError(w, nil, apperr.Unauthorized(apperr.ReasonMissingToken, "not authenticated"))
				return
			}
			if !rc.HasRole(roles...) {
				httpjson.WriteError(w, nil, apperr.Forbidden("role not permitted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
