// Package token issues and verifies the signed bearer tokens that carry a
// principal's role and hierarchy links. Tokens are stateless: nothing is
// persisted and a token stays valid until it expires, logout included.
package token

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
)

// DefaultTTL is the fixed session lifetime.
const DefaultTTL = 24 * time.Hour

type Config struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// ConfigFromEnv reads JWT_SECRET, JWT_TTL and JWT_ISSUER.
func ConfigFromEnv() Config {
	ttl := DefaultTTL
	if d, err := time.ParseDuration(os.Getenv("JWT_TTL")); err == nil && d > 0 {
		ttl = d
	}
	iss := os.Getenv("JWT_ISSUER")
	if iss == "" {
		iss = "municipal-api"
	}
	return Config{Secret: os.Getenv("JWT_SECRET"), TTL: ttl, Issuer: iss}
}

// Claims is the token payload. Hierarchy fields are pointers so that absent
// links are left out of the payload instead of being encoded as null.
type Claims struct {
	UserType     principal.Origin `json:"user_type"`
	Role         principal.Role   `json:"role"`
	WardIDs      []int64          `json:"ward_ids,omitempty"`
	UlbID        *int64           `json:"ulb_id,omitempty"`
	WardID       *int64           `json:"ward_id,omitempty"`
	EOID         *int64           `json:"eo_id,omitempty"`
	SupervisorID *int64           `json:"supervisor_id,omitempty"`
	ContractorID *int64           `json:"contractor_id,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID parses the subject claim.
func (c *Claims) PrincipalID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, apperr.Unauthorized(apperr.ReasonMalformed, "token subject is not a principal id")
	}
	return id, nil
}

// Codec signs and verifies HS256 session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  clockwork.Clock
}

var ErrEmptySecret = errors.New("token secret is empty")

func NewCodec(cfg Config, clock clockwork.Clock) (*Codec, error) {
	if cfg.Secret == "" {
		return nil, ErrEmptySecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Codec{secret: []byte(cfg.Secret), ttl: cfg.TTL, issuer: cfg.Issuer, clock: clock}, nil
}

// Issue signs a token for p and returns it with its expiry.
func (c *Codec) Issue(p principal.Principal) (string, time.Time, error) {
	now := c.clock.Now()
	exp := now.Add(c.ttl)
	claims := Claims{
		UserType: p.Origin(),
		Role:     p.PrincipalRole(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.PrincipalID(), 10),
			Issuer:    c.issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if s, ok := p.(*principal.Staff); ok {
		if len(s.WardIDs) > 0 {
			claims.WardIDs = append([]int64(nil), s.WardIDs...)
		}
		claims.UlbID = s.UlbID
		claims.WardID = s.WardID
		claims.EOID = s.EOID
		claims.SupervisorID = s.SupervisorID
		claims.ContractorID = s.ContractorID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and time window. Failures are Unauthorized
// with reason Expired, NotYetValid or Malformed.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperr.Unauthorized(apperr.ReasonExpired, "token expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, apperr.Unauthorized(apperr.ReasonNotYetValid, "token not valid yet")
	default:
		return nil, &apperr.Error{Kind: apperr.KindUnauthorized, Reason: apperr.ReasonMalformed, Message: "invalid token", Err: err}
	}
	if _, err := claims.PrincipalID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// ExtractBearer pulls the token out of an Authorization header value.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthorized(apperr.ReasonMissingToken, "authorization header is empty")
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", apperr.Unauthorized(apperr.ReasonMalformed, "invalid authorization header format")
	}
	tok := strings.TrimSpace(header[len(prefix):])
	if tok == "" {
		return "", apperr.Unauthorized(apperr.ReasonMalformed, "invalid authorization header format")
	}
	return tok, nil
}
