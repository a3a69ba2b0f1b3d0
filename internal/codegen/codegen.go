// Package codegen produces sequential human-readable identifiers such as
// employee codes and assessment numbers.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
)

const (
	DefaultAttempts = 10
	DefaultBackoff  = 25 * time.Millisecond
)

// ErrCodeTaken is returned by an insert callback when the candidate code hit a
// unique constraint. Any other error aborts generation immediately.
var ErrCodeTaken = errors.New("code already taken")

var rolePrefixes = map[principal.Role]string{
	principal.RoleClerk:       "CLK",
	principal.RoleInspector:   "INSP",
	principal.RoleOfficer:     "OFF",
	principal.RoleCollector:   "COL",
	principal.RoleEO:          "EO",
	principal.RoleSupervisor:  "SUP",
	principal.RoleFieldWorker: "FW",
	principal.RoleContractor:  "CON",
	principal.RoleStaffAdmin:  "ADM",
}

// RolePrefix returns the employee code prefix for a staff role.
func RolePrefix(role principal.Role) (string, bool) {
	p, ok := rolePrefixes[role]
	return p, ok
}

// EmployeeCode formats a staff code, e.g. CLK-0042.
func EmployeeCode(prefix string, seq int) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

// AssessmentNumber formats an assessment number, e.g. SHOP-2026-00017.
func AssessmentNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}

// Generator runs the read-count-then-insert loop. Collisions are detected
// after the write and retried with the next sequence number.
type Generator struct {
	attempts uint64
	backoff  time.Duration
	logger   *zap.SugaredLogger
}

func NewGenerator(attempts int, backoff time.Duration, logger *zap.SugaredLogger) *Generator {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Generator{attempts: uint64(attempts), backoff: backoff, logger: logger}
}

// Generate formats candidates from count+1 upwards and hands each to insert
// until one is stored. It returns the stored code.
func (g *Generator) Generate(ctx context.Context, count int, format func(seq int) string, insert func(ctx context.Context, code string) error) (string, error) {
	var (
		attempt int
		code    string
	)
	b := retry.WithMaxRetries(g.attempts-1, retry.NewConstant(g.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		code = format(count + 1 + attempt)
		attempt++
		err := insert(ctx, code)
		if errors.Is(err, ErrCodeTaken) {
			g.logger.Debugw("generated code collided", "code", code, "attempt", attempt)
			return retry.RetryableError(err)
		}
		return err
	})
	switch {
	case err == nil:
		return code, nil
	case errors.Is(err, ErrCodeTaken):
		g.logger.Errorw("code generation exhausted", "attempts", attempt, "last", code)
		return "", apperr.New(apperr.KindInternal, apperr.ReasonGenerationExhausted,
			"no free code after %d attempts", attempt)
	default:
		return "", err
	}
}
