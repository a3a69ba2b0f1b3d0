package codegen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
)

func TestFormats(t *testing.T) {
	if got := EmployeeCode("CLK", 42); got != "CLK-0042" {
		t.Errorf("EmployeeCode = %s", got)
	}
	if got := AssessmentNumber("SHOP", 2026, 17); got != "SHOP-2026-00017" {
		t.Errorf("AssessmentNumber = %s", got)
	}
	for _, r := range principal.StaffRoles {
		if _, ok := RolePrefix(r); !ok {
			t.Errorf("no prefix for %s", r)
		}
	}
	if p, _ := RolePrefix(principal.RoleFieldWorker); p != "FW" {
		t.Errorf("field worker prefix = %s", p)
	}
	if _, ok := RolePrefix(principal.RoleCitizen); ok {
		t.Error("citizen should have no prefix")
	}
}

func TestGenerateRetriesPastCollisions(t *testing.T) {
	g := NewGenerator(DefaultAttempts, time.Millisecond, nil)
	var tried []string
	code, err := g.Generate(context.Background(), 7, func(seq int) string { return EmployeeCode("SUP", seq) },
		func(_ context.Context, code string) error {
			tried = append(tried, code)
			if len(tried) <= 3 {
				return ErrCodeTaken
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(tried) != 4 {
		t.Fatalf("attempts = %d, want 4", len(tried))
	}
	if code != "SUP-0011" || code != tried[3] {
		t.Errorf("code = %s, tried %v", code, tried)
	}
	seen := map[string]bool{}
	for _, c := range tried {
		if seen[c] {
			t.Errorf("candidate %s repeated", c)
		}
		seen[c] = true
	}
}

func TestGenerateExhausted(t *testing.T) {
	g := NewGenerator(DefaultAttempts, time.Millisecond, nil)
	calls := 0
	_, err := g.Generate(context.Background(), 0, func(seq int) string { return EmployeeCode("EO", seq) },
		func(context.Context, string) error {
			calls++
			return ErrCodeTaken
		})
	if !errors.Is(err, apperr.ErrGenerationExhausted) {
		t.Fatalf("err = %v, want GenerationExhausted", err)
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestGenerateStopsOnOtherErrors(t *testing.T) {
	g := NewGenerator(DefaultAttempts, time.Millisecond, nil)
	boom := errors.New("connection refused")
	calls := 0
	_, err := g.Generate(context.Background(), 0, func(seq int) string { return EmployeeCode("FW", seq) },
		func(context.Context, string) error {
			calls++
			return boom
		})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("err = %v after %d calls", err, calls)
	}
}
