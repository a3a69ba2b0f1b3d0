package repo

import (
	"errors"
	"testing"

	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
)

func TestTranslate(t *testing.T) {
	err := translate(&pq.Error{Code: "23505", Constraint: "shops_shop_number_key"}, "W7-0042")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate number: err = %v, want Conflict", err)
	}
	var e *apperr.Error
	if !errors.As(err, &e) || e.Details["shopNumber"] != "W7-0042" {
		t.Errorf("details = %v", e.Details)
	}
	if err := translate(&pq.Error{Code: "23503", Constraint: "shops_owner_id_fkey"}, "W7-0042"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing owner: err = %v, want Validation", err)
	}
	if translate(nil, "W7-0042") != nil {
		t.Error("nil error translated")
	}
}
