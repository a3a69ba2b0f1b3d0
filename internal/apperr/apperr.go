// Package apperr defines the error taxonomy shared by every service: a coarse
// Kind that decides how the caller reacts (and which HTTP status is returned)
// and a finer Reason naming the rule that failed.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the coarse error class.
type Kind string

const (
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindInternal           Kind = "internal"
)

// Reason names the specific rule that produced the error. Empty when the kind
// alone is enough.
type Reason string

const (
	ReasonMissingToken        Reason = "missing_token"
	ReasonMalformed           Reason = "malformed"
	ReasonExpired             Reason = "expired"
	ReasonNotYetValid         Reason = "not_yet_valid"
	ReasonPrincipalNotFound   Reason = "principal_not_found"
	ReasonInactive            Reason = "inactive"
	ReasonBadCredentials      Reason = "bad_credentials"
	ReasonInvalidWard         Reason = "invalid_ward"
	ReasonWardUlbMismatch     Reason = "ward_ulb_mismatch"
	ReasonInvalidParent       Reason = "invalid_parent"
	ReasonWorkerNotEligible   Reason = "worker_not_eligible"
	ReasonWardTaken           Reason = "ward_taken"
	ReasonSubjectClosed       Reason = "subject_closed"
	ReasonDuplicateForPeriod  Reason = "duplicate_for_period"
	ReasonInvalidTransition   Reason = "invalid_transition"
	ReasonGenerationExhausted Reason = "generation_exhausted"
)

// Error is the concrete error carried across package boundaries.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	// Details holds structured context such as offending ward IDs.
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += "/" + string(e.Reason)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by reason when the target sets one.
// Callers compare against the sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// New builds an error of the given kind and reason.
func New(kind Kind, reason Reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail returns e with an extra detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func Unauthorized(reason Reason, msg string) *Error { return New(KindUnauthorized, reason, "%s", msg) }
func Forbidden(msg string) *Error { return New(KindForbidden, "", "%s", msg) }
func Validation(reason Reason, msg string) *Error { return New(KindValidation, reason, "%s", msg) }
func Conflict(reason Reason, msg string) *Error { return New(KindConflict, reason, "%s", msg) }
func NotFound(msg string) *Error { return New(KindNotFound, "", "%s", msg) }
func Precondition(reason Reason, msg string) *Error {
	return New(KindPreconditionFailed, reason, "%s", msg)
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrPrecondition        = &Error{Kind: KindPreconditionFailed}
	ErrInternal            = &Error{Kind: KindInternal}
	ErrExpired             = &Error{Kind: KindUnauthorized, Reason: ReasonExpired}
	ErrInactive            = &Error{Kind: KindUnauthorized, Reason: ReasonInactive}
	ErrBadCredentials      = &Error{Kind: KindUnauthorized, Reason: ReasonBadCredentials}
	ErrInvalidWard         = &Error{Kind: KindValidation, Reason: ReasonInvalidWard}
	ErrWardUlbMismatch     = &Error{Kind: KindValidation, Reason: ReasonWardUlbMismatch}
	ErrInvalidParent       = &Error{Kind: KindValidation, Reason: ReasonInvalidParent}
	ErrWorkerNotEligible   = &Error{Kind: KindValidation, Reason: ReasonWorkerNotEligible}
	ErrSubjectClosed       = &Error{Kind: KindPreconditionFailed, Reason: ReasonSubjectClosed}
	ErrDuplicateForPeriod  = &Error{Kind: KindConflict, Reason: ReasonDuplicateForPeriod}
	ErrInvalidTransition   = &Error{Kind: KindPreconditionFailed, Reason: ReasonInvalidTransition}
	ErrGenerationExhausted = &Error{Kind: KindInternal, Reason: ReasonGenerationExhausted}
)

// KindOf returns the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason of err, or "" when none is set.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
