// Package httpjson holds the JSON response helpers shared by the handlers.
package httpjson

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
)

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// MaxBodyBytes caps every decoded request body.
const MaxBodyBytes = 1 << 20

// Decode reads a JSON request body of at most MaxBodyBytes into v, rejecting
// unknown fields.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("", "payload too large").WithDetail("limitBytes", tooLarge.Limit)
		}
		return apperr.Validation("", "invalid payload: "+err.Error())
	}
	return nil
}

// PathID parses a numeric path value such as {id}.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("", name+" must be a positive integer")
	}
	return id, nil
}

// QueryInt reads an optional integer query parameter, returning def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("", name+" must be an integer")
	}
	return n, nil
}

// Status maps an error kind to an HTTP status code.
func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error   string         `json:"error"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError writes err using the taxonomy. Internal errors are logged and
// their message is not echoed to the client.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindInternal {
		if logger != nil {
			logger.Errorw("request failed", "err", err)
		}
		body := errorBody{Error: string(apperr.KindInternal)}
		if e != nil {
			body.Reason = string(e.Reason)
		}
		WriteJSON(w, http.StatusInternalServerError, body)
		return
	}
	WriteJSON(w, Status(e.Kind), errorBody{
		Error:   string(e.Kind),
		Reason:  string(e.Reason),
		Message: e.Message,
		Details: e.Details,
	})
}
