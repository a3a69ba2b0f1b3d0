package task

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/task/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	var in AssignInput
	if err := httpjson.Decode(w, r, &in); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	t, err := h.svc.Assign(r.Context(), rc, in)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	q := r.URL.Query()
	f := entity.Filter{Status: q.Get("status")}
	for key, dst := range map[string]**int64{"workerId": &f.WorkerID, "supervisorId": &f.SupervisorID} {
		if v := q.Get(key); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				httpjson.WriteError(w, h.logger, apperr.Validation("", key+" must be numeric"))
				return
			}
			*dst = &id
		}
	}
	if v := q.Get("escalated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httpjson.WriteError(w, h.logger, apperr.Validation("", "escalated must be a boolean"))
			return
		}
		f.Escalated = &b
	}
	var err error
	if f.Limit, err = httpjson.QueryInt(r, "limit", 100); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	if f.Offset, err = httpjson.QueryInt(r, "offset", 0); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	tasks, err := h.svc.List(r.Context(), rc, f)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, tasks)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	var body struct {
		Status     string  `json:"status"`
		AfterPhoto *string `json:"afterPhoto"`
	}
	if err := httpjson.Decode(w, r, &body); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	t, err := h.svc.UpdateStatus(r.Context(), rc, id, body.Status, body.AfterPhoto)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	t, err := h.svc.Escalate(r.Context(), rc, id)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	t, err := h.svc.Get(r.Context(), rc, id)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, t)
}
