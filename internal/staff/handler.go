package staff

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
)

// Handler exposes HTTP endpoints for staff administration.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpjson.Decode(w, r, &in); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	created, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.logger.Debugw("create staff rejected", "err", err)
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	q := r.URL.Query()
	f := entity.Filter{Role: q.Get("role"), Status: q.Get("status")}
	if v := q.Get("ulbId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpjson.WriteError(w, h.logger, apperr.Validation("", "ulbId must be numeric"))
			return
		}
		f.UlbID = &id
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
	list, err := h.svc.List(r.Context(), rc, f)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	rc, _ := access.FromContext(r.Context())
	st, err := h.svc.Get(r.Context(), rc, id)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	var in Input
	if err := httpjson.Decode(w, r, &in); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	st, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, st)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	var req statusRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	st, err := h.svc.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	pw, err := h.svc.ResetPassword(r.Context(), id)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, map[string]string{"password": pw})
}
