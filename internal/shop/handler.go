package shop

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/shop/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	var in CreateInput
	if err := httpjson.Decode(w, r, &in); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	sh, err := h.svc.Create(r.Context(), rc, in)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, sh)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	sh, err := h.svc.Get(r.Context(), rc, id)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	f := entity.Filter{Status: r.URL.Query().Get("status")}
	var err error
	if f.Limit, err = httpjson.QueryInt(r, "limit", 100); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	if f.Offset, err = httpjson.QueryInt(r, "offset", 0); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	shops, err := h.svc.List(r.Context(), rc, f)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, shops)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	sh, err := h.svc.Close(r.Context(), rc, id)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, sh)
}
