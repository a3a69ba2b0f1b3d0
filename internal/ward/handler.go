package ward

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
)

// Handler contains dependencies for handling ulb and ward endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type createULBRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func (h *Handler) CreateULB(w http.ResponseWriter, r *http.Request) {
	var req createULBRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.CreateULB(r.Context(), req.Name, req.Code)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, u)
}

type createWardRequest struct {
	UlbID  int64  `json:"ulbId"`
	Number string `json:"number"`
	Name   string `json:"name"`
}

func (h *Handler) CreateWard(w http.ResponseWriter, r *http.Request) {
	var req createWardRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	ward, err := h.svc.CreateWard(r.Context(), req.UlbID, req.Number, req.Name)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, ward)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	var ulbID *int64
	if v := r.URL.Query().Get("ulbId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpjson.WriteError(w, h.logger, apperr.Validation("", "ulbId must be numeric"))
			return
		}
		ulbID = &id
	}
	wards, err := h.svc.List(r.Context(), rc, ulbID)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, wards)
}
