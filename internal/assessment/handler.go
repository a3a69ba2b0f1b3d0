package assessment

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/assessment/entity"
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
	a, err := h.svc.Create(r.Context(), rc, in)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	q := r.URL.Query()
	f := entity.Filter{Status: q.Get("status"), Period: q.Get("period")}
	if v := q.Get("shopId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpjson.WriteError(w, h.logger, apperr.Validation("", "shopId must be numeric"))
			return
		}
		f.ShopID = &id
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
	h.withID(w, r, func(rc access.RequestContext, id int64) (*entity.Assessment, error) {
		return h.svc.Get(r.Context(), rc, id)
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpjson.Decode(w, r, &in); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	h.withID(w, r, func(rc access.RequestContext, id int64) (*entity.Assessment, error) {
		return h.svc.Update(r.Context(), rc, id, in)
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(rc access.RequestContext, id int64) (*entity.Assessment, error) {
		return h.svc.Submit(r.Context(), rc, id)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(rc access.RequestContext, id int64) (*entity.Assessment, error) {
		return h.svc.Approve(r.Context(), rc, id)
	})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Remarks string `json:"remarks"`
	}
	if err := httpjson.Decode(w, r, &body); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	h.withID(w, r, func(rc access.RequestContext, id int64) (*entity.Assessment, error) {
		return h.svc.Reject(r.Context(), rc, id, body.Remarks)
	})
}

func (h *Handler) withID(w http.ResponseWriter, r *http.Request, fn func(access.RequestContext, int64) (*entity.Assessment, error)) {
	rc, _ := access.FromContext(r.Context())
	id, err := httpjson.PathID(r, "id")
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	a, err := fn(rc, id)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, a)
}
