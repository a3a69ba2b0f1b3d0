package auth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpjson.Decode(w, r, &in); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	if in.DeviceInfo == "" {
		in.DeviceInfo = r.UserAgent()
	}
	sess, err := h.svc.Login(r.Context(), in)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, sess)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	h.svc.Logout(r.Context(), rc.Principal)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	httpjson.WriteJSON(w, http.StatusOK, Me{
		UserType:  rc.Principal.Origin(),
		Principal: rc.Principal,
		Scope:     viewOf(rc.Scope),
	})
}
