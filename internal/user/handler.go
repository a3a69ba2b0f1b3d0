package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
)

// Handler exposes the citizen self-registration endpoint.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		httpjson.WriteError(w, h.logger, err)
		return
	}
	p, err := h.svc.Signup(r.Context(), SignupInput(req))
	if err != nil {
		h.logger.Warnw("signup failed", "err", err)
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, p)
}
