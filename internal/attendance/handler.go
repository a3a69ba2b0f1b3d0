package attendance

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/httpjson"
)

type Handler struct {
	manager *Manager
	logger  *zap.SugaredLogger
}

func NewHandler(m *Manager, logger *zap.SugaredLogger) *Handler {
	return &Handler{manager: m, logger: logger}
}

// Mine lists the caller's own sessions.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	rc, _ := access.FromContext(r.Context())
	limit, err := httpjson.QueryInt(r, "limit", 30)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	sessions, err := h.manager.History(r.Context(), rc.Principal, limit)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, sessions)
}
