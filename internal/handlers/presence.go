package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/gobychat/internal/domain"
)

// OnlineLister reports the current presence set.
type OnlineLister interface {
	Online() []domain.Identity
}

// PresenceHandler handles presence-related HTTP requests
type PresenceHandler struct {
	online OnlineLister
}

func NewPresenceHandler(online OnlineLister) *PresenceHandler {
	return &PresenceHandler{online: online}
}

// GetPresence returns the current online users as JSON
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	users := h.online.Online()
	return c.JSON(http.StatusOK, PresenceResponse{OnlineUsers: users, Count: len(users)})
}
