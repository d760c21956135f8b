package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"community_hub/internal/service"
	"community_hub/pkg/logger"
)

type PresenceHandler struct {
	presenceService service.PresenceService
	log             logger.Logger
}

func NewPresenceHandler(presenceService service.PresenceService, log logger.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		log:             log,
	}
}

// List возвращает текущий онлайн-состав по presence-ключам Redis
func (h *PresenceHandler) List(c *gin.Context) {
	users, err := h.presenceService.OnlineUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"online": users,
		"count":  len(users),
	})
}
