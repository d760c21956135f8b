package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"community_hub/internal/realtime"
)

type HealthHandler struct {
	db  *pgxpool.Pool
	rdb *redis.Client
	hub *realtime.Hub
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, hub: hub}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "ok"
	if err := h.db.Ping(ctx); err != nil {
		dbStatus = "unavailable"
	}

	redisStatus := "ok"
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		redisStatus = "unavailable"
	}

	status := http.StatusOK
	if dbStatus != "ok" || redisStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":      dbStatus,
		"redis":       redisStatus,
		"connections": h.hub.OnlineCount(),
		"service":     "community-hub",
	})
}
