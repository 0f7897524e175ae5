package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"polls-backend/database"
	"polls-backend/middleware"
	"polls-backend/mq"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Version is overridden at build time with -ldflags "-X polls-backend/handlers.Version=...".
var Version = "0.1.0"

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string                      `json:"status"`
	Version      string                      `json:"version"`
	Uptime       string                      `json:"uptime"`
	StartTime    time.Time                   `json:"start_time"`
	CurrentTime  time.Time                   `json:"current_time"`
	GoVersion    string                      `json:"go_version"`
	NumGoroutine int                         `json:"num_goroutine"`
	NumCPU       int                         `json:"num_cpu"`
	DBStatus     string                      `json:"db_status"`
	Broker       string                      `json:"broker"`
	RateLimiter  middleware.RateLimiterStats `json:"rate_limiter"`
}

// HealthHandler reports liveness and dependency status.
type HealthHandler struct {
	db      *gorm.DB
	broker  mq.Broker
	limiter *middleware.VoteRateLimiter
	started time.Time
}

// NewHealthHandler reports on db, broker and limiter; uptime counts from now.
func NewHealthHandler(db *gorm.DB, broker mq.Broker, limiter *middleware.VoteRateLimiter) *HealthHandler {
	return &HealthHandler{db: db, broker: broker, limiter: limiter, started: time.Now()}
}

// HealthCheck answers liveness checks without touching any dependency.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus answers 503 when the database does not respond.
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	dbStatus := "ok"
	if err := database.Ping(ctx, h.db); err != nil {
		status, code, dbStatus = "degraded", http.StatusServiceUnavailable, "error"
	}

	broker := "none"
	if h.broker != nil {
		broker = h.broker.Name()
	}

	now := time.Now()
	c.JSON(code, SystemInfo{
		Status:       status,
		Version:      Version,
		Uptime:       now.Sub(h.started).Round(time.Second).String(),
		StartTime:    h.started,
		CurrentTime:  now,
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     dbStatus,
		Broker:       broker,
		RateLimiter:  h.limiter.Stats(),
	})
}
