package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/trendlens/trendlens-go/internal/database"
)

// HealthResponse reports service and dependency status.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
	Resources Resources `json:"resources"`
}

// Services reports dependency health.
type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Resources is a point-in-time system resource snapshot.
type Resources struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	CPUPercent        float64 `json:"cpu_percent"`
}

// HealthHandler serves the health endpoint.
type HealthHandler struct {
	db      *database.PostgresDB
	redis   *database.RedisClient
	version string
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(db *database.PostgresDB, redis *database.RedisClient, version string) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, version: version}
}

// Check reports overall health; degraded dependencies flip the status
// but the endpoint itself always renders.
func (h *HealthHandler) Check(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Services:  Services{Database: "ok", Redis: "ok"},
	}

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Database = "unhealthy"
			response.Status = "degraded"
		}
	}
	if h.redis != nil {
		if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Redis = "unhealthy"
			response.Status = "degraded"
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response.Resources.MemoryUsedPercent = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		response.Resources.CPUPercent = percents[0]
	}

	status := http.StatusOK
	if response.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}
