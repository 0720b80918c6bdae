package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/award"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/tender"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/redis"
)

// HealthStatus represents the health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// CheckResult represents the result of a single dependency check
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// BacklogResult reports how many source rows still await processing
type BacklogResult struct {
	UnfedTenders      int `json:"unfed_tenders"`
	UnextractedAwards int `json:"unextracted_awards"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status     HealthStatus           `json:"status"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	Backlog    *BacklogResult         `json:"backlog,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db         database.DB
	redis      *redis.Client
	tenderRepo *tender.Repository
	awardRepo  *award.Repository
	startTime  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db database.DB, redisClient *redis.Client, tenderRepo *tender.Repository, awardRepo *award.Repository) *HealthHandler {
	return &HealthHandler{
		db:         db,
		redis:      redisClient,
		tenderRepo: tenderRepo,
		awardRepo:  awardRepo,
		startTime:  time.Now(),
	}
}

// Liveness reports that the process is running
// GET /health/live
func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:     StatusHealthy,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		ReportedAt: time.Now().UTC(),
	})
}

// Readiness reports whether the service can reach its dependencies, with the
// current processing backlog attached for operators
// GET /health/ready
func (h *HealthHandler) Readiness(c echo.Context) error {
	ctx := c.Request().Context()

	checks := map[string]CheckResult{
		"database": h.checkDatabase(ctx),
		"redis":    h.checkRedis(ctx),
	}

	status := StatusHealthy
	statusCode := http.StatusOK
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			status = StatusUnhealthy
			statusCode = http.StatusServiceUnavailable
		}
	}

	resp := HealthResponse{
		Status:     status,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now().UTC(),
	}

	if status == StatusHealthy {
		if backlog, err := h.backlog(ctx); err == nil {
			resp.Backlog = backlog
		}
	}

	return c.JSON(statusCode, resp)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Latency: time.Since(start).String()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func (h *HealthHandler) checkRedis(ctx context.Context) CheckResult {
	if h.redis == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "redis not configured"}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.redis.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Latency: time.Since(start).String()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func (h *HealthHandler) backlog(ctx context.Context) (*BacklogResult, error) {
	unfedTenders, err := h.tenderRepo.CountUnfed(ctx)
	if err != nil {
		return nil, err
	}
	unextracted, err := h.awardRepo.CountUnextracted(ctx)
	if err != nil {
		return nil, err
	}
	return &BacklogResult{
		UnfedTenders:      unfedTenders,
		UnextractedAwards: unextracted,
	}, nil
}
