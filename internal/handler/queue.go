package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/postpilot/api/internal/model"
	"github.com/postpilot/api/pkg/response"
)

// QueueInspector exposes the queue observability surface.
type QueueInspector interface {
	Stats(ctx context.Context) (*model.QueueStats, error)
	ListFailed(ctx context.Context, limit int) ([]model.FailedJob, error)
}

// HealthChecker reports pipeline liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) *model.Health
}

type QueueHandler struct {
	queue  QueueInspector
	health HealthChecker
}

func NewQueueHandler(queue QueueInspector, health HealthChecker) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		health: health,
	}
}

// Stats handles GET /api/queue/stats
func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.queue.Stats(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, stats)
}

// Failed handles GET /api/queue/failed
func (h *QueueHandler) Failed(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	jobs, err := h.queue.ListFailed(c.Context(), limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"jobs": jobs, "count": len(jobs)})
}

// Health handles GET /api/queue/health
func (h *QueueHandler) Health(c *fiber.Ctx) error {
	return response.OK(c, h.health.HealthCheck(c.Context()))
}
