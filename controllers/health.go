package controllers

import (
	"time"

	"lessonsync_go/services"

	"github.com/gofiber/fiber/v2"
)

// HealthController exposes comprehensive health endpoints.
type HealthController struct {
	service *services.HealthService
}

// NewHealthController constructs a controller backed by the provided service.
func NewHealthController(service *services.HealthService) *HealthController {
	if service == nil {
		service = services.NewHealthService(services.HealthOptions{})
	}
	return &HealthController{service: service}
}

// GetHealthStatus returns the aggregated health report.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	report := hc.service.GetHealthReport(c.UserContext())
	statusCode := hc.service.HTTPStatusForOverall(report.Status)
	return c.Status(statusCode).JSON(report)
}

// GetLiveness answers without touching any dependency, for container probes
func (hc *HealthController) GetLiveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
}
