package controllers

import (
	"errors"

	"lessonsync_go/models"
	"lessonsync_go/services/backend"
	"lessonsync_go/services/rulestore"
	"lessonsync_go/services/scheduling"
	"lessonsync_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// statusFor maps an operation error to the HTTP status the API reports
func statusFor(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, models.ErrInvalidRule), errors.Is(err, scheduling.ErrUnknownStrategy):
		return fiber.StatusBadRequest
	case errors.Is(err, scheduling.ErrScheduleNotConfigured), errors.Is(err, scheduling.ErrNoBindings):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, scheduling.ErrAlreadyAssigned):
		return fiber.StatusConflict
	case errors.Is(err, backend.ErrUnsupported):
		return fiber.StatusNotImplemented
	case errors.Is(err, rulestore.ErrNotFound), backend.IsNotFound(err):
		return fiber.StatusNotFound
	case backend.IsUnavailable(err):
		return fiber.StatusBadGateway
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		return apiErr.Status
	}
	return fiber.StatusInternalServerError
}

// respondError writes err with its mapped status
func respondError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	entry := logrus.WithFields(logrus.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"status":     code,
		"request_id": c.Locals("request_id"),
	}).WithError(err)
	if code >= fiber.StatusInternalServerError {
		entry.Error("Scheduling request failed")
	} else {
		entry.Warn("Scheduling request rejected")
	}

	body := fiber.Map{"error": err.Error()}
	if errors.Is(err, backend.ErrUnsupported) {
		body["hint"] = "the backend does not offer this endpoint; use strategy=standard or strategy=force"
	}
	return c.Status(code).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}

// idParam reads a positive numeric route parameter
func idParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := utils.ParseUint(c.Params(name))
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}
