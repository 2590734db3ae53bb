package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/postpilot/api/internal/service"
	"github.com/postpilot/api/pkg/response"
)

type ScheduleHandler struct {
	service   *service.ScheduleService
	validator *validator.Validate
}

func NewScheduleHandler(svc *service.ScheduleService, v *validator.Validate) *ScheduleHandler {
	return &ScheduleHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/schedules
func (h *ScheduleHandler) Create(c *fiber.Ctx) error {
	var req service.ScheduleCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	entry, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	return response.Created(c, entry)
}

// Get handles GET /api/schedules/:scheduleId
func (h *ScheduleHandler) Get(c *fiber.Ctx) error {
	scheduleID := c.Params("scheduleId")
	if scheduleID == "" {
		return response.ValidationError(c, "Schedule ID is required", nil)
	}

	view, err := h.service.Get(c.Context(), scheduleID)
	if err != nil {
		if errors.Is(err, service.ErrScheduleNotFound) {
			return response.NotFound(c, "Schedule not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, view)
}

// Cancel handles POST /api/schedules/:scheduleId/cancel
func (h *ScheduleHandler) Cancel(c *fiber.Ctx) error {
	scheduleID := c.Params("scheduleId")
	if scheduleID == "" {
		return response.ValidationError(c, "Schedule ID is required", nil)
	}

	if err := h.service.Cancel(c.Context(), scheduleID); err != nil {
		if errors.Is(err, service.ErrScheduleNotFound) {
			return response.NotFound(c, "Schedule not found")
		}
		if errors.Is(err, service.ErrScheduleNotPending) {
			return response.Conflict(c, "Schedule already started or finished")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

// Retry handles POST /api/schedules/:scheduleId/retry
func (h *ScheduleHandler) Retry(c *fiber.Ctx) error {
	scheduleID := c.Params("scheduleId")
	if scheduleID == "" {
		return response.ValidationError(c, "Schedule ID is required", nil)
	}

	entry, err := h.service.Retry(c.Context(), scheduleID)
	if err != nil {
		if errors.Is(err, service.ErrScheduleNotFound) {
			return response.NotFound(c, "Schedule not found")
		}
		if errors.Is(err, service.ErrScheduleNotRetryable) {
			return response.Conflict(c, "Only failed schedules can be retried")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, entry)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
