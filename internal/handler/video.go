package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipgen/api/internal/admission"
	"github.com/clipgen/api/internal/middleware"
	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/service"
	"github.com/clipgen/api/internal/store"
	"github.com/clipgen/api/pkg/response"
)

type VideoHandler struct {
	admission *admission.Service
	videos    *service.VideoService
	validator *validator.Validate
}

func NewVideoHandler(admissionSvc *admission.Service, videoSvc *service.VideoService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		admission: admissionSvc,
		videos:    videoSvc,
		validator: v,
	}
}

// Generate handles POST /api/videos/generate
func (h *VideoHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.admission.Admit(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return response.ServiceError(c, "Failed to admit job")
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/videos/status/:jobId
func (h *VideoHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.videos.GetStatus(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to read job status")
	}

	return response.OK(c, result)
}

// Result handles GET /api/videos/result/:jobId
func (h *VideoHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.videos.GetResult(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrNotCompleted) {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, "Failed to read job result")
	}

	return response.OK(c, result)
}

// Queue handles GET /api/queue
func (h *VideoHandler) Queue(c *fiber.Ctx) error {
	result, err := h.videos.GetQueue(c.Context())
	if err != nil {
		return response.ServiceError(c, "Failed to read queue counters")
	}
	return response.OK(c, result)
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
