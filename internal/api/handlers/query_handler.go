package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/agent"
	"github.com/math-professor/backend/pkg/logger"
)

type QueryHandler struct {
	agent *agent.Agent
}

func NewQueryHandler(a *agent.Agent) *QueryHandler {
	return &QueryHandler{agent: a}
}

// HandleQuery runs a question through the full pipeline. Filter rejections are
// 400 with the rejection reason; upstream provider failures are a generic 503.
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	resp, err := h.agent.ProcessQuery(c.Context(), req.Question)
	if err != nil {
		if rej, ok := agent.IsRejection(err); ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "Question rejected",
				"reason": rej.Reason,
				"stage":  rej.Stage.String(),
			})
		}
		if errors.Is(err, agent.ErrUpstreamUnavailable) {
			logger.Error("Upstream unavailable", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Service temporarily unavailable. Please try again later.",
			})
		}
		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(resp)
}
