package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/feedback"
	"github.com/math-professor/backend/internal/metrics"
	"github.com/math-professor/backend/pkg/logger"
)

type FeedbackHandler struct {
	service *feedback.Service
}

func NewFeedbackHandler(service *feedback.Service) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

// HandleSubmit records feedback for a delivered response. Unknown query IDs
// are 404; out-of-range ratings are 400. When the user marked the answer
// incorrect the refined version, if one was produced, comes back in the body.
func (h *FeedbackHandler) HandleSubmit(c *fiber.Ctx) error {
	var req struct {
		QueryID         string `json:"query_id"`
		Rating          int    `json:"rating"`
		IsCorrect       bool   `json:"is_correct"`
		Comment         string `json:"comment"`
		SuggestedAnswer string `json:"suggested_answer"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse feedback body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.service.Submit(c.Context(), feedback.SubmitRequest{
		QueryID:         req.QueryID,
		Rating:          req.Rating,
		IsCorrect:       req.IsCorrect,
		Comment:         req.Comment,
		SuggestedAnswer: req.SuggestedAnswer,
	})
	if err != nil {
		if errors.Is(err, feedback.ErrUnknownQuery) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Unknown query_id: no response on record",
			})
		}
		if errors.Is(err, feedback.ErrInvalidRating) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Rating must be between 1 and 5",
			})
		}
		logger.Error("Failed to submit feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit feedback",
		})
	}

	metrics.FeedbackRatings.Observe(float64(req.Rating))
	metrics.FeedbackTotal.WithLabelValues(strconv.FormatBool(req.IsCorrect)).Inc()

	body := fiber.Map{"accepted": result.Accepted}
	if result.Refined != nil {
		metrics.RefinementsTotal.Inc()
		body["refined_response"] = result.Refined
	}

	return c.JSON(body)
}

// HandleStatistics returns the running aggregate over all feedback.
func (h *FeedbackHandler) HandleStatistics(c *fiber.Ctx) error {
	return c.JSON(h.service.Statistics())
}
