package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/benchmark"
	"github.com/math-professor/backend/internal/ingestion"
	"github.com/math-professor/backend/pkg/logger"
)

type KnowledgeHandler struct {
	processor *ingestion.Processor
	runner    *benchmark.Runner
}

func NewKnowledgeHandler(processor *ingestion.Processor, runner *benchmark.Runner) *KnowledgeHandler {
	return &KnowledgeHandler{processor: processor, runner: runner}
}

// HandleIngest loads a batch of reference records into the knowledge base.
func (h *KnowledgeHandler) HandleIngest(c *fiber.Ctx) error {
	var req struct {
		Records []ingestion.IngestRecord `json:"records"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse ingest body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.Records) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one record is required",
		})
	}

	stored, err := h.processor.Ingest(c.Context(), req.Records)
	if err != nil {
		logger.Error("Failed to ingest records", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest records",
		})
	}

	return c.JSON(fiber.Map{
		"stored":  stored,
		"skipped": len(req.Records) - stored,
	})
}

// HandleBenchmark runs a labeled dataset through the pipeline and returns the
// scoring report. Synchronous: intended for modest datasets during tuning, not
// production traffic.
func (h *KnowledgeHandler) HandleBenchmark(c *fiber.Ctx) error {
	var req struct {
		Items []benchmark.DatasetItem `json:"items"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse benchmark body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.Items) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one dataset item is required",
		})
	}

	report, err := h.runner.Run(c.Context(), req.Items)
	if err != nil {
		logger.Error("Benchmark run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Benchmark run failed",
		})
	}

	return c.JSON(report)
}
