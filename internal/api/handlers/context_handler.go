package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/internal/retrieval"
	"github.com/complyassist/backend/pkg/logger"
)

type ContextHandler struct {
	assembler *retrieval.Assembler
}

func NewContextHandler(assembler *retrieval.Assembler) *ContextHandler {
	return &ContextHandler{assembler: assembler}
}

// AssembleContext returns the sectioned context block for a compliance
// question, without invoking the answer model.
func (h *ContextHandler) AssembleContext(c *fiber.Ctx) error {
	var req struct {
		Query          string `json:"query"`
		OrganizationID string `json:"organization_id"`
		TargetItem     string `json:"target_item"`
		Domain         string `json:"domain"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" || req.OrganizationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query and organization_id are required",
		})
	}

	start := time.Now()
	result, err := h.assembler.Assemble(c.Context(), retrieval.Request{
		Query:          req.Query,
		OrganizationID: req.OrganizationID,
		TargetItem:     req.TargetItem,
		Domain:         req.Domain,
	})
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		logger.Error("Context assembly failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to assemble context",
		})
	}

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.WithLabelValues("context").Observe(time.Since(start).Seconds())

	sources := make([]fiber.Map, 0, len(result.Sources))
	for _, s := range result.Sources {
		sources = append(sources, fiber.Map{
			"chunk_id":       s.ChunkID,
			"document_id":    s.DocumentID,
			"document_title": s.DocumentTitle,
			"score":          s.Score,
			"tier":           string(s.Tier),
			"item_specific":  s.ItemSpecific,
		})
	}

	return c.JSON(fiber.Map{
		"context":    result.ContextBlock,
		"sources":    sources,
		"warning":    result.Warning,
		"latency_ms": result.LatencyMS,
	})
}
