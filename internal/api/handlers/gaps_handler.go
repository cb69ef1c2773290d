package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/gaps"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/pkg/logger"
)

type GapsHandler struct {
	db      *sqlite.Client
	tracker *gaps.Tracker
}

func NewGapsHandler(db *sqlite.Client, tracker *gaps.Tracker) *GapsHandler {
	return &GapsHandler{db: db, tracker: tracker}
}

// Evaluate runs gap detection on a prompt/answer pair supplied by the
// caller, creating a ticket when specifics are missing.
func (h *GapsHandler) Evaluate(c *fiber.Ctx) error {
	var req struct {
		OrganizationID string `json:"organization_id"`
		Prompt         string `json:"prompt"`
		Answer         string `json:"answer"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.OrganizationID == "" || req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "organization_id and prompt are required",
		})
	}

	result, err := h.tracker.Track(req.OrganizationID, req.Prompt, req.Answer)
	if err != nil {
		logger.Error("Gap evaluation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to evaluate gaps",
		})
	}

	if result == nil {
		return c.JSON(fiber.Map{"gap_detected": false})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"gap_detected": true,
		"ticket_id":    result.TicketID,
		"categories":   result.Categories,
		"due_at":       result.DueAt.Unix(),
		"commitment":   result.Commitment,
	})
}

func (h *GapsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.db.GetGapTicket(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Gap ticket not found",
		})
	}

	return c.JSON(fiber.Map{
		"ticket_id":       ticket.ID,
		"organization_id": ticket.OrganizationID,
		"prompt":          ticket.Prompt,
		"categories":      ticket.Categories,
		"due_at":          ticket.DueAt.Unix(),
		"status":          ticket.Status,
		"notified":        ticket.Notified,
	})
}
