package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/conversation"
	"github.com/complyassist/backend/internal/gaps"
	"github.com/complyassist/backend/internal/llm"
	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/internal/retrieval"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/pkg/logger"
)

type ConversationHandler struct {
	db        *sqlite.Client
	assembler *retrieval.Assembler
	llmClient *llm.Client
	manager   *conversation.Manager
	tracker   *gaps.Tracker
}

func NewConversationHandler(db *sqlite.Client, assembler *retrieval.Assembler, llmClient *llm.Client, manager *conversation.Manager, tracker *gaps.Tracker) *ConversationHandler {
	return &ConversationHandler{
		db:        db,
		assembler: assembler,
		llmClient: llmClient,
		manager:   manager,
		tracker:   tracker,
	}
}

// Ask runs the full answer flow: retrieve context, include recent history,
// generate the answer, track knowledge gaps and record the turn.
func (h *ConversationHandler) Ask(c *fiber.Ctx) error {
	var req struct {
		OrganizationID string `json:"organization_id"`
		UserID         string `json:"user_id"`
		Prompt         string `json:"prompt"`
		TargetItem     string `json:"target_item"`
		Domain         string `json:"domain"`
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

	start := time.Now()

	ctxResult, err := h.assembler.Assemble(c.Context(), retrieval.Request{
		Query:          req.Prompt,
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

	history, err := h.manager.History(req.OrganizationID)
	if err != nil {
		logger.Warn("Conversation history unavailable", zap.Error(err))
	}

	answer, err := h.llmClient.GenerateAnswer(c.Context(), req.Prompt, ctxResult.ContextBlock, history)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		logger.Error("Answer generation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate answer",
		})
	}

	responseText := answer.Content

	gap, err := h.tracker.Track(req.OrganizationID, req.Prompt, responseText)
	if err != nil {
		logger.Warn("Gap tracking failed", zap.Error(err))
	}
	if gap != nil {
		responseText += "\n\n" + gap.Commitment
	}

	turn, err := h.manager.Record(req.OrganizationID, req.UserID, req.Prompt, responseText, answer.ID)
	if err != nil {
		logger.Error("Failed to record conversation turn", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record conversation turn",
		})
	}

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.WithLabelValues("conversation").Observe(time.Since(start).Seconds())

	resp := fiber.Map{
		"turn_id":    turn.ID,
		"response":   responseText,
		"warning":    ctxResult.Warning,
		"latency_ms": int(time.Since(start).Milliseconds()),
	}
	if gap != nil {
		resp["gap_ticket_id"] = gap.TicketID
		resp["gap_categories"] = gap.Categories
		resp["gap_due_at"] = gap.DueAt.Unix()
	}
	return c.JSON(resp)
}

// AppendTurn records an externally completed exchange, such as an answer
// produced by a tester session, without generating anything.
func (h *ConversationHandler) AppendTurn(c *fiber.Ctx) error {
	var req struct {
		OrganizationID     string `json:"organization_id"`
		UserID             string `json:"user_id"`
		Prompt             string `json:"prompt"`
		Response           string `json:"response"`
		UpstreamResponseID string `json:"upstream_response_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.OrganizationID == "" || req.Prompt == "" || req.Response == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "organization_id, prompt and response are required",
		})
	}

	turn, err := h.manager.Record(req.OrganizationID, req.UserID, req.Prompt, req.Response, req.UpstreamResponseID)
	if err != nil {
		logger.Error("Failed to record conversation turn", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record conversation turn",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"turn_id":    turn.ID,
		"created_at": turn.CreatedAt.Unix(),
	})
}

// History returns the recent turns for an organization, oldest first.
func (h *ConversationHandler) History(c *fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "organization_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)
	turns, err := h.db.GetRecentTurns(organizationID, limit)
	if err != nil {
		logger.Error("Failed to load conversation history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load conversation history",
		})
	}

	latestResponseID, err := h.manager.LatestResponseID(organizationID)
	if err != nil {
		logger.Warn("Failed to load latest response ID", zap.Error(err))
	}

	out := make([]fiber.Map, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		out = append(out, fiber.Map{
			"turn_id":    t.ID,
			"user_id":    t.UserID,
			"prompt":     t.Prompt,
			"response":   t.Response,
			"created_at": t.CreatedAt.Unix(),
		})
	}
	return c.JSON(fiber.Map{
		"turns":              out,
		"latest_response_id": latestResponseID,
	})
}
