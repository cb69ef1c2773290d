package handlers

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/pkg/logger"
)

// WebSocketHandler streams document processing status to clients waiting
// on an upload. The client subscribes with a document ID and receives
// status updates until the document reaches a terminal state.
type WebSocketHandler struct {
	db           *sqlite.Client
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewWebSocketHandler(db *sqlite.Client) *WebSocketHandler {
	return &WebSocketHandler{
		db:           db,
		pollInterval: 2 * time.Second,
		maxWait:      10 * time.Minute,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type       string `json:"type"`
			DocumentID string `json:"document_id"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			break
		}

		if msg.Type != "subscribe" || msg.DocumentID == "" {
			h.sendError(c, "expected a subscribe message with a document_id")
			continue
		}

		h.streamStatus(c, msg.DocumentID)
	}
}

func (h *WebSocketHandler) streamStatus(c *websocket.Conn, documentID string) {
	deadline := time.Now().Add(h.maxWait)
	lastStatus := ""

	for time.Now().Before(deadline) {
		doc, err := h.db.GetDocument(documentID)
		if err != nil {
			h.sendError(c, "document not found")
			return
		}

		if doc.ProcessingStatus != lastStatus {
			lastStatus = doc.ProcessingStatus

			update := map[string]interface{}{
				"type":        "status",
				"document_id": doc.ID,
				"status":      doc.ProcessingStatus,
			}
			if doc.TotalChunks != nil {
				update["total_chunks"] = *doc.TotalChunks
			}
			if reason, ok := doc.Metadata["failure_reason"]; ok && doc.ProcessingStatus == models.StatusFailed {
				update["failure_reason"] = reason
			}

			if err := c.WriteJSON(update); err != nil {
				logger.Warn("Failed to push status update", zap.Error(err))
				return
			}
		}

		if lastStatus == models.StatusCompleted || lastStatus == models.StatusFailed {
			c.WriteJSON(map[string]interface{}{
				"type":        "complete",
				"document_id": documentID,
				"status":      lastStatus,
			})
			return
		}

		time.Sleep(h.pollInterval)
	}

	h.sendError(c, "timed out waiting for processing to finish")
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
