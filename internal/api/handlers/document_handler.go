package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/ingestion"
	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/pkg/logger"
	"github.com/complyassist/backend/pkg/tasks"
)

type DocumentHandler struct {
	db        *sqlite.Client
	processor *ingestion.Processor
	queue     *tasks.Client
}

func NewDocumentHandler(db *sqlite.Client, processor *ingestion.Processor, queue *tasks.Client) *DocumentHandler {
	return &DocumentHandler{
		db:        db,
		processor: processor,
		queue:     queue,
	}
}

// RegisterDocument records document metadata after the payload has been
// uploaded to object storage, then queues processing.
func (h *DocumentHandler) RegisterDocument(c *fiber.Ctx) error {
	var req struct {
		ID             string                 `json:"id"`
		OrganizationID string                 `json:"organization_id"`
		Title          string                 `json:"title"`
		FileName       string                 `json:"file_name"`
		MediaType      string                 `json:"media_type"`
		SizeBytes      int64                  `json:"size_bytes"`
		Metadata       map[string]interface{} `json:"metadata"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.OrganizationID == "" || req.FileName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "organization_id and file_name are required",
		})
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Title == "" {
		req.Title = req.FileName
	}

	now := time.Now()
	doc := &models.Document{
		ID:               req.ID,
		OrganizationID:   req.OrganizationID,
		Title:            req.Title,
		FileName:         req.FileName,
		MediaType:        req.MediaType,
		SizeBytes:        req.SizeBytes,
		ProcessingStatus: models.StatusPending,
		Metadata:         req.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.db.InsertDocument(doc); err != nil {
		logger.Error("Failed to register document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to register document",
		})
	}

	taskID, err := h.queue.EnqueueDocumentProcess(tasks.DocumentProcessPayload{DocumentID: doc.ID})
	if err != nil {
		logger.Error("Failed to queue document processing", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Document registered but processing could not be queued",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"document_id": doc.ID,
		"task_id":     taskID,
		"status":      doc.ProcessingStatus,
	})
}

// ProcessDocument triggers a processing run with explicit options. Dry runs
// execute synchronously and return the preview; everything else is queued.
func (h *DocumentHandler) ProcessDocument(c *fiber.Ctx) error {
	documentID := c.Params("id")

	var req struct {
		ForceReprocess     bool `json:"force_reprocess"`
		EmergencyChunking  bool `json:"emergency_chunking"`
		GovernanceDocument bool `json:"governance_document"`
		DryRun             bool `json:"dry_run"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	if req.DryRun {
		result, err := h.processor.ProcessDocument(c.Context(), documentID, ingestion.Options{
			GovernanceDocument: req.GovernanceDocument,
			EmergencyChunking:  req.EmergencyChunking,
			DryRun:             true,
		})
		if err != nil {
			logger.Error("Dry run failed", zap.String("document_id", documentID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Dry run failed",
			})
		}
		return c.JSON(fiber.Map{
			"document_id":       documentID,
			"dry_run":           true,
			"extraction_method": result.Preview.ExtractionMethod,
			"chunk_count":       result.Preview.ChunkCount,
			"chunk_previews":    result.Preview.ChunkPreviews,
		})
	}

	taskID, err := h.queue.EnqueueDocumentProcess(tasks.DocumentProcessPayload{
		DocumentID:         documentID,
		ForceReprocess:     req.ForceReprocess,
		EmergencyChunking:  req.EmergencyChunking,
		GovernanceDocument: req.GovernanceDocument,
	})
	if err != nil {
		logger.Error("Failed to queue document processing", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to queue document processing",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"document_id": documentID,
		"task_id":     taskID,
	})
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.db.GetDocument(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	resp := fiber.Map{
		"document_id":       doc.ID,
		"organization_id":   doc.OrganizationID,
		"title":             doc.Title,
		"file_name":         doc.FileName,
		"processing_status": doc.ProcessingStatus,
		"metadata":          doc.Metadata,
		"updated_at":        doc.UpdatedAt.Unix(),
	}
	if doc.TotalChunks != nil {
		resp["total_chunks"] = *doc.TotalChunks
	}
	return c.JSON(resp)
}
