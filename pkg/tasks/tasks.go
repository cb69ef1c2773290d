// Package tasks defines the background task types and payloads shared by
// the API server (producer) and the worker (consumer).
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeDocumentProcess = "document:process"
	TypeGapFollowUp     = "gap:followup"
)

const (
	QueueDefault   = "default"
	QueueIngestion = "ingestion"
)

type DocumentProcessPayload struct {
	DocumentID         string `json:"document_id"`
	ForceReprocess     bool   `json:"force_reprocess"`
	EmergencyChunking  bool   `json:"emergency_chunking"`
	GovernanceDocument bool   `json:"governance_document"`
}

type GapFollowUpPayload struct {
	TicketID string `json:"ticket_id"`
}

func NewDocumentProcessTask(payload DocumentProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document process payload: %w", err)
	}
	return asynq.NewTask(TypeDocumentProcess, data,
		asynq.Queue(QueueIngestion),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	), nil
}

func NewGapFollowUpTask(payload GapFollowUpPayload, dueAt time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gap follow-up payload: %w", err)
	}
	return asynq.NewTask(TypeGapFollowUp, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.ProcessAt(dueAt),
	), nil
}
