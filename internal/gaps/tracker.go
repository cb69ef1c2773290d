// Package gaps detects compliance questions the knowledge base cannot yet
// answer with specifics and turns them into tracked follow-up tickets.
package gaps

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/pkg/logger"
	"github.com/complyassist/backend/pkg/tasks"
)

type Tracker struct {
	db       *sqlite.Client
	queue    *tasks.Client
	followUp time.Duration
}

// TrackResult describes a recorded gap and the commitment the assistant
// should relay to the user.
type TrackResult struct {
	TicketID   string
	Categories []string
	DueAt      time.Time
	Commitment string
}

func NewTracker(db *sqlite.Client, queue *tasks.Client, followUpHours int) *Tracker {
	return &Tracker{
		db:       db,
		queue:    queue,
		followUp: time.Duration(followUpHours) * time.Hour,
	}
}

// Track inspects a prompt/answer pair. When the answer leaves asked-for
// specifics unanswered, a ticket is created with a follow-up deadline and a
// best-effort notification task is scheduled. A nil result means no gap.
func (t *Tracker) Track(organizationID, prompt, answer string) (*TrackResult, error) {
	missing := Detect(prompt, answer)
	if len(missing) == 0 {
		return nil, nil
	}

	now := time.Now()
	ticket := &models.GapTicket{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		Prompt:         prompt,
		Categories:     missing,
		DueAt:          now.Add(t.followUp),
		Status:         models.TicketPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := t.db.InsertGapTicket(ticket); err != nil {
		return nil, fmt.Errorf("failed to record gap ticket: %w", err)
	}

	for _, cat := range missing {
		metrics.GapTicketsCreated.WithLabelValues(cat).Inc()
	}

	// Scheduling is best effort: the ticket row is the durable record, a
	// worker sweep picks up anything the queue missed.
	if t.queue != nil {
		_, err := t.queue.EnqueueGapFollowUp(tasks.GapFollowUpPayload{TicketID: ticket.ID}, ticket.DueAt)
		if err != nil {
			logger.Warn("Failed to schedule gap follow-up",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("Gap ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("organization_id", organizationID),
		zap.Strings("categories", missing),
		zap.Time("due_at", ticket.DueAt),
	)

	return &TrackResult{
		TicketID:   ticket.ID,
		Categories: missing,
		DueAt:      ticket.DueAt,
		Commitment: commitment(ticket.DueAt),
	}, nil
}

func commitment(dueAt time.Time) string {
	return fmt.Sprintf(
		"I don't yet have the specific details needed to fully answer this. A follow-up has been logged and a complete answer will be available by %s.",
		dueAt.Format("January 2, 2006 at 3:04 PM"),
	)
}
