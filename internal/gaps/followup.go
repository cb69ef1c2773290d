package gaps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/pkg/logger"
)

// Sender delivers a follow-up notification for a gap ticket.
type Sender interface {
	Enabled() bool
	SendFollowUp(ctx context.Context, ticket *models.GapTicket) error
}

// DeliverFollowUp sends the follow-up for one gap ticket and records the
// hand-off. Delivery happens before the notified flag is claimed: a failed
// send returns an error with the ticket still claimable, so the queue's
// retry redelivers instead of losing the notification. A crash between a
// successful send and the claim means at most a duplicate on redelivery,
// never a silent drop.
func DeliverFollowUp(ctx context.Context, db *sqlite.Client, sender Sender, ticketID string) error {
	ticket, err := db.GetGapTicket(ticketID)
	if err != nil {
		return err
	}

	if ticket.Notified {
		logger.Info("Gap ticket already notified, skipping",
			zap.String("ticket_id", ticketID),
		)
		return nil
	}

	if sender != nil && sender.Enabled() {
		if err := sender.SendFollowUp(ctx, ticket); err != nil {
			return fmt.Errorf("failed to deliver gap follow-up: %w", err)
		}
		metrics.GapFollowUpsSent.Inc()
	} else {
		logger.Info("No follow-up sender configured, ticket recorded only",
			zap.String("ticket_id", ticketID),
		)
	}

	claimed, err := db.MarkTicketScheduled(ticketID)
	if err != nil {
		return err
	}
	if !claimed {
		// Lost a race with a concurrent delivery; the duplicate send is
		// the at-least-once cost, the ticket state is already correct.
		logger.Warn("Gap ticket claimed concurrently after send",
			zap.String("ticket_id", ticketID),
		)
	}

	return nil
}
