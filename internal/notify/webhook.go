// Package notify delivers gap follow-up notifications to an external
// webhook, typically a ticketing or chat integration.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/pkg/logger"
	"github.com/complyassist/backend/pkg/retry"
)

type Dispatcher struct {
	webhookURL string
	httpClient *http.Client
}

type followUpMessage struct {
	TicketID       string   `json:"ticket_id"`
	OrganizationID string   `json:"organization_id"`
	Prompt         string   `json:"prompt"`
	Categories     []string `json:"categories"`
	DueAt          string   `json:"due_at"`
}

func NewDispatcher(webhookURL string) *Dispatcher {
	return &Dispatcher{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook endpoint is configured.
func (d *Dispatcher) Enabled() bool {
	return d.webhookURL != ""
}

// SendFollowUp posts a gap ticket to the webhook with retries. Non-2xx
// responses are treated as delivery failures.
func (d *Dispatcher) SendFollowUp(ctx context.Context, ticket *models.GapTicket) error {
	if !d.Enabled() {
		return fmt.Errorf("no webhook configured")
	}

	payload, err := json.Marshal(followUpMessage{
		TicketID:       ticket.ID,
		OrganizationID: ticket.OrganizationID,
		Prompt:         ticket.Prompt,
		Categories:     ticket.Categories,
		DueAt:          ticket.DueAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal follow-up payload: %w", err)
	}

	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to deliver follow-up notification: %w", err)
	}

	logger.Info("Gap follow-up delivered",
		zap.String("ticket_id", ticket.ID),
		zap.Strings("categories", ticket.Categories),
	)
	return nil
}
