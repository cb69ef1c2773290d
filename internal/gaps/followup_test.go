package gaps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
)

type fakeSender struct {
	enabled bool
	fail    bool
	sent    []string
}

func (f *fakeSender) Enabled() bool { return f.enabled }

func (f *fakeSender) SendFollowUp(ctx context.Context, ticket *models.GapTicket) error {
	if f.fail {
		return errors.New("webhook returned status 502")
	}
	f.sent = append(f.sent, ticket.ID)
	return nil
}

func insertTestTicket(t *testing.T, db *sqlite.Client, id string) {
	t.Helper()

	now := time.Now()
	err := db.InsertGapTicket(&models.GapTicket{
		ID:             id,
		OrganizationID: "org1",
		Prompt:         "Who owns the badge audit?",
		Categories:     []string{"owners"},
		DueAt:          now.Add(48 * time.Hour),
		Status:         models.TicketPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("insert ticket: %v", err)
	}
}

func TestDeliverFollowUpSendsThenClaims(t *testing.T) {
	_, db := newTestTracker(t)
	insertTestTicket(t, db, "ticket1")

	sender := &fakeSender{enabled: true}
	if err := DeliverFollowUp(context.Background(), db, sender, "ticket1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(sender.sent))
	}

	ticket, err := db.GetGapTicket("ticket1")
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if !ticket.Notified || ticket.Status != models.TicketScheduled {
		t.Errorf("ticket not claimed after send: notified=%v status=%s", ticket.Notified, ticket.Status)
	}
}

func TestDeliverFollowUpFailureLeavesTicketClaimable(t *testing.T) {
	_, db := newTestTracker(t)
	insertTestTicket(t, db, "ticket1")

	sender := &fakeSender{enabled: true, fail: true}
	if err := DeliverFollowUp(context.Background(), db, sender, "ticket1"); err == nil {
		t.Fatal("expected a delivery error")
	}

	ticket, err := db.GetGapTicket("ticket1")
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if ticket.Notified {
		t.Fatal("failed send must not claim the ticket")
	}

	// The queue redelivers; the retry must still send.
	sender.fail = false
	if err := DeliverFollowUp(context.Background(), db, sender, "ticket1"); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d notifications after retry, want 1", len(sender.sent))
	}
}

func TestDeliverFollowUpSkipsAlreadyNotified(t *testing.T) {
	_, db := newTestTracker(t)
	insertTestTicket(t, db, "ticket1")

	sender := &fakeSender{enabled: true}
	if err := DeliverFollowUp(context.Background(), db, sender, "ticket1"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := DeliverFollowUp(context.Background(), db, sender, "ticket1"); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Errorf("duplicate delivery resent the notification, sent = %v", sender.sent)
	}
}

func TestDeliverFollowUpWithoutSenderStillClaims(t *testing.T) {
	_, db := newTestTracker(t)
	insertTestTicket(t, db, "ticket1")

	sender := &fakeSender{enabled: false}
	if err := DeliverFollowUp(context.Background(), db, sender, "ticket1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	ticket, err := db.GetGapTicket("ticket1")
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if !ticket.Notified {
		t.Error("record-only delivery should still mark the ticket")
	}
	if len(sender.sent) != 0 {
		t.Errorf("disabled sender delivered: %v", sender.sent)
	}
}
