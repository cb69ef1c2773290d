package gaps

import (
	"strings"
	"testing"
	"time"

	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
)

func newTestTracker(t *testing.T) (*Tracker, *sqlite.Client) {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return NewTracker(db, nil, 48), db
}

func TestTrackCreatesTicketWithDeadline(t *testing.T) {
	tracker, db := newTestTracker(t)

	before := time.Now()
	result, err := tracker.Track("org1",
		"Who is responsible for the badge audit and what is the threshold for failed attempts?",
		"Access is reviewed by appropriate personnel as needed.",
	)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if result == nil {
		t.Fatal("expected a gap for a vague answer")
	}

	if len(result.Categories) < 2 {
		t.Errorf("categories = %v, want at least owners and thresholds", result.Categories)
	}

	wantDue := before.Add(48 * time.Hour)
	if result.DueAt.Before(wantDue.Add(-time.Minute)) || result.DueAt.After(wantDue.Add(time.Minute)) {
		t.Errorf("due at %v, want about %v", result.DueAt, wantDue)
	}

	if !strings.Contains(result.Commitment, result.DueAt.Format("January 2, 2006")) {
		t.Errorf("commitment should carry the due date: %q", result.Commitment)
	}

	ticket, err := db.GetGapTicket(result.TicketID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if ticket.Status != models.TicketPending {
		t.Errorf("status = %s", ticket.Status)
	}
	if ticket.OrganizationID != "org1" {
		t.Errorf("organization = %s", ticket.OrganizationID)
	}
}

func TestTrackNoGapForSpecificAnswer(t *testing.T) {
	tracker, _ := newTestTracker(t)

	result, err := tracker.Track("org1",
		"Who is responsible for the badge audit?",
		"Morgan Hale, the Director of Facilities, runs the audit.",
	)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if result != nil {
		t.Fatalf("unexpected gap: %+v", result)
	}
}
