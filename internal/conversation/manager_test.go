package conversation

import (
	"fmt"
	"testing"

	"github.com/complyassist/backend/internal/llm"
	"github.com/complyassist/backend/internal/storage/sqlite"
)

func newTestManager(t *testing.T, window int) *Manager {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return NewManager(db, window)
}

func TestHistoryWindowAndOrder(t *testing.T) {
	m := newTestManager(t, 2)

	for i := 0; i < 4; i++ {
		_, err := m.Record("org1", "user1",
			fmt.Sprintf("question %d", i),
			fmt.Sprintf("answer %d", i),
			fmt.Sprintf("resp-%d", i),
		)
		if err != nil {
			t.Fatalf("record turn %d: %v", i, err)
		}
	}

	history, err := m.History("org1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	// Two turns, two messages each, oldest first.
	if len(history) != 4 {
		t.Fatalf("got %d messages, want 4", len(history))
	}

	want := []struct {
		role    string
		content string
	}{
		{llm.RoleUser, "question 2"},
		{llm.RoleAssistant, "answer 2"},
		{llm.RoleUser, "question 3"},
		{llm.RoleAssistant, "answer 3"},
	}
	for i, w := range want {
		if history[i].Role != w.role || history[i].Content != w.content {
			t.Errorf("message %d = {%s %q}, want {%s %q}", i, history[i].Role, history[i].Content, w.role, w.content)
		}
	}
}

func TestHistoryEmptyConversation(t *testing.T) {
	m := newTestManager(t, 5)

	history, err := m.History("org-empty")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("got %d messages for empty conversation", len(history))
	}
}

func TestLatestResponseID(t *testing.T) {
	m := newTestManager(t, 5)

	id, err := m.LatestResponseID("org1")
	if err != nil {
		t.Fatalf("latest response id: %v", err)
	}
	if id != "" {
		t.Errorf("empty conversation should have no response id, got %q", id)
	}

	if _, err := m.Record("org1", "user1", "q1", "a1", "resp-1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := m.Record("org1", "user1", "q2", "a2", "resp-2"); err != nil {
		t.Fatalf("record: %v", err)
	}

	id, err = m.LatestResponseID("org1")
	if err != nil {
		t.Fatalf("latest response id: %v", err)
	}
	if id != "resp-2" {
		t.Errorf("latest response id = %q, want resp-2", id)
	}
}
