package sqlite

import (
	"fmt"
	"testing"
	"time"

	"github.com/complyassist/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return c
}

func insertTestDocument(t *testing.T, c *Client, id, orgID string) *models.Document {
	t.Helper()

	now := time.Now()
	doc := &models.Document{
		ID:               id,
		OrganizationID:   orgID,
		Title:            "Test Document " + id,
		FileName:         id + ".docx",
		ProcessingStatus: models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.InsertDocument(doc); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	return doc
}

func makeChunks(docID, orgID string, n int, content string) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:             fmt.Sprintf("%s-chunk-%d", docID, i),
			DocumentID:     docID,
			OrganizationID: orgID,
			ChunkIndex:     i,
			Content:        fmt.Sprintf("%s part %d", content, i),
			ContentHash:    fmt.Sprintf("hash-%d", i),
			TokenCount:     10,
			Tags:           []string{"MPS 7"},
			CreatedAt:      time.Now(),
		}
	}
	return chunks
}

func TestReplaceChunksSwapsGenerations(t *testing.T) {
	c := newTestClient(t)
	insertTestDocument(t, c, "doc1", "org1")

	if err := c.ReplaceChunks("doc1", "org1", makeChunks("doc1", "org1", 3, "first generation")); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	second := makeChunks("doc1", "org1", 2, "second generation")
	second[0].ID = "gen2-0"
	second[1].ID = "gen2-1"
	if err := c.ReplaceChunks("doc1", "org1", second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	chunks, err := c.GetChunksByDocument("org1", "doc1")
	if err != nil {
		t.Fatalf("get chunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for _, ch := range chunks {
		if ch.Content[:17] != "second generation" {
			t.Errorf("stale chunk survived: %q", ch.Content)
		}
	}
}

func TestReplaceChunksRollsBackOnConflict(t *testing.T) {
	c := newTestClient(t)
	insertTestDocument(t, c, "doc1", "org1")

	if err := c.ReplaceChunks("doc1", "org1", makeChunks("doc1", "org1", 2, "original")); err != nil {
		t.Fatalf("seed replace: %v", err)
	}

	// Duplicate primary keys make the insert fail mid-transaction.
	bad := makeChunks("doc1", "org1", 2, "broken")
	bad[1].ID = bad[0].ID
	if err := c.ReplaceChunks("doc1", "org1", bad); err == nil {
		t.Fatal("expected error for duplicate chunk IDs")
	}

	chunks, err := c.GetChunksByDocument("org1", "doc1")
	if err != nil {
		t.Fatalf("get chunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks after rollback, want original 2", len(chunks))
	}
	for _, ch := range chunks {
		if ch.Content[:8] != "original" {
			t.Errorf("rollback lost original chunk: %q", ch.Content)
		}
	}
}

func TestChunkReadsAreOrganizationScoped(t *testing.T) {
	c := newTestClient(t)
	insertTestDocument(t, c, "doc1", "org1")
	insertTestDocument(t, c, "doc2", "org2")

	if err := c.ReplaceChunks("doc1", "org1", makeChunks("doc1", "org1", 2, "org one data")); err != nil {
		t.Fatalf("replace org1: %v", err)
	}
	if err := c.ReplaceChunks("doc2", "org2", makeChunks("doc2", "org2", 2, "org two data")); err != nil {
		t.Fatalf("replace org2: %v", err)
	}

	if chunks, _ := c.GetChunksByDocument("org2", "doc1"); len(chunks) != 0 {
		t.Errorf("cross-organization read returned %d chunks", len(chunks))
	}

	results, err := c.SearchChunksByKeyword("org1", "data", 10)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	for _, ch := range results {
		if ch.OrganizationID != "org1" {
			t.Errorf("keyword search leaked chunk from %s", ch.OrganizationID)
		}
	}
}

func TestSearchChunksByKeyword(t *testing.T) {
	c := newTestClient(t)
	insertTestDocument(t, c, "doc1", "org1")

	chunks := makeChunks("doc1", "org1", 3, "filler")
	chunks[1].Content = "The escalation threshold is 5 percent."
	if err := c.ReplaceChunks("doc1", "org1", chunks); err != nil {
		t.Fatalf("replace: %v", err)
	}

	results, err := c.SearchChunksByKeyword("org1", "threshold", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ChunkIndex != 1 {
		t.Errorf("wrong chunk matched: index %d", results[0].ChunkIndex)
	}
}

func TestUpdateDocumentStatusMergesMetadata(t *testing.T) {
	c := newTestClient(t)
	doc := insertTestDocument(t, c, "doc1", "org1")
	doc.Metadata = map[string]interface{}{"extraction_method": "docx_structured"}
	if err := c.InsertDocument(doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	total := 4
	err := c.UpdateDocumentStatus("doc1", models.StatusCompleted, &total, map[string]interface{}{
		"degraded": false,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := c.GetDocument("doc1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.ProcessingStatus != models.StatusCompleted {
		t.Errorf("status = %s", got.ProcessingStatus)
	}
	if got.TotalChunks == nil || *got.TotalChunks != 4 {
		t.Errorf("total_chunks = %v", got.TotalChunks)
	}
	if got.Metadata["extraction_method"] != "docx_structured" {
		t.Error("earlier metadata erased by status update")
	}
	if got.Metadata["degraded"] != false {
		t.Error("new metadata not merged")
	}
}

func TestCountCompletedDocuments(t *testing.T) {
	c := newTestClient(t)
	insertTestDocument(t, c, "doc1", "org1")
	insertTestDocument(t, c, "doc2", "org1")
	insertTestDocument(t, c, "doc3", "org2")

	if err := c.UpdateDocumentStatus("doc1", models.StatusCompleted, nil, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.UpdateDocumentStatus("doc3", models.StatusCompleted, nil, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	count, err := c.CountCompletedDocuments("org1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestApprovedChunkCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)

	for i := 0; i < 2; i++ {
		err := c.InsertApprovedChunk(&models.ApprovedChunk{
			ID:             fmt.Sprintf("approved-%d", i),
			DocumentID:     "doc1",
			OrganizationID: "org1",
			ChunkIndex:     i,
			Content:        fmt.Sprintf("approved content %d", i),
			ContentHash:    fmt.Sprintf("hash-%d", i),
			Tags:           []string{"MPS 3"},
			CreatedAt:      time.Now(),
		})
		if err != nil {
			t.Fatalf("insert approved chunk: %v", err)
		}
	}

	chunks, err := c.GetApprovedChunks("org1", "doc1")
	if err != nil {
		t.Fatalf("get approved chunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d approved chunks, want 2", len(chunks))
	}
	if chunks[0].ChunkIndex != 0 || chunks[1].ChunkIndex != 1 {
		t.Error("approved chunks out of order")
	}
	if len(chunks[0].Tags) != 1 || chunks[0].Tags[0] != "MPS 3" {
		t.Errorf("tags = %v", chunks[0].Tags)
	}

	if other, _ := c.GetApprovedChunks("org2", "doc1"); len(other) != 0 {
		t.Errorf("cross-organization approved read returned %d chunks", len(other))
	}
}

func TestMarkTicketScheduledIsIdempotent(t *testing.T) {
	c := newTestClient(t)

	now := time.Now()
	ticket := &models.GapTicket{
		ID:             "ticket1",
		OrganizationID: "org1",
		Prompt:         "Who is responsible for backups?",
		Categories:     []string{"responsible_owners"},
		DueAt:          now.Add(48 * time.Hour),
		Status:         models.TicketPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.InsertGapTicket(ticket); err != nil {
		t.Fatalf("insert ticket: %v", err)
	}

	claimed, err := c.MarkTicketScheduled("ticket1")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	claimed, err = c.MarkTicketScheduled("ticket1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("second claim should be a no-op")
	}

	got, err := c.GetGapTicket("ticket1")
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if got.Status != models.TicketScheduled {
		t.Errorf("status = %s", got.Status)
	}
	if !got.Notified {
		t.Error("notified flag not set")
	}
}

func TestConversationTurnsWindow(t *testing.T) {
	c := newTestClient(t)

	for i := 0; i < 7; i++ {
		err := c.InsertConversationTurn(&models.ConversationTurn{
			ID:             fmt.Sprintf("turn-%d", i),
			OrganizationID: "org1",
			UserID:         "user1",
			Prompt:         fmt.Sprintf("question %d", i),
			Response:       fmt.Sprintf("answer %d", i),
			CreatedAt:      time.Unix(int64(1700000000+i), 0),
		})
		if err != nil {
			t.Fatalf("insert turn: %v", err)
		}
	}

	turns, err := c.GetRecentTurns("org1", 5)
	if err != nil {
		t.Fatalf("get recent turns: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("got %d turns, want 5", len(turns))
	}
	if turns[0].Prompt != "question 6" {
		t.Errorf("newest turn first, got %q", turns[0].Prompt)
	}
	if turns[4].Prompt != "question 2" {
		t.Errorf("window should cut oldest turns, got %q", turns[4].Prompt)
	}
}
