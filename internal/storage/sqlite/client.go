package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		title TEXT NOT NULL,
		file_name TEXT NOT NULL,
		media_type TEXT,
		size_bytes INTEGER DEFAULT 0,
		processing_status TEXT NOT NULL DEFAULT 'pending',
		total_chunks INTEGER,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(organization_id);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(processing_status);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		embedding_id TEXT,
		token_count INTEGER DEFAULT 0,
		section_label TEXT,
		tags TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_org ON document_chunks(organization_id);

	CREATE TABLE IF NOT EXISTS approved_chunk_cache (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		section_label TEXT,
		tags TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_approved_doc ON approved_chunk_cache(document_id, organization_id);

	CREATE TABLE IF NOT EXISTS gap_tickets (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		categories TEXT NOT NULL,
		due_at INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		notified INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_org ON gap_tickets(organization_id);
	CREATE INDEX IF NOT EXISTS idx_tickets_due ON gap_tickets(due_at);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		user_id TEXT,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		upstream_response_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_org ON conversation_turns(organization_id, created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	metadataJSON, _ := json.Marshal(doc.Metadata)

	query := `
		INSERT INTO documents (id, organization_id, title, file_name, media_type, size_bytes,
			processing_status, total_chunks, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			processing_status = excluded.processing_status,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.OrganizationID,
		doc.Title,
		doc.FileName,
		doc.MediaType,
		doc.SizeBytes,
		doc.ProcessingStatus,
		doc.TotalChunks,
		string(metadataJSON),
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `
		SELECT id, organization_id, title, file_name, media_type, size_bytes,
			processing_status, total_chunks, metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`

	var doc models.Document
	var totalChunks sql.NullInt64
	var metadataJSON sql.NullString
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.OrganizationID,
		&doc.Title,
		&doc.FileName,
		&doc.MediaType,
		&doc.SizeBytes,
		&doc.ProcessingStatus,
		&totalChunks,
		&metadataJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if totalChunks.Valid {
		n := int(totalChunks.Int64)
		doc.TotalChunks = &n
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata)
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

// UpdateDocumentStatus moves a document through its lifecycle. The metadata
// map is merged over whatever is already stored so failure diagnostics do
// not erase provenance written by earlier stages.
func (c *Client) UpdateDocumentStatus(id, status string, totalChunks *int, metadata map[string]interface{}) error {
	doc, err := c.GetDocument(id)
	if err != nil {
		return err
	}

	merged := doc.Metadata
	if merged == nil {
		merged = make(map[string]interface{})
	}
	for k, v := range metadata {
		merged[k] = v
	}
	metadataJSON, _ := json.Marshal(merged)

	query := `UPDATE documents SET processing_status = ?, total_chunks = ?, metadata = ?, updated_at = ? WHERE id = ?`

	_, err = c.db.Exec(query, status, totalChunks, string(metadataJSON), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	logger.Info("Document status updated",
		zap.String("document_id", id),
		zap.String("status", status),
	)
	return nil
}

// ReplaceChunks swaps the full chunk set for a document in one transaction
// so readers never observe a mix of two processing generations.
func (c *Client) ReplaceChunks(documentID, organizationID string, chunks []models.Chunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`DELETE FROM document_chunks WHERE document_id = ? AND organization_id = ?`,
		documentID, organizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO document_chunks (id, document_id, organization_id, chunk_index, content,
			content_hash, embedding_id, token_count, section_label, tags, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		tagsJSON, _ := json.Marshal(chunk.Tags)
		metadataJSON, _ := json.Marshal(chunk.Metadata)

		_, err = stmt.Exec(
			chunk.ID,
			documentID,
			organizationID,
			chunk.ChunkIndex,
			chunk.Content,
			chunk.ContentHash,
			chunk.EmbeddingID,
			chunk.TokenCount,
			chunk.SectionLabel,
			string(tagsJSON),
			string(metadataJSON),
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replace: %w", err)
	}

	logger.Info("Chunks replaced",
		zap.String("document_id", documentID),
		zap.Int("count", len(chunks)),
	)
	return nil
}

func (c *Client) GetChunksByDocument(organizationID, documentID string) ([]models.Chunk, error) {
	query := `
		SELECT id, document_id, organization_id, chunk_index, content, content_hash,
			embedding_id, token_count, section_label, tags, metadata, created_at
		FROM document_chunks
		WHERE document_id = ? AND organization_id = ?
		ORDER BY chunk_index
	`

	rows, err := c.db.Query(query, documentID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// SearchChunksByKeyword is the last-resort retrieval path when similarity
// search returns nothing. Reads are organization-scoped.
func (c *Client) SearchChunksByKeyword(organizationID, term string, limit int) ([]models.Chunk, error) {
	query := `
		SELECT id, document_id, organization_id, chunk_index, content, content_hash,
			embedding_id, token_count, section_label, tags, metadata, created_at
		FROM document_chunks
		WHERE organization_id = ? AND content LIKE ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, organizationID, "%"+term+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var embeddingID, sectionLabel, tagsJSON, metadataJSON sql.NullString
		var createdAt int64

		err := rows.Scan(
			&ch.ID,
			&ch.DocumentID,
			&ch.OrganizationID,
			&ch.ChunkIndex,
			&ch.Content,
			&ch.ContentHash,
			&embeddingID,
			&ch.TokenCount,
			&sectionLabel,
			&tagsJSON,
			&metadataJSON,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		ch.EmbeddingID = embeddingID.String
		ch.SectionLabel = sectionLabel.String
		if tagsJSON.Valid && tagsJSON.String != "" {
			json.Unmarshal([]byte(tagsJSON.String), &ch.Tags)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			json.Unmarshal([]byte(metadataJSON.String), &ch.Metadata)
		}
		ch.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, ch)
	}

	return chunks, rows.Err()
}

func (c *Client) CountCompletedDocuments(organizationID string) (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM documents WHERE organization_id = ? AND processing_status = 'completed'`,
		organizationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// InsertApprovedChunk records a reviewer-vetted chunk. Normally written by
// the review tool import, the pipeline itself only reads the cache.
func (c *Client) InsertApprovedChunk(chunk *models.ApprovedChunk) error {
	tagsJSON, _ := json.Marshal(chunk.Tags)

	query := `
		INSERT INTO approved_chunk_cache (id, document_id, organization_id, chunk_index, content,
			content_hash, section_label, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		chunk.ID,
		chunk.DocumentID,
		chunk.OrganizationID,
		chunk.ChunkIndex,
		chunk.Content,
		chunk.ContentHash,
		chunk.SectionLabel,
		string(tagsJSON),
		chunk.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approved chunk: %w", err)
	}
	return nil
}

func (c *Client) GetApprovedChunks(organizationID, documentID string) ([]models.ApprovedChunk, error) {
	query := `
		SELECT id, document_id, organization_id, chunk_index, content, content_hash,
			section_label, tags, created_at
		FROM approved_chunk_cache
		WHERE document_id = ? AND organization_id = ?
		ORDER BY chunk_index
	`

	rows, err := c.db.Query(query, documentID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get approved chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ApprovedChunk
	for rows.Next() {
		var ch models.ApprovedChunk
		var sectionLabel, tagsJSON sql.NullString
		var createdAt int64

		err := rows.Scan(
			&ch.ID,
			&ch.DocumentID,
			&ch.OrganizationID,
			&ch.ChunkIndex,
			&ch.Content,
			&ch.ContentHash,
			&sectionLabel,
			&tagsJSON,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approved chunk: %w", err)
		}

		ch.SectionLabel = sectionLabel.String
		if tagsJSON.Valid && tagsJSON.String != "" {
			json.Unmarshal([]byte(tagsJSON.String), &ch.Tags)
		}
		ch.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, ch)
	}

	return chunks, rows.Err()
}

func (c *Client) InsertGapTicket(ticket *models.GapTicket) error {
	categoriesJSON, _ := json.Marshal(ticket.Categories)

	notified := 0
	if ticket.Notified {
		notified = 1
	}

	query := `
		INSERT INTO gap_tickets (id, organization_id, prompt, categories, due_at, status, notified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		ticket.ID,
		ticket.OrganizationID,
		ticket.Prompt,
		string(categoriesJSON),
		ticket.DueAt.Unix(),
		ticket.Status,
		notified,
		ticket.CreatedAt.Unix(),
		ticket.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert gap ticket: %w", err)
	}

	logger.Info("Gap ticket opened",
		zap.String("ticket_id", ticket.ID),
		zap.String("organization_id", ticket.OrganizationID),
		zap.Strings("categories", ticket.Categories),
	)
	return nil
}

func (c *Client) GetGapTicket(id string) (*models.GapTicket, error) {
	query := `
		SELECT id, organization_id, prompt, categories, due_at, status, notified, created_at, updated_at
		FROM gap_tickets WHERE id = ?
	`

	var t models.GapTicket
	var categoriesJSON string
	var notified int
	var dueAt, createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&t.ID,
		&t.OrganizationID,
		&t.Prompt,
		&categoriesJSON,
		&dueAt,
		&t.Status,
		&notified,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get gap ticket: %w", err)
	}

	json.Unmarshal([]byte(categoriesJSON), &t.Categories)
	t.Notified = notified == 1
	t.DueAt = time.Unix(dueAt, 0)
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

// MarkTicketScheduled flips a pending ticket to scheduled after its
// follow-up notification has been handed off. It reports whether this call
// won the transition, which is what makes at-least-once delivery idempotent.
func (c *Client) MarkTicketScheduled(id string) (bool, error) {
	res, err := c.db.Exec(
		`UPDATE gap_tickets SET status = ?, notified = 1, updated_at = ? WHERE id = ? AND notified = 0`,
		models.TicketScheduled, time.Now().Unix(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark ticket scheduled: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (c *Client) InsertConversationTurn(turn *models.ConversationTurn) error {
	query := `
		INSERT INTO conversation_turns (id, organization_id, user_id, prompt, response, upstream_response_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		turn.ID,
		turn.OrganizationID,
		turn.UserID,
		turn.Prompt,
		turn.Response,
		turn.UpstreamResponseID,
		turn.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation turn: %w", err)
	}

	return nil
}

// GetRecentTurns returns the newest turns first; callers that need
// chronological order reverse the slice.
func (c *Client) GetRecentTurns(organizationID string, limit int) ([]models.ConversationTurn, error) {
	query := `
		SELECT id, organization_id, user_id, prompt, response, upstream_response_id, created_at
		FROM conversation_turns
		WHERE organization_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		var userID, upstreamID sql.NullString
		var createdAt int64

		err := rows.Scan(&t.ID, &t.OrganizationID, &userID, &t.Prompt, &t.Response, &upstreamID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation turn: %w", err)
		}

		t.UserID = userID.String
		t.UpstreamResponseID = upstreamID.String
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}

	return turns, rows.Err()
}
