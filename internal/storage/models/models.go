package models

import "time"

// Document processing lifecycle.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DocumentKind is the single classification consumed by extraction,
// validation and chunk tagging.
type DocumentKind string

const (
	KindStandard      DocumentKind = "standard"
	KindGovernance    DocumentKind = "governance"
	KindTrainingSlide DocumentKind = "training_slide"
	KindOrgProfile    DocumentKind = "org_profile"
)

type Document struct {
	ID               string
	OrganizationID   string
	Title            string
	FileName         string
	MediaType        string
	SizeBytes        int64
	ProcessingStatus string
	TotalChunks      *int
	Metadata         map[string]interface{}
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Chunk struct {
	ID             string
	DocumentID     string
	OrganizationID string
	ChunkIndex     int
	Content        string
	ContentHash    string
	EmbeddingID    string
	TokenCount     int
	SectionLabel   string
	Tags           []string
	Metadata       map[string]interface{}
	CreatedAt      time.Time
}

// ApprovedChunk is a reviewer-vetted chunk for a document+organization pair.
// The pipeline only ever reads these.
type ApprovedChunk struct {
	ID             string
	DocumentID     string
	OrganizationID string
	ChunkIndex     int
	Content        string
	ContentHash    string
	SectionLabel   string
	Tags           []string
	CreatedAt      time.Time
}

// Gap ticket lifecycle.
const (
	TicketPending   = "pending"
	TicketScheduled = "scheduled"
	TicketCompleted = "completed"
)

type GapTicket struct {
	ID             string
	OrganizationID string
	Prompt         string
	Categories     []string
	DueAt          time.Time
	Status         string
	Notified       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ConversationTurn struct {
	ID                 string
	OrganizationID     string
	UserID             string
	Prompt             string
	Response           string
	UpstreamResponseID string
	CreatedAt          time.Time
}
