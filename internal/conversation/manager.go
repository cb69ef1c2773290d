// Package conversation keeps a bounded multi-turn history per organization
// and shapes it into the message window sent upstream.
package conversation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/llm"
	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/pkg/logger"
)

type Manager struct {
	db     *sqlite.Client
	window int
}

func NewManager(db *sqlite.Client, historyWindow int) *Manager {
	if historyWindow < 1 {
		historyWindow = 1
	}
	return &Manager{db: db, window: historyWindow}
}

// History returns the recent turns flattened into an alternating
// user/assistant message list, oldest first, ready to prepend to a new
// prompt. Only the last `window` turns are included.
func (m *Manager) History(organizationID string) ([]llm.Message, error) {
	turns, err := m.db.GetRecentTurns(organizationID, m.window)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	// GetRecentTurns returns newest first.
	messages := make([]llm.Message, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turns[i].Prompt},
			llm.Message{Role: llm.RoleAssistant, Content: turns[i].Response},
		)
	}
	return messages, nil
}

// LatestResponseID returns the upstream response ID of the most recent
// turn, empty when the conversation is new.
func (m *Manager) LatestResponseID(organizationID string) (string, error) {
	turns, err := m.db.GetRecentTurns(organizationID, 1)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}
	return turns[0].UpstreamResponseID, nil
}

// Record appends a completed exchange to the history.
func (m *Manager) Record(organizationID, userID, prompt, response, upstreamResponseID string) (*models.ConversationTurn, error) {
	turn := &models.ConversationTurn{
		ID:                 uuid.New().String(),
		OrganizationID:     organizationID,
		UserID:             userID,
		Prompt:             prompt,
		Response:           response,
		UpstreamResponseID: upstreamResponseID,
		CreatedAt:          time.Now(),
	}

	if err := m.db.InsertConversationTurn(turn); err != nil {
		return nil, fmt.Errorf("failed to record conversation turn: %w", err)
	}

	logger.Debug("Conversation turn recorded",
		zap.String("organization_id", organizationID),
		zap.String("turn_id", turn.ID),
	)
	return turn, nil
}
