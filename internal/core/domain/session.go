package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxHistoryMessages caps the per-session conversation history.
const MaxHistoryMessages = 50

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the per-session dialogue state. It is exclusively owned
// and mutated by the dialogue interpreter; concurrent turns for one session
// are serialized by the caller.
type SessionState struct {
	SessionID           string            `json:"session_id"`
	CurrentIntent       string            `json:"current_intent,omitempty"`
	CurrentNodeID       string            `json:"current_node_id,omitempty"`
	CollectedValues     map[string]string `json:"collected_values"`
	OriginalQuery       string            `json:"original_query,omitempty"`
	ConversationHistory []ChatMessage     `json:"conversation_history"`
	DocumentContext     string            `json:"document_context,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	ExpiresAt           time.Time         `json:"expires_at"`
}

func NewSessionState(ttl time.Duration) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID:           uuid.NewString(),
		CollectedValues:     make(map[string]string),
		ConversationHistory: make([]ChatMessage, 0, 8),
		CreatedAt:           now,
		UpdatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
}

func (s *SessionState) AppendMessage(role, content string) {
	if content == "" {
		return
	}
	s.ConversationHistory = append(s.ConversationHistory, ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if len(s.ConversationHistory) > MaxHistoryMessages {
		s.ConversationHistory = s.ConversationHistory[len(s.ConversationHistory)-MaxHistoryMessages:]
	}
}

// Reset clears the traversal state but keeps the session id and history.
// Safe to call repeatedly.
func (s *SessionState) Reset() {
	s.CurrentIntent = ""
	s.CurrentNodeID = ""
	s.CollectedValues = make(map[string]string)
	s.OriginalQuery = ""
	s.DocumentContext = ""
}

func (s *SessionState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Touch refreshes the sliding expiry window.
func (s *SessionState) Touch(ttl time.Duration) {
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}
