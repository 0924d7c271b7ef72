package domain

import (
	"testing"
	"time"
)

func TestSessionHistoryCap(t *testing.T) {
	s := NewSessionState(time.Hour)
	for i := 0; i < MaxHistoryMessages+20; i++ {
		s.AppendMessage("user", "msg")
	}
	if len(s.ConversationHistory) != MaxHistoryMessages {
		t.Fatalf("history = %d, want %d", len(s.ConversationHistory), MaxHistoryMessages)
	}
}

func TestSessionResetKeepsIdentityAndHistory(t *testing.T) {
	s := NewSessionState(time.Hour)
	s.CurrentIntent = "report"
	s.CurrentNodeID = "c1"
	s.CollectedValues["period"] = "month"
	s.OriginalQuery = "show report"
	s.AppendMessage("user", "hello")

	id := s.SessionID
	s.Reset()

	if s.SessionID != id {
		t.Fatalf("reset changed the session id")
	}
	if s.CurrentIntent != "" || s.CurrentNodeID != "" || len(s.CollectedValues) != 0 || s.OriginalQuery != "" {
		t.Fatalf("reset left traversal state: %+v", s)
	}
	if len(s.ConversationHistory) != 1 {
		t.Fatalf("reset dropped the transcript")
	}
}

func TestSessionExpiry(t *testing.T) {
	s := NewSessionState(time.Minute)
	if s.Expired(time.Now()) {
		t.Fatalf("fresh session must not be expired")
	}
	if !s.Expired(time.Now().Add(2 * time.Minute)) {
		t.Fatalf("session past its ttl must be expired")
	}

	s.Touch(time.Hour)
	if s.Expired(time.Now().Add(2 * time.Minute)) {
		t.Fatalf("touch must extend the window")
	}
}
