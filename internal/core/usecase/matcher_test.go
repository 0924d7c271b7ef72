package usecase

import (
	"testing"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

func TestKeywordMatcherPicksByKeyword(t *testing.T) {
	intents := []domain.IntentNode{
		{ID: "i1", Name: "sales_report", Keywords: []string{"report", "sales"}},
		{ID: "i2", Name: "inventory", Keywords: []string{"stock", "inventory"}},
	}
	m := NewKeywordIntentMatcher(0.2)

	intent, score, ok := m.Match("show me the sales report for march", intents)
	if !ok {
		t.Fatalf("expected a match, score %v", score)
	}
	if intent.Name != "sales_report" {
		t.Fatalf("got %s", intent.Name)
	}
}

func TestKeywordMatcherUsesExamples(t *testing.T) {
	intents := []domain.IntentNode{
		{ID: "i1", Name: "greeting", Examples: []string{"hello there", "good morning"}},
	}
	m := NewKeywordIntentMatcher(0.2)

	if _, _, ok := m.Match("good morning everyone", intents); !ok {
		t.Fatalf("example overlap should match")
	}
}

func TestKeywordMatcherBelowThreshold(t *testing.T) {
	intents := []domain.IntentNode{
		{ID: "i1", Name: "sales_report", Keywords: []string{"report"}},
	}
	m := NewKeywordIntentMatcher(0.2)

	if _, _, ok := m.Match("completely unrelated message", intents); ok {
		t.Fatalf("no keyword hit must mean no match")
	}
}

func TestKeywordMatcherPriorityBreaksTies(t *testing.T) {
	// Both intents hit on the same keyword; the first candidate (already
	// ordered by priority) must win.
	intents := []domain.IntentNode{
		{ID: "i1", Name: "primary", Priority: 1, Keywords: []string{"report"}},
		{ID: "i2", Name: "secondary", Priority: 2, Keywords: []string{"report"}},
	}
	m := NewKeywordIntentMatcher(0.2)

	intent, _, ok := m.Match("report please", intents)
	if !ok || intent.Name != "primary" {
		t.Fatalf("got %+v ok=%v", intent, ok)
	}
}
