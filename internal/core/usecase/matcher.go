package usecase

import (
	"strings"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

// KeywordIntentMatcher scores intents against the message by keyword
// containment plus token overlap with the intent's examples. It is the
// default matcher; an embedding-based one can replace it behind the same
// interface.
type KeywordIntentMatcher struct {
	Threshold float64
}

func NewKeywordIntentMatcher(threshold float64) *KeywordIntentMatcher {
	if threshold <= 0 {
		threshold = 0.2
	}
	return &KeywordIntentMatcher{Threshold: threshold}
}

// Match returns the best-scoring intent above the threshold. Candidates
// arrive in priority order; on equal score the earlier candidate wins.
func (m *KeywordIntentMatcher) Match(message string, intents []domain.IntentNode) (domain.IntentNode, float64, bool) {
	lowered := strings.ToLower(message)
	tokens := tokenize(lowered)

	var (
		best      domain.IntentNode
		bestScore float64
		found     bool
	)
	for _, intent := range intents {
		score := scoreIntent(lowered, tokens, intent)
		if score > bestScore {
			best, bestScore, found = intent, score, true
		}
	}
	if !found || bestScore < m.Threshold {
		return domain.IntentNode{}, bestScore, false
	}
	return best, bestScore, true
}

func scoreIntent(lowered string, tokens map[string]bool, intent domain.IntentNode) float64 {
	if len(intent.Keywords) == 0 && len(intent.Examples) == 0 {
		return 0
	}

	var keywordHits int
	for _, kw := range intent.Keywords {
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			keywordHits++
		}
	}
	var keywordScore float64
	if len(intent.Keywords) > 0 {
		keywordScore = float64(keywordHits) / float64(len(intent.Keywords))
		if keywordHits > 0 && keywordScore < 0.5 {
			// One strong keyword hit is already a signal even in a long list.
			keywordScore = 0.5
		}
	}

	var exampleScore float64
	for _, example := range intent.Examples {
		overlap := tokenOverlap(tokens, tokenize(strings.ToLower(example)))
		if overlap > exampleScore {
			exampleScore = overlap
		}
	}

	if keywordScore > exampleScore {
		return keywordScore
	}
	return exampleScore
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r >= 0x0400 && r <= 0x04FF)
	}) {
		if len(tok) > 2 {
			out[tok] = true
		}
	}
	return out
}

func tokenOverlap(a, b map[string]bool) float64 {
	if len(b) == 0 {
		return 0
	}
	var hits int
	for tok := range b {
		if a[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(b))
}
