package config

import "testing"

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("SEARCH_VECTOR_TIMEOUT_MS", "")
	t.Setenv("SEARCH_GRAPH_TIMEOUT_MS", "")
	t.Setenv("FUSION_RRF_K", "")
	t.Setenv("INTENT_MATCH_THRESHOLD", "")

	cfg := Load()
	if cfg.SearchVectorTimeoutMS != 5000 {
		t.Fatalf("expected default vector timeout 5000, got %d", cfg.SearchVectorTimeoutMS)
	}
	if cfg.SearchGraphTimeoutMS != 5000 {
		t.Fatalf("expected default graph timeout 5000, got %d", cfg.SearchGraphTimeoutMS)
	}
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.FusionRRFK)
	}
	if cfg.IntentMatchThreshold != 0.2 {
		t.Fatalf("expected default intent threshold 0.2, got %v", cfg.IntentMatchThreshold)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("FUSION_RRF_K", "75")
	t.Setenv("INTENT_MATCH_THRESHOLD", "0.35")
	t.Setenv("SESSION_TTL_HOURS", "6")
	t.Setenv("API_RATE_LIMIT_RPS", "12.5")

	cfg := Load()
	if cfg.FusionRRFK != 75 {
		t.Fatalf("expected rrf k 75, got %d", cfg.FusionRRFK)
	}
	if cfg.IntentMatchThreshold != 0.35 {
		t.Fatalf("expected intent threshold 0.35, got %v", cfg.IntentMatchThreshold)
	}
	if cfg.SessionTTLHours != 6 {
		t.Fatalf("expected session ttl 6 hours, got %d", cfg.SessionTTLHours)
	}
	if cfg.APIRateLimitRPS != 12.5 {
		t.Fatalf("expected rate limit 12.5 rps, got %v", cfg.APIRateLimitRPS)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("FUSION_RRF_K", "sixty")
	t.Setenv("INTENT_MATCH_THRESHOLD", "umbrella")

	cfg := Load()
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected fallback rrf k 60, got %d", cfg.FusionRRFK)
	}
	if cfg.IntentMatchThreshold != 0.2 {
		t.Fatalf("expected fallback intent threshold 0.2, got %v", cfg.IntentMatchThreshold)
	}
}
