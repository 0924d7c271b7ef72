package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
	"github.com/kirillkom/graphrag-dialogue/internal/infrastructure/resilience"
)

// Client calls a text-embeddings-inference rerank endpoint. The service
// scores (query, text) pairs with a cross encoder and returns one score
// per input index.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithExecutor routes rerank calls through the retry/breaker executor.
func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

func (c *Client) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.executor == nil {
		return c.rerank(ctx, query, texts)
	}

	var scores []float64
	err := c.executor.Execute(ctx, "tei_rerank", func(ctx context.Context) error {
		var callErr error
		scores, callErr = c.rerank(ctx, query, texts)
		return callErr
	}, classifyRerankError)
	if err != nil {
		return nil, err
	}
	return scores, nil
}

func (c *Client) rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	reqBody := map[string]any{
		"query": query,
		"texts": texts,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "rerank", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return nil, domain.WrapError(domain.ErrBackendUnavailable, "rerank", fmt.Errorf("status %s: %s", resp.Status, msg))
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "rerank", fmt.Errorf("status %s", resp.Status))
	}

	var ranked []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	// The service returns pairs sorted by score; put scores back in input
	// order so the caller can line them up with its candidates.
	scores := make([]float64, len(texts))
	for _, item := range ranked {
		if item.Index < 0 || item.Index >= len(scores) {
			return nil, fmt.Errorf("rerank index %d out of range", item.Index)
		}
		scores[item.Index] = item.Score
	}
	return scores, nil
}

// classifyRerankError treats connectivity problems as retryable. The
// search layer already falls back to fused order when rerank ultimately
// fails, so everything else fails fast.
func classifyRerankError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrBackendUnavailable) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
