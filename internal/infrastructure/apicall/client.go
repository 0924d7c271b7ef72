// Package apicall dispatches api_call flow actions to external HTTP
// endpoints. The target and method come from the action config authored in
// the flow graph; collected values travel as a JSON body for writes and as
// query parameters for GETs.
package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
	"github.com/kirillkom/graphrag-dialogue/internal/infrastructure/resilience"
)

const maxResponseBytes = 64 * 1024

type Client struct {
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(executor *resilience.Executor) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Call(ctx context.Context, config map[string]any, values map[string]string) (string, error) {
	endpoint, _ := config["url"].(string)
	if strings.TrimSpace(endpoint) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "api call", errors.New("action config has no url"))
	}

	method, _ := config["method"].(string)
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}

	if c.executor == nil {
		return c.doRequest(ctx, method, endpoint, config, values)
	}

	var body string
	err := c.executor.Execute(ctx, "api_call", func(ctx context.Context) error {
		var callErr error
		body, callErr = c.doRequest(ctx, method, endpoint, config, values)
		return callErr
	}, classifyCallError)
	if err != nil {
		return "", err
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, config map[string]any, values map[string]string) (string, error) {
	var body io.Reader
	if method == http.MethodGet {
		target, err := url.Parse(endpoint)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "api call", fmt.Errorf("parse url: %w", err))
		}
		query := target.Query()
		for name, value := range values {
			query.Set(name, value)
		}
		target.RawQuery = query.Encode()
		endpoint = target.String()
	} else {
		payload, err := json.Marshal(values)
		if err != nil {
			return "", fmt.Errorf("marshal api call payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build api call request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for name, value := range headers {
			if text, ok := value.(string); ok {
				req.Header.Set(name, text)
			}
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.ErrBackendUnavailable, "api call", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read api call response: %w", err)
	}
	if res.StatusCode >= http.StatusMultipleChoices {
		return "", &statusError{status: res.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	return string(raw), nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("api call failed with status %d", e.status)
	}
	return fmt.Sprintf("api call failed with status %d: %s", e.status, e.body)
}

func classifyCallError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var httpErr *statusError
	if errors.As(err, &httpErr) {
		switch httpErr.status {
		case http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	if errors.Is(err, domain.ErrBackendUnavailable) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
