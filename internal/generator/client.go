package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"live-quiz-service/internal/domain"
)

const maxResponseBytes = 1 << 20

// Client asks an external quiz-generation endpoint for a question set.
// The endpoint takes a GenerationRequest as JSON and answers with a GeneratedQuiz.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// Generate returns the decoded quiz. Every failure is a *domain.GenerationError;
// shape validation is left to the caller.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedQuiz, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.GeneratedQuiz{}, &domain.GenerationError{Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.GeneratedQuiz{}, &domain.GenerationError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.GeneratedQuiz{}, &domain.GenerationError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.GeneratedQuiz{}, &domain.GenerationError{Cause: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return domain.GeneratedQuiz{}, &domain.GenerationError{Cause: fmt.Errorf("generator status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))}
	}

	var quiz domain.GeneratedQuiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.GeneratedQuiz{}, &domain.GenerationError{Cause: fmt.Errorf("decode quiz: %w", err)}
	}
	return quiz, nil
}
