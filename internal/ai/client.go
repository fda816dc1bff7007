// Package ai mediates calls to the external chat completion provider.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"astro_bot/internal/config"
	"astro_bot/internal/domain"
	"astro_bot/internal/i18n"
	"astro_bot/internal/logging"
	"astro_bot/internal/metrics"
)

const (
	maxResponseBytes = 1 << 20
	appReferer       = "https://github.com/astro-bot"
	appTitle         = "Astro Bot"
)

// Reason classifies a failed completion.
type Reason string

const (
	ReasonUnconfigured  Reason = "unconfigured"
	ReasonTimeout       Reason = "timeout"
	ReasonUpstreamError Reason = "upstream_error"
)

// Failure describes why a completion produced no text. It matches
// domain.ErrUpstreamUnavailable with errors.Is.
type Failure struct {
	Reason Reason
	// Status is the provider HTTP status for upstream errors, 0 otherwise.
	Status int
	Err    error
}

func (f *Failure) Error() string {
	msg := "ai " + string(f.Reason)
	if f.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", f.Status)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	errs := []error{domain.ErrUpstreamUnavailable}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

// Request is one completion prompt.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Language selects the fallback text on failure.
	Language domain.Language
}

// Completion is the outcome of Complete. On failure Text holds a user-safe
// fallback and Failure is set.
type Completion struct {
	Text    string
	Model   string
	Failure *Failure
}

// Err returns the failure as an error, nil on success.
func (c Completion) Err() error {
	if c.Failure == nil {
		return nil
	}
	return c.Failure
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *logrus.Entry
}

// NewClient builds a client from cfg. A nil httpClient uses a default one;
// the per-call bound comes from cfg.Timeout.
func NewClient(cfg config.AIConfig, httpClient *http.Client, m *metrics.Metrics, logger *logrus.Entry) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultAITimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		model:      cfg.Model,
		timeout:    timeout,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    m,
		logger:     logging.Component(logger, "ai"),
	}
}

// Configured reports whether a credential and endpoint are available.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != "" && c.baseURL != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete makes exactly one provider call bounded by the configured timeout.
// Waiting for the outbound rate limiter counts against the same bound.
// It never retries.
func (c *Client) Complete(ctx context.Context, req Request) Completion {
	start := time.Now()
	text, model, failure := c.complete(ctx, req)
	took := time.Since(start)

	if failure != nil {
		c.metrics.AIRequest(string(failure.Reason), took)
		c.logger.WithFields(logrus.Fields{
			"event":    "ai_request_failed",
			"reason":   failure.Reason,
			"status":   failure.Status,
			"model":    c.model,
			"duration": took.String(),
			"error":    failure.Err,
		}).Warn("AI completion failed")

		return Completion{
			Text:    i18n.T(req.Language, i18n.AIUnavailable),
			Model:   c.model,
			Failure: failure,
		}
	}

	c.metrics.AIRequest("ok", took)
	c.logger.WithFields(logrus.Fields{
		"event":    "ai_request_completed",
		"model":    model,
		"duration": took.String(),
		"chars":    len(text),
	}).Debug("AI completion succeeded")

	return Completion{Text: text, Model: model}
}

func (c *Client) complete(ctx context.Context, req Request) (string, string, *Failure) {
	if !c.Configured() {
		return "", "", &Failure{Reason: ReasonUnconfigured, Err: errors.New("AI credential or base URL not configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", &Failure{Reason: ReasonTimeout, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", "", &Failure{Reason: ReasonUpstreamError, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", "", &Failure{Reason: ReasonUpstreamError, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", appReferer)
	httpReq.Header.Set("X-Title", appTitle)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return "", "", &Failure{Reason: ReasonTimeout, Err: err}
		}
		return "", "", &Failure{Reason: ReasonUpstreamError, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return "", "", &Failure{Reason: ReasonTimeout, Err: err}
		}
		return "", "", &Failure{Reason: ReasonUpstreamError, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", "", &Failure{Reason: ReasonUpstreamError, Status: resp.StatusCode, Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", "", &Failure{Reason: ReasonUpstreamError, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil {
		return "", "", &Failure{Reason: ReasonUpstreamError, Status: resp.StatusCode, Err: errors.New(decoded.Error.Message)}
	}
	if len(decoded.Choices) == 0 {
		return "", "", &Failure{Reason: ReasonUpstreamError, Status: resp.StatusCode, Err: errors.New("response has no choices")}
	}

	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", "", &Failure{Reason: ReasonUpstreamError, Status: resp.StatusCode, Err: errors.New("response has empty content")}
	}

	model := decoded.Model
	if model == "" {
		model = c.model
	}
	return text, model, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
