// Package llm provides the OpenRouter chat-completions client used by the
// assistant decision plugin. Calls are time-boxed, rate-limited, and retried
// once on timeout; anything else fails fast so the caller can fall back to a
// canned reply instead of blocking the event pipeline.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pce-project/pce/pkg/config"
)

// DefaultBaseURL is the chat-completions endpoint used when the config
// leaves base_url empty.
const DefaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"

const (
	defaultTimeout = 12 * time.Second
	defaultMaxRPS  = 4.0
	retryBackoff   = 100 * time.Millisecond

	// Response bodies are quoted in errors for diagnostics; cap the excerpt
	// so provider error pages cannot flood the logs.
	bodyExcerptLimit = 500
	maxResponseBytes = 1 << 20
)

var (
	// ErrMissingAPIKey means no api_key is configured.
	ErrMissingAPIKey = errors.New("openrouter api_key is not configured")
	// ErrMissingModel means no model is configured.
	ErrMissingModel = errors.New("openrouter model is not configured")
)

// Message is one chat turn sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Decoding carries the sampling parameters selected by the assistant policy.
type Decoding struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	PresencePenalty float64 `json:"presence_penalty"`
}

// Client is the OpenRouter chat-completions client.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	referer string
	title   string
	timeout time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the chat-completions endpoint, for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// NewClient creates an OpenRouter client from config. A nil or empty config
// yields a client that returns ErrMissingAPIKey on every call, which is how
// an unconfigured assistant degrades to its fallback reply.
func NewClient(cfg *config.OpenRouterConfig, opts ...Option) *Client {
	client := &Client{
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
		logger:  slog.With("component", "openrouter"),
	}
	maxRPS := defaultMaxRPS
	if cfg != nil {
		client.apiKey = strings.TrimSpace(cfg.APIKey)
		client.model = strings.TrimSpace(cfg.Model)
		client.referer = strings.TrimSpace(cfg.HTTPReferer)
		client.title = strings.TrimSpace(cfg.XTitle)
		if cfg.BaseURL != "" {
			client.baseURL = cfg.BaseURL
		}
		if cfg.TimeoutS > 0 {
			client.timeout = cfg.Timeout()
		}
		if cfg.MaxRPS > 0 {
			maxRPS = cfg.MaxRPS
		}
	}
	client.httpClient = &http.Client{Timeout: client.timeout}
	client.limiter = rate.NewLimiter(rate.Limit(maxRPS), int(maxRPS)+1)
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model returns the configured model identifier ("" when unconfigured).
func (c *Client) Model() string {
	return c.model
}

// Configured reports whether the client can reach the provider at all.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.model != ""
}

type chatRequest struct {
	Model           string    `json:"model"`
	Messages        []Message `json:"messages"`
	Temperature     float64   `json:"temperature"`
	TopP            float64   `json:"top_p"`
	PresencePenalty float64   `json:"presence_penalty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate requests one assistant reply. It makes at most two attempts: a
// second attempt happens only after a timeout, with a short backoff. Other
// failures and caller cancellation are returned immediately.
func (c *Client) Generate(ctx context.Context, messages []Message, dec Decoding) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if c.model == "" {
		return "", ErrMissingModel
	}

	body, err := json.Marshal(chatRequest{
		Model:           c.model,
		Messages:        messages,
		Temperature:     dec.Temperature,
		TopP:            dec.TopP,
		PresencePenalty: dec.PresencePenalty,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("openrouter rate limit wait: %w", err)
	}

	for attempt := 0; ; attempt++ {
		reply, err := c.post(ctx, body)
		if err == nil {
			return reply, nil
		}
		if !isTimeout(err) || ctx.Err() != nil {
			return "", err
		}
		if attempt > 0 {
			return "", fmt.Errorf("openrouter timeout after retry: %w", err)
		}
		c.logger.Warn("OpenRouter request timed out, retrying once", "timeout", c.timeout)
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read openrouter response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openrouter request failed (status=%d, body=%q)", resp.StatusCode, bodyExcerpt(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openrouter response without choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("openrouter returned empty content")
	}
	return content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// bodyExcerpt compacts a response body into a short single-line excerpt that
// is safe to embed in error messages.
func bodyExcerpt(raw []byte) string {
	compact := strings.TrimSpace(whitespaceRun.ReplaceAllString(string(raw), " "))
	if compact == "" {
		return "<empty>"
	}
	if len(compact) > bodyExcerptLimit {
		compact = compact[:bodyExcerptLimit]
	}
	return compact
}
