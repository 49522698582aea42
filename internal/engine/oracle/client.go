// Package oracle talks to an Anthropic messages endpoint to propose whole-file
// fixes for a single issue.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"coderefactor/internal/core/config"
	domainerrors "coderefactor/internal/core/errors"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/shared/util"
)

const (
	DefaultEndpoint  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	maxResponseBytes = 8 << 20
)

var fencedJSON = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")

// Error is a failed oracle call. Rate limiting, server errors and transport
// failures are transient.
type Error struct {
	Status    int
	Message   string
	Err       error
	transient bool
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("oracle http %d: %s", e.Status, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error   { return e.Err }
func (e *Error) Transient() bool { return e.transient }

var _ ports.TransientError = (*Error)(nil)

type Options struct {
	Endpoint    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Rate        float64
	Burst       int
	HTTPClient  *http.Client
}

// Client implements ports.Oracle. It applies no retries of its own.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *util.Limiter
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, domainerrors.New(domainerrors.CodeValidationError, "oracle api key is empty")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	hc := opts.HTTPClient
	if hc == nil {
		// Per-call deadlines come from the caller's context.
		hc = &http.Client{}
	}
	return &Client{
		opts:    opts,
		http:    hc,
		limiter: util.NewLimiter(opts.Rate, opts.Burst),
	}, nil
}

// FromConfig builds a client reading the API key from the configured
// environment variable.
func FromConfig(cfg config.Oracle) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeValidationError, "oracle api key not set"),
			"env", cfg.APIKeyEnv,
		)
	}
	return New(Options{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		APIKey:      key,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Rate:        cfg.Rate,
		Burst:       cfg.Burst,
	})
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type suggestion struct {
	RefactoredCode string `json:"refactored_code"`
	Explanation    string `json:"explanation"`
}

// Propose sends source and the issue to the model and returns its rewrite.
func (c *Client) Propose(ctx context.Context, source string, ic ports.IssueContext) (ports.Proposal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ports.Proposal{}, err
	}

	payload, err := json.Marshal(messagesRequest{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: buildPrompt(source, ic)}},
	})
	if err != nil {
		return ports.Proposal{}, fmt.Errorf("encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return ports.Proposal{}, fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("x-api-key", c.opts.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	start := time.Now()
	body, status, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ports.Proposal{}, ctx.Err()
		}
		return ports.Proposal{}, &Error{Message: "oracle request failed", Err: err, transient: true}
	}
	slog.Debug("oracle responded", "status", status, "rule_id", ic.RuleID, "duration", time.Since(start))
	if status != http.StatusOK {
		return ports.Proposal{}, &Error{
			Status:    status,
			Message:   truncate(strings.TrimSpace(string(body)), 200),
			transient: status == http.StatusTooManyRequests || status >= 500,
		}
	}

	sug, err := parseResponse(body)
	if err != nil {
		return ports.Proposal{}, &Error{Message: "unreadable oracle response", Err: err}
	}
	patched := sug.RefactoredCode
	if patched != "" && strings.HasSuffix(source, "\n") && !strings.HasSuffix(patched, "\n") {
		patched += "\n"
	}
	return ports.Proposal{Explanation: sug.Explanation, PatchedText: patched}, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// parseResponse pulls the suggestion JSON out of the first text block,
// accepting it bare or inside a ```json fence.
func parseResponse(body []byte) (suggestion, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return suggestion{}, err
	}
	text := ""
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return suggestion{}, errors.New("response has no text content")
	}
	raw := text
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		raw = m[1]
	}
	var sug suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &sug); err != nil {
		return suggestion{}, fmt.Errorf("decode suggestion: %w", err)
	}
	return sug, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
