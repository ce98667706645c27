package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wingman/internal/watch"
	"wingman/pkg/logx"
)

const (
	defaultModel   = "claude-sonnet-4-20250514"
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	maxBodyChars = 1500 // cap prompt size; bodies can be huge
)

// Result is the classification produced for one item.
type Result struct {
	Classification string `json:"classification"` // bug_report, feature_request, question, praise, complaint, spam
	Severity       string `json:"severity"`       // critical, high, medium, low
	Summary        string `json:"summary"`
	Reasoning      string `json:"reasoning"`
}

// Fallback is the fixed result substituted when analysis fails for any
// reason. Classification failure never propagates past the call site.
func Fallback() Result {
	return Result{
		Classification: "unclassified",
		Severity:       "unknown",
		Summary:        "AI triage unavailable",
	}
}

// Analyzer classifies items. Callers must assume Analyze can fail and
// substitute Fallback() themselves.
type Analyzer interface {
	Analyze(ctx context.Context, it watch.Item) (Result, error)
}

// Config for the Anthropic-backed analyzer.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // overridable for tests
	Timeout time.Duration
}

// Client calls the Anthropic messages API directly over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}
}

var ErrNoAPIKey = errors.New("triage: api key not configured")

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) Analyze(ctx context.Context, it watch.Item) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, ErrNoAPIKey
	}

	body, err := json.Marshal(apiRequest{
		Model:     c.cfg.Model,
		MaxTokens: 300,
		Messages:  []apiMessage{{Role: "user", Content: buildPrompt(it)}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("triage: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("triage: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("triage: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("triage: unexpected status %d", resp.StatusCode)
	}

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Result{}, fmt.Errorf("triage: decode response: %w", err)
	}
	if len(ar.Content) == 0 {
		return Result{}, errors.New("triage: empty response content")
	}

	return parseResult(ar.Content[0].Text)
}

// parseResult decodes the model's JSON answer, tolerating markdown fences.
func parseResult(text string) (Result, error) {
	text = stripFences(strings.TrimSpace(text))

	var r Result
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return Result{}, fmt.Errorf("triage: parse response json: %w", err)
	}
	if r.Classification == "" {
		r.Classification = "unclassified"
	}
	if r.Severity == "" {
		r.Severity = "unknown"
	}
	return r, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func buildPrompt(it watch.Item) string {
	body := it.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}
	return fmt.Sprintf(`You are a triage assistant for a software mod developer.
Analyze the following %s from %s and classify it.

Title: %s
Body: %s
Author: %s
Context: %s

Respond in JSON format only:
{
    "classification": "<one of: bug_report, feature_request, question, praise, complaint, spam>",
    "severity": "<one of: critical, high, medium, low>",
    "summary": "<one sentence summary>",
    "reasoning": "<brief explanation>"
}

Classification guidelines:
- bug_report: Something is broken or not working as expected
- feature_request: Request for new functionality or enhancement
- question: User asking for help or clarification
- praise: Positive feedback, thanks, or compliments
- complaint: Negative feedback that isn't a specific bug report
- spam: Irrelevant, promotional, or bot-generated content

Severity guidelines:
- critical: Crash, data loss, security issue, or completely blocks usage
- high: Major functionality broken, affects many users
- medium: Minor bug, reasonable feature request, or question needing attention
- low: Cosmetic issue, praise, minor suggestion, or spam`,
		it.Type, it.Source, it.Title, body, it.Author, it.Context)
}
