package triage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"wingman/internal/watch"
	"wingman/pkg/logx"
)

func messagesResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"text": text}},
	})
	return string(b)
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL}, logx.Nop())
}

func TestAnalyzeParsesResponse(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(messagesResponse(`{"classification":"bug_report","severity":"high","summary":"crash on load","reasoning":"stack trace"}`)))
	})

	got, err := c.Analyze(context.Background(), watch.Item{
		Source: watch.SourceGitHub,
		Type:   watch.TypeIssue,
		Title:  "crash",
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if got.Classification != "bug_report" || got.Severity != "high" {
		t.Fatalf("result = %+v", got)
	}
}

func TestAnalyzeStripsMarkdownFences(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(messagesResponse("```json\n{\"classification\":\"question\",\"severity\":\"low\"}\n```")))
	})

	got, err := c.Analyze(context.Background(), watch.Item{})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if got.Classification != "question" {
		t.Fatalf("classification = %q", got.Classification)
	}
}

func TestAnalyzeErrorsOnBadStatus(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	if _, err := c.Analyze(context.Background(), watch.Item{}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestAnalyzeErrorsOnMalformedJSON(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(messagesResponse("I cannot classify this item.")))
	})
	if _, err := c.Analyze(context.Background(), watch.Item{}); err == nil {
		t.Fatal("expected error for non-json model output")
	}
}

func TestAnalyzeRequiresAPIKey(t *testing.T) {
	t.Parallel()
	c := New(Config{}, logx.Nop())
	if _, err := c.Analyze(context.Background(), watch.Item{}); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestParseResultDefaults(t *testing.T) {
	t.Parallel()
	got, err := parseResult(`{"summary":"something"}`)
	if err != nil {
		t.Fatalf("parseResult error: %v", err)
	}
	if got.Classification != "unclassified" || got.Severity != "unknown" {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestFallbackIsFixed(t *testing.T) {
	t.Parallel()
	fb := Fallback()
	if fb.Classification != "unclassified" || fb.Severity != "unknown" || fb.Summary != "AI triage unavailable" {
		t.Fatalf("fallback = %+v", fb)
	}
}
