package notify

import (
	"strings"
	"testing"

	"wingman/internal/triage"
	"wingman/internal/watch"
)

func TestFormatItemSubject(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sev  string
		cls  string
		want string
	}{
		{name: "critical", sev: "critical", cls: "bug_report", want: "[Wingman] !!! BUG REPORT on owner/repo (GitHub)"},
		{name: "high", sev: "high", cls: "bug_report", want: "[Wingman] !! BUG REPORT on owner/repo (GitHub)"},
		{name: "low has no indicator", sev: "low", cls: "question", want: "[Wingman] QUESTION on owner/repo (GitHub)"},
		{name: "unknown severity", sev: "unknown", cls: "unclassified", want: "[Wingman] ? UNCLASSIFIED on owner/repo (GitHub)"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			n := FormatItem(watch.Item{
				Source:  watch.SourceGitHub,
				Type:    watch.TypeIssue,
				Context: "owner/repo",
				Title:   "t",
			}, triage.Result{Classification: tt.cls, Severity: tt.sev})
			if n.Subject != tt.want {
				t.Fatalf("subject = %q, want %q", n.Subject, tt.want)
			}
		})
	}
}

func TestFormatItemEscapesHTML(t *testing.T) {
	t.Parallel()
	n := FormatItem(watch.Item{
		Source:  watch.SourceReddit,
		Type:    watch.TypePost,
		Context: "r/test",
		Title:   `<script>alert("x")</script>`,
		Body:    "a < b",
		Author:  "user",
	}, triage.Fallback())

	if strings.Contains(n.HTMLBody, "<script>") {
		t.Fatal("title injected unescaped into html body")
	}
	if !strings.Contains(n.HTMLBody, "&lt;script&gt;") {
		t.Fatal("escaped title missing from html body")
	}
}

func TestFormatItemTruncatesPreview(t *testing.T) {
	t.Parallel()
	n := FormatItem(watch.Item{
		Source: watch.SourceRSS,
		Type:   watch.TypePost,
		Body:   strings.Repeat("x", 2000),
	}, triage.Fallback())

	if !strings.Contains(n.HTMLBody, strings.Repeat("x", bodyPreviewChars)+"...") {
		t.Fatal("long body not truncated with ellipsis")
	}
	if strings.Contains(n.HTMLBody, strings.Repeat("x", bodyPreviewChars+1)) {
		t.Fatal("preview exceeds the cap")
	}
}

func TestFormatWatcherFailure(t *testing.T) {
	t.Parallel()
	n := FormatWatcherFailure("RedditWatcher", 10, "401 unauthorized", "")

	if n.Subject != "[Wingman] SYSTEM: RedditWatcher failing" {
		t.Fatalf("subject = %q", n.Subject)
	}
	if !strings.Contains(n.TextBody, "failed 10 times") {
		t.Fatalf("text = %q", n.TextBody)
	}
	if !strings.Contains(n.TextBody, "Last success: never") {
		t.Fatalf("empty last success not rendered as never: %q", n.TextBody)
	}
}
