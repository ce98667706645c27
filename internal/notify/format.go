package notify

import (
	"fmt"
	"html"
	"strings"

	"wingman/internal/triage"
	"wingman/internal/watch"
)

var severityIndicators = map[string]string{
	"critical": "!!!",
	"high":     "!!",
	"medium":   "!",
	"low":      "",
	"unknown":  "?",
}

var severityColors = map[string]string{
	"critical": "#dc2626",
	"high":     "#ea580c",
	"medium":   "#ca8a04",
	"low":      "#6b7280",
	"unknown":  "#9ca3af",
}

var sourceLabels = map[watch.Source]string{
	watch.SourceGitHub: "GitHub",
	watch.SourceForge:  "SPT-Forge",
	watch.SourceReddit: "Reddit",
	watch.SourceRSS:    "RSS",
}

var typeLabels = map[watch.ItemType]string{
	watch.TypeIssue:      "Issue",
	watch.TypeComment:    "Comment",
	watch.TypePR:         "Pull Request",
	watch.TypePost:       "Post",
	watch.TypeModComment: "Mod Comment",
	watch.TypeModUpdate:  "Mod Update",
}

const bodyPreviewChars = 500

// FormatItem renders a notification for a triaged item, usable by every
// channel (subject + html + compact text).
func FormatItem(it watch.Item, tr triage.Result) Notification {
	indicator := severityIndicators[tr.Severity]
	color := severityColors[tr.Severity]
	if color == "" {
		color = "#6b7280"
	}
	srcLabel := sourceLabels[it.Source]
	if srcLabel == "" {
		srcLabel = string(it.Source)
	}
	typeLabel := typeLabels[it.Type]
	if typeLabel == "" {
		typeLabel = string(it.Type)
	}
	classDisplay := strings.ToUpper(strings.ReplaceAll(tr.Classification, "_", " "))

	prefix := ""
	if indicator != "" {
		prefix = indicator + " "
	}
	subject := fmt.Sprintf("[Wingman] %s%s on %s (%s)", prefix, classDisplay, it.Context, srcLabel)

	preview := strings.TrimSpace(it.Body)
	if len(preview) > bodyPreviewChars {
		preview = preview[:bodyPreviewChars] + "..."
	}

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">

<div style="border-left: 4px solid %s; padding: 12px 16px; margin-bottom: 20px; background: #f8f9fa;">
    <h2 style="margin: 0 0 8px 0; font-size: 18px;">%s New %s: %s</h2>
</div>

<table style="width: 100%%; border-collapse: collapse; margin-bottom: 16px; font-size: 14px;">
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold; white-space: nowrap;">Source:</td>
        <td style="padding: 4px 0;">%s / %s</td></tr>
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold; white-space: nowrap;">Type:</td>
        <td style="padding: 4px 0;">%s</td></tr>
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold; white-space: nowrap;">Author:</td>
        <td style="padding: 4px 0;">%s</td></tr>
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold; white-space: nowrap;">Classification:</td>
        <td style="padding: 4px 0;"><span style="color: %s; font-weight: bold;">%s</span></td></tr>
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold; white-space: nowrap;">Severity:</td>
        <td style="padding: 4px 0;"><span style="color: %s; font-weight: bold;">%s</span></td></tr>
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold; white-space: nowrap;">AI Summary:</td>
        <td style="padding: 4px 0;">%s</td></tr>
</table>

<blockquote style="margin: 0 0 16px 0; padding: 12px 16px; background: #f1f3f5; border-left: 3px solid #dee2e6; font-size: 13px; color: #495057; white-space: pre-wrap;">%s</blockquote>

<p style="margin: 0;">
    <a href="%s" style="color: #2563eb; text-decoration: none; font-weight: bold;">View on %s &rarr;</a>
</p>

</body>
</html>`,
		color, indicator, esc(typeLabel), esc(it.Title),
		esc(srcLabel), esc(it.Context),
		esc(typeLabel),
		esc(it.Author),
		color, esc(classDisplay),
		color, esc(strings.ToUpper(tr.Severity)),
		esc(tr.Summary),
		esc(preview),
		it.URL, esc(srcLabel),
	)

	// Compact plain text, SMS-gateway friendly.
	var parts []string
	if indicator != "" {
		parts = append(parts, indicator+" "+classDisplay)
	} else {
		parts = append(parts, classDisplay)
	}
	parts = append(parts, fmt.Sprintf("%s (%s)", it.Context, srcLabel))
	parts = append(parts, fmt.Sprintf("%q by %s", it.Title, it.Author))
	if tr.Summary != "" {
		parts = append(parts, "AI: "+tr.Summary)
	}
	parts = append(parts, it.URL)

	return Notification{
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: strings.Join(parts, "\n"),
	}
}

// FormatWatcherFailure renders the escalation raised when a watcher keeps
// failing. lastSuccess should be "never" when the watcher has never
// completed a cycle.
func FormatWatcherFailure(watcherName string, failures int, lastErr, lastSuccess string) Notification {
	if strings.TrimSpace(lastSuccess) == "" {
		lastSuccess = "never"
	}

	subject := fmt.Sprintf("[Wingman] SYSTEM: %s failing", watcherName)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<div style="border-left: 4px solid #dc2626; padding: 12px 16px; background: #fef2f2;">
    <h2 style="margin: 0; font-size: 18px; color: #dc2626;">Watcher Failure Alert</h2>
</div>
<table style="width: 100%%; margin: 16px 0; font-size: 14px;">
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold;">Watcher:</td><td>%s</td></tr>
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold;">Consecutive failures:</td><td>%d</td></tr>
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold;">Last error:</td><td>%s</td></tr>
    <tr><td style="padding: 4px 12px 4px 0; font-weight: bold;">Last success:</td><td>%s</td></tr>
</table>
</body></html>`,
		esc(watcherName), failures, esc(lastErr), esc(lastSuccess),
	)

	text := fmt.Sprintf("WINGMAN ALERT: %s has failed %d times.\nError: %s\nLast success: %s",
		watcherName, failures, lastErr, lastSuccess)

	return Notification{Subject: subject, HTMLBody: htmlBody, TextBody: text}
}

func esc(s string) string { return html.EscapeString(s) }
