package forge

import (
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

type scrapedComment struct {
	Author    string
	Body      string
	Timestamp string
}

var textPolicy = bluemonday.StrictPolicy()

// extractComments walks the page HTML looking for comment containers. Forge
// renders comments through Livewire, so only what appears in the initial
// HTML is visible here; JS-only comments are simply absent.
func extractComments(r io.Reader) ([]scrapedComment, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var comments []scrapedComment
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isCommentContainer(n) {
			if c, ok := parseContainer(n); ok {
				comments = append(comments, c)
			}
			return // don't descend into a matched container
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return comments, nil
}

func isCommentContainer(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "class", "id":
			if strings.Contains(strings.ToLower(a.Val), "comment") {
				return true
			}
		case "data-comment":
			return true
		}
	}
	return false
}

func parseContainer(n *html.Node) (scrapedComment, bool) {
	c := scrapedComment{
		Author:    "unknown",
		Timestamp: findTimestamp(n),
	}
	if author := findFirstText(n, "author", "user", "name"); author != "" {
		c.Author = author
	}
	c.Body = findFirstText(n, "body", "content", "text", "message")
	if c.Body == "" {
		// Fall back to any paragraph inside the container.
		c.Body = firstElementText(n, "p")
	}
	if c.Body == "" {
		return scrapedComment{}, false
	}
	return c, true
}

// findFirstText returns the sanitized text of the first descendant whose
// class contains any of the given markers.
func findFirstText(root *html.Node, markers ...string) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key != "class" {
					continue
				}
				cls := strings.ToLower(a.Val)
				for _, m := range markers {
					if strings.Contains(cls, m) {
						found = nodeText(n)
						return found != ""
					}
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if walk(ch) {
				return true
			}
		}
		return false
	}
	for ch := root.FirstChild; ch != nil; ch = ch.NextSibling {
		if walk(ch) {
			break
		}
	}
	return found
}

func findTimestamp(root *html.Node) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if n.Data == "time" {
				for _, a := range n.Attr {
					if a.Key == "datetime" && a.Val != "" {
						found = a.Val
						return true
					}
				}
				found = nodeText(n)
				return found != ""
			}
			for _, a := range n.Attr {
				if a.Key == "class" {
					cls := strings.ToLower(a.Val)
					if strings.Contains(cls, "date") || strings.Contains(cls, "time") || strings.Contains(cls, "ago") {
						found = nodeText(n)
						return found != ""
					}
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if walk(ch) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

func firstElementText(root *html.Node, tag string) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			found = nodeText(n)
			return found != ""
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if walk(ch) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

// nodeText renders a node's inner HTML and strips all markup, leaving
// sanitized plain text.
func nodeText(n *html.Node) string {
	var b strings.Builder
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		_ = html.Render(&b, ch)
	}
	return strings.TrimSpace(textPolicy.Sanitize(b.String()))
}
