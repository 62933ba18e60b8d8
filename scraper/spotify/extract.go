package spotify

import (
	"os"
	"os/exec"
	"strings"

	"golang.org/x/net/html"

	"stream-tracker/services"
)

const (
	playcountTestID   = "playcount"
	playcountSelector = `[data-testid="playcount"]`
)

// PickCount returns the first plausible count among candidate element
// texts. Texts without digits are skipped.
func PickCount(texts []string) (int64, bool) {
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if !services.HasDigit(text) {
			continue
		}
		if n, ok := services.ParsePlausible(text); ok {
			return n, true
		}
	}
	return 0, false
}

// playcountTexts walks doc and returns the text content of every element
// tagged data-testid="playcount", in document order.
func playcountTexts(doc *html.Node) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "data-testid") == playcountTestID {
			out = append(out, textContent(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// FindChromeBinary locates a Chrome/Chromium binary. A non-empty override
// wins; an empty result lets chromedp use its own lookup.
func FindChromeBinary(override string) string {
	if override != "" {
		return override
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
