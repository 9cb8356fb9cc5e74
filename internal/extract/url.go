package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/ppiankov/proofpulse/internal/model"
	"github.com/ppiankov/proofpulse/internal/util"
)

// ErrRobotsDisallowed is returned when robots.txt forbids the fetch
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// RateLimiter paces requests per domain
type RateLimiter interface {
	WaitWithDelay(ctx context.Context, rawURL string, additionalDelay time.Duration) error
}

// URLExtractor fetches a page and extracts its readable text
type URLExtractor struct {
	fetcher *Fetcher
	robots  *util.RobotsChecker
	limiter RateLimiter
}

// URLOption configures a URLExtractor
type URLOption func(*URLExtractor)

// WithRobots enables robots.txt checks
func WithRobots(r *util.RobotsChecker) URLOption {
	return func(e *URLExtractor) { e.robots = r }
}

// WithLimiter enables per-domain rate limiting
func WithLimiter(l RateLimiter) URLOption {
	return func(e *URLExtractor) { e.limiter = l }
}

// NewURLExtractor creates a URL extractor around fetcher
func NewURLExtractor(fetcher *Fetcher, opts ...URLOption) *URLExtractor {
	e := &URLExtractor{fetcher: fetcher}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches raw and returns its main text. HTML goes through
// readability first, then a visible-text walk if that comes up short.
// PDF and plain-text responses are handled by content type.
func (e *URLExtractor) Extract(ctx context.Context, raw string) (*model.Extraction, error) {
	target := strings.TrimSpace(raw)
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", raw)
	}

	var crawlDelay time.Duration
	if e.robots != nil {
		allowed, delay, err := e.robots.CanFetch(ctx, target)
		if err == nil && !allowed {
			return nil, fmt.Errorf("%w: %s", ErrRobotsDisallowed, target)
		}
		crawlDelay = delay
	}

	if e.limiter != nil {
		if err := e.limiter.WaitWithDelay(ctx, target, crawlDelay); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	res, err := e.fetcher.FetchWithRetry(ctx, target)
	if err != nil {
		return nil, err
	}

	var text string
	contentType := strings.ToLower(res.ContentType)
	switch {
	case strings.Contains(contentType, "application/pdf"):
		text, err = pdfText(bytes.NewReader(res.Body), int64(len(res.Body)))
		if err != nil {
			return nil, err
		}
	case strings.HasPrefix(contentType, "text/plain"):
		text = string(res.Body)
	default:
		text = htmlText(res.Body, res.FinalURL)
	}

	text = normalizeLines(text)
	if err := requireLength(text, MinURLChars); err != nil {
		return nil, err
	}
	return &model.Extraction{Text: text, Timestamps: []model.Timestamp{}}, nil
}

// htmlText prefers the readability article body and falls back to all
// visible text when the article is too short
func htmlText(body []byte, pageURL string) string {
	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil {
		text := normalizeLines(article.TextContent)
		if utf8.RuneCountInString(text) >= MinURLChars {
			return text
		}
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return visibleText(doc)
}

// blockElements end a line in the visible-text walk
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

// visibleText extracts text nodes, skipping scripts and page chrome
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "footer", "header", "template":
				return
			}
		}

		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteString("\n")
		}
	}

	walk(n)
	return buf.String()
}
