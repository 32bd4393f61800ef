// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scrape fetches a company's own website and reduces it to plain
// text for the analysts' overview documents.
package scrape

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/pdiddy/equity-research/internal/httputil"
	"github.com/pdiddy/equity-research/pkg/types"
)

const (
	defaultMaxChars = 20000
	maxBodyBytes    = 4 << 20
)

// skipped elements contribute no visible text.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"svg":      true,
	"form":     true,
	"iframe":   true,
	"template": true,
}

// Page is the result of scraping one URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Content renders the page as the text seeded into analyst datasets.
func (p Page) Content() string {
	if p.Title == "" {
		return p.Text
	}
	return p.Title + "\n\n" + p.Text
}

// Fetcher downloads and extracts pages.
type Fetcher struct {
	MaxChars   int
	MaxRetries int
	HTTP       *http.Client
}

// New builds a Fetcher from cfg.
func New(cfg types.ScrapeConfig, httpCfg types.HTTPConfig, client *http.Client) *Fetcher {
	return &Fetcher{MaxChars: cfg.MaxChars, MaxRetries: httpCfg.MaxRetries, HTTP: client}
}

// Fetch downloads rawURL and returns its title and visible text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, eris.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, f.MaxRetries)
	if err != nil {
		return Page{}, eris.Wrapf(err, "fetching %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, eris.Errorf("fetching %s: HTTP %d", rawURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Page{}, eris.Errorf("fetching %s: unsupported content type %q", rawURL, ct)
	}

	limit := f.MaxChars
	if limit <= 0 {
		limit = defaultMaxChars
	}
	page, err := Extract(io.LimitReader(resp.Body, maxBodyBytes), limit)
	if err != nil {
		return Page{}, eris.Wrapf(err, "parsing %s", rawURL)
	}
	page.URL = rawURL
	return page, nil
}

// Extract parses an HTML document and returns its title and visible text,
// whitespace-collapsed and cut to maxChars runes.
func Extract(r io.Reader, maxChars int) (Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, err
	}

	var page Page
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && page.Title == "" {
				page.Title = collapse(textContent(n))
				return
			}
			if skipped[n.Data] {
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.Text = cut(collapse(b.String()), maxChars)
	return page, nil
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
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cut(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
