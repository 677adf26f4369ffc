package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// MaxSearchResults is how many results market_research returns.
const MaxSearchResults = 3

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]SearchResult, error)
}

// DuckDuckGo searches the DuckDuckGo HTML endpoint, which needs no API key.
type DuckDuckGo struct {
	BaseURL string
	Client  *http.Client
}

// DefaultDuckDuckGoURL is the HTML search endpoint.
const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// NewDuckDuckGo returns a searcher with a 30 second client timeout.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		BaseURL: DefaultDuckDuckGoURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Search implements Searcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	searchURL := d.BaseURL + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Set headers to look like a browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return ParseDuckDuckGoResults(string(body), max)
}

// ParseDuckDuckGoResults extracts up to max results from a result page.
func ParseDuckDuckGoResults(page string, max int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if r := extractResult(n); r.URL != "" && r.Title != "" {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results, nil
}

func extractResult(n *html.Node) SearchResult {
	var r SearchResult

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				r.URL = attr(n, "href")
				r.Title = textContent(n)
			case hasClass(n, "result__snippet"):
				r.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	// DuckDuckGo wraps result links in a redirect
	if rest, ok := strings.CutPrefix(r.URL, "//duckduckgo.com/l/?uddg="); ok {
		if decoded, err := url.QueryUnescape(rest); err == nil {
			if i := strings.Index(decoded, "&"); i > 0 {
				decoded = decoded[:i]
			}
			r.URL = decoded
		}
	}

	return r
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
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
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// FormatSearchResults renders results for the model.
func FormatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return "No results found for: " + query
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\nURL: %s", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "\n%s", r.Snippet)
		}
	}
	return b.String()
}

// MarketResearchTool searches the web for market news and analysis.
func MarketResearchTool(s Searcher) *Tool {
	return &Tool{
		Name:        "market_research",
		Kind:        KindWebSearch,
		Description: "Search the web for financial news, market analysis, or investment advice. Input should be a search query.",
		Params:      InputParam("Search query"),
		Execute: func(ctx context.Context, call Call) (string, error) {
			query := strings.TrimSpace(call.Input)
			if query == "" {
				return "", ErrEmptyInput
			}
			results, err := s.Search(ctx, query, MaxSearchResults)
			if err != nil {
				return "", fmt.Errorf("search failed: %w", err)
			}
			return FormatSearchResults(query, results), nil
		},
	}
}
