package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultSearchCount  = 5
	maxSearchCount      = 10
	searchTimeout       = 30 * time.Second
	braveSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"
	searchUserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

type searchHit struct {
	Title       string
	URL         string
	Description string
}

// searchBackend is one way to answer a query. Backends are tried in
// order; the first success wins.
type searchBackend interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]searchHit, error)
}

// WebSearchTool searches the web via Brave (when an API key is set) with
// a DuckDuckGo HTML fallback. Results are cached per query.
type WebSearchTool struct {
	backends []searchBackend
	cache    *webCache
}

type WebSearchConfig struct {
	BraveAPIKey string
	CacheTTL    time.Duration
}

func NewWebSearchTool(cfg WebSearchConfig) *WebSearchTool {
	var backends []searchBackend
	if cfg.BraveAPIKey != "" {
		backends = append(backends, &braveBackend{
			apiKey: cfg.BraveAPIKey,
			client: &http.Client{Timeout: searchTimeout},
		})
	}
	backends = append(backends, &duckduckgoBackend{
		client: &http.Client{Timeout: searchTimeout},
	})
	return &WebSearchTool{
		backends: backends,
		cache:    newWebCache(defaultCacheMaxEntries, cfg.CacheTTL),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns titles, URLs, and snippets."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query.",
			},
			"count": map[string]interface{}{
				"type":        "number",
				"description": "Number of results (1-10).",
				"default":     float64(defaultSearchCount),
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("query is required")
	}
	count := defaultSearchCount
	if c, ok := args["count"].(float64); ok && int(c) >= 1 && int(c) <= maxSearchCount {
		count = int(c)
	}

	cacheKey := fmt.Sprintf("%s:%d", query, count)
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("web_search cache hit", "query", query)
		return NewResult(cached)
	}

	var lastErr error
	for _, b := range t.backends {
		hits, err := b.Search(ctx, query, count)
		if err != nil {
			slog.Warn("search backend failed", "backend", b.Name(), "error", err)
			lastErr = err
			continue
		}
		out := formatSearchHits(query, b.Name(), hits)
		t.cache.set(cacheKey, out)
		return NewResult(out)
	}
	return ErrorResult(fmt.Sprintf("search failed: %v", lastErr))
}

func formatSearchHits(query, backend string, hits []searchHit) string {
	if len(hits) == 0 {
		return "No results found for: " + query
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q (via %s):\n\n", query, backend)
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, h.Title, h.URL)
		if h.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", h.Description)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// --- Brave ---

type braveBackend struct {
	apiKey string
	client *http.Client
}

func (b *braveBackend) Name() string { return "brave" }

func (b *braveBackend) Search(ctx context.Context, query string, count int) ([]searchHit, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveSearchEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave returned %d", resp.StatusCode)
	}

	var parsed struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse brave response: %w", err)
	}

	hits := make([]searchHit, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		hits = append(hits, searchHit{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return hits, nil
}

// --- DuckDuckGo HTML fallback ---

type duckduckgoBackend struct {
	client *http.Client
}

func (b *duckduckgoBackend) Name() string { return "duckduckgo" }

var (
	ddgLinkRe    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	anyTagRe     = regexp.MustCompile(`<[^>]+>`)
)

func (b *duckduckgoBackend) Search(ctx context.Context, query string, count int) ([]searchHit, error) {
	searchURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	return parseDDGResults(string(body), count), nil
}

func parseDDGResults(html string, count int) []searchHit {
	links := ddgLinkRe.FindAllStringSubmatch(html, count+5)
	snippets := ddgSnippetRe.FindAllStringSubmatch(html, count+5)

	var hits []searchHit
	for i := 0; i < len(links) && i < count; i++ {
		hit := searchHit{
			URL:   unwrapDDGRedirect(links[i][1]),
			Title: strings.TrimSpace(anyTagRe.ReplaceAllString(links[i][2], "")),
		}
		if i < len(snippets) {
			hit.Description = strings.TrimSpace(anyTagRe.ReplaceAllString(snippets[i][1], ""))
		}
		hits = append(hits, hit)
	}
	return hits
}

// unwrapDDGRedirect extracts the target URL from DDG's uddg= redirect wrapper.
func unwrapDDGRedirect(raw string) string {
	if !strings.Contains(raw, "uddg=") {
		return raw
	}
	u, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	idx := strings.Index(u, "uddg=")
	if idx == -1 {
		return raw
	}
	target := u[idx+5:]
	if amp := strings.Index(target, "&"); amp != -1 {
		target = target[:amp]
	}
	return target
}
