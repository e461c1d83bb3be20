package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/retrieval"
)

const defaultBaseURL = "https://api.tavily.com"

// Client queries the Tavily search API, restricted to the configured
// allowlist of educational domains.
type Client struct {
	apiKey         string
	baseURL        string
	allowedDomains []string
	scrapeContent  bool
	httpClient     *http.Client
	logger         *zap.Logger
}

type Config struct {
	APIKey         string
	BaseURL        string
	AllowedDomains []string
	TimeoutSec     int
	ScrapeContent  bool
	Logger         *zap.Logger
}

type searchRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		allowedDomains: cfg.AllowedDomains,
		scrapeContent:  cfg.ScrapeContent,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         log,
	}
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]retrieval.Passage, error) {
	c.logger.Info("Performing web search", zap.String("query", truncate(query, 100)))

	body, err := json.Marshal(c.buildRequest(query, maxResults))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	passages := make([]retrieval.Passage, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		content := r.Content
		if c.scrapeContent {
			if scraped, err := c.scrapePage(ctx, r.URL); err == nil && scraped != "" {
				content = scraped
			} else if err != nil {
				c.logger.Debug("Failed to scrape result page",
					zap.String("url", r.URL),
					zap.Error(err),
				)
			}
		}

		passages = append(passages, retrieval.Passage{
			Kind:  retrieval.SourceWeb,
			Title: r.Title,
			URL:   r.URL,
			Text:  content,
			Score: r.Score,
		})
	}

	c.logger.Info("Web search completed", zap.Int("results", len(passages)))

	return passages, nil
}

func (c *Client) buildRequest(query string, maxResults int) searchRequest {
	if maxResults <= 0 {
		maxResults = 5
	}
	return searchRequest{
		APIKey:         c.apiKey,
		Query:          query,
		SearchDepth:    "advanced",
		MaxResults:     maxResults,
		IncludeDomains: c.allowedDomains,
	}
}

func (c *Client) scrapePage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	return truncate(text, 3000), nil
}

// truncate cuts at a rune boundary; scraped pages are full of multi-byte
// characters and a split rune would corrupt the passage text.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
