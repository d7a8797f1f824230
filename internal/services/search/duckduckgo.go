// Package search provides the web search collaborator used to prefetch
// module context. Results come from DuckDuckGo's static HTML endpoint.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

const (
	// defaultEndpoint is DuckDuckGo's JavaScript-free results page.
	defaultEndpoint = "https://html.duckduckgo.com/html/"

	// defaultTimeout is the HTTP timeout when no valid value is configured.
	defaultTimeout = 30 * time.Second

	// defaultInterval is the minimum spacing between search requests.
	defaultInterval = 2 * time.Second

	// defaultMaxResults caps how many parsed results a query returns.
	defaultMaxResults = 5

	// defaultUserAgent is sent when no user agent is configured. The
	// endpoint rejects obviously non-browser agents.
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// noResultsText matches the sentinel the analysis prompts historically
	// carried when a query came back empty.
	noResultsText = "No good DuckDuckGo Search Result was found"

	// fetchMaxRunes caps the markdown rendered from a fetched result page.
	fetchMaxRunes = 4000

	// fetchMaxBytes caps how much of a result page body is read.
	fetchMaxBytes = 512 * 1024
)

// Service queries DuckDuckGo and renders results for prompt assembly.
type Service struct {
	endpoint     string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxResults   int
	fetchContent bool
	userAgent    string
	logger       arbor.ILogger
}

// NewService creates a DuckDuckGo search service from configuration.
// Invalid duration strings fall back to defaults rather than failing, so a
// bad config value degrades the service instead of blocking startup.
func NewService(cfg common.SearchConfig, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = arbor.NewLogger()
	}

	timeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil || timeout <= 0 {
		timeout = defaultTimeout
	}
	interval, err := time.ParseDuration(cfg.RateLimit)
	if err != nil || interval <= 0 {
		interval = defaultInterval
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Service{
		endpoint:     defaultEndpoint,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Every(interval), 1),
		maxResults:   maxResults,
		fetchContent: cfg.FetchContent,
		userAgent:    userAgent,
		logger:       logger,
	}
}

// Search performs a query against the HTML endpoint and parses the results.
func (s *Service) Search(ctx context.Context, query string) ([]interfaces.SearchResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	reqURL := s.endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html")

	s.logger.Debug().
		Str("query", query).
		Msg("Executing web search")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	results := s.parseResults(doc)

	s.logger.Debug().
		Str("query", query).
		Int("results", len(results)).
		Msg("Web search completed")

	return results, nil
}

func (s *Service) parseResults(doc *goquery.Document) []interfaces.SearchResult {
	var results []interfaces.SearchResult

	doc.Find("div.result").Each(func(i int, sel *goquery.Selection) {
		if len(results) >= s.maxResults {
			return
		}
		if sel.HasClass("result--ad") {
			return
		}

		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if title == "" || !ok || href == "" {
			return
		}

		snippet := strings.TrimSpace(sel.Find(".result__snippet").First().Text())

		results = append(results, interfaces.SearchResult{
			Title:   title,
			URL:     resolveRedirect(href),
			Snippet: snippet,
		})
	})

	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links to the
// destination URL. Anything that does not look like a redirect passes
// through unchanged.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// Run executes the query and renders the results as a text block. Failures
// come back as descriptive text rather than an error so that prompt
// assembly degrades instead of aborting the module run.
func (s *Service) Run(ctx context.Context, query string) string {
	results, err := s.Search(ctx, query)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("query", query).
			Msg("Web search failed")
		return fmt.Sprintf("Error performing search: %v", err)
	}
	if len(results) == 0 {
		return noResultsText
	}

	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("%d. %s\n%s\n来源: %s", i+1, r.Title, r.Snippet, r.URL))
	}
	text := strings.Join(blocks, "\n\n")

	if s.fetchContent {
		if page := s.fetchTopResult(ctx, results[0].URL); page != "" {
			text += "\n\n首条结果页面内容:\n" + page
		}
	}

	return text
}

// fetchTopResult downloads the first result page and converts it to
// markdown. Any failure returns an empty string so the snippets alone are
// used.
func (s *Service) fetchTopResult(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to create result page request")
		return ""
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to fetch result page")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", pageURL).
			Msg("Result page fetch returned non-OK status")
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to read result page body")
		return ""
	}

	converter := md.NewConverter(resp.Request.URL.Host, true, nil)
	markdown, err := converter.ConvertString(string(body))
	if err != nil {
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("HTML to markdown conversion failed")
		return ""
	}

	return common.TruncateRunes(strings.TrimSpace(markdown), fetchMaxRunes)
}
