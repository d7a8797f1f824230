package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div class="results">
  <div class="result results_links web-result">
    <h2 class="result__title"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Freport&amp;rut=abc">半导体行业研究报告</a></h2>
    <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Freport">2023年半导体行业产能利用率分析。</a>
  </div>
  <div class="result result--ad">
    <h2 class="result__title"><a class="result__a" href="https://ads.example.com">广告结果</a></h2>
    <a class="result__snippet">推广内容。</a>
  </div>
  <div class="result">
    <h2 class="result__title"><a class="result__a" href="https://example.org/news">产业新闻</a></h2>
    <a class="result__snippet">晶圆代工价格走势回顾。</a>
  </div>
  <div class="result">
    <h2 class="result__title"><a class="result__a" href="https://example.net/third">第三条结果</a></h2>
    <a class="result__snippet">第三条摘要。</a>
  </div>
</div>
</body></html>`

func testSearchConfig() common.SearchConfig {
	return common.SearchConfig{
		Enabled:        true,
		MaxResults:     5,
		RequestTimeout: "5s",
		RateLimit:      "1ms",
		UserAgent:      "test-agent",
	}
}

func newTestService(t *testing.T, cfg common.SearchConfig, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := NewService(cfg, arbor.NewLogger())
	svc.endpoint = server.URL + "/html/"
	return svc
}

func TestSearchParsesResults(t *testing.T) {
	var gotQuery, gotAgent string
	svc := newTestService(t, testSearchConfig(), func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(resultsPage))
	})

	results, err := svc.Search(context.Background(), "半导体 产能利用率")

	require.NoError(t, err)
	assert.Equal(t, "半导体 产能利用率", gotQuery)
	assert.Equal(t, "test-agent", gotAgent)

	// The ad block is skipped.
	require.Len(t, results, 3)
	assert.Equal(t, "半导体行业研究报告", results[0].Title)
	assert.Equal(t, "https://example.com/report", results[0].URL)
	assert.Equal(t, "2023年半导体行业产能利用率分析。", results[0].Snippet)
	assert.Equal(t, "产业新闻", results[1].Title)
	assert.Equal(t, "https://example.org/news", results[1].URL)
	assert.Equal(t, "晶圆代工价格走势回顾。", results[1].Snippet)
	assert.Equal(t, "第三条结果", results[2].Title)
}

func TestSearchRespectsMaxResults(t *testing.T) {
	cfg := testSearchConfig()
	cfg.MaxResults = 2
	svc := newTestService(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	})

	results, err := svc.Search(context.Background(), "半导体")

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchNonOKStatus(t *testing.T) {
	svc := newTestService(t, testSearchConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := svc.Search(context.Background(), "半导体")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestRunRendersResults(t *testing.T) {
	svc := newTestService(t, testSearchConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	})

	text := svc.Run(context.Background(), "半导体")

	assert.Contains(t, text, "1. 半导体行业研究报告\n2023年半导体行业产能利用率分析。\n来源: https://example.com/report")
	assert.Contains(t, text, "2. 产业新闻")
	assert.Contains(t, text, "3. 第三条结果")
	assert.NotContains(t, text, "广告结果")
}

func TestRunReportsFailureAsText(t *testing.T) {
	svc := newTestService(t, testSearchConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	text := svc.Run(context.Background(), "半导体")

	assert.Contains(t, text, "Error performing search:")
	assert.Contains(t, text, "status 500")
}

func TestRunNoResults(t *testing.T) {
	svc := newTestService(t, testSearchConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><div class=\"results\"></div></body></html>"))
	})

	text := svc.Run(context.Background(), "冷门查询")

	assert.Equal(t, noResultsText, text)
}

func TestRunFetchesTopResultContent(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><h1>年度报告</h1><p>正文内容。</p></body></html>"))
	}))
	t.Cleanup(page.Close)

	ddgPage := `<html><body>
<div class="result">
  <h2 class="result__title"><a class="result__a" href="` + page.URL + `">年报来源</a></h2>
  <a class="result__snippet">年报摘要。</a>
</div>
</body></html>`

	cfg := testSearchConfig()
	cfg.FetchContent = true
	svc := newTestService(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ddgPage))
	})

	text := svc.Run(context.Background(), "年报")

	assert.Contains(t, text, "1. 年报来源")
	assert.Contains(t, text, "首条结果页面内容:")
	assert.Contains(t, text, "年度报告")
	assert.Contains(t, text, "正文内容。")
}

func TestRunFetchFailureKeepsSnippets(t *testing.T) {
	ddgPage := `<html><body>
<div class="result">
  <h2 class="result__title"><a class="result__a" href="http://127.0.0.1:1/unreachable">年报来源</a></h2>
  <a class="result__snippet">年报摘要。</a>
</div>
</body></html>`

	cfg := testSearchConfig()
	cfg.FetchContent = true
	svc := newTestService(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ddgPage))
	})

	text := svc.Run(context.Background(), "年报")

	assert.Contains(t, text, "1. 年报来源\n年报摘要。")
	assert.NotContains(t, text, "首条结果页面内容:")
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(common.SearchConfig{}, nil)

	assert.Equal(t, defaultEndpoint, svc.endpoint)
	assert.Equal(t, defaultMaxResults, svc.maxResults)
	assert.Equal(t, defaultTimeout, svc.httpClient.Timeout)
	assert.Equal(t, defaultUserAgent, svc.userAgent)
	assert.False(t, svc.fetchContent)
}

func TestNewServiceInvalidDurations(t *testing.T) {
	cfg := common.SearchConfig{RequestTimeout: "not-a-duration", RateLimit: "-5s"}
	svc := NewService(cfg, arbor.NewLogger())

	assert.Equal(t, 30*time.Second, svc.httpClient.Timeout)
	assert.NotNil(t, svc.limiter)
}

func TestResolveRedirect(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{
			name: "redirect link",
			href: "//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Freport&rut=abc",
			want: "https://example.com/report",
		},
		{
			name: "direct link",
			href: "https://example.org/news",
			want: "https://example.org/news",
		},
		{
			name: "relative link",
			href: "/html/?q=next",
			want: "/html/?q=next",
		},
		{
			name: "unparseable link",
			href: "%zz",
			want: "%zz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveRedirect(tt.href))
		})
	}
}

func TestDisabledService(t *testing.T) {
	svc := NewDisabledService(arbor.NewLogger())

	_, err := svc.Search(context.Background(), "半导体")
	require.ErrorIs(t, err, ErrSearchDisabled)

	text := svc.Run(context.Background(), "半导体")
	assert.Equal(t, "Error performing search: search service is disabled in configuration", text)
}

func TestNewSearchServiceFactory(t *testing.T) {
	logger := arbor.NewLogger()

	disabled := NewSearchService(common.SearchConfig{Enabled: false}, logger)
	_, ok := disabled.(*DisabledService)
	assert.True(t, ok)

	enabled := NewSearchService(testSearchConfig(), logger)
	_, ok = enabled.(*Service)
	assert.True(t, ok)
}
