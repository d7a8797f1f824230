package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/retrieval"
)

// MockLLMService is a scripted LLMService for engine tests
type MockLLMService struct {
	invokeFunc     func(ctx context.Context, messages []interfaces.Message) (string, error)
	invokeJSONFunc func(ctx context.Context, messages []interfaces.Message) (string, error)
	calls          int
}

func (m *MockLLMService) Invoke(ctx context.Context, messages []interfaces.Message) (string, error) {
	m.calls++
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, messages)
	}
	return "mock response", nil
}

func (m *MockLLMService) InvokeJSON(ctx context.Context, messages []interfaces.Message) (string, error) {
	m.calls++
	if m.invokeJSONFunc != nil {
		return m.invokeJSONFunc(ctx, messages)
	}
	return "{}", nil
}

func (m *MockLLMService) ModelName() string { return "mock-model" }

func (m *MockLLMService) Close() error { return nil }

// fakeSearch records queries and returns a deterministic result per query.
type fakeSearch struct {
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string) ([]interfaces.SearchResult, error) {
	return []interfaces.SearchResult{}, nil
}

func (f *fakeSearch) Run(ctx context.Context, query string) string {
	f.queries = append(f.queries, query)
	return "搜索结果：" + query
}

func newTestEngine(t *testing.T, llm *MockLLMService, search interfaces.SearchService) *Engine {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	cfg := common.NewDefaultConfig().Analysis
	logger := arbor.NewLogger()
	return NewEngine(
		llm,
		search,
		retrieval.NewSelector(llm, logger),
		retrieval.NewCompressor(llm, cfg.CompressedDocMaxChars, logger),
		cat,
		&cfg,
		logger,
	)
}

func testWorkpaper() *models.Workpaper {
	wp := models.NewWorkpaper("wp_test", models.CompanyInfo{
		Name:                "示例科技股份有限公司",
		Industry:            "半导体",
		AnalysisPerspective: "股权投资",
	})
	wp.Reports = []models.FinancialReport{
		{
			PeriodLabel: "2023 Annual",
			Year:        2023,
			PeriodType:  "年报",
			BalanceSheet: &models.StatementTable{
				Columns: []string{"项目", "金额"},
				Rows:    [][]string{{"货币资金", "120000"}, {"存货", "80000"}},
			},
			IncomeStatement: &models.StatementTable{
				Columns: []string{"项目", "金额"},
				Rows:    [][]string{{"营业收入", "500000"}},
			},
			CashFlow: &models.StatementTable{
				Columns: []string{"项目", "金额"},
				Rows:    [][]string{{"经营活动现金流量净额", "90000"}},
			},
		},
	}
	return wp
}

func TestRunModuleWithoutPlannedNeeds(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{"analysis_text": "比率分析结论。", "confidence_score": "88%"}`, nil
		},
	}
	engine := newTestEngine(t, mock, &fakeSearch{})
	wp := testWorkpaper()

	output := engine.RunModule(context.Background(), wp, "2.1 综合比率分析")

	require.NotNil(t, output)
	assert.Equal(t, models.ModuleStatusCompleted, output.Status)
	assert.Equal(t, "比率分析结论。", output.TextSummary)
	assert.Equal(t, "88%", output.ConfidenceScore)
	assert.False(t, output.Timestamp.IsZero())
	assert.Empty(t, output.AbbreviatedSummary)

	assert.Contains(t, output.PromptUsed, "未规划或执行任何外部搜索查询。")
	assert.Contains(t, output.PromptUsed, "未规划或执行任何文档内容提取。")
	assert.Contains(t, output.PromptUsed, "无特定的前序模块分析结论可供直接参考，或依赖关系未定义。")
	assert.Contains(t, output.PromptUsed, "示例科技股份有限公司")
	assert.Contains(t, output.PromptUsed, "2.1 综合比率分析")
	assert.Contains(t, output.PromptUsed, "2023 Annual")
	assert.Contains(t, output.PromptUsed, models.DefaultMacroConclusion)
	assert.Contains(t, output.PromptUsed, models.DefaultIndustryConclusion)
	assert.Contains(t, output.PromptUsed, "资产负债表 (Balance Sheet)")

	// One call: the module analysis itself, no selection or compression.
	assert.Equal(t, 1, mock.calls)
}

func TestRunModulePrefetchesSearchResults(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{"analysis_text": "结论。", "confidence_score": "80%"}`, nil
		},
	}
	search := &fakeSearch{}
	engine := newTestEngine(t, mock, search)

	wp := testWorkpaper()
	wp.Metadata.NeedsByModule = map[string]models.InformationNeeds{
		"2.1 综合比率分析": {
			SearchQueries:       []string{"半导体行业产能利用率", "晶圆代工价格走势"},
			DocumentExtractions: []models.DocumentExtraction{},
		},
	}

	output := engine.RunModule(context.Background(), wp, "2.1 综合比率分析")

	assert.Equal(t, []string{"半导体行业产能利用率", "晶圆代工价格走势"}, search.queries)
	assert.Contains(t, output.PromptUsed, "针对查询“半导体行业产能利用率”的预获取搜索结果 1：\n搜索结果：半导体行业产能利用率\n---")
	assert.Contains(t, output.PromptUsed, "针对查询“晶圆代工价格走势”的预获取搜索结果 2：\n搜索结果：晶圆代工价格走势\n---")
	assert.NotContains(t, output.PromptUsed, "未规划或执行任何外部搜索查询。")
}

func TestRunModuleGroupsDocumentExtractions(t *testing.T) {
	wp := testWorkpaper()
	wp.Reports[0].FootnotesChunks = []models.DocumentChunk{
		{ChunkID: "footnotes_2023_Annual_chunk_0", Text: "存货跌价准备的计提方法说明。", Overview: "存货会计政策概述"},
		{ChunkID: "footnotes_2023_Annual_chunk_1", Text: "应收账款坏账准备明细。", Overview: "应收账款概述"},
	}
	wp.Metadata.NeedsByModule = map[string]models.InformationNeeds{
		"2.1 综合比率分析": {
			DocumentExtractions: []models.DocumentExtraction{
				{DocumentType: "footnotes", PeriodLabel: "2023 Annual", AnalysisContext: "存货减值分析"},
				{DocumentType: "footnotes", PeriodLabel: "2023 Annual", AnalysisContext: "应收账款质量"},
				{DocumentType: "mda", PeriodLabel: "2022 Annual", AnalysisContext: "经营回顾"},
			},
		},
	}

	selectorCalls := 0
	mock := &MockLLMService{}
	mock.invokeJSONFunc = func(ctx context.Context, messages []interfaces.Message) (string, error) {
		prompt := messages[0].Content
		if strings.Contains(prompt, "综合信息需求") {
			selectorCalls++
			assert.Contains(t, prompt, "存货减值分析; 应收账款质量")
			return `{"relevant_chunk_ids": ["footnotes_2023_Annual_chunk_0", "footnotes_2023_Annual_chunk_1"]}`, nil
		}
		return `{"analysis_text": "结论。", "confidence_score": "80%"}`, nil
	}
	mock.invokeFunc = func(ctx context.Context, messages []interfaces.Message) (string, error) {
		prompt := messages[0].Content
		require.Contains(t, prompt, "待压缩的拼接文本内容如下")
		assert.Contains(t, prompt, "为模块 '2.1 综合比率分析' 分析以下方面：存货减值分析; 应收账款质量")
		assert.Contains(t, prompt, "存货跌价准备的计提方法说明。")
		assert.Contains(t, prompt, "应收账款坏账准备明细。")
		return "压缩后的附注内容。", nil
	}

	engine := newTestEngine(t, mock, &fakeSearch{})
	output := engine.RunModule(context.Background(), wp, "2.1 综合比率分析")

	// Both footnote extractions share one selection pass.
	assert.Equal(t, 1, selectorCalls)
	assert.Contains(t, output.PromptUsed, "从文档 'footnotes' (2023 Annual) 中针对上下文 '存货减值分析; 应收账款质量' 提取并压缩的内容：\n压缩后的附注内容。\n---")
	assert.Contains(t, output.PromptUsed, "未能提取文档 'mda' (2022 Annual) 的内容：未找到预处理分块数据。")
}

func TestRunModuleExtractionWithoutSelection(t *testing.T) {
	wp := testWorkpaper()
	wp.Reports[0].FootnotesChunks = []models.DocumentChunk{
		{ChunkID: "footnotes_2023_Annual_chunk_0", Text: "无关内容。", Overview: "无关概述"},
	}
	wp.Metadata.NeedsByModule = map[string]models.InformationNeeds{
		"2.1 综合比率分析": {
			DocumentExtractions: []models.DocumentExtraction{
				{DocumentType: "footnotes", PeriodLabel: "2023 Annual", AnalysisContext: "存货减值分析"},
			},
		},
	}

	mock := &MockLLMService{}
	mock.invokeJSONFunc = func(ctx context.Context, messages []interfaces.Message) (string, error) {
		if strings.Contains(messages[0].Content, "综合信息需求") {
			return `{"relevant_chunk_ids": []}`, nil
		}
		return `{"analysis_text": "结论。", "confidence_score": "80%"}`, nil
	}

	engine := newTestEngine(t, mock, &fakeSearch{})
	output := engine.RunModule(context.Background(), wp, "2.1 综合比率分析")

	assert.Contains(t, output.PromptUsed, "未能从文档 'footnotes' (2023 Annual) 中为上下文 '存货减值分析' 确定相关内容块。")
}

func TestRunModuleExtractionWithEmptySelectedChunks(t *testing.T) {
	wp := testWorkpaper()
	wp.Reports[0].FootnotesChunks = []models.DocumentChunk{
		{ChunkID: "footnotes_2023_Annual_chunk_0", Text: "   ", Overview: "概述"},
	}
	wp.Metadata.NeedsByModule = map[string]models.InformationNeeds{
		"2.1 综合比率分析": {
			DocumentExtractions: []models.DocumentExtraction{
				{DocumentType: "footnotes", PeriodLabel: "2023 Annual", AnalysisContext: "存货减值分析"},
			},
		},
	}

	mock := &MockLLMService{}
	mock.invokeJSONFunc = func(ctx context.Context, messages []interfaces.Message) (string, error) {
		if strings.Contains(messages[0].Content, "综合信息需求") {
			return `{"relevant_chunk_ids": ["footnotes_2023_Annual_chunk_0", "unknown_chunk"]}`, nil
		}
		return `{"analysis_text": "结论。", "confidence_score": "80%"}`, nil
	}

	engine := newTestEngine(t, mock, &fakeSearch{})
	output := engine.RunModule(context.Background(), wp, "2.1 综合比率分析")

	assert.Contains(t, output.PromptUsed, "未能从文档 'footnotes' (2023 Annual) 中为上下文 '存货减值分析' 提取到有效内容（选中的块为空）。")
}

// The module prompt must carry only the compressed content of the chunks the
// selector picked, never the text of chunks it passed over.
func TestRunModuleUsesOnlySelectedChunkContent(t *testing.T) {
	wp := testWorkpaper()
	wp.Reports[0].FootnotesChunks = []models.DocumentChunk{
		{ChunkID: "footnotes_2023_Annual_chunk_0", Text: "第一块原文：坏账准备说明。", Overview: "概述甲"},
		{ChunkID: "footnotes_2023_Annual_chunk_1", Text: "第二块原文：存货跌价准备说明。", Overview: "概述乙"},
		{ChunkID: "footnotes_2023_Annual_chunk_2", Text: "第三块原文：或有负债说明。", Overview: "概述丙"},
	}
	wp.Metadata.NeedsByModule = map[string]models.InformationNeeds{
		"2.1 综合比率分析": {
			DocumentExtractions: []models.DocumentExtraction{
				{DocumentType: "footnotes", PeriodLabel: "2023 Annual", AnalysisContext: "存货减值分析"},
			},
		},
	}

	mock := &MockLLMService{}
	mock.invokeJSONFunc = func(ctx context.Context, messages []interfaces.Message) (string, error) {
		if strings.Contains(messages[0].Content, "综合信息需求") {
			return `{"relevant_chunk_ids": ["footnotes_2023_Annual_chunk_1"]}`, nil
		}
		return `{"analysis_text": "存货分析完成。", "confidence_score": "85%"}`, nil
	}
	mock.invokeFunc = func(ctx context.Context, messages []interfaces.Message) (string, error) {
		require.Contains(t, messages[0].Content, "第二块原文：存货跌价准备说明。")
		assert.NotContains(t, messages[0].Content, "第一块原文")
		assert.NotContains(t, messages[0].Content, "第三块原文")
		return "compressed-B", nil
	}

	engine := newTestEngine(t, mock, &fakeSearch{})
	output := engine.RunModule(context.Background(), wp, "2.1 综合比率分析")

	require.Equal(t, models.ModuleStatusCompleted, output.Status)
	assert.Contains(t, output.PromptUsed, "从文档 'footnotes' (2023 Annual) 中针对上下文 '存货减值分析' 提取并压缩的内容：\ncompressed-B\n---")
	assert.NotContains(t, output.PromptUsed, "第一块原文")
	assert.NotContains(t, output.PromptUsed, "第二块原文")
	assert.NotContains(t, output.PromptUsed, "第三块原文")
}

func TestRunModuleResponseHandling(t *testing.T) {
	tests := []struct {
		name           string
		response       string
		invokeErr      error
		wantText       string
		wantConfidence string
		wantStatus     models.ModuleStatus
	}{
		{
			name:           "plain json",
			response:       `{"analysis_text": "结论甲", "confidence_score": "90%"}`,
			wantText:       "结论甲",
			wantConfidence: "90%",
			wantStatus:     models.ModuleStatusCompleted,
		},
		{
			name:           "fenced json",
			response:       "```json\n{\"analysis_text\": \"结论乙\", \"confidence_score\": \"75%\"}\n```",
			wantText:       "结论乙",
			wantConfidence: "75%",
			wantStatus:     models.ModuleStatusCompleted,
		},
		{
			name:           "missing confidence",
			response:       `{"analysis_text": "结论丙"}`,
			wantText:       "结论丙",
			wantConfidence: models.ConfidenceMissing,
			wantStatus:     models.ModuleStatusCompleted,
		},
		{
			name:           "missing analysis text keeps raw response",
			response:       `{"confidence_score": "60%"}`,
			wantText:       `{"confidence_score": "60%"}`,
			wantConfidence: "60%",
			wantStatus:     models.ModuleStatusCompleted,
		},
		{
			name:           "numeric confidence",
			response:       `{"analysis_text": "结论丁", "confidence_score": 0.85}`,
			wantText:       "结论丁",
			wantConfidence: "0.85",
			wantStatus:     models.ModuleStatusCompleted,
		},
		{
			name:           "not json keeps raw text",
			response:       "直接给出的分析文本。",
			wantText:       "直接给出的分析文本。",
			wantConfidence: models.ConfidenceUnparsed,
			wantStatus:     models.ModuleStatusCompleted,
		},
		{
			name:           "empty analysis text",
			response:       `{"analysis_text": "", "confidence_score": "90%"}`,
			wantText:       "",
			wantConfidence: "90%",
			wantStatus:     models.ModuleStatusError,
		},
		{
			name:           "empty response",
			response:       "",
			wantText:       "LLM未能生成有效响应。",
			wantConfidence: models.ConfidenceNoResponse,
			wantStatus:     models.ModuleStatusError,
		},
		{
			name:           "invocation failure",
			invokeErr:      errors.New("provider down"),
			wantText:       "分析执行失败: provider down",
			wantConfidence: models.ConfidenceExecFailure,
			wantStatus:     models.ModuleStatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockLLMService{
				invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
					return tt.response, tt.invokeErr
				},
			}
			engine := newTestEngine(t, mock, &fakeSearch{})

			output := engine.RunModule(context.Background(), testWorkpaper(), "2.1 综合比率分析")

			require.NotNil(t, output)
			assert.Equal(t, tt.wantStatus, output.Status)
			assert.Equal(t, tt.wantText, output.TextSummary)
			assert.Equal(t, tt.wantConfidence, output.ConfidenceScore)
			// The prompt is recorded even when the invocation fails.
			assert.NotEmpty(t, output.PromptUsed)
		})
	}
}

func TestRunModuleUsesPorterTemplate(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return `{"analysis_text": "五力结论。", "confidence_score": "80%"}`, nil
		},
	}
	engine := newTestEngine(t, mock, &fakeSearch{})

	output := engine.RunModule(context.Background(), testWorkpaper(), PorterFiveForcesModule)

	require.Equal(t, models.ModuleStatusCompleted, output.Status)
	assert.Contains(t, captured, "波特五力模型")
	assert.Contains(t, captured, "潜在进入者的威胁")
	assert.Contains(t, captured, "示例科技股份有限公司")
}

func TestSummarizeIndustryConclusion(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return "行业竞争格局摘要。", nil
		},
	}
	engine := newTestEngine(t, mock, nil)

	summary, err := engine.SummarizeIndustryConclusion(context.Background(), "五力分析完整文本。")

	require.NoError(t, err)
	assert.Equal(t, "行业竞争格局摘要。", summary)
	assert.Contains(t, captured, "波特五力模型")
	assert.Contains(t, captured, "五力分析完整文本。")
	assert.Contains(t, captured, "不超过1000个汉字")
	assert.Contains(t, captured, "1000字以内的行业分析结论摘要：")
}

func TestSummarizeIndustryConclusionTruncatesInput(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return "摘要。", nil
		},
	}
	engine := newTestEngine(t, mock, nil)

	_, err := engine.SummarizeIndustryConclusion(context.Background(), strings.Repeat("力", 16000))

	require.NoError(t, err)
	assert.Contains(t, captured, strings.Repeat("力", 15000))
	assert.NotContains(t, captured, strings.Repeat("力", 15001))
}

func TestSummarizeIndustryConclusionFailure(t *testing.T) {
	mock := &MockLLMService{
		invokeFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return "", errors.New("provider down")
		},
	}
	engine := newTestEngine(t, mock, nil)

	_, err := engine.SummarizeIndustryConclusion(context.Background(), "五力分析文本。")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}
