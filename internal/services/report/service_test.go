package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

func newTestService(t *testing.T, outputDir string) *Service {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	svc, err := NewService(common.ReportConfig{OutputDir: outputDir}, cat, arbor.NewLogger())
	require.NoError(t, err)
	return svc
}

func reportWorkpaper() *models.Workpaper {
	wp := models.NewWorkpaper("wp_report", models.CompanyInfo{
		Name:      "示例科技股份有限公司",
		IsListed:  true,
		StockCode: "600001",
		Industry:  "半导体",
	})
	wp.Metadata.AnalysisTimestamp = "2026-08-23T10:00:00Z"
	wp.Insights.OverallSummary = "第一行摘要\n第二行摘要"

	table := &models.StatementTable{Columns: []string{"项目", "金额"}, Rows: [][]string{{"货币资金", "120000"}}}
	wp.Reports = []models.FinancialReport{{
		PeriodLabel:     "2023 Annual",
		Year:            2023,
		PeriodType:      "年报",
		BalanceSheet:    table,
		IncomeStatement: table,
		CashFlow:        table,
		FootnotesChunks: []models.DocumentChunk{
			{ChunkID: "footnotes_2023_Annual_0", Text: "原文一", Overview: "存货跌价准备概述。"},
			{ChunkID: "footnotes_2023_Annual_1", Text: "原文二", Overview: "应收账款账龄概述。"},
		},
		MDAChunks: []models.DocumentChunk{
			{ChunkID: "mda_2023_Annual_0", Text: "原文三", Overview: "管理层展望概述。"},
		},
	}}

	wp.ModuleOutputs["2.1 综合比率分析"] = &models.ModuleOutput{
		TextSummary:        "## 盈利能力\n- 毛利率稳步上升",
		ConfidenceScore:    "85%",
		Status:             models.ModuleStatusCompleted,
		Timestamp:          time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC),
		PromptUsed:         "分析提示 <内部>",
		AbbreviatedSummary: "比率摘要。",
	}
	return wp
}

func render(t *testing.T, svc *Service, wp *models.Workpaper) string {
	t.Helper()
	content, err := svc.Render(wp)
	require.NoError(t, err)
	return string(content)
}

func TestRenderHeaderAndInsights(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	page := render(t, svc, reportWorkpaper())

	assert.Contains(t, page, "<title>财务分析报告 - 示例科技股份有限公司</title>")
	assert.Contains(t, page, "<h1>财务分析报告</h1>")
	assert.Contains(t, page, "公司名称:</strong> 示例科技股份有限公司")
	assert.Contains(t, page, "所属行业:</strong> 半导体")
	assert.Contains(t, page, "股票代码:</strong> 600001")
	assert.Contains(t, page, "分析角度:</strong> "+models.DefaultPerspective)
	assert.Contains(t, page, "分析日期:</strong> 2026-08-23T10:00:00Z")

	assert.Contains(t, page, "第一行摘要<br>第二行摘要")
	assert.Contains(t, page, models.InitialOverallConclusion)
	assert.Contains(t, page, models.DefaultMacroConclusion)
	assert.Contains(t, page, models.DefaultIndustryConclusion)
}

func TestRenderDefaultsWhenInsightsEmpty(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	wp := reportWorkpaper()
	wp.Insights.OverallSummary = ""
	wp.Insights.OverallConclusion = ""
	wp.Company.MacroConclusion = ""
	wp.Company.IndustryConclusion = ""

	page := render(t, svc, wp)
	assert.Contains(t, page, "无摘要信息。")
	assert.Contains(t, page, "无迭代结论。")
	assert.Contains(t, page, "宏观经济分析结论</h2><div>未提供</div>")
	assert.Contains(t, page, "行业分析结论</h2><div>未生成</div>")
	assert.NotContains(t, page, "主要风险点")
	assert.NotContains(t, page, "主要机遇点")
	assert.NotContains(t, page, "矛盾点记录本")
}

func TestRenderRisksAndOpportunities(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	wp := reportWorkpaper()
	wp.Insights.KeyRisks = []models.RiskItem{{
		ID:                 "R001",
		Description:        "存货减值压力上升",
		Category:           "经营风险",
		SourceModules:      []string{"2.1 综合比率分析", "3.4 应计项目分析"},
		PotentialImpact:    models.RatingHigh,
		MitigatingFactors:  "库存周转改善措施已启动",
		InvestigationNotes: "关注四季度减值计提",
	}}
	wp.Insights.KeyOpportunities = []models.OpportunityItem{{
		ID:               "O001",
		Description:      "产能利用率回升带动毛利率",
		Category:         "行业机遇",
		SourceModules:    []string{"1.1 波特五力模型"},
		PotentialBenefit: models.RatingMedium,
	}}

	page := render(t, svc, wp)

	assert.Contains(t, page, "<h2>主要风险点</h2>")
	assert.Contains(t, page, "风险 1 (ID: R001):</strong> 存货减值压力上升")
	assert.Contains(t, page, "分类:</strong> 经营风险 | <strong>潜在影响:</strong> 高")
	assert.Contains(t, page, "来源模块:</strong> 2.1 综合比率分析, 3.4 应计项目分析")
	assert.Contains(t, page, "缓解因素:</strong> 库存周转改善措施已启动")
	assert.Contains(t, page, "进一步调查:</strong> 关注四季度减值计提")

	assert.Contains(t, page, "<h2>主要机遇点</h2>")
	assert.Contains(t, page, "机遇 1 (ID: O001):</strong> 产能利用率回升带动毛利率")
	assert.Contains(t, page, "潜在收益:</strong> 中")
	assert.NotContains(t, page, "行动建议/关注点")
}

func TestRenderContradictions(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	wp := reportWorkpaper()
	wp.Insights.ContradictionLog = []models.ContradictionEntry{{
		Timestamp:              time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC),
		ModuleName:             "3.4 应计项目分析",
		ModuleConfidence:       "70%",
		Description:            "应计项目恶化与此前盈利质量结论冲突",
		FindingSnippet:         "应计项目<异常>增长",
		PriorConclusionSnippet: "盈利质量稳健",
	}}

	page := render(t, svc, wp)

	assert.Contains(t, page, "<h2>矛盾点记录本</h2>")
	assert.Contains(t, page, "矛盾点 1 (记录时间: 2026-08-23 10:30:00)")
	assert.Contains(t, page, "引发模块:</strong> 3.4 应计项目分析 (置信度: 70%)")
	assert.Contains(t, page, "矛盾描述:</strong> 应计项目恶化与此前盈利质量结论冲突")
	assert.Contains(t, page, "查看相关结论片段")
	assert.Contains(t, page, "应计项目&lt;异常&gt;增长")
	assert.Contains(t, page, "盈利质量稳健")
}

func TestRenderModuleOutputs(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	page := render(t, svc, reportWorkpaper())

	assert.Contains(t, page, "<h2>详细分析模块</h2>")
	assert.Contains(t, page, "<h3>经营业绩与效率评估</h3>")
	assert.Contains(t, page, "<h4>2.1 综合比率分析</h4>")
	assert.Contains(t, page, "状态:</strong> Completed | <strong>时间:</strong> 2026-08-23 09:30:00")
	assert.Contains(t, page, "置信度:</strong> 85%")
	assert.Contains(t, page, "<h2>盈利能力</h2>")
	assert.Contains(t, page, "<li>毛利率稳步上升</li>")
	assert.Contains(t, page, "缩略摘要:</strong><br>比率摘要。")
	assert.Contains(t, page, "显示/隐藏使用的提示")
	assert.Contains(t, page, "分析提示 &lt;内部&gt;")
}

func TestRenderStripsOuterFence(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	wp := reportWorkpaper()
	wp.ModuleOutputs["2.1 综合比率分析"].TextSummary = "```markdown\n**核心结论**成立\n```"

	page := render(t, svc, wp)
	assert.Contains(t, page, "<strong>核心结论</strong>")
	assert.NotContains(t, page, "```")
}

func TestRenderPlannedSectionFilter(t *testing.T) {
	svc := newTestService(t, t.TempDir())

	full := render(t, svc, reportWorkpaper())
	assert.Contains(t, full, "<h3>经营业绩与效率评估</h3>")
	assert.Contains(t, full, "<h3>公司估值</h3>")

	wp := reportWorkpaper()
	wp.Metadata.PlannedModules = []string{"2.1 综合比率分析"}
	planned := render(t, svc, wp)
	assert.Contains(t, planned, "<h3>经营业绩与效率评估</h3>")
	assert.NotContains(t, planned, "<h3>公司估值</h3>")
}

func TestRenderSnapshot(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	wp := reportWorkpaper()
	wp.Reports = append(wp.Reports, models.FinancialReport{PeriodLabel: "2022 Annual", Year: 2022, PeriodType: "年报"})

	page := render(t, svc, wp)

	assert.Contains(t, page, "<h2>核心底稿快照 (部分)</h2>")
	assert.Contains(t, page, `"name": "示例科技股份有限公司"`)
	assert.Contains(t, page, "2023 Annual:</strong> 资产负债表, 利润表, 现金流量表, 附注 (共 2 块), MD&amp;A (共 1 块)")
	assert.Contains(t, page, "2022 Annual:</strong> 无核心文件或未处理")
	assert.Contains(t, page, "2023 Annual 附注分块概述")
	assert.Contains(t, page, "块ID: footnotes_2023_Annual_0 概述:</strong> 存货跌价准备概述。...")
	assert.Contains(t, page, "2023 Annual MD&amp;A分块概述")
}

func TestRenderTruncatesChunkOverviews(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	wp := reportWorkpaper()
	wp.Reports[0].FootnotesChunks = []models.DocumentChunk{{
		ChunkID:  "footnotes_2023_Annual_0",
		Overview: strings.Repeat("注", 300),
	}}

	page := render(t, svc, wp)
	assert.Contains(t, page, strings.Repeat("注", 200)+"...")
	assert.NotContains(t, page, strings.Repeat("注", 201))
}

func TestGenerateWritesReportFile(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, dir)

	path, err := svc.Generate(reportWorkpaper(), "run_123")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run_123", ReportFileName), path)

	content, err := svc.Render(reportWorkpaper())
	require.NoError(t, err)
	require.FileExists(t, path)
	assert.Contains(t, string(content), "<h1>财务分析报告</h1>")
}

func TestStripOuterFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fence", "普通文本", "普通文本"},
		{"plain fence", "```\n内容\n```", "内容"},
		{"language hint", "```markdown\n内容\n```", "内容"},
		{"unclosed fence", "```\n内容", "```\n内容"},
		{"fence only", "```", "```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripOuterFence(tt.input))
		})
	}
}
