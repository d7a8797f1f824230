package integration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return cat
}

func workpaperWithOutputs() *models.Workpaper {
	wp := models.NewWorkpaper("wp_test", models.CompanyInfo{Name: "示例公司"})
	wp.Insights.OverallConclusion = "总体看财务状况稳健。"
	wp.ModuleOutputs["2.1 综合比率分析"] = &models.ModuleOutput{
		TextSummary:     "比率分析完整结论。",
		ConfidenceScore: "88%",
		Status:          models.ModuleStatusCompleted,
		Timestamp:       time.Now(),
	}
	wp.ModuleOutputs["1.1 波特五力模型"] = &models.ModuleOutput{
		TextSummary:        "五力分析完整结论。",
		AbbreviatedSummary: "五力简要结论。",
		ConfidenceScore:    "80%",
		Status:             models.ModuleStatusCompleted,
		Timestamp:          time.Now(),
	}
	wp.ModuleOutputs["3.2 Beneish M-Score"] = &models.ModuleOutput{
		TextSummary:     "执行失败",
		ConfidenceScore: models.ConfidenceExecFailure,
		Status:          models.ModuleStatusError,
		Timestamp:       time.Now(),
	}
	return wp
}

func TestConsolidatePromptContents(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return `{"key_risks": [], "key_opportunities": []}`, nil
		},
	}
	consolidator := NewConsolidator(mock, testCatalog(t), arbor.NewLogger())

	consolidator.ConsolidateRisks(context.Background(), workpaperWithOutputs())

	assert.Contains(t, captured, "总体看财务状况稳健。")
	assert.Contains(t, captured, "--- 模块: 1.1 波特五力模型 (置信度: 80%) ---")
	assert.Contains(t, captured, "--- 模块: 2.1 综合比率分析 (置信度: 88%) ---")

	// Abbreviated summaries are preferred over full text
	assert.Contains(t, captured, "五力简要结论。...")
	assert.NotContains(t, captured, "五力分析完整结论。")

	// Errored modules are excluded
	assert.NotContains(t, captured, "3.2 Beneish M-Score")

	// Framework order: section 1 module before section 2 module
	assert.Less(t,
		strings.Index(captured, "1.1 波特五力模型"),
		strings.Index(captured, "2.1 综合比率分析"))

	assert.Contains(t, captured, "key_risks")
	assert.Contains(t, captured, "key_opportunities")
	assert.Contains(t, captured, "3至5个最主要")
}

func TestConsolidateTruncatesLongSummaries(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return `{}`, nil
		},
	}
	consolidator := NewConsolidator(mock, testCatalog(t), arbor.NewLogger())

	wp := models.NewWorkpaper("wp_test", models.CompanyInfo{Name: "示例公司"})
	wp.ModuleOutputs["2.1 综合比率分析"] = &models.ModuleOutput{
		TextSummary:     strings.Repeat("析", 1500),
		ConfidenceScore: "88%",
		Status:          models.ModuleStatusCompleted,
	}
	consolidator.ConsolidateRisks(context.Background(), wp)

	assert.Contains(t, captured, strings.Repeat("析", 1000)+"...")
	assert.NotContains(t, captured, strings.Repeat("析", 1001))
	assert.Contains(t, captured, NoConclusionFallback)
}

func TestConsolidateStoresRisksAndOpportunities(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{
				"key_risks": [
					{"id": "R001", "description": "流动性紧张", "category": "财务-流动性",
					 "source_modules": ["4.4 营运资金充足性与流动性分析"], "potential_impact": "高",
					 "mitigating_factors_observed": "已获得银行授信额度",
					 "notes_for_further_investigation": "关注授信使用进度"}
				],
				"key_opportunities": [
					{"id": "O001", "description": "新产品线放量", "category": "市场机遇",
					 "source_modules": ["1.2 SWOT 分析"], "potential_benefit": "高",
					 "actionability_notes": "需扩充产能"}
				]
			}`, nil
		},
	}
	consolidator := NewConsolidator(mock, testCatalog(t), arbor.NewLogger())

	wp := workpaperWithOutputs()
	consolidator.ConsolidateRisks(context.Background(), wp)

	require.Len(t, wp.Insights.KeyRisks, 1)
	risk := wp.Insights.KeyRisks[0]
	assert.Equal(t, "R001", risk.ID)
	assert.Equal(t, "流动性紧张", risk.Description)
	assert.Equal(t, models.RatingHigh, risk.PotentialImpact)
	assert.Equal(t, []string{"4.4 营运资金充足性与流动性分析"}, risk.SourceModules)
	assert.Equal(t, "已获得银行授信额度", risk.MitigatingFactors)

	require.Len(t, wp.Insights.KeyOpportunities, 1)
	opportunity := wp.Insights.KeyOpportunities[0]
	assert.Equal(t, "O001", opportunity.ID)
	assert.Equal(t, "需扩充产能", opportunity.ActionabilityNotes)
}

func TestConsolidateMissingKeysDefaultEmpty(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{}`, nil
		},
	}
	consolidator := NewConsolidator(mock, testCatalog(t), arbor.NewLogger())

	wp := workpaperWithOutputs()
	wp.Insights.KeyRisks = []models.RiskItem{{ID: "stale"}}
	consolidator.ConsolidateRisks(context.Background(), wp)

	assert.Empty(t, wp.Insights.KeyRisks)
	assert.Empty(t, wp.Insights.KeyOpportunities)
}

func TestConsolidateMalformedListDefaultsEmpty(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{"key_risks": "不是列表", "key_opportunities": [{"id": "O001", "description": "机遇"}]}`, nil
		},
	}
	consolidator := NewConsolidator(mock, testCatalog(t), arbor.NewLogger())

	wp := workpaperWithOutputs()
	consolidator.ConsolidateRisks(context.Background(), wp)

	assert.Empty(t, wp.Insights.KeyRisks)
	require.Len(t, wp.Insights.KeyOpportunities, 1)
	assert.Equal(t, "O001", wp.Insights.KeyOpportunities[0].ID)
}

func TestConsolidateFailuresLeaveInsightsUntouched(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
	}{
		{name: "not JSON", response: "无法解析"},
		{name: "invocation failure", err: errors.New("provider down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockLLMService{
				invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
					return tt.response, tt.err
				},
			}
			consolidator := NewConsolidator(mock, testCatalog(t), arbor.NewLogger())

			wp := workpaperWithOutputs()
			wp.Insights.KeyRisks = []models.RiskItem{{ID: "R_keep"}}
			consolidator.ConsolidateRisks(context.Background(), wp)

			require.Len(t, wp.Insights.KeyRisks, 1)
			assert.Equal(t, "R_keep", wp.Insights.KeyRisks[0].ID)
		})
	}
}
