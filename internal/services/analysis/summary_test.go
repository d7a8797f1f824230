package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

func TestGenerateFinalSummaryPromptContents(t *testing.T) {
	wp := testWorkpaper()
	wp.Insights.OverallConclusion = "多期分析显示盈利质量稳健。"
	wp.ModuleOutputs["1.1 波特五力模型"] = &models.ModuleOutput{
		TextSummary:        "五力完整结论。",
		AbbreviatedSummary: "五力摘要。",
		ConfidenceScore:    "80%",
		Status:             models.ModuleStatusCompleted,
	}
	wp.ModuleOutputs["2.1 综合比率分析"] = &models.ModuleOutput{
		TextSummary:     strings.Repeat("率", 250),
		ConfidenceScore: "88%",
		Status:          models.ModuleStatusCompleted,
	}
	wp.ModuleOutputs["3.2 Beneish M-Score"] = &models.ModuleOutput{
		TextSummary: "分析执行失败: provider down",
		Status:      models.ModuleStatusError,
	}
	wp.Insights.KeyRisks = []models.RiskItem{
		{
			ID:              "R001",
			Description:     "存货减值风险",
			Category:        "资产质量",
			SourceModules:   []string{"2.1 综合比率分析"},
			PotentialImpact: models.RatingHigh,
		},
	}
	wp.Insights.KeyOpportunities = []models.OpportunityItem{
		{
			ID:               "O001",
			Description:      "产能释放机遇",
			Category:         "经营",
			SourceModules:    []string{"2.1 综合比率分析"},
			PotentialBenefit: models.RatingMedium,
		},
	}

	var captured string
	mock := &MockLLMService{
		invokeFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return "最终总体财务分析摘要。", nil
		},
	}
	engine := newTestEngine(t, mock, nil)

	summary, err := engine.GenerateFinalSummary(context.Background(), wp)

	require.NoError(t, err)
	assert.Equal(t, "最终总体财务分析摘要。", summary)

	assert.Contains(t, captured, "示例科技股份有限公司")
	assert.Contains(t, captured, "半导体")
	assert.Contains(t, captured, "股权投资")
	assert.Contains(t, captured, "2023 Annual")

	assert.Contains(t, captured, "**A. 用户提供的宏观经济分析结论：**")
	assert.Contains(t, captured, models.DefaultMacroConclusion)
	assert.Contains(t, captured, "**B. 系统生成的行业分析结论：**")
	assert.Contains(t, captured, models.DefaultIndustryConclusion)
	assert.Contains(t, captured, "**C. 最终的“（当前）公司总体财务分析结论”：**")
	assert.Contains(t, captured, "多期分析显示盈利质量稳健。")
	assert.Contains(t, captured, "**D. 分析过程中记录的“矛盾点记录本”：**")
	assert.Contains(t, captured, noContradictionsRecorded)
	assert.Contains(t, captured, "**E. 已识别的关键风险点：**")
	assert.Contains(t, captured, "存货减值风险")
	assert.Contains(t, captured, "**F. 已识别的关键机遇点：**")
	assert.Contains(t, captured, "产能释放机遇")
	assert.Contains(t, captured, "**G. 各个独立分析模块的摘要：**")
	assert.Contains(t, captured, "2000-3000汉字")

	// The abbreviated summary is preferred and long text is truncated.
	assert.Contains(t, captured, "模块 '1.1 波特五力模型' (置信度: 80%): 五力摘要。...")
	assert.Contains(t, captured, "模块 '2.1 综合比率分析' (置信度: 88%): "+strings.Repeat("率", 200)+"...")
	assert.NotContains(t, captured, strings.Repeat("率", 201))

	// Failed modules are left out of the module digest.
	assert.NotContains(t, captured, "3.2 Beneish M-Score")

	// Module summaries follow the framework order.
	assert.Less(t,
		strings.Index(captured, "模块 '1.1 波特五力模型'"),
		strings.Index(captured, "模块 '2.1 综合比率分析'"))
}

func TestGenerateFinalSummaryRendersContradictionLog(t *testing.T) {
	wp := testWorkpaper()
	wp.Insights.ContradictionLog = []models.ContradictionEntry{
		{
			ModuleName:       "3.4 应计项目分析",
			ModuleConfidence: "70%",
			Description:      "应计项目与现金流趋势背离。",
		},
		{
			ModuleName:       "4.1 Altman Z-Score",
			ModuleConfidence: "65%",
			Description:      "偿债风险评估与比率分析结论冲突。",
		},
	}

	var captured string
	mock := &MockLLMService{
		invokeFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return "摘要。", nil
		},
	}
	engine := newTestEngine(t, mock, nil)

	_, err := engine.GenerateFinalSummary(context.Background(), wp)

	require.NoError(t, err)
	assert.Contains(t, captured, "分析过程中记录的潜在矛盾点：")
	assert.Contains(t, captured, "1. 模块'3.4 应计项目分析' (置信度: 70%) 指出: 应计项目与现金流趋势背离。")
	assert.Contains(t, captured, "2. 模块'4.1 Altman Z-Score' (置信度: 65%) 指出: 偿债风险评估与比率分析结论冲突。")
	assert.NotContains(t, captured, noContradictionsRecorded)

	// With no risks and opportunities recorded both lists render empty.
	assert.Contains(t, captured, "```[]```")
}

func TestGenerateFinalSummaryDefaultsMissingConclusions(t *testing.T) {
	wp := testWorkpaper()
	wp.Company.MacroConclusion = ""
	wp.Company.IndustryConclusion = ""
	wp.Insights.OverallConclusion = ""

	var captured string
	mock := &MockLLMService{
		invokeFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return "摘要。", nil
		},
	}
	engine := newTestEngine(t, mock, nil)

	_, err := engine.GenerateFinalSummary(context.Background(), wp)

	require.NoError(t, err)
	assert.Contains(t, captured, models.DefaultMacroConclusion)
	assert.Contains(t, captured, models.DefaultIndustryConclusion)
	assert.Contains(t, captured, noIteratedConclusion)
}

func TestGenerateFinalSummaryFailure(t *testing.T) {
	mock := &MockLLMService{
		invokeFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return "", errors.New("provider down")
		},
	}
	engine := newTestEngine(t, mock, nil)

	_, err := engine.GenerateFinalSummary(context.Background(), testWorkpaper())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate final summary")
	assert.Contains(t, err.Error(), "provider down")
}
