package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Fallback texts for final summary context that was never produced.
const (
	noIteratedConclusion     = "未能生成迭代的总体结论。"
	noContradictionsRecorded = "无记录的矛盾点。"
)

const finalSummaryPromptTemplate = `您是一位资深的财务分析师...撰写一份全面且富有洞察力的最终总体财务分析摘要。
**公司名称:** %s **所属行业:** %s **分析角度:** %s
**已分析的报告期包括:** %s. **最新报告期为:** %s.
**A. 用户提供的宏观经济分析结论：**
` + "```%s```" + `
**B. 系统生成的行业分析结论：**
` + "```%s```" + `
**C. 最终的“（当前）公司总体财务分析结论”：**
` + "```%s```" + `
**D. 分析过程中记录的“矛盾点记录本”：**
` + "```%s```" + `
**E. 已识别的关键风险点：**
` + "```%s```" + `
**F. 已识别的关键机遇点：**
` + "```%s```" + `
**G. 各个独立分析模块的摘要：**
` + "```%s```" + `
**撰写要求：** 1. 全面性与深度（%d-%d汉字）。2. 整合性（体现分析角度，结合宏观行业）。3. 关注矛盾点、风险与机遇。4. 结构建议（宏观行业背景、公司概况、财务核心、优势机遇、风险挑战、增长持续、估值、总结展望）。
请生成最终总体财务分析摘要。`

// GenerateFinalSummary produces the closing overall financial analysis summary
// from everything accumulated in the workpaper. Runs once, after every module
// has finished and risks have been consolidated.
func (e *Engine) GenerateFinalSummary(ctx context.Context, wp *models.Workpaper) (string, error) {
	var moduleSummaries []string
	for _, name := range e.catalog.AllModules() {
		output, ok := wp.ModuleOutputs[name]
		if !ok || output == nil || output.Status != models.ModuleStatusCompleted {
			continue
		}
		moduleSummaries = append(moduleSummaries, fmt.Sprintf("模块 '%s' (置信度: %s): %s...",
			name, output.ConfidenceScore, common.TruncateRunes(output.BestSummary(), 200)))
	}

	conclusion := wp.Insights.OverallConclusion
	if conclusion == "" {
		conclusion = noIteratedConclusion
	}

	contradictions := noContradictionsRecorded
	if len(wp.Insights.ContradictionLog) > 0 {
		var b strings.Builder
		b.WriteString("\n分析过程中记录的潜在矛盾点：\n")
		for i, entry := range wp.Insights.ContradictionLog {
			b.WriteString(fmt.Sprintf("%d. 模块'%s' (置信度: %s) 指出: %s\n", i+1, entry.ModuleName, entry.ModuleConfidence, entry.Description))
		}
		contradictions = b.String()
	}

	risks := wp.Insights.KeyRisks
	if risks == nil {
		risks = []models.RiskItem{}
	}
	risksJSON, err := json.MarshalIndent(risks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal key risks: %w", err)
	}

	opportunities := wp.Insights.KeyOpportunities
	if opportunities == nil {
		opportunities = []models.OpportunityItem{}
	}
	opportunitiesJSON, err := json.MarshalIndent(opportunities, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal key opportunities: %w", err)
	}

	macro := wp.Company.MacroConclusion
	if macro == "" {
		macro = models.DefaultMacroConclusion
	}
	industry := wp.Company.IndustryConclusion
	if industry == "" {
		industry = models.DefaultIndustryConclusion
	}

	prompt := fmt.Sprintf(finalSummaryPromptTemplate,
		wp.Company.Name,
		wp.Company.Industry,
		wp.Company.AnalysisPerspective,
		strings.Join(wp.PeriodLabels(), ", "),
		wp.LatestPeriodLabel(),
		macro,
		industry,
		conclusion,
		contradictions,
		string(risksJSON),
		string(opportunitiesJSON),
		strings.Join(moduleSummaries, "\n"),
		e.cfg.FinalSummaryMinChars,
		e.cfg.FinalSummaryMaxChars,
	)

	e.logger.Info().
		Int("modules", len(moduleSummaries)).
		Int("prompt_chars", common.RuneLen(prompt)).
		Msg("Generating final overall summary")

	summary, err := e.llm.Invoke(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		return "", fmt.Errorf("generate final summary: %w", err)
	}

	e.logger.Info().Int("chars", common.RuneLen(summary)).Msg("Final overall summary generated")
	return summary, nil
}
