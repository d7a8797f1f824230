package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// NoConclusionFallback stands in when consolidation runs without an overall
// conclusion.
const NoConclusionFallback = "无当前总体结论。"

const consolidatorPromptTemplate = `您是一位资深的风险管理与战略分析专家。请全面审阅以下提供的所有财务分析模块的结论摘要，以及当前形成的总体财务分析结论。

**当前公司总体财务分析结论：**
` + "```" + `
%s
` + "```" + `

**各模块分析结论摘要汇总：**
` + "```" + `
%s
` + "```" + `

**您的任务是：**
1.  **识别并总结关键风险点 (Key Risks):** 从所有信息中，提炼出该公司面临的 **3至5个最主要** 的风险。对于每个风险，请提供以下信息：
    * ` + "`id`" + `: 风险的唯一标识符 (例如 "R001", "R002")。
    * ` + "`description`" + `: 对风险的清晰、简洁描述。
    * ` + "`category`" + `: 风险分类 (例如：财务-流动性, 战略-市场竞争, 经营-供应链, 行业特定风险, 公司治理风险等)。
    * ` + "`source_modules`" + `: 列出主要支持或揭示此风险的分析模块名称 (列表形式，例如 ["1.2 SWOT 分析", "4.3 利息保障倍数及现金流偿债能力分析"])。
    * ` + "`potential_impact`" + `: 风险的潜在影响程度 (请评估为：高, 中, 低)。
    * ` + "`mitigating_factors_observed`" + `: (可选) 如果分析中提及了公司已采取的或已存在的缓解该风险的因素，请简述。
    * ` + "`notes_for_further_investigation`" + `: (可选) 针对此风险，建议后续需要特别关注或线下调研的要点。
2.  **识别并总结关键机遇点 (Key Opportunities):** 从所有信息中，提炼出该公司面临的 **3至5个最主要** 的机遇。对于每个机遇，请提供以下信息：
    * ` + "`id`" + `: 机遇的唯一标识符 (例如 "O001", "O002")。
    * ` + "`description`" + `: 对机遇的清晰、简洁描述。
    * ` + "`category`" + `: 机遇分类 (例如：市场机遇, 技术创新机遇, 政策利好机遇, 战略合作机遇等)。
    * ` + "`source_modules`" + `: 列出主要支持或揭示此机遇的分析模块名称 (列表形式)。
    * ` + "`potential_benefit`" + `: 机遇的潜在收益或价值实现程度 (请评估为：高, 中, 低)。
    * ` + "`actionability_notes`" + `: (可选) 公司抓住此机遇的建议、前提条件或需关注的执行层面问题。
请确保风险和机遇列表简洁、准确、具有洞察力，避免重复，并**按您评估的重要性进行排序（最重要的在前）**。
请将您的输出严格按照以下JSON格式返回：
` + "```json" + `
{
  "key_risks": [
    {
      "id": "R001", "description": "...", "category": "...", "source_modules": ["...", "..."],
      "potential_impact": "高", "mitigating_factors_observed": "...", "notes_for_further_investigation": "..."
    }
  ],
  "key_opportunities": [
    {
      "id": "O001", "description": "...", "category": "...", "source_modules": ["...", "..."],
      "potential_benefit": "高", "actionability_notes": "..."
    }
  ]
}
` + "```"

// Consolidator distills ranked key risks and opportunities from all completed
// module outputs plus the overall conclusion. Failures leave the workpaper
// insights untouched.
type Consolidator struct {
	llm     interfaces.LLMService
	catalog *catalog.Catalog
	logger  arbor.ILogger
}

// NewConsolidator creates a risk and opportunity consolidator. The catalog
// fixes the order in which module summaries appear in the prompt.
func NewConsolidator(llm interfaces.LLMService, cat *catalog.Catalog, logger arbor.ILogger) *Consolidator {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Consolidator{
		llm:     llm,
		catalog: cat,
		logger:  logger,
	}
}

// ConsolidateRisks reviews every completed module output in framework order
// and writes the consolidated key risks and opportunities into the workpaper.
func (c *Consolidator) ConsolidateRisks(ctx context.Context, wp *models.Workpaper) {
	if c.llm == nil {
		c.logger.Error().Msg("LLM not available, cannot consolidate risks and opportunities")
		return
	}

	c.logger.Info().Msg("Consolidating key risks and opportunities")

	var summaries []string
	for _, name := range c.catalog.AllModules() {
		output, ok := wp.ModuleOutputs[name]
		if !ok || output == nil || output.Status != models.ModuleStatusCompleted {
			continue
		}
		summaries = append(summaries, fmt.Sprintf("--- 模块: %s (置信度: %s) ---\n%s...\n",
			name, output.ConfidenceScore, common.TruncateRunes(output.BestSummary(), 1000)))
	}

	conclusion := wp.Insights.OverallConclusion
	if conclusion == "" {
		conclusion = NoConclusionFallback
	}

	prompt := fmt.Sprintf(consolidatorPromptTemplate, conclusion, strings.Join(summaries, "\n"))

	response, err := c.llm.InvokeJSON(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		c.logger.Error().Err(err).Msg("Risk consolidation invocation failed, insights unchanged")
		return
	}

	cleaned := common.CleanMarkdownFences(response)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		c.logger.Error().
			Err(err).
			Str("response_snippet", common.TruncateRunes(response, 200)).
			Msg("Risk consolidation returned non-JSON, insights unchanged")
		return
	}

	risks := []models.RiskItem{}
	if rawRisks, ok := raw["key_risks"]; ok {
		if err := json.Unmarshal(rawRisks, &risks); err != nil {
			c.logger.Warn().Err(err).Msg("Consolidated key_risks did not match the expected shape, using empty list")
			risks = []models.RiskItem{}
		}
	}

	opportunities := []models.OpportunityItem{}
	if rawOpportunities, ok := raw["key_opportunities"]; ok {
		if err := json.Unmarshal(rawOpportunities, &opportunities); err != nil {
			c.logger.Warn().Err(err).Msg("Consolidated key_opportunities did not match the expected shape, using empty list")
			opportunities = []models.OpportunityItem{}
		}
	}

	wp.Insights.KeyRisks = risks
	wp.Insights.KeyOpportunities = opportunities

	c.logger.Info().
		Int("risks", len(risks)).
		Int("opportunities", len(opportunities)).
		Msg("Key risks and opportunities consolidated into workpaper")
}
