// Package integration maintains the accumulating conclusion layer of the
// workpaper: after every module the overall conclusion is re-integrated and
// contradictions are logged, and once all modules are done the key risks and
// opportunities are consolidated.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// PrevConclusionFallback stands in for the prior conclusion on the very
// first integration.
const PrevConclusionFallback = "这是首次分析，尚无前期总体结论。"

// DescriptionMissing is recorded when the model did not say whether the new
// finding contradicts the prior conclusion.
const DescriptionMissing = "未明确说明是否有矛盾。"

const integratorPromptTemplate = `您是一位专业的财务分析整合员。您的任务是根据一个已有的“当前公司总体财务分析结论”和刚刚完成的“新模块分析结论”（及其置信度），来更新总体结论，并识别新结论与旧总体结论之间是否存在矛盾。

**已知信息：**
1.  **当前公司总体财务分析结论（更新前）：**
    ` + "```" + `
    %s
    ` + "```" + `
2.  **新完成的“%s”模块分析结论：**
    ` + "```" + `
    %s
    ` + "```" + `
    该模块分析结论的置信度为： **%s** (置信度解读参考: 较高如85%%-100%%应重点采纳, 较低如50%%-70%%应谨慎采纳或指出不确定性, "N/A"或"无法解析"表示置信度信息缺失或有问题)

**您的任务：**
1.  **更新总体结论：** 请结合上述两部分信息，生成一个新的“（更新后）公司总体财务分析结论”。在整合新模块结论时，请充分考虑其置信度。更新后的结论应保持连贯和逻辑性，并逐步累积形成对公司更全面的判断。力求客观、中立，并准确反映新信息的价值。如果新模块结论置信度很低（例如低于60%%）或与前期结论严重冲突且缺乏强有力证据，可以考虑在更新的总体结论中对其进行弱化处理或指出其不确定性。
2.  **识别矛盾点：** 判断“新模块分析结论”中的核心观点或关键数据，是否与更新前的“当前公司总体财务分析结论”中的某些内容存在明显的不一致或矛盾。
    * 如果存在矛盾，请清晰、简要地描述这个矛盾点是什么（例如：“新模块指出流动比率显著下降，而前期总体结论认为短期偿债能力良好”）。
    * 如果不存在明显矛盾，请明确说明“无明显矛盾”。

**请以严格的JSON格式返回您的输出，包含以下键：**
` + "```json" + `
{
  "updated_overall_conclusion": "（更新后）公司总体财务分析结论的完整文本...",
  "contradiction_found": true_or_false,
  "contradiction_description": "如果 contradiction_found 为 true，此处描述矛盾点；否则为 '无明显矛盾'。"
}
` + "```"

// Integrator folds each completed module finding into the overall conclusion
// and keeps the contradiction logbook. Failures leave the insights untouched.
type Integrator struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewIntegrator creates a conclusion integrator.
func NewIntegrator(llm interfaces.LLMService, logger arbor.ILogger) *Integrator {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Integrator{
		llm:    llm,
		logger: logger,
	}
}

// IntegrateFinding updates insights.OverallConclusion with the new module
// finding and appends a contradiction logbook entry when the model reports a
// genuine conflict. On any LLM or parse failure insights stay unchanged.
func (i *Integrator) IntegrateFinding(ctx context.Context, insights *models.IntegratedInsights, moduleName, findingText, confidence string) {
	if i.llm == nil {
		i.logger.Error().Msg("LLM not available, cannot update overall conclusion or check contradictions")
		return
	}

	i.logger.Info().Str("module", moduleName).Msg("Updating overall conclusion and checking contradictions")

	prev := insights.OverallConclusion
	if prev == "" {
		prev = PrevConclusionFallback
	}

	prompt := fmt.Sprintf(integratorPromptTemplate, prev, moduleName, findingText, confidence)

	response, err := i.llm.InvokeJSON(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		i.logger.Error().Err(err).Str("module", moduleName).Msg("Conclusion integration invocation failed, insights unchanged")
		return
	}

	cleaned := common.CleanMarkdownFences(response)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		i.logger.Error().
			Err(err).
			Str("module", moduleName).
			Str("response_snippet", common.TruncateRunes(response, 200)).
			Msg("Conclusion integration returned non-JSON, insights unchanged")
		return
	}

	updated := prev
	if rawConclusion, ok := raw["updated_overall_conclusion"]; ok {
		var text string
		if err := json.Unmarshal(rawConclusion, &text); err == nil && text != "" {
			updated = text
		}
	}

	found := false
	if rawFound, ok := raw["contradiction_found"]; ok {
		var flag bool
		if err := json.Unmarshal(rawFound, &flag); err == nil {
			found = flag
		}
	}

	description := DescriptionMissing
	if rawDescription, ok := raw["contradiction_description"]; ok {
		var text string
		if err := json.Unmarshal(rawDescription, &text); err == nil {
			description = text
		}
	}

	insights.OverallConclusion = updated
	i.logger.Info().
		Str("module", moduleName).
		Str("conclusion_snippet", common.TruncateRunes(updated, 200)).
		Msg("Overall conclusion updated")

	if found && !models.IsNoContradiction(strings.ToLower(description)) {
		entry := models.ContradictionEntry{
			Timestamp:              time.Now(),
			ModuleName:             moduleName,
			ModuleConfidence:       confidence,
			Description:            description,
			FindingSnippet:         common.TruncateRunes(findingText, 300) + "...",
			PriorConclusionSnippet: common.TruncateRunes(prev, 300) + "...",
		}
		insights.ContradictionLog = append(insights.ContradictionLog, entry)
		i.logger.Warn().
			Str("module", moduleName).
			Str("contradiction", description).
			Msg("Contradiction detected between new module finding and prior overall conclusion")
		return
	}

	i.logger.Info().Str("module", moduleName).Msg("No contradiction between new module finding and prior overall conclusion")
}
