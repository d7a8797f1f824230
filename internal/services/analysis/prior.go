package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Sentinels for the prior analyses context block.
const (
	priorNoDependencies = "无特定的前序模块分析结论可供直接参考，或依赖关系未定义。"
	priorNoneCollected  = "未能获取任何相关的前序模块分析结论摘要。"
)

const abbreviationPromptTemplate = `请将以下文本内容精确地总结为一段不超过1000个汉字的关键信息摘要。此摘要将作为后续财务分析模块 '%s' 的重要参考输入。请确保摘要保留所有核心观点、关键数据和重要结论，同时尽可能简洁。原始文本如下：
---
%s
---
1000字以内的摘要：`

// priorAnalysesSummary assembles the conclusions of the modules the current
// module depends on. A dependency without an abbreviated summary gets one
// generated and memoized on its output, so later dependents reuse it without
// another model call. Dependencies that never completed are skipped.
func (e *Engine) priorAnalysesSummary(ctx context.Context, wp *models.Workpaper, moduleName string) string {
	deps := e.catalog.DependenciesOf(moduleName)
	if len(deps) == 0 {
		return priorNoDependencies
	}

	var parts []string
	for _, dep := range deps {
		output, ok := wp.ModuleOutputs[dep]
		if !ok || output == nil || output.Status != models.ModuleStatusCompleted {
			e.logger.Warn().
				Str("module", moduleName).
				Str("dependency", dep).
				Msg("Dependency has no completed output, skipped in prior analyses")
			continue
		}

		if output.AbbreviatedSummary != "" {
			e.logger.Info().
				Str("module", moduleName).
				Str("dependency", dep).
				Msg("Reusing memoized abbreviated summary")
			parts = append(parts, fmt.Sprintf("来自模块“%s”的缩略摘要：\n%s", dep, output.AbbreviatedSummary))
			continue
		}

		if output.TextSummary == "" {
			e.logger.Warn().
				Str("module", moduleName).
				Str("dependency", dep).
				Msg("Dependency completed without a text summary, skipped in prior analyses")
			continue
		}

		abbreviated, err := e.abbreviate(ctx, moduleName, output.TextSummary)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("module", moduleName).
				Str("dependency", dep).
				Msg("Abbreviation failed, falling back to the head of the original conclusion")
			parts = append(parts, fmt.Sprintf("来自模块“%s”的结论摘要 (生成缩略版失败，使用部分原文)：\n%s...", dep, common.TruncateRunes(output.TextSummary, 300)))
			continue
		}

		output.AbbreviatedSummary = abbreviated
		e.logger.Info().
			Str("module", moduleName).
			Str("dependency", dep).
			Int("chars", common.RuneLen(abbreviated)).
			Msg("Abbreviated summary generated and memoized")
		parts = append(parts, fmt.Sprintf("来自模块“%s”的缩略摘要：\n%s", dep, abbreviated))
	}

	if len(parts) == 0 {
		return priorNoneCollected
	}
	return strings.Join(parts, "\n\n")
}

// abbreviate condenses a dependency conclusion for reuse as module context.
func (e *Engine) abbreviate(ctx context.Context, moduleName, text string) (string, error) {
	input := text
	if common.RuneLen(input) > e.cfg.SummaryInputMaxChars {
		e.logger.Warn().
			Int("chars", common.RuneLen(input)).
			Int("cap", e.cfg.SummaryInputMaxChars).
			Msg("Dependency conclusion truncated for abbreviation input")
		input = common.TruncateRunes(input, e.cfg.SummaryInputMaxChars)
	}

	prompt := fmt.Sprintf(abbreviationPromptTemplate, moduleName, input)
	return e.llm.Invoke(ctx, interfaces.UserMessage(prompt))
}
