// Package planning holds the two AI planners that run before module
// execution: the route planner picks and orders the analysis modules, the
// needs planner decides what external information each module requires.
// Both degrade to safe fallbacks instead of returning errors, so a planner
// failure never blocks the analysis itself.
package planning

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

// Fallback rationales recorded when route planning cannot use the AI result.
const (
	ReasoningLLMUnavailable = "LLM不可用，执行所有预定义模块作为后备计划。"
	ReasoningInvalidModules = "AI规划的模块列表无效，已采用所有预定义模块作为后备计划。"
	ReasoningBadFormat      = "AI规划返回格式错误，已采用所有预定义模块作为后备计划。"
	ReasoningNotJSON        = "AI规划返回非JSON格式，已采用所有预定义模块作为后备计划。"
	ReasoningMissing        = "AI未能提供规划理由。"
)

const routePromptTemplate = `您是一位经验丰富的首席财务分析师，负责为特定公司和分析角度规划最有效率的财务分析模块执行顺序，并解释您的规划理由。

**当前分析目标：**
- 公司名称: %s
- 所属行业: %s
- 分析角度: %s
- （可选）用户提供的宏观经济分析结论摘要:
  ` + "```" + `
  %s
  ` + "```" + `

**所有可用的分析模块列表如下（请从中选择并排序）：**
` + "```" + `
%s
` + "```" + `

**您的任务：**
1.  根据上述公司信息、分析角度和宏观背景，请选择出最相关、最有价值的分析模块，并给出一个**有序的模块名称列表**。目标是形成一个既全面又有针对性的分析路径，避免不必要的模块以提高效率。
2.  请提供一段**详细的规划理由** (planning_reasoning)，解释您为什么选择这些模块、为什么按照这个顺序排列，以及这个规划如何服务于当前的分析角度和公司情况。理由应清晰、有逻辑，帮助用户理解您的决策过程。

请以JSON格式返回您的输出，包含以下两个键：
- ` + "`planned_modules`" + `: 一个包含模块全名的字符串列表，按推荐的执行顺序列出。
- ` + "`planning_reasoning`" + `: 一个字符串，包含您对规划的详细解释。

**JSON输出格式示例：**
` + "```json" + `
{
  "planned_modules": ["1.1 波特五力模型", "1.5 财务报表结构与趋势分析", "2.1 综合比率分析"],
  "planning_reasoning": "鉴于该公司为成长型科技公司，且分析角度为股权投资，我们首先通过波特五力模型评估其行业竞争力。接着，财务报表结构与趋势分析有助于我们快速把握其资产配置和盈利模式的特点。最后，综合比率分析将深入评估其运营效率和盈利能力，这些都是股权投资者高度关注的方面。后续模块可根据这些初步分析的结果进一步动态调整。"
}
` + "```" + `
如果无法进行有效规划或认为所有模块都与当前分析角度和公司情况相关，请在 ` + "`planned_modules`" + ` 中返回包含所有可用模块的列表，并在 ` + "`planning_reasoning`" + ` 中说明这是基于全面性考虑的后备计划。
确保返回的模块名称与“所有可用的分析模块列表”中提供的名称完全一致。`

// RoutePlanner asks the LLM for an ordered, pruned module route tailored to
// the company and analysis perspective. Every failure mode falls back to the
// full framework route with a rationale explaining the fallback.
type RoutePlanner struct {
	llm     interfaces.LLMService
	catalog *catalog.Catalog
	logger  arbor.ILogger
}

// NewRoutePlanner creates a route planner over the given framework catalog.
func NewRoutePlanner(llm interfaces.LLMService, cat *catalog.Catalog, logger arbor.ILogger) *RoutePlanner {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &RoutePlanner{
		llm:     llm,
		catalog: cat,
		logger:  logger,
	}
}

// PlanRoute returns the planned module route for the company. The result is
// always usable: module names are validated against the framework and any
// planning failure yields the full module list with a fallback rationale.
func (p *RoutePlanner) PlanRoute(ctx context.Context, company models.CompanyInfo, macroConclusion string) models.RoutePlan {
	allModules := p.catalog.AllModules()

	if p.llm == nil {
		p.logger.Error().Msg("LLM not available, route planner defaulting to all modules")
		return models.RoutePlan{PlannedModules: allModules, PlanningReasoning: ReasoningLLMUnavailable}
	}

	p.logger.Info().Str("company", company.Name).Msg("Route planner starting")

	macro := macroConclusion
	if common.RuneLen(macro) > 1000 {
		macro = common.TruncateRunes(macro, 1000) + "..."
	}

	moduleLines := make([]string, 0, len(allModules))
	for _, name := range allModules {
		moduleLines = append(moduleLines, "- "+name)
	}

	prompt := fmt.Sprintf(routePromptTemplate,
		orDefault(company.Name, "未知"),
		orDefault(company.Industry, "未知"),
		orDefault(company.AnalysisPerspective, "未指定"),
		macro,
		strings.Join(moduleLines, "\n"),
	)

	response, err := p.llm.InvokeJSON(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		p.logger.Error().Err(err).Msg("Route planner invocation failed, defaulting to all modules")
		return models.RoutePlan{
			PlannedModules:    allModules,
			PlanningReasoning: fmt.Sprintf("AI规划器执行出错 (%v)，已采用所有预定义模块作为后备计划。", err),
		}
	}

	cleaned := common.CleanMarkdownFences(response)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		p.logger.Error().
			Err(err).
			Str("response_snippet", common.TruncateRunes(response, 200)).
			Msg("Route planner returned non-JSON, defaulting to all modules")
		return models.RoutePlan{PlannedModules: allModules, PlanningReasoning: ReasoningNotJSON}
	}

	reasoning := ReasoningMissing
	if rawReasoning, ok := raw["planning_reasoning"]; ok {
		var text string
		if err := json.Unmarshal(rawReasoning, &text); err == nil && text != "" {
			reasoning = text
		}
	}

	planned, ok := parseModuleList(raw["planned_modules"])
	if !ok || len(planned) == 0 {
		p.logger.Error().
			Str("response_snippet", common.TruncateRunes(response, 200)).
			Msg("Route planner module list malformed, defaulting to all modules")
		return models.RoutePlan{PlannedModules: allModules, PlanningReasoning: ReasoningBadFormat}
	}

	valid, dropped := p.catalog.FilterKnown(planned)
	if len(dropped) > 0 {
		p.logger.Warn().
			Strs("dropped", dropped).
			Msg("Route planner returned unknown module names, filtered out")
	}
	if len(valid) == 0 {
		p.logger.Error().
			Strs("planned", planned).
			Msg("Route planner module list empty after validation, defaulting to all modules")
		return models.RoutePlan{PlannedModules: allModules, PlanningReasoning: ReasoningInvalidModules}
	}

	p.logger.Info().
		Int("modules", len(valid)).
		Str("reasoning_snippet", common.TruncateRunes(reasoning, 100)).
		Msg("Route planner completed")

	return models.RoutePlan{PlannedModules: valid, PlanningReasoning: reasoning}
}

// parseModuleList accepts only a JSON array whose elements are all strings.
func parseModuleList(raw json.RawMessage) ([]string, bool) {
	if raw == nil {
		return nil, false
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, false
		}
		names = append(names, name)
	}
	return names, true
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
