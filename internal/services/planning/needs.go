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

const needsPromptTemplate = `您是一位高级财务分析策略师。基于以下公司背景和分析目标，请为后续的每一个指定的财务分析模块，规划其所需的信息。

**公司背景与分析目标：**
- 公司名称: %s
- 所属行业: %s
- 分析角度: %s
- 宏观经济分析结论摘要: ` + "```%s...```" + `
- 行业分析结论摘要: ` + "```%s...```" + `

**可供查询的文档资源摘要 (实际查询时需指定报告期和具体内容):**
` + "```" + `
%s
` + "```" + `

**待规划信息需求的模块列表及其简要目标：**
` + "```" + `
%s
` + "```" + `

**您的任务：**
为上述列表中的**每一个模块**，分别规划出其完成分析所必需的：
1.  ` + "`search_queries`" + `: 一个字符串列表，包含应执行的搜索引擎查询。查询应具体、有针对性，旨在获取该模块分析所需的外部数据、行业基准、市场信息、竞争对手情况等。如果模块不需要外部搜索，则返回空列表 ` + "`[]`" + `。
2.  ` + "`document_extractions`" + `: 一个对象列表。每个对象代表一个从公司财务报表附注(footnotes)或管理层讨论与分析(mda)中提取具体内容的需求。每个对象应包含：
    * ` + "`document_type`" + `: 字符串，"footnotes" 或 "mda"。
    * ` + "`period_label`" + `: 字符串，需要查询的报告期标签 (例如 "2023 Annual", "2022 Q3")。通常应优先考虑最新报告期，但根据模块需要也可指定历史报告期。
    * ` + "`analysis_context`" + `: 字符串，清晰描述需要从该文档的该报告期中提取的具体内容或回答的具体问题 (例如：“详细的收入确认会计政策原文及近三年变更情况”、“管理层对主要业务分部未来一年经营风险的详细讨论和应对措施”、“商誉减值的具体构成及减值测试方法和关键假设”等)。
    如果模块不需要从附注或MD&A中提取特定信息，则返回空列表 ` + "`[]`" + `。

**请以严格的JSON格式返回您的输出。顶层是一个JSON对象，其键是模块的完整标准名称，每个模块名对应的值是另一个包含该模块 ` + "`search_queries`" + ` (字符串数组) 和 ` + "`document_extractions`" + ` (对象数组) 的JSON对象。**
确保所有模块名称与输入列表中的完全一致。如果某个模块不需要任何搜索或文档提取，其对应的 ` + "`search_queries`" + ` 和 ` + "`document_extractions`" + ` 应为空列表 ` + "`[]`" + `。

**JSON输出格式示例 (仅为结构示意，具体内容需根据模块判断)：**
` + "```json" + `
{
  "1.1 波特五力模型": {
    "search_queries": ["XX行业2023年平均市盈率", "[公司名称] 最新信用评级"],
    "document_extractions": [
      {"document_type": "footnotes", "period_label": "[最新报告期标签]", "analysis_context": "关于主要供应商和客户集中度的描述"},
      {"document_type": "mda", "period_label": "[最新报告期标签]", "analysis_context": "管理层对行业竞争格局的看法"}
    ]
  },
  "1.2 SWOT 分析": {
    "search_queries": ["公司[公司名称]核心竞争力分析"],
    "document_extractions": []
  }
  // ... 为列表中的其他所有模块提供类似结构 ...
}
` + "```"

// NeedsPlanner plans the external information every module requires, in a
// single batched LLM call. Modules the AI skips or botches get empty needs
// instead of failing the run.
type NeedsPlanner struct {
	llm     interfaces.LLMService
	catalog *catalog.Catalog
	logger  arbor.ILogger
}

// NewNeedsPlanner creates an information needs planner over the framework
// catalog. Module descriptions in the prompt come from the catalog.
func NewNeedsPlanner(llm interfaces.LLMService, cat *catalog.Catalog, logger arbor.ILogger) *NeedsPlanner {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &NeedsPlanner{
		llm:     llm,
		catalog: cat,
		logger:  logger,
	}
}

// PlanNeeds returns the validated information needs for every module in
// modules. The result always has one entry per requested module; on any
// planning failure the affected modules carry empty needs.
func (p *NeedsPlanner) PlanNeeds(ctx context.Context, modules []string, company models.CompanyInfo, macroConclusion, industryConclusion, docsSummary string) map[string]models.InformationNeeds {
	if len(modules) == 0 {
		p.logger.Info().Msg("No modules provided for information needs planning")
		return map[string]models.InformationNeeds{}
	}
	if p.llm == nil {
		p.logger.Error().Msg("LLM not available, cannot plan information needs")
		return emptyNeedsFor(modules)
	}

	p.logger.Info().Int("modules", len(modules)).Msg("Planning information needs for module batch")

	descLines := make([]string, 0, len(modules))
	for _, name := range modules {
		desc := p.catalog.Describe(name)
		if desc == "" {
			desc = "通用分析模块"
		}
		descLines = append(descLines, fmt.Sprintf("- **%s**: %s...", name, desc))
	}

	prompt := fmt.Sprintf(needsPromptTemplate,
		orDefault(company.Name, "未知"),
		orDefault(company.Industry, "未知"),
		orDefault(company.AnalysisPerspective, "未指定"),
		common.TruncateRunes(macroConclusion, 1000),
		common.TruncateRunes(industryConclusion, 1000),
		docsSummary,
		strings.Join(descLines, "\n"),
	)

	response, err := p.llm.InvokeJSON(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		p.logger.Error().Err(err).Msg("Information needs planning invocation failed, defaulting all modules to empty needs")
		return emptyNeedsFor(modules)
	}

	cleaned := common.CleanMarkdownFences(response)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		p.logger.Error().
			Err(err).
			Str("response_snippet", common.TruncateRunes(response, 200)).
			Msg("Information needs planning returned non-JSON, defaulting all modules to empty needs")
		return emptyNeedsFor(modules)
	}

	validated := make(map[string]models.InformationNeeds, len(modules))
	for _, name := range modules {
		needs, ok := parseModuleNeeds(raw[name])
		if !ok {
			p.logger.Warn().
				Str("module", name).
				Msg("No valid information needs planned for module, using empty needs")
			validated[name] = models.EmptyNeeds()
			continue
		}
		validated[name] = needs
	}

	p.logger.Info().Int("planned", len(validated)).Msg("Batch information needs planning completed")
	return validated
}

// parseModuleNeeds validates one module's planned needs. Individual malformed
// entries are dropped, a module value that is not an object fails whole.
func parseModuleNeeds(raw json.RawMessage) (models.InformationNeeds, bool) {
	if raw == nil {
		return models.InformationNeeds{}, false
	}
	var plan map[string]json.RawMessage
	if err := json.Unmarshal(raw, &plan); err != nil {
		return models.InformationNeeds{}, false
	}

	needs := models.EmptyNeeds()

	if rawQueries, ok := plan["search_queries"]; ok {
		var items []interface{}
		if err := json.Unmarshal(rawQueries, &items); err == nil {
			for _, item := range items {
				if query, ok := item.(string); ok {
					needs.SearchQueries = append(needs.SearchQueries, query)
				}
			}
		}
	}

	if rawExtractions, ok := plan["document_extractions"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawExtractions, &items); err == nil {
			for _, item := range items {
				var fields map[string]interface{}
				if err := json.Unmarshal(item, &fields); err != nil {
					continue
				}
				docType, ok1 := fields["document_type"].(string)
				period, ok2 := fields["period_label"].(string)
				analysisContext, ok3 := fields["analysis_context"].(string)
				if ok1 && ok2 && ok3 {
					needs.DocumentExtractions = append(needs.DocumentExtractions, models.DocumentExtraction{
						DocumentType:    docType,
						PeriodLabel:     period,
						AnalysisContext: analysisContext,
					})
				}
			}
		}
	}

	return needs, true
}

func emptyNeedsFor(modules []string) map[string]models.InformationNeeds {
	out := make(map[string]models.InformationNeeds, len(modules))
	for _, name := range modules {
		out[name] = models.EmptyNeeds()
	}
	return out
}
