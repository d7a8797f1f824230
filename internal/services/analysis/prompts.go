package analysis

import "strings"

// Context keys a module prompt template can reference. Substitution runs in
// this declaration order: the bracketed form ("[公司名称]") is replaced when the
// template contains it, otherwise the bare key. The two prefetch keys carry
// their brackets in the key itself, so they always match through the bare
// branch.
const (
	KeyCompanyName        = "公司名称"
	KeyIndustryName       = "行业名称"
	KeyLatestPeriodLabel  = "最新报告期标签"
	KeyAllPeriodLabels    = "所有报告期标签"
	KeyFinancialDocsNote  = "财务数据摘要"
	KeyCoreStatements     = "核心三表数据_所有报告期"
	KeyPriorAnalyses      = "前期分析结论摘要"
	KeyModuleName         = "模块名称"
	KeyPerspective        = "分析角度"
	KeyMacroConclusion    = "宏观经济分析结论"
	KeyIndustryConclusion = "行业分析结论"
	KeySearchResults      = "[预获取的搜索查询结果]"
	KeyDocumentContents   = "[预获取的文档提取内容]"
)

// ContextValue is one placeholder substitution for a module prompt.
type ContextValue struct {
	Key   string
	Value string
}

// RenderTemplate substitutes each context value into the template in order.
// For every key the bracketed form is replaced when present, the bare key
// otherwise. Earlier substitutions are visible to later passes, so a value
// containing a later key's placeholder gets that placeholder expanded too.
func RenderTemplate(template string, values []ContextValue) string {
	rendered := template
	for _, v := range values {
		bracketed := "[" + v.Key + "]"
		if strings.Contains(rendered, bracketed) {
			rendered = strings.ReplaceAll(rendered, bracketed, v.Value)
		} else if strings.Contains(rendered, v.Key) {
			rendered = strings.ReplaceAll(rendered, v.Key, v.Value)
		}
	}
	return rendered
}

// defaultModuleTemplate drives every module without a specialized template.
// It surfaces the full workpaper context and demands the two-key JSON shape
// the result parser expects.
const defaultModuleTemplate = `您是一位资深的财务分析师，请完成模块“[模块名称]”的分析。

**分析对象：**
- 公司名称：[公司名称]
- 所属行业：[行业名称]
- 最新报告期：[最新报告期标签]
- 已加载的报告期：[所有报告期标签]
- 分析角度：[分析角度]

**背景结论：**
- 宏观经济分析结论：[宏观经济分析结论]
- 行业分析结论：[行业分析结论]

**财务数据摘要：**
[财务数据摘要]

**核心三表数据（所有报告期，JSON格式）：**
[核心三表数据_所有报告期]

**前期分析结论摘要：**
[前期分析结论摘要]

**预获取的搜索查询结果：**
[预获取的搜索查询结果]

**预获取的文档提取内容：**
[预获取的文档提取内容]

**分析要求：**
1. 紧扣模块“[模块名称]”的分析目标，结合上述全部信息展开论证。
2. 引用具体数据支持判断，注明数据所属报告期；存在多期数据时请关注趋势变化。
3. 明确指出信息不足或数据质量存疑之处，不要臆造数据。
4. 结论应服务于“[分析角度]”的决策需求。

**输出格式要求：**
请仅返回一个JSON对象，包含以下两个键，不要输出任何其他内容：
` + "```json" + `
{
  "analysis_text": "完整的分析文本",
  "confidence_score": "85%"
}
` + "```" + `
其中 confidence_score 为您对本次分析结论可靠性的评估（0%-100%）。`

// porterModuleTemplate structures the five forces walkthrough whose conclusion
// is condensed into the industry context every later module receives.
const porterModuleTemplate = `您是一位资深的行业与战略分析师，请基于波特五力模型分析公司所处行业的竞争格局。

**分析对象：**
- 公司名称：[公司名称]
- 所属行业：[行业名称]
- 最新报告期：[最新报告期标签]
- 分析角度：[分析角度]

**背景结论：**
- 宏观经济分析结论：[宏观经济分析结论]

**财务数据摘要：**
[财务数据摘要]

**前期分析结论摘要：**
[前期分析结论摘要]

**预获取的搜索查询结果：**
[预获取的搜索查询结果]

**预获取的文档提取内容：**
[预获取的文档提取内容]

**分析要求：**
请逐一评估以下五种竞争力量的强弱并给出依据，最后判断行业整体吸引力与公司的竞争地位：
1. 现有竞争者之间的竞争强度
2. 潜在进入者的威胁
3. 替代品的威胁
4. 供应商的议价能力
5. 购买者的议价能力

**输出格式要求：**
请仅返回一个JSON对象，包含以下两个键，不要输出任何其他内容：
` + "```json" + `
{
  "analysis_text": "完整的分析文本",
  "confidence_score": "85%"
}
` + "```" + `
其中 confidence_score 为您对本次分析结论可靠性的评估（0%-100%）。`

// moduleTemplates maps module names to specialized templates. Anything not
// listed here uses defaultModuleTemplate.
var moduleTemplates = map[string]string{
	PorterFiveForcesModule: porterModuleTemplate,
}

// TemplateFor returns the prompt template for the named module.
func TemplateFor(moduleName string) string {
	if t, ok := moduleTemplates[moduleName]; ok {
		return t
	}
	return defaultModuleTemplate
}
