// Package analysis executes individual analysis modules: it resolves each
// module's planned information needs into prompt context, assembles the module
// prompt from the workpaper, and parses the model's JSON verdict into a stored
// module output. Orchestration across modules lives in the pipeline; the
// engine only ever runs one module at a time.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/retrieval"
)

// PorterFiveForcesModule completes with an extra step: its conclusion is
// condensed into the industry analysis context for every later module.
const PorterFiveForcesModule = "1.1 波特五力模型"

// IndustryConclusionFailed is stored as the industry conclusion when the
// condensation of the five forces analysis fails.
const IndustryConclusionFailed = "行业分析结论摘要生成失败。"

// Placeholder context blocks used when a module planned no external input.
const (
	searchNotPlanned     = "未规划或执行任何外部搜索查询。"
	extractionNotPlanned = "未规划或执行任何文档内容提取。"
)

// responseEmpty is stored as the module text when the model returned nothing.
const responseEmpty = "LLM未能生成有效响应。"

// financialDocsNote is the fixed value of the 财务数据摘要 context key. Document
// detail arrives through the prefetched extraction block, so this key only
// points the model there.
const financialDocsNote = "相关的文档细节已通过 '[预获取的文档提取内容]' 提供。原始文档清单主要用于参考。"

const industrySummaryPromptTemplate = `请将以下“波特五力模型”分析的完整结论，总结为一段不超过1000个汉字（约500-700字为佳）的“行业分析结论”摘要。此摘要将作为后续其他财务分析模块的重要参考。请确保摘要准确反映了行业竞争格局的核心要点。原始文本如下：
---
%s
---
1000字以内的行业分析结论摘要：`

// Engine runs one analysis module end to end. The selector and compressor are
// shared with the rest of the retrieval path so their prompts and degradation
// behavior stay identical everywhere chunks are read.
type Engine struct {
	llm        interfaces.LLMService
	search     interfaces.SearchService
	selector   *retrieval.Selector
	compressor *retrieval.Compressor
	catalog    *catalog.Catalog
	cfg        *common.AnalysisConfig
	logger     arbor.ILogger
}

// NewEngine creates a module execution engine.
func NewEngine(
	llm interfaces.LLMService,
	search interfaces.SearchService,
	selector *retrieval.Selector,
	compressor *retrieval.Compressor,
	cat *catalog.Catalog,
	cfg *common.AnalysisConfig,
	logger arbor.ILogger,
) *Engine {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	if cfg == nil {
		defaults := common.NewDefaultConfig().Analysis
		cfg = &defaults
	}
	return &Engine{
		llm:        llm,
		search:     search,
		selector:   selector,
		compressor: compressor,
		catalog:    cat,
		cfg:        cfg,
		logger:     logger,
	}
}

// RunModule executes one analysis module against the workpaper and returns
// its output. The output always carries a terminal status and the prompt that
// produced it; the caller stores it and drives any follow-up integration.
func (e *Engine) RunModule(ctx context.Context, wp *models.Workpaper, moduleName string) *models.ModuleOutput {
	e.logger.Info().Str("module", moduleName).Msg("Module analysis started")

	needs := wp.Metadata.NeedsByModule[moduleName]
	searchBlock := e.prefetchSearchResults(ctx, moduleName, needs.SearchQueries)
	documentBlock := e.prefetchDocumentContents(ctx, wp, moduleName, needs.DocumentExtractions)

	prompt := e.buildPrompt(ctx, wp, moduleName, searchBlock, documentBlock)
	e.logger.Info().
		Str("module", moduleName).
		Int("prompt_chars", common.RuneLen(prompt)).
		Msg("Module prompt assembled")

	response, err := e.llm.InvokeJSON(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		e.logger.Error().Err(err).Str("module", moduleName).Msg("Module analysis invocation failed")
		return &models.ModuleOutput{
			TextSummary:     fmt.Sprintf("分析执行失败: %v", err),
			ConfidenceScore: models.ConfidenceExecFailure,
			Status:          models.ModuleStatusError,
			Timestamp:       time.Now().UTC(),
			PromptUsed:      prompt,
		}
	}
	if response == "" {
		e.logger.Error().Str("module", moduleName).Msg("Module analysis returned an empty response")
		return &models.ModuleOutput{
			TextSummary:     responseEmpty,
			ConfidenceScore: models.ConfidenceNoResponse,
			Status:          models.ModuleStatusError,
			Timestamp:       time.Now().UTC(),
			PromptUsed:      prompt,
		}
	}

	text, confidence := e.parseModuleResponse(moduleName, response)
	status := models.ModuleStatusCompleted
	if text == "" {
		status = models.ModuleStatusError
	}

	e.logger.Info().
		Str("module", moduleName).
		Str("status", string(status)).
		Str("confidence", confidence).
		Msg("Module analysis finished")

	return &models.ModuleOutput{
		TextSummary:     text,
		ConfidenceScore: confidence,
		Status:          status,
		Timestamp:       time.Now().UTC(),
		PromptUsed:      prompt,
	}
}

// prefetchSearchResults runs every planned query through the search
// collaborator and renders the results as labeled blocks for the prompt.
func (e *Engine) prefetchSearchResults(ctx context.Context, moduleName string, queries []string) string {
	if len(queries) == 0 {
		return searchNotPlanned
	}
	if e.search == nil {
		e.logger.Warn().Str("module", moduleName).Msg("Search service not configured, planned queries skipped")
		return searchNotPlanned
	}

	e.logger.Info().
		Str("module", moduleName).
		Int("queries", len(queries)).
		Msg("Executing planned search queries")

	blocks := make([]string, 0, len(queries))
	for i, query := range queries {
		result := e.search.Run(ctx, query)
		blocks = append(blocks, fmt.Sprintf("针对查询“%s”的预获取搜索结果 %d：\n%s\n---", query, i+1, result))
	}
	return strings.Join(blocks, "\n")
}

// prefetchDocumentContents resolves the planned extractions into compressed
// document context. Extractions targeting the same document and period are
// grouped so each group costs one chunk selection and one compression.
func (e *Engine) prefetchDocumentContents(ctx context.Context, wp *models.Workpaper, moduleName string, extractions []models.DocumentExtraction) string {
	if len(extractions) == 0 {
		return extractionNotPlanned
	}

	e.logger.Info().
		Str("module", moduleName).
		Int("extractions", len(extractions)).
		Msg("Executing planned document extractions")

	groups := models.GroupExtractions(extractions)
	blocks := make([]string, 0, len(groups))
	for _, group := range groups {
		contexts := strings.Join(group.Contexts, "; ")

		var chunks []models.DocumentChunk
		if report := wp.ReportFor(group.PeriodLabel); report != nil {
			chunks = report.ChunksFor(group.DocumentType)
		}
		if len(chunks) == 0 {
			e.logger.Warn().
				Str("module", moduleName).
				Str("doc_type", group.DocumentType).
				Str("period", group.PeriodLabel).
				Msg("No preprocessed chunks for planned extraction")
			blocks = append(blocks, fmt.Sprintf("未能提取文档 '%s' (%s) 的内容：未找到预处理分块数据。", group.DocumentType, group.PeriodLabel))
			continue
		}

		selectedIDs := e.selector.SelectChunks(ctx, group.Contexts, chunks)
		if len(selectedIDs) == 0 {
			blocks = append(blocks, fmt.Sprintf("未能从文档 '%s' (%s) 中为上下文 '%s' 确定相关内容块。", group.DocumentType, group.PeriodLabel, contexts))
			continue
		}

		byID := make(map[string]*models.DocumentChunk, len(chunks))
		for i := range chunks {
			byID[chunks[i].ChunkID] = &chunks[i]
		}

		var concatenated strings.Builder
		for _, id := range selectedIDs {
			chunk, ok := byID[id]
			if !ok {
				e.logger.Warn().
					Str("chunk_id", id).
					Str("doc_type", group.DocumentType).
					Str("period", group.PeriodLabel).
					Msg("Selected chunk ID not found in document chunks")
				continue
			}
			concatenated.WriteString(chunk.Text)
			concatenated.WriteString("\n\n")
		}

		if strings.TrimSpace(concatenated.String()) == "" {
			blocks = append(blocks, fmt.Sprintf("未能从文档 '%s' (%s) 中为上下文 '%s' 提取到有效内容（选中的块为空）。", group.DocumentType, group.PeriodLabel, contexts))
			continue
		}

		compressionContext := fmt.Sprintf("为模块 '%s' 分析以下方面：%s", moduleName, contexts)
		compressed := e.compressor.Compress(ctx, concatenated.String(), compressionContext, e.cfg.CompressedDocMaxChars)
		blocks = append(blocks, fmt.Sprintf("从文档 '%s' (%s) 中针对上下文 '%s' 提取并压缩的内容：\n%s\n---", group.DocumentType, group.PeriodLabel, contexts, compressed))
	}

	return strings.Join(blocks, "\n")
}

// buildPrompt renders the module's template with the full workpaper context.
func (e *Engine) buildPrompt(ctx context.Context, wp *models.Workpaper, moduleName, searchBlock, documentBlock string) string {
	company := wp.Company

	name := company.Name
	if name == "" {
		name = "未知公司"
	}
	industryName := company.Industry
	if industryName == "" {
		industryName = "未知行业"
	}
	perspective := company.AnalysisPerspective
	if perspective == "" {
		perspective = "未指定分析角度"
	}
	macro := company.MacroConclusion
	if macro == "" {
		macro = models.DefaultMacroConclusion
	}
	industry := company.IndustryConclusion
	if industry == "" {
		industry = models.DefaultIndustryConclusion
	}

	allLabels := "无"
	if len(wp.Reports) > 0 {
		allLabels = strings.Join(wp.PeriodLabels(), ", ")
	}

	values := []ContextValue{
		{KeyCompanyName, name},
		{KeyIndustryName, industryName},
		{KeyLatestPeriodLabel, wp.LatestPeriodLabel()},
		{KeyAllPeriodLabels, allLabels},
		{KeyFinancialDocsNote, financialDocsNote},
		{KeyCoreStatements, FormatCoreStatements(wp.Reports, e.cfg.StatementMaxRows, e.logger)},
		{KeyPriorAnalyses, e.priorAnalysesSummary(ctx, wp, moduleName)},
		{KeyModuleName, moduleName},
		{KeyPerspective, perspective},
		{KeyMacroConclusion, macro},
		{KeyIndustryConclusion, industry},
		{KeySearchResults, searchBlock},
		{KeyDocumentContents, documentBlock},
	}

	return RenderTemplate(TemplateFor(moduleName), values)
}

// parseModuleResponse extracts the analysis text and confidence score from the
// model's JSON reply. Malformed JSON degrades to the raw response text with an
// unparsed confidence marker, so a readable analysis is never discarded over
// formatting.
func (e *Engine) parseModuleResponse(moduleName, response string) (string, string) {
	cleaned := common.CleanMarkdownFences(response)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		e.logger.Warn().
			Str("module", moduleName).
			Str("response_snippet", common.SnippetRunes(response, 200, "...")).
			Msg("Module response was not valid JSON, using raw text")
		return response, models.ConfidenceUnparsed
	}

	text := response
	if rawText, ok := raw["analysis_text"]; ok {
		var s string
		if err := json.Unmarshal(rawText, &s); err == nil {
			text = s
		}
	}

	confidence := models.ConfidenceMissing
	if rawConf, ok := raw["confidence_score"]; ok {
		var s string
		if err := json.Unmarshal(rawConf, &s); err == nil {
			confidence = s
		} else {
			// Some responses report confidence as a bare number.
			var f float64
			if err := json.Unmarshal(rawConf, &f); err == nil {
				confidence = strconv.FormatFloat(f, 'g', -1, 64)
			}
		}
	}

	return text, confidence
}

// SummarizeIndustryConclusion condenses a completed five forces analysis into
// the industry conclusion injected into every later module's context. The
// caller stores the result, or IndustryConclusionFailed on error.
func (e *Engine) SummarizeIndustryConclusion(ctx context.Context, analysisText string) (string, error) {
	prompt := fmt.Sprintf(industrySummaryPromptTemplate, common.TruncateRunes(analysisText, e.cfg.SummaryInputMaxChars))

	summary, err := e.llm.Invoke(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		e.logger.Error().Err(err).Msg("Industry conclusion summarization failed")
		return "", fmt.Errorf("summarize industry conclusion: %w", err)
	}

	e.logger.Info().
		Int("chars", common.RuneLen(summary)).
		Msg("Industry conclusion generated from five forces analysis")
	return summary, nil
}
