package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/models"
)

// Fixed responses of the document content tool.
const (
	// ContentNoneRelevant is returned when chunk selection finds nothing.
	ContentNoneRelevant = "根据分析上下文，未在指定文档的概述中找到直接相关的内容片段。"
	// ContentEmptySelection is returned when the selected chunks carry no text.
	ContentEmptySelection = "选中的相关文本块内容为空。"
)

// ContentTool retrieves the content of one preprocessed document that is
// relevant to an analysis context: select chunks by overview, concatenate
// their original text, compress the result. Its return value is always
// display-ready text, never an error.
type ContentTool struct {
	selector   *Selector
	compressor *Compressor
	maxLength  int
	logger     arbor.ILogger
}

// NewContentTool creates a document content tool. maxLength is the default
// target length of the compressed result.
func NewContentTool(selector *Selector, compressor *Compressor, maxLength int, logger arbor.ILogger) *ContentTool {
	if maxLength <= 0 {
		maxLength = 1500
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &ContentTool{
		selector:   selector,
		compressor: compressor,
		maxLength:  maxLength,
		logger:     logger,
	}
}

// Extract returns the compressed content of the given document chunks that is
// relevant to analysisContext. docType and periodLabel only label log and
// sentinel messages, the chunks themselves are passed in by the caller.
func (t *ContentTool) Extract(ctx context.Context, docType, periodLabel, analysisContext string, chunks []models.DocumentChunk, maxLength int) string {
	if maxLength <= 0 {
		maxLength = t.maxLength
	}

	if len(chunks) == 0 {
		t.logger.Warn().
			Str("doc_type", docType).
			Str("period", periodLabel).
			Msg("No preprocessed chunks available for content extraction")
		return fmt.Sprintf("文档 '%s' (%s) 无可用的预处理内容分块。", docType, periodLabel)
	}

	t.logger.Info().
		Str("doc_type", docType).
		Str("period", periodLabel).
		Str("context", analysisContext).
		Msg("Selecting relevant chunks for content extraction")

	selectedIDs := t.selector.SelectChunks(ctx, []string{analysisContext}, chunks)
	if len(selectedIDs) == 0 {
		return ContentNoneRelevant
	}

	byID := make(map[string]models.DocumentChunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ChunkID] = chunk
	}

	var concatenated strings.Builder
	for _, id := range selectedIDs {
		chunk, found := byID[id]
		if !found {
			t.logger.Warn().
				Str("chunk_id", id).
				Str("doc_type", docType).
				Str("period", periodLabel).
				Msg("Selected chunk ID not found among document chunks")
			continue
		}
		concatenated.WriteString(chunk.Text)
		concatenated.WriteString("\n\n")
	}

	if strings.TrimSpace(concatenated.String()) == "" {
		t.logger.Warn().
			Str("doc_type", docType).
			Str("period", periodLabel).
			Msg("Selected chunks carried no original text")
		return ContentEmptySelection
	}

	return t.compressor.Compress(ctx, concatenated.String(), analysisContext, maxLength)
}
