// Package retrieval narrows preprocessed document chunks down to the content
// a single analysis needs. Selection works on chunk overviews, compression
// works on the selected original text.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

const selectorPromptTemplate = `基于以下针对当前分析模块的综合信息需求：
"%s"

以及以下文档文本块的概述列表（每个概述都附带其唯一的 chunk_id）：
%s

请判断并返回一个JSON列表，其中包含与上述综合信息需求**最相关**的文本块的 ` + "`chunk_id`" + `。
目标是选择出能够最好地满足当前分析模块具体信息需求的文本块。如果多个块从不同方面满足需求，请都包含进来。如果没有任何块看起来相关，请返回一个空列表。

JSON输出格式示例：
` + "```json" + `
{
  "relevant_chunk_ids": ["chunk_id_1", "chunk_id_3"]
}
` + "```"

// Selector asks the LLM which chunks are worth reading in full, judging only
// by their overviews. A failed or malformed selection degrades to an empty
// result rather than an error so callers can fall back to their own sentinels.
type Selector struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewSelector creates a chunk selector backed by the given LLM service.
func NewSelector(llm interfaces.LLMService, logger arbor.ILogger) *Selector {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Selector{
		llm:    llm,
		logger: logger,
	}
}

// SelectChunks returns the IDs of the chunks most relevant to the combined
// analysis contexts. Never returns an error: anything that goes wrong is
// logged and yields an empty selection.
func (s *Selector) SelectChunks(ctx context.Context, analysisContexts []string, chunks []models.DocumentChunk) []string {
	if s.llm == nil || len(chunks) == 0 {
		return []string{}
	}

	overallNeed := strings.Join(analysisContexts, "; ")

	lines := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		lines = append(lines, fmt.Sprintf("- ID: %s, 概述: %s...", chunk.ChunkID, common.TruncateRunes(chunk.Overview, 200)))
	}

	prompt := fmt.Sprintf(selectorPromptTemplate, overallNeed, strings.Join(lines, "\n"))

	response, err := s.llm.InvokeJSON(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Chunk selection call failed, returning empty selection")
		return []string{}
	}

	cleaned := common.CleanMarkdownFences(response)

	var parsed struct {
		RelevantChunkIDs []interface{} `json:"relevant_chunk_ids"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		s.logger.Warn().
			Err(err).
			Str("response_snippet", common.TruncateRunes(response, 200)).
			Msg("Chunk selection response was not valid JSON, returning empty selection")
		return []string{}
	}

	ids := make([]string, 0, len(parsed.RelevantChunkIDs))
	for _, item := range parsed.RelevantChunkIDs {
		id, ok := item.(string)
		if !ok {
			s.logger.Warn().
				Str("response_snippet", common.TruncateRunes(response, 200)).
				Msg("Chunk selection returned non-string chunk IDs, returning empty selection")
			return []string{}
		}
		ids = append(ids, id)
	}

	s.logger.Info().
		Int("selected", len(ids)).
		Int("candidates", len(chunks)).
		Msg("Chunk selection completed")

	return ids
}
