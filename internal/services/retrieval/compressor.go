package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// CompressorEmpty is returned when there is no text worth compressing.
const CompressorEmpty = "无相关内容可压缩。"

const compressorPromptTemplate = `请将以下拼接的文本段落压缩并提炼成一段连贯的摘要，目标总长度不超过 %d 个字符。
在压缩时，请务必优先保留与以下分析上下文最相关的信息：
"分析上下文：%s"

确保关键事实、数据、会计政策的精确描述或管理层的明确观点得到保留。

待压缩的拼接文本内容如下：
---
%s
---
%d字符以内的压缩结果：`

// Compressor condenses concatenated chunk text into a bounded summary that
// keeps the facts relevant to one analysis context.
type Compressor struct {
	llm      interfaces.LLMService
	maxChars int
	logger   arbor.ILogger
}

// NewCompressor creates a text compressor. maxChars is the default target
// length used when a call does not specify its own.
func NewCompressor(llm interfaces.LLMService, maxChars int, logger arbor.ILogger) *Compressor {
	if maxChars <= 0 {
		maxChars = 5000
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Compressor{
		llm:      llm,
		maxChars: maxChars,
		logger:   logger,
	}
}

// Compress condenses text down to roughly targetMaxChars characters, keeping
// information relevant to analysisContext. targetMaxChars <= 0 falls back to
// the compressor default. Failures return an explanatory string that embeds
// the head of the original text, never an error.
func (c *Compressor) Compress(ctx context.Context, text, analysisContext string, targetMaxChars int) string {
	if targetMaxChars <= 0 {
		targetMaxChars = c.maxChars
	}
	if c.llm == nil || strings.TrimSpace(text) == "" {
		return CompressorEmpty
	}

	// Cap compressor input at four times the target so a huge selection
	// cannot blow the context window.
	maxInput := targetMaxChars * 4
	toCompress := text
	if common.RuneLen(text) > maxInput {
		toCompress = common.TruncateRunes(text, maxInput)
		c.logger.Warn().
			Int("original_chars", common.RuneLen(text)).
			Int("truncated_to", maxInput).
			Msg("Text for compression was very long, truncated for compressor input")
	}

	prompt := fmt.Sprintf(compressorPromptTemplate, targetMaxChars, analysisContext, toCompress, targetMaxChars)

	response, err := c.llm.Invoke(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		c.logger.Warn().Err(err).Msg("Text compression call failed")
		return fmt.Sprintf("压缩文本时出错: %v. 原始文本片段(部分): %s...", err, common.TruncateRunes(text, 500))
	}

	c.logger.Info().
		Int("target_chars", targetMaxChars).
		Int("result_chars", common.RuneLen(response)).
		Msg("Text compressed")

	return response
}
