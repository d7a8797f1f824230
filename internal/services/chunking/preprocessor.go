// Package chunking splits supplementary documents (statement footnotes and
// management discussion) into bounded chunks and generates a one-paragraph
// overview per chunk. Overviews are what the relevance selector later reads,
// so each chunk stays usable even when its own overview generation failed.
package chunking

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/worker"
)

// Overview sentinels stored when a chunk overview cannot be generated.
const (
	// OverviewEmptyChunk marks a chunk whose text was empty, no LLM call is made
	OverviewEmptyChunk = "文本块为空，无法生成概述。"
	// OverviewFailed marks a chunk whose overview generation errored
	OverviewFailed = "为此文本块生成概述时出错。"
)

const overviewPromptTemplate = `请为以下文本块生成一个简洁的概述，准确描述其核心内容，目标长度在1000个字符左右（大约300-350个汉字）。
请确保概述能够抓住文本块最关键的信息点，以便后续基于此概述判断该文本块与特定分析上下文的相关性。
文本块内容：
---
%s
---
1000字符左右的概述：`

// Preprocessor chunks a document and generates an overview per chunk on a
// bounded worker pool.
type Preprocessor struct {
	splitter *Splitter
	llm      interfaces.LLMService
	events   interfaces.EventService
	workers  int
	logger   arbor.ILogger
}

// NewPreprocessor creates a preprocessor from the analysis configuration.
// The event service is optional; when nil no progress events are published.
func NewPreprocessor(analysisConfig *common.AnalysisConfig, llm interfaces.LLMService, events interfaces.EventService, logger arbor.ILogger) *Preprocessor {
	if logger == nil {
		logger = arbor.NewLogger()
	}

	workers := analysisConfig.OverviewWorkers
	if workers <= 0 {
		workers = 3
	}

	return &Preprocessor{
		splitter: NewSplitter(analysisConfig.ChunkMaxChars, logger),
		llm:      llm,
		events:   events,
		workers:  workers,
		logger:   logger,
	}
}

// Splitter exposes the underlying splitter for callers that only need
// chunking without overviews.
func (p *Preprocessor) Splitter() *Splitter {
	return p.splitter
}

// Process splits the document and fills in chunk overviews. Overview
// generation fans out over the worker pool; chunk order in the result is the
// document order regardless of completion order. A per-chunk failure degrades
// only that chunk to the failure sentinel.
func (p *Preprocessor) Process(ctx context.Context, runID, docType, periodLabel, text string) []models.DocumentChunk {
	if strings.TrimSpace(text) == "" {
		p.logger.Warn().
			Str("doc_type", docType).
			Str("period", periodLabel).
			Msg("Document text is empty, nothing to preprocess")
		return []models.DocumentChunk{}
	}

	chunks := p.splitter.ChunkDocument(docType, periodLabel, text)
	if len(chunks) == 0 {
		return chunks
	}

	start := time.Now()
	pool := worker.NewPool(p.logger, p.workers)
	pool.Start()
	defer pool.Stop()

	var done atomic.Int64
	total := len(chunks)
	for i := range chunks {
		idx := i
		if err := pool.Submit(func() {
			chunks[idx].Overview = p.Overview(ctx, chunks[idx].Text, chunks[idx].ChunkID)
			p.publishProgress(ctx, runID, docType, periodLabel, int(done.Add(1)), total)
		}); err != nil {
			chunks[idx].Overview = OverviewFailed
		}
	}
	pool.Wait()

	p.logger.Info().
		Str("doc_type", docType).
		Str("period", periodLabel).
		Int("chunks", total).
		Dur("duration", time.Since(start)).
		Msg("Preprocessed document chunks")

	return chunks
}

// Overview generates a relevance overview for one chunk. Failures are logged
// and degrade to a sentinel string so preprocessing never aborts the document.
func (p *Preprocessor) Overview(ctx context.Context, chunkText, chunkID string) string {
	if strings.TrimSpace(chunkText) == "" {
		return OverviewEmptyChunk
	}

	prompt := fmt.Sprintf(overviewPromptTemplate, common.TruncateRunes(chunkText, p.splitter.MaxChars()+1000))
	response, err := p.llm.Invoke(ctx, interfaces.UserMessage(prompt))
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("chunk_id", chunkID).
			Msg("Chunk overview generation failed")
		return OverviewFailed
	}

	return strings.TrimSpace(response)
}

func (p *Preprocessor) publishProgress(ctx context.Context, runID, docType, periodLabel string, completed, total int) {
	if p.events == nil {
		return
	}
	p.events.Publish(ctx, models.ProgressEvent{
		Type:      models.EventChunkProgress,
		RunID:     runID,
		Message:   fmt.Sprintf("Generated %d/%d chunk overviews for %s (%s)", completed, total, docType, periodLabel),
		Percent:   completed * 100 / total,
		Timestamp: time.Now(),
	})
}
