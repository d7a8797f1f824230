package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/services/llm"
	"github.com/ternarybob/aestimo/internal/services/retrieval"
	"github.com/ternarybob/aestimo/internal/services/search"
	"github.com/ternarybob/aestimo/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("AESTIMO_CONFIG")
	if configPath == "" {
		configPath = "aestimo.toml"
	}

	// Phase 1: Load config without KV replacement (storage not initialized yet)
	config, err := common.LoadFromFile(nil, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	// Initialize storage. The analysis server must not be running against
	// the same Badger directory, the lock is exclusive.
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	// LLM service backs chunk selection and compression for the document
	// content tool. API keys resolve lazily on first call.
	llmService, llmAudit, err := llm.NewLLMService(config, storageManager.KVStorage(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LLM service")
	}
	defer llmService.Close()
	defer llmAudit.Close()

	// Web search collaborator (disabled stub when search is off)
	searchService := search.NewSearchService(config.Search, logger)

	// Document content retrieval: chunk selection -> concatenation -> compression
	selector := retrieval.NewSelector(llmService, logger)
	compressor := retrieval.NewCompressor(llmService, config.Analysis.CompressedDocMaxChars, logger)
	contentTool := retrieval.NewContentTool(selector, compressor, config.Analysis.ToolSummaryMaxChars, logger)

	workpapers := storageManager.WorkpaperStorage()

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"aestimo",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register workpaper tools
	mcpServer.AddTool(createListWorkpapersTool(), handleListWorkpapers(workpapers, logger))
	mcpServer.AddTool(createGetWorkpaperOverviewTool(), handleGetWorkpaperOverview(workpapers, logger))
	mcpServer.AddTool(createGetConclusionTool(), handleGetConclusion(workpapers, logger))
	mcpServer.AddTool(createGetRisksOpportunitiesTool(), handleGetRisksOpportunities(workpapers, logger))
	mcpServer.AddTool(createGetModuleAnalysisTool(), handleGetModuleAnalysis(workpapers, logger))

	// Register retrieval tools
	mcpServer.AddTool(createGetDocumentContentTool(), handleGetDocumentContent(workpapers, contentTool, logger))
	mcpServer.AddTool(createSearchWebTool(), handleSearchWeb(searchService, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
