package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/retrieval"
)

// textResult wraps plain text in a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// loadWorkpaper resolves the workpaper_id parameter against storage. The
// second return value carries a ready error result when resolution failed.
func loadWorkpaper(request mcp.CallToolRequest, workpapers interfaces.WorkpaperStorage, logger arbor.ILogger) (*models.Workpaper, *mcp.CallToolResult) {
	id, err := request.RequireString("workpaper_id")
	if err != nil || id == "" {
		return nil, textResult("Error: workpaper_id parameter is required")
	}

	wp, err := workpapers.Get(id)
	if err != nil {
		logger.Error().Err(err).Str("workpaper_id", id).Msg("Workpaper lookup failed")
		return nil, textResult(fmt.Sprintf("Workpaper not found: %v", err))
	}
	return wp, nil
}

// handleListWorkpapers implements the list_workpapers tool
func handleListWorkpapers(workpapers interfaces.WorkpaperStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)

		all, err := workpapers.List()
		if err != nil {
			logger.Error().Err(err).Msg("Workpaper list failed")
			return textResult(fmt.Sprintf("List error: %v", err)), nil
		}
		if len(all) > limit {
			all = all[:limit]
		}

		return textResult(formatWorkpaperList(all)), nil
	}
}

// handleGetWorkpaperOverview implements the get_workpaper_overview tool
func handleGetWorkpaperOverview(workpapers interfaces.WorkpaperStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wp, errResult := loadWorkpaper(request, workpapers, logger)
		if errResult != nil {
			return errResult, nil
		}
		return textResult(formatWorkpaperOverview(wp)), nil
	}
}

// handleGetConclusion implements the get_conclusion tool
func handleGetConclusion(workpapers interfaces.WorkpaperStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wp, errResult := loadWorkpaper(request, workpapers, logger)
		if errResult != nil {
			return errResult, nil
		}
		return textResult(formatConclusion(wp)), nil
	}
}

// handleGetRisksOpportunities implements the get_risks_opportunities tool
func handleGetRisksOpportunities(workpapers interfaces.WorkpaperStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wp, errResult := loadWorkpaper(request, workpapers, logger)
		if errResult != nil {
			return errResult, nil
		}
		return textResult(formatRisksOpportunities(wp)), nil
	}
}

// handleGetModuleAnalysis implements the get_module_analysis tool
func handleGetModuleAnalysis(workpapers interfaces.WorkpaperStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wp, errResult := loadWorkpaper(request, workpapers, logger)
		if errResult != nil {
			return errResult, nil
		}

		moduleName, err := request.RequireString("module_name")
		if err != nil || moduleName == "" {
			return textResult("Error: module_name parameter is required"), nil
		}

		output, ok := wp.ModuleOutputs[moduleName]
		if !ok || output == nil {
			return textResult(fmt.Sprintf("No stored output for module %q. Completed modules: %v",
				moduleName, wp.CompletedModules())), nil
		}

		return textResult(formatModuleAnalysis(moduleName, output)), nil
	}
}

// handleGetDocumentContent implements the get_document_content tool
func handleGetDocumentContent(workpapers interfaces.WorkpaperStorage, contentTool *retrieval.ContentTool, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wp, errResult := loadWorkpaper(request, workpapers, logger)
		if errResult != nil {
			return errResult, nil
		}

		docType, err := request.RequireString("document_type")
		if err != nil || (docType != models.DocTypeFootnotes && docType != models.DocTypeMDA) {
			return textResult("Error: document_type must be \"footnotes\" or \"mda\""), nil
		}
		periodLabel, err := request.RequireString("period_label")
		if err != nil || periodLabel == "" {
			return textResult("Error: period_label parameter is required"), nil
		}
		analysisContext, err := request.RequireString("analysis_context")
		if err != nil || analysisContext == "" {
			return textResult("Error: analysis_context parameter is required"), nil
		}
		maxLength := request.GetInt("max_length", 0)

		report := wp.ReportFor(periodLabel)
		if report == nil {
			return textResult(fmt.Sprintf("No reporting period %q in workpaper %s. Known periods: %v",
				periodLabel, wp.ID, wp.PeriodLabels())), nil
		}

		content := contentTool.Extract(ctx, docType, periodLabel, analysisContext, report.ChunksFor(docType), maxLength)
		return textResult(content), nil
	}
}

// handleSearchWeb implements the search_web tool
func handleSearchWeb(searchService interfaces.SearchService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return textResult("Error: query parameter is required"), nil
		}

		// Run never returns an error; failures come back as descriptive text
		return textResult(searchService.Run(ctx, query)), nil
	}
}
