package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createListWorkpapersTool returns the list_workpapers tool definition
func createListWorkpapersTool() mcp.Tool {
	return mcp.NewTool("list_workpapers",
		mcp.WithDescription("List stored company workpapers with their analysis progress"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum workpapers to return (default: 20)"),
		),
	)
}

// createGetWorkpaperOverviewTool returns the get_workpaper_overview tool definition
func createGetWorkpaperOverviewTool() mcp.Tool {
	return mcp.NewTool("get_workpaper_overview",
		mcp.WithDescription("Get company details, reporting periods and module status for one workpaper"),
		mcp.WithString("workpaper_id",
			mcp.Required(),
			mcp.Description("Workpaper ID (format: wp_{uuid})"),
		),
	)
}

// createGetConclusionTool returns the get_conclusion tool definition
func createGetConclusionTool() mcp.Tool {
	return mcp.NewTool("get_conclusion",
		mcp.WithDescription("Get the current overall financial conclusion and the contradiction logbook"),
		mcp.WithString("workpaper_id",
			mcp.Required(),
			mcp.Description("Workpaper ID (format: wp_{uuid})"),
		),
	)
}

// createGetRisksOpportunitiesTool returns the get_risks_opportunities tool definition
func createGetRisksOpportunitiesTool() mcp.Tool {
	return mcp.NewTool("get_risks_opportunities",
		mcp.WithDescription("Get the consolidated key risks and key opportunities of a finished analysis"),
		mcp.WithString("workpaper_id",
			mcp.Required(),
			mcp.Description("Workpaper ID (format: wp_{uuid})"),
		),
	)
}

// createGetModuleAnalysisTool returns the get_module_analysis tool definition
func createGetModuleAnalysisTool() mcp.Tool {
	return mcp.NewTool("get_module_analysis",
		mcp.WithDescription("Get the stored analysis text and confidence of one framework module"),
		mcp.WithString("workpaper_id",
			mcp.Required(),
			mcp.Description("Workpaper ID (format: wp_{uuid})"),
		),
		mcp.WithString("module_name",
			mcp.Required(),
			mcp.Description("Framework module name, e.g. \"4.1 Altman Z-Score计算与解读\""),
		),
	)
}

// createGetDocumentContentTool returns the get_document_content tool definition
func createGetDocumentContentTool() mcp.Tool {
	return mcp.NewTool("get_document_content",
		mcp.WithDescription("Retrieve content from a preprocessed company document relevant to an analysis context (chunk selection + compression)"),
		mcp.WithString("workpaper_id",
			mcp.Required(),
			mcp.Description("Workpaper ID (format: wp_{uuid})"),
		),
		mcp.WithString("document_type",
			mcp.Required(),
			mcp.Description("Document type: footnotes or mda"),
		),
		mcp.WithString("period_label",
			mcp.Required(),
			mcp.Description("Reporting period label, e.g. \"2023 年报\""),
		),
		mcp.WithString("analysis_context",
			mcp.Required(),
			mcp.Description("What the content is needed for, e.g. \"收入确认政策\""),
		),
		mcp.WithNumber("max_length",
			mcp.Description("Target length of the compressed content in characters (default from config)"),
		),
	)
}

// createSearchWebTool returns the search_web tool definition
func createSearchWebTool() mcp.Tool {
	return mcp.NewTool("search_web",
		mcp.WithDescription("Run a web search and return the results as a text block"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
	)
}
