package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

// formatWorkpaperList formats stored workpapers as markdown
func formatWorkpaperList(workpapers []*models.Workpaper) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Workpapers (%d)\n\n", len(workpapers)))

	if len(workpapers) == 0 {
		sb.WriteString("No workpapers stored.\n")
		return sb.String()
	}

	for i, wp := range workpapers {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, wp.Company.Name))
		sb.WriteString(fmt.Sprintf("**ID:** %s\n", wp.ID))
		sb.WriteString(fmt.Sprintf("**Industry:** %s\n", wp.Company.Industry))
		sb.WriteString(fmt.Sprintf("**Periods:** %s\n", strings.Join(wp.PeriodLabels(), ", ")))
		sb.WriteString(fmt.Sprintf("**Modules completed:** %d\n", len(wp.CompletedModules())))
		sb.WriteString(fmt.Sprintf("**Updated:** %s\n\n", wp.UpdatedAt.Format(time.RFC3339)))
	}

	return sb.String()
}

// formatWorkpaperOverview formats one workpaper's header data as markdown
func formatWorkpaperOverview(wp *models.Workpaper) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", wp.Company.Name))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", wp.ID))
	sb.WriteString(fmt.Sprintf("**Industry:** %s\n", wp.Company.Industry))
	if wp.Company.IsListed {
		sb.WriteString(fmt.Sprintf("**Stock code:** %s\n", wp.Company.StockCode))
	}
	sb.WriteString(fmt.Sprintf("**Perspective:** %s\n", wp.Company.AnalysisPerspective))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", wp.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Updated:** %s\n\n", wp.UpdatedAt.Format(time.RFC3339)))

	sb.WriteString("## Reporting Periods\n\n")
	for _, rep := range wp.Reports {
		chunks := len(rep.FootnotesChunks) + len(rep.MDAChunks)
		sb.WriteString(fmt.Sprintf("- %s (%d document chunks)\n", rep.PeriodLabel, chunks))
	}

	sb.WriteString("\n## Module Status\n\n")
	if len(wp.ModuleOutputs) == 0 {
		sb.WriteString("No modules executed yet.\n")
	}
	for name, output := range wp.ModuleOutputs {
		if output == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: %s (confidence: %s)\n", name, output.Status, output.ConfidenceScore))
	}

	if len(wp.Metadata.PlannedModules) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Planned modules:** %d\n", len(wp.Metadata.PlannedModules)))
	}
	if wp.Metadata.ModelUsed != "" {
		sb.WriteString(fmt.Sprintf("**Model:** %s\n", wp.Metadata.ModelUsed))
	}

	return sb.String()
}

// formatConclusion formats the overall conclusion and contradiction logbook
func formatConclusion(wp *models.Workpaper) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Overall Conclusion — %s\n\n", wp.Company.Name))
	sb.WriteString(wp.Insights.OverallConclusion)
	sb.WriteString("\n")

	if wp.Insights.OverallSummary != "" {
		sb.WriteString("\n## Final Summary\n\n")
		sb.WriteString(wp.Insights.OverallSummary)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n## Contradiction Logbook (%d)\n\n", len(wp.Insights.ContradictionLog)))
	if len(wp.Insights.ContradictionLog) == 0 {
		sb.WriteString("No contradictions logged.\n")
		return sb.String()
	}
	for i, entry := range wp.Insights.ContradictionLog {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, entry.ModuleName))
		sb.WriteString(fmt.Sprintf("**When:** %s\n", entry.Timestamp.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("**Confidence:** %s\n\n", entry.ModuleConfidence))
		sb.WriteString(entry.Description)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// formatRisksOpportunities formats the consolidated insight lists as markdown
func formatRisksOpportunities(wp *models.Workpaper) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Risks & Opportunities — %s\n\n", wp.Company.Name))

	sb.WriteString(fmt.Sprintf("## Key Risks (%d)\n\n", len(wp.Insights.KeyRisks)))
	if len(wp.Insights.KeyRisks) == 0 {
		sb.WriteString("None consolidated yet.\n")
	}
	for _, risk := range wp.Insights.KeyRisks {
		sb.WriteString(fmt.Sprintf("### %s — %s\n", risk.ID, risk.Category))
		sb.WriteString(fmt.Sprintf("**Impact:** %s\n", risk.PotentialImpact))
		sb.WriteString(fmt.Sprintf("**Sources:** %s\n\n", strings.Join(risk.SourceModules, ", ")))
		sb.WriteString(risk.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("## Key Opportunities (%d)\n\n", len(wp.Insights.KeyOpportunities)))
	if len(wp.Insights.KeyOpportunities) == 0 {
		sb.WriteString("None consolidated yet.\n")
	}
	for _, opp := range wp.Insights.KeyOpportunities {
		sb.WriteString(fmt.Sprintf("### %s — %s\n", opp.ID, opp.Category))
		sb.WriteString(fmt.Sprintf("**Benefit:** %s\n", opp.PotentialBenefit))
		sb.WriteString(fmt.Sprintf("**Sources:** %s\n\n", strings.Join(opp.SourceModules, ", ")))
		sb.WriteString(opp.Description)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// formatModuleAnalysis formats one stored module output as markdown
func formatModuleAnalysis(moduleName string, output *models.ModuleOutput) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", moduleName))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", output.Status))
	sb.WriteString(fmt.Sprintf("**Confidence:** %s\n", output.ConfidenceScore))
	sb.WriteString(fmt.Sprintf("**Completed:** %s\n\n", output.Timestamp.Format(time.RFC3339)))

	sb.WriteString("## Analysis\n\n")
	sb.WriteString(output.TextSummary)
	sb.WriteString("\n")

	if output.AbbreviatedSummary != "" {
		sb.WriteString("\n## Abbreviated Summary\n\n")
		sb.WriteString(common.TruncateRunes(output.AbbreviatedSummary, 2000))
		sb.WriteString("\n")
	}

	return sb.String()
}
