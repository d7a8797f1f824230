package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkpaper_SeedsDefaults(t *testing.T) {
	wp := NewWorkpaper("wp_test", CompanyInfo{Name: "测试公司", Industry: "制造业"})

	assert.Equal(t, "wp_test", wp.ID)
	assert.Equal(t, DefaultPerspective, wp.Company.AnalysisPerspective)
	assert.Equal(t, DefaultMacroConclusion, wp.Company.MacroConclusion)
	assert.Equal(t, DefaultIndustryConclusion, wp.Company.IndustryConclusion)
	assert.Equal(t, InitialOverallConclusion, wp.Insights.OverallConclusion)
	assert.NotNil(t, wp.ModuleOutputs)
	assert.Empty(t, wp.Insights.ContradictionLog)
}

func TestNewWorkpaper_KeepsProvidedValues(t *testing.T) {
	wp := NewWorkpaper("wp_test", CompanyInfo{
		Name:                "测试公司",
		AnalysisPerspective: "债权投资",
		MacroConclusion:     "宏观结论。",
		IndustryConclusion:  "行业结论。",
	})

	assert.Equal(t, "债权投资", wp.Company.AnalysisPerspective)
	assert.Equal(t, "宏观结论。", wp.Company.MacroConclusion)
	assert.Equal(t, "行业结论。", wp.Company.IndustryConclusion)
}

func TestSortReports_NewestFirst(t *testing.T) {
	wp := NewWorkpaper("wp_test", CompanyInfo{Name: "测试公司"})
	wp.Reports = []FinancialReport{
		{PeriodLabel: "2021 Annual", Year: 2021},
		{PeriodLabel: "2023 Q3", Year: 2023, Quarter: 3, PeriodType: "季报"},
		{PeriodLabel: "2023 Annual", Year: 2023},
		{PeriodLabel: "2022 Annual", Year: 2022},
	}

	wp.SortReports()

	assert.Equal(t, "2023 Q3", wp.Reports[0].PeriodLabel)
	assert.Equal(t, "2023 Annual", wp.Reports[1].PeriodLabel)
	assert.Equal(t, "2022 Annual", wp.Reports[2].PeriodLabel)
	assert.Equal(t, "2021 Annual", wp.Reports[3].PeriodLabel)
	assert.Equal(t, "2023 Q3", wp.LatestPeriodLabel())
}

func TestLatestPeriodLabel_NoReports(t *testing.T) {
	wp := NewWorkpaper("wp_test", CompanyInfo{Name: "测试公司"})
	assert.Equal(t, "无可用报告期", wp.LatestPeriodLabel())
}

func TestReportFor(t *testing.T) {
	wp := NewWorkpaper("wp_test", CompanyInfo{Name: "测试公司"})
	wp.Reports = []FinancialReport{
		{PeriodLabel: "2023 Annual", Year: 2023},
		{PeriodLabel: "2022 Annual", Year: 2022},
	}

	report := wp.ReportFor("2022 Annual")
	require.NotNil(t, report)
	assert.Equal(t, 2022, report.Year)

	assert.Nil(t, wp.ReportFor("2019 Annual"))
}

func TestHasCoreStatements(t *testing.T) {
	report := FinancialReport{
		BalanceSheet:    &StatementTable{},
		IncomeStatement: &StatementTable{},
	}
	assert.False(t, report.HasCoreStatements())

	report.CashFlow = &StatementTable{}
	assert.True(t, report.HasCoreStatements())
}

func TestChunksFor(t *testing.T) {
	report := FinancialReport{
		FootnotesChunks: []DocumentChunk{{ChunkID: "footnotes_2023_Annual_0"}},
		MDAChunks:       []DocumentChunk{{ChunkID: "mda_2023_Annual_0"}},
	}

	assert.Len(t, report.ChunksFor(DocTypeFootnotes), 1)
	assert.Len(t, report.ChunksFor(DocTypeMDA), 1)
	assert.Nil(t, report.ChunksFor("supplement"))
}

func TestCompletedModules_FiltersErrors(t *testing.T) {
	wp := NewWorkpaper("wp_test", CompanyInfo{Name: "测试公司"})
	wp.ModuleOutputs["2.1 综合比率分析"] = &ModuleOutput{Status: ModuleStatusCompleted}
	wp.ModuleOutputs["1.2 SWOT 分析"] = &ModuleOutput{Status: ModuleStatusCompleted}
	wp.ModuleOutputs["1.1 波特五力模型"] = &ModuleOutput{Status: ModuleStatusError}

	completed := wp.CompletedModules()
	assert.Equal(t, []string{"1.2 SWOT 分析", "2.1 综合比率分析"}, completed)
}
