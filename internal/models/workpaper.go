package models

import (
	"sort"
	"time"
)

// Default texts seeded into a fresh workpaper. They are replaced as the
// corresponding inputs are provided or generated during a run.
const (
	DefaultMacroConclusion    = "用户未提供宏观经济分析结论或未成功加载。"
	DefaultIndustryConclusion = "行业分析结论（基于波特五力模型）尚未生成或不可用。"
	DefaultPerspective        = "股权投资"
)

// CompanyInfo holds the subject company details and the two upstream
// conclusions (macro, industry) that frame every module analysis.
type CompanyInfo struct {
	Name                string `json:"name"`
	IsListed            bool   `json:"is_listed"`
	StockCode           string `json:"stock_code,omitempty"`
	Industry            string `json:"industry"`
	AnalysisDate        string `json:"analysis_date,omitempty"`
	AnalysisPerspective string `json:"analysis_perspective"`
	PlannerEnabled      bool   `json:"planner_enabled"`
	MacroConclusion     string `json:"macro_analysis_conclusion_text"`
	IndustryConclusion  string `json:"industry_analysis_conclusion_text"`
}

// StatementTable is a tabular core statement (balance sheet, income
// statement or cash flow statement) as parsed from the source file.
type StatementTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// FinancialReport bundles everything ingested for one reporting period.
type FinancialReport struct {
	PeriodLabel string `json:"period_label"` // e.g. "2023 Annual", "2024 Q3"
	Year        int    `json:"year"`
	PeriodType  string `json:"period_type"` // 年报 or 季报
	Quarter     int    `json:"quarter,omitempty"`

	BalanceSheet    *StatementTable `json:"balance_sheet_data,omitempty"`
	IncomeStatement *StatementTable `json:"income_statement_data,omitempty"`
	CashFlow        *StatementTable `json:"cash_flow_statement_data,omitempty"`

	FootnotesText   string          `json:"footnotes_text_original,omitempty"`
	MDAText         string          `json:"mda_text_original,omitempty"`
	FootnotesChunks []DocumentChunk `json:"footnotes_processed_chunks,omitempty"`
	MDAChunks       []DocumentChunk `json:"mda_processed_chunks,omitempty"`
}

// HasCoreStatements reports whether all three core statements are present.
// Ingestion skips periods missing any of the three.
func (r *FinancialReport) HasCoreStatements() bool {
	return r.BalanceSheet != nil && r.IncomeStatement != nil && r.CashFlow != nil
}

// ChunksFor returns the preprocessed chunks for the given document type.
func (r *FinancialReport) ChunksFor(docType string) []DocumentChunk {
	switch docType {
	case DocTypeFootnotes:
		return r.FootnotesChunks
	case DocTypeMDA:
		return r.MDAChunks
	}
	return nil
}

// IntegratedInsights is the accumulating conclusion layer of the workpaper.
type IntegratedInsights struct {
	OverallSummary    string               `json:"overall_summary,omitempty"`
	KeyRisks          []RiskItem           `json:"key_risks,omitempty"`
	KeyOpportunities  []OpportunityItem    `json:"key_opportunities,omitempty"`
	OverallConclusion string               `json:"current_overall_financial_conclusion"`
	ContradictionLog  []ContradictionEntry `json:"contradiction_logbook,omitempty"`
}

// RunMetadata records planner outputs and versioning for one analysis run.
type RunMetadata struct {
	AnalysisTimestamp string                      `json:"analysis_timestamp,omitempty"`
	ModelUsed         string                      `json:"llm_model_used,omitempty"`
	PlannedModules    []string                    `json:"planned_modules,omitempty"`
	PlanningReasoning string                      `json:"planning_reasoning,omitempty"`
	NeedsByModule     map[string]InformationNeeds `json:"information_needs_by_module,omitempty"`
}

// Workpaper is the core working paper: all base data, per-module outputs and
// integrated insights for one company analysis. It is the single state object
// threaded through the pipeline and persisted to storage between stages.
type Workpaper struct {
	ID            string                   `json:"id" badgerhold:"key"` // wp_{uuid}
	Company       CompanyInfo              `json:"company_info"`
	Reports       []FinancialReport        `json:"financial_reports"`
	ModuleOutputs map[string]*ModuleOutput `json:"analytical_module_outputs"`
	Insights      IntegratedInsights       `json:"integrated_insights"`
	Metadata      RunMetadata              `json:"metadata"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// NewWorkpaper creates an initialized workpaper for the given company.
func NewWorkpaper(id string, company CompanyInfo) *Workpaper {
	if company.AnalysisPerspective == "" {
		company.AnalysisPerspective = DefaultPerspective
	}
	if company.MacroConclusion == "" {
		company.MacroConclusion = DefaultMacroConclusion
	}
	if company.IndustryConclusion == "" {
		company.IndustryConclusion = DefaultIndustryConclusion
	}
	now := time.Now().UTC()
	return &Workpaper{
		ID:            id,
		Company:       company,
		ModuleOutputs: make(map[string]*ModuleOutput),
		Insights: IntegratedInsights{
			OverallConclusion: InitialOverallConclusion,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SortReports orders reports newest first by year, then quarter. Annual
// reports sort after the quarters of the same year, matching period recency.
func (w *Workpaper) SortReports() {
	sort.SliceStable(w.Reports, func(i, j int) bool {
		a, b := w.Reports[i], w.Reports[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.Quarter > b.Quarter
	})
}

// LatestPeriodLabel returns the label of the most recent report, or the
// placeholder text when no reports are loaded. Reports are kept sorted
// newest first.
func (w *Workpaper) LatestPeriodLabel() string {
	if len(w.Reports) == 0 {
		return "无可用报告期"
	}
	return w.Reports[0].PeriodLabel
}

// PeriodLabels returns all report period labels in stored order.
func (w *Workpaper) PeriodLabels() []string {
	labels := make([]string, 0, len(w.Reports))
	for _, r := range w.Reports {
		labels = append(labels, r.PeriodLabel)
	}
	return labels
}

// ReportFor returns the report for the given period label, or nil.
func (w *Workpaper) ReportFor(periodLabel string) *FinancialReport {
	for i := range w.Reports {
		if w.Reports[i].PeriodLabel == periodLabel {
			return &w.Reports[i]
		}
	}
	return nil
}

// CompletedModules returns the names of modules with a Completed output.
func (w *Workpaper) CompletedModules() []string {
	names := make([]string, 0, len(w.ModuleOutputs))
	for name, out := range w.ModuleOutputs {
		if out != nil && out.Status == ModuleStatusCompleted {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
