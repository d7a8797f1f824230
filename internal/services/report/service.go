// Package report renders the final HTML analysis report from a finished
// workpaper. The report is self-contained (inline CSS, no assets) so it can
// be archived or mailed as a single file.
package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

//go:embed report.tmpl
var reportTemplate string

// ReportFileName is the file written into the run's output directory.
const ReportFileName = "analysis_report.html"

const (
	timestampLayout = "2006-01-02 15:04:05"

	// chunkOverviewMaxRunes caps the per-chunk overview shown in the
	// workpaper snapshot section.
	chunkOverviewMaxRunes = 200
)

// Service builds and writes analysis reports.
type Service struct {
	cfg     common.ReportConfig
	catalog *catalog.Catalog
	tmpl    *template.Template
	md      goldmark.Markdown
	logger  arbor.ILogger
}

// NewService parses the embedded report template and prepares the markdown
// renderer used for module analysis bodies.
func NewService(cfg common.ReportConfig, cat *catalog.Catalog, logger arbor.ILogger) (*Service, error) {
	if logger == nil {
		logger = arbor.NewLogger()
	}

	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			ghtml.WithHardWraps(),
			ghtml.WithXHTML(),
		),
	)

	return &Service{
		cfg:     cfg,
		catalog: cat,
		tmpl:    tmpl,
		md:      md,
		logger:  logger,
	}, nil
}

// Generate renders the report and writes it beneath the output directory,
// one subdirectory per run. It returns the path of the written file.
func (s *Service) Generate(wp *models.Workpaper, runID string) (string, error) {
	content, err := s.Render(wp)
	if err != nil {
		return "", err
	}

	dir := s.cfg.OutputDir
	if runID != "" {
		dir = filepath.Join(dir, runID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, ReportFileName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}

	s.logger.Info().
		Str("path", path).
		Str("company", wp.Company.Name).
		Msg("Analysis report saved")
	return path, nil
}

// Render produces the report HTML without writing it anywhere.
func (s *Service) Render(wp *models.Workpaper) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, s.buildData(wp)); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// reportData is the precomputed view model the template renders. All rich
// text is formatted here so the template stays structural.
type reportData struct {
	Company      models.CompanyInfo
	StockCode    string
	AnalysisDate string

	OverallSummary     template.HTML
	IteratedConclusion template.HTML
	MacroConclusion    template.HTML
	IndustryConclusion template.HTML

	Risks          []riskView
	Opportunities  []opportunityView
	Contradictions []contradictionView
	Sections       []sectionView

	CompanyJSON template.HTML
	Periods     []periodView
}

type riskView struct {
	Index              int
	ID                 string
	Description        template.HTML
	Category           string
	PotentialImpact    string
	SourceModules      string
	MitigatingFactors  template.HTML
	InvestigationNotes template.HTML
}

type opportunityView struct {
	Index              int
	ID                 string
	Description        template.HTML
	Category           string
	PotentialBenefit   string
	SourceModules      string
	ActionabilityNotes template.HTML
}

type contradictionView struct {
	Index          int
	Timestamp      string
	ModuleName     string
	Confidence     string
	Description    template.HTML
	FindingSnippet string
	PriorSnippet   string
}

type sectionView struct {
	Title   string
	Modules []moduleView
}

type moduleView struct {
	Name        string
	Status      string
	Timestamp   string
	Confidence  string
	Analysis    template.HTML
	Abbreviated template.HTML
	Prompt      string
}

type periodView struct {
	Label          string
	Summary        string
	FootnoteChunks []chunkView
	MDAChunks      []chunkView
}

type chunkView struct {
	ID       string
	Overview template.HTML
}

func (s *Service) buildData(wp *models.Workpaper) reportData {
	data := reportData{
		Company:            wp.Company,
		StockCode:          valueOr(wp.Company.StockCode, "N/A"),
		AnalysisDate:       valueOr(wp.Metadata.AnalysisTimestamp, "N/A"),
		OverallSummary:     formatText(wp.Insights.OverallSummary, "无摘要信息。"),
		IteratedConclusion: formatText(wp.Insights.OverallConclusion, "无迭代结论。"),
		MacroConclusion:    formatText(wp.Company.MacroConclusion, "未提供"),
		IndustryConclusion: formatText(wp.Company.IndustryConclusion, "未生成"),
		CompanyJSON:        prettyJSON(wp.Company),
		Sections:           s.sectionsForDisplay(wp),
	}

	for i, risk := range wp.Insights.KeyRisks {
		data.Risks = append(data.Risks, riskView{
			Index:              i + 1,
			ID:                 valueOr(risk.ID, "N/A"),
			Description:        formatText(risk.Description, "N/A"),
			Category:           valueOr(risk.Category, "N/A"),
			PotentialImpact:    valueOr(risk.PotentialImpact, "N/A"),
			SourceModules:      strings.Join(risk.SourceModules, ", "),
			MitigatingFactors:  optionalText(risk.MitigatingFactors),
			InvestigationNotes: optionalText(risk.InvestigationNotes),
		})
	}

	for i, opp := range wp.Insights.KeyOpportunities {
		data.Opportunities = append(data.Opportunities, opportunityView{
			Index:              i + 1,
			ID:                 valueOr(opp.ID, "N/A"),
			Description:        formatText(opp.Description, "N/A"),
			Category:           valueOr(opp.Category, "N/A"),
			PotentialBenefit:   valueOr(opp.PotentialBenefit, "N/A"),
			SourceModules:      strings.Join(opp.SourceModules, ", "),
			ActionabilityNotes: optionalText(opp.ActionabilityNotes),
		})
	}

	for i, entry := range wp.Insights.ContradictionLog {
		data.Contradictions = append(data.Contradictions, contradictionView{
			Index:          i + 1,
			Timestamp:      formatTimestamp(entry.Timestamp),
			ModuleName:     entry.ModuleName,
			Confidence:     entry.ModuleConfidence,
			Description:    formatText(entry.Description, "N/A"),
			FindingSnippet: entry.FindingSnippet,
			PriorSnippet:   entry.PriorConclusionSnippet,
		})
	}

	for _, rep := range wp.Reports {
		data.Periods = append(data.Periods, periodView{
			Label:          rep.PeriodLabel,
			Summary:        periodSummary(rep),
			FootnoteChunks: chunkViews(rep.FootnotesChunks),
			MDAChunks:      chunkViews(rep.MDAChunks),
		})
	}

	return data
}

// sectionsForDisplay lists the framework sections shown in the detailed
// module part. When a planner selected modules, only sections that contain
// planned modules appear; otherwise the full framework renders and modules
// without stored output are simply absent under their heading.
func (s *Service) sectionsForDisplay(wp *models.Workpaper) []sectionView {
	planned := make(map[string]struct{}, len(wp.Metadata.PlannedModules))
	for _, name := range wp.Metadata.PlannedModules {
		planned[name] = struct{}{}
	}

	var sections []sectionView
	for _, section := range s.catalog.Sections() {
		view := sectionView{Title: section.Title}
		include := len(planned) == 0
		for _, module := range section.Modules {
			if len(planned) > 0 {
				if _, ok := planned[module.Name]; !ok {
					continue
				}
				include = true
			}
			if output := wp.ModuleOutputs[module.Name]; output != nil {
				view.Modules = append(view.Modules, s.moduleView(module.Name, output))
			}
		}
		if include {
			sections = append(sections, view)
		}
	}
	return sections
}

func (s *Service) moduleView(name string, output *models.ModuleOutput) moduleView {
	timestamp := "N/A"
	if !output.Timestamp.IsZero() {
		timestamp = output.Timestamp.Format(timestampLayout)
	}
	return moduleView{
		Name:        name,
		Status:      valueOr(string(output.Status), "N/A"),
		Timestamp:   timestamp,
		Confidence:  valueOr(output.ConfidenceScore, "N/A"),
		Analysis:    s.renderMarkdown(output.TextSummary),
		Abbreviated: optionalText(output.AbbreviatedSummary),
		Prompt:      output.PromptUsed,
	}
}

// renderMarkdown converts a module's markdown analysis body to HTML,
// falling back to escaped preformatted text when conversion fails.
func (s *Service) renderMarkdown(markdown string) template.HTML {
	if markdown == "" {
		return formatText("", "无文本摘要。")
	}
	markdown = stripOuterFence(markdown)

	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		s.logger.Warn().Err(err).Msg("Markdown conversion failed, rendering as preformatted text")
		return template.HTML("<pre>" + template.HTMLEscapeString(markdown) + "</pre>")
	}
	return template.HTML(buf.String())
}

// stripOuterFence removes a markdown code fence wrapping the whole text.
// Models often fence a complete answer even when asked for plain markdown.
func stripOuterFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	nl := strings.Index(trimmed, "\n")
	if nl < 0 {
		return s
	}
	body := strings.TrimRight(trimmed[nl+1:], " \t\r\n")
	if !strings.HasSuffix(body, "```") {
		return s
	}
	return strings.TrimRight(strings.TrimSuffix(body, "```"), "\r\n")
}

func periodSummary(rep models.FinancialReport) string {
	var docs []string
	if rep.BalanceSheet != nil {
		docs = append(docs, "资产负债表")
	}
	if rep.IncomeStatement != nil {
		docs = append(docs, "利润表")
	}
	if rep.CashFlow != nil {
		docs = append(docs, "现金流量表")
	}
	if n := len(rep.FootnotesChunks); n > 0 {
		docs = append(docs, fmt.Sprintf("附注 (共 %d 块)", n))
	}
	if n := len(rep.MDAChunks); n > 0 {
		docs = append(docs, fmt.Sprintf("MD&A (共 %d 块)", n))
	}
	if len(docs) == 0 {
		return "无核心文件或未处理"
	}
	return strings.Join(docs, ", ")
}

func chunkViews(chunks []models.DocumentChunk) []chunkView {
	var views []chunkView
	for _, chunk := range chunks {
		overview := common.TruncateRunes(chunk.Overview, chunkOverviewMaxRunes)
		views = append(views, chunkView{
			ID:       valueOr(chunk.ChunkID, "N/A"),
			Overview: formatText(overview, "无内容。") + "...",
		})
	}
	return views
}

// formatText escapes content for HTML and turns newlines into <br> tags.
// Empty content renders the fallback text instead.
func formatText(content, fallback string) template.HTML {
	if content == "" {
		content = fallback
	}
	escaped := template.HTMLEscapeString(content)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}

// optionalText is formatText for fields whose block is omitted when empty.
func optionalText(content string) template.HTML {
	if content == "" {
		return ""
	}
	return formatText(content, "")
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(timestampLayout)
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

var preEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// prettyJSON renders a value as indented JSON for display inside a <pre>
// block. Only markup-significant characters are escaped so quotes stay
// readable in the page source.
func prettyJSON(v interface{}) template.HTML {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return template.HTML(template.HTMLEscapeString(fmt.Sprintf("无法序列化: %v", err)))
	}
	return template.HTML(preEscaper.Replace(strings.TrimRight(buf.String(), "\n")))
}
