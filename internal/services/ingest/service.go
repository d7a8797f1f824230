// Package ingest loads workpapers from seed files on disk. A seed names the
// company and, per reporting period, the statement tables and supplementary
// documents (footnotes, MD&A) to load alongside it.
package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// SeedFileName is the file looked up when scanning the workpapers directory.
const SeedFileName = "workpaper.json"

// seedFile is the on-disk workpaper descriptor.
type seedFile struct {
	Company   models.CompanyInfo `json:"company_info"`
	MacroFile string             `json:"macro_analysis_file,omitempty"`
	Reports   []seedReport       `json:"reports"`
}

// seedReport names the input files for one reporting period. Footnotes and
// MD&A may be inline text instead of file references.
type seedReport struct {
	Year       int    `json:"year"`
	PeriodType string `json:"period_type"` // 年报 or 季报
	Quarter    int    `json:"quarter,omitempty"`

	BalanceSheetFile    string `json:"balance_sheet_file,omitempty"`
	IncomeStatementFile string `json:"income_statement_file,omitempty"`
	CashFlowFile        string `json:"cash_flow_file,omitempty"`

	FootnotesFile string `json:"footnotes_file,omitempty"`
	FootnotesText string `json:"footnotes_text,omitempty"`
	MDAFile       string `json:"mda_file,omitempty"`
	MDAText       string `json:"mda_text,omitempty"`
}

// Service loads workpapers and their referenced documents from disk.
type Service struct {
	cfg       common.IngestConfig
	extractor interfaces.PDFExtractor
	logger    arbor.ILogger
}

// NewService creates an ingest service. The PDF extractor may be nil, in
// which case PDF document references load as an error sentinel.
func NewService(cfg common.IngestConfig, extractor interfaces.PDFExtractor, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Service{
		cfg:       cfg,
		extractor: extractor,
		logger:    logger,
	}
}

// Discover returns the seed files under the configured workpapers directory,
// sorted by path. Each subdirectory containing a workpaper.json is one
// candidate workpaper.
func (s *Service) Discover() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.WorkpapersDir)
	if err != nil {
		return nil, fmt.Errorf("read workpapers directory %s: %w", s.cfg.WorkpapersDir, err)
	}

	var seeds []string
	for _, entry := range entries {
		if entry.IsDir() {
			seed := filepath.Join(s.cfg.WorkpapersDir, entry.Name(), SeedFileName)
			if _, err := os.Stat(seed); err == nil {
				seeds = append(seeds, seed)
			}
			continue
		}
		if entry.Name() == SeedFileName {
			seeds = append(seeds, filepath.Join(s.cfg.WorkpapersDir, entry.Name()))
		}
	}

	sort.Strings(seeds)
	return seeds, nil
}

// LoadWorkpaper reads a seed file and resolves every referenced document
// into an initialized workpaper. Statement parse failures abort the load;
// supplementary document failures degrade to sentinel text, matching how
// the rest of the pipeline treats missing context.
func (s *Service) LoadWorkpaper(ctx context.Context, seedPath string) (*models.Workpaper, error) {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", seedPath, err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", seedPath, err)
	}

	if seed.Company.Name == "" || seed.Company.Industry == "" {
		return nil, fmt.Errorf("seed file %s: company name and industry are required", seedPath)
	}
	if !seed.Company.IsListed {
		seed.Company.StockCode = "N/A"
	}
	if seed.Company.AnalysisDate == "" {
		seed.Company.AnalysisDate = time.Now().Format("2006-01-02 15:04:05")
	}

	baseDir := filepath.Dir(seedPath)

	if seed.MacroFile != "" {
		text, err := s.loadDocumentText(ctx, filepath.Join(baseDir, seed.MacroFile))
		if err != nil {
			seed.Company.MacroConclusion = fmt.Sprintf("处理宏观分析文件 '%s' 时发生意外错误: %v", seed.MacroFile, err)
			s.logger.Error().Err(err).Str("file", seed.MacroFile).Msg("Failed to load macro analysis file")
		} else {
			seed.Company.MacroConclusion = text
			s.logger.Info().Str("file", seed.MacroFile).Msg("Loaded macro analysis file")
		}
	}

	wp := models.NewWorkpaper(common.NewWorkpaperID(), seed.Company)

	for _, sr := range seed.Reports {
		report, err := s.loadReport(ctx, baseDir, sr)
		if err != nil {
			return nil, fmt.Errorf("seed file %s: %w", seedPath, err)
		}
		if !report.HasCoreStatements() {
			s.logger.Warn().
				Str("period", report.PeriodLabel).
				Msg("Reporting period is missing core statements, skipping")
			continue
		}
		wp.Reports = append(wp.Reports, *report)
		s.logger.Info().
			Str("period", report.PeriodLabel).
			Msg("Loaded reporting period")
	}

	if len(wp.Reports) == 0 {
		return nil, fmt.Errorf("seed file %s: no reporting period with complete core statements", seedPath)
	}
	wp.SortReports()

	s.logger.Info().
		Str("workpaper_id", wp.ID).
		Str("company", wp.Company.Name).
		Int("periods", len(wp.Reports)).
		Msg("Workpaper loaded")

	return wp, nil
}

// loadReport resolves one seed report entry into a financial report.
func (s *Service) loadReport(ctx context.Context, baseDir string, sr seedReport) (*models.FinancialReport, error) {
	report := &models.FinancialReport{
		PeriodLabel: PeriodLabel(sr.Year, sr.PeriodType, sr.Quarter),
		Year:        sr.Year,
		PeriodType:  sr.PeriodType,
	}
	if sr.PeriodType == "季报" {
		report.Quarter = sr.Quarter
	}

	var err error
	if sr.BalanceSheetFile != "" {
		if report.BalanceSheet, err = loadStatement(filepath.Join(baseDir, sr.BalanceSheetFile)); err != nil {
			return nil, fmt.Errorf("period %s: load balance sheet: %w", report.PeriodLabel, err)
		}
	}
	if sr.IncomeStatementFile != "" {
		if report.IncomeStatement, err = loadStatement(filepath.Join(baseDir, sr.IncomeStatementFile)); err != nil {
			return nil, fmt.Errorf("period %s: load income statement: %w", report.PeriodLabel, err)
		}
	}
	if sr.CashFlowFile != "" {
		if report.CashFlow, err = loadStatement(filepath.Join(baseDir, sr.CashFlowFile)); err != nil {
			return nil, fmt.Errorf("period %s: load cash flow statement: %w", report.PeriodLabel, err)
		}
	}

	report.FootnotesText = s.resolveDocument(ctx, baseDir, sr.FootnotesText, sr.FootnotesFile)
	report.MDAText = s.resolveDocument(ctx, baseDir, sr.MDAText, sr.MDAFile)

	return report, nil
}

// resolveDocument prefers inline text over a file reference. File load
// failures are stored as sentinel text on the report rather than failing
// the workpaper.
func (s *Service) resolveDocument(ctx context.Context, baseDir, inline, file string) string {
	if inline != "" {
		return inline
	}
	if file == "" {
		return ""
	}

	text, err := s.loadDocumentText(ctx, filepath.Join(baseDir, file))
	if err != nil {
		sentinel := fmt.Sprintf("Error reading %s: %v", filepath.Base(file), err)
		s.logger.Error().Err(err).Str("file", file).Msg("Failed to load document file")
		return sentinel
	}
	return text
}

// loadDocumentText reads a text-bearing document. Markdown and plain text
// load directly; PDFs go through the extractor. Extraction problems are
// reported as sentinel text so downstream prompts can surface them, with
// the returned error reserved for unreadable plain-text files.
func (s *Service) loadDocumentText(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".pdf":
		if s.extractor == nil {
			return fmt.Sprintf("Error reading PDF %s: no PDF extractor configured", name), nil
		}
		text, err := s.extractPDFText(ctx, path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("PDF extraction failed")
			return fmt.Sprintf("Error reading PDF %s: %v", name, err), nil
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Sprintf("PDF (%s) - No text extracted or empty.", name), nil
		}
		return text, nil
	default:
		return fmt.Sprintf("Unsupported file type: %s", name), nil
	}
}

// extractPDFText pulls text from a PDF, limited to the configured page
// count when one is set.
func (s *Service) extractPDFText(ctx context.Context, path string) (string, error) {
	if s.cfg.MaxPDFPages <= 0 {
		return s.extractor.ExtractText(ctx, path)
	}

	pages, err := s.extractor.ExtractPages(ctx, path, s.cfg.MaxPDFPages)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, page := range pages {
		if text := strings.TrimSpace(page.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// loadStatement parses a statement table from a CSV or Excel file. The
// first row is the header.
func loadStatement(path string) (*models.StatementTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSVStatement(path)
	case ".xlsx":
		return loadExcelStatement(path)
	default:
		return nil, fmt.Errorf("unsupported statement file type %s", filepath.Ext(path))
	}
}

func loadCSVStatement(path string) (*models.StatementTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}

	return tableFromRows(rows)
}

func loadExcelStatement(path string) (*models.StatementTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	return tableFromRows(rows)
}

func tableFromRows(rows [][]string) (*models.StatementTable, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("statement file is empty")
	}
	return &models.StatementTable{
		Columns: rows[0],
		Rows:    rows[1:],
	}, nil
}

// PeriodLabel renders the canonical period label, e.g. "2023 Annual" for an
// annual report or "2024 Q3" for a quarterly one.
func PeriodLabel(year int, periodType string, quarter int) string {
	if periodType == "季报" && quarter >= 1 {
		return fmt.Sprintf("%d Q%d", year, quarter)
	}
	return fmt.Sprintf("%d Annual", year)
}
