package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/models"
)

// Sentinels returned by FormatCoreStatements instead of a JSON payload.
const (
	StatementsNone       = "无核心三表数据可供分析。"
	StatementsMarshalErr = "核心三表数据序列化为JSON时出错。"
)

// statementEntry is the prompt-facing shape of one statement table.
type statementEntry struct {
	ReportPeriod  string     `json:"report_period"`
	StatementName string     `json:"statement_name"`
	Columns       []string   `json:"columns"`
	Data          [][]string `json:"data"`
	Notes         string     `json:"notes"`
}

// FormatCoreStatements renders every period's balance sheet, income statement
// and cash flow statement into one compact JSON string for prompt embedding.
// Tables longer than maxRows are cut, with a note recording the cut. Missing
// or empty statements are skipped with a warning.
func FormatCoreStatements(reports []models.FinancialReport, maxRows int, logger arbor.ILogger) string {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	if maxRows <= 0 {
		maxRows = 100
	}

	type namedStatement struct {
		table *models.StatementTable
		name  string
	}

	var entries []statementEntry
	for i := range reports {
		report := &reports[i]
		for _, stmt := range []namedStatement{
			{report.BalanceSheet, "资产负债表 (Balance Sheet)"},
			{report.IncomeStatement, "利润表 (Income Statement)"},
			{report.CashFlow, "现金流量表 (Cash Flow Statement)"},
		} {
			if stmt.table == nil {
				logger.Warn().
					Str("period", report.PeriodLabel).
					Str("statement", stmt.name).
					Msg("Statement not found, skipped in prompt data")
				continue
			}
			if len(stmt.table.Rows) == 0 {
				logger.Warn().
					Str("period", report.PeriodLabel).
					Str("statement", stmt.name).
					Msg("Statement is empty, skipped in prompt data")
				continue
			}

			rows := stmt.table.Rows
			notes := ""
			if len(rows) > maxRows {
				rows = rows[:maxRows]
				notes = fmt.Sprintf("注意: 表格数据较长，此处仅包含前 %d 行。", maxRows)
			}

			entries = append(entries, statementEntry{
				ReportPeriod:  report.PeriodLabel,
				StatementName: stmt.name,
				Columns:       stmt.table.Columns,
				Data:          rows,
				Notes:         notes,
			})
		}
	}

	if len(entries) == 0 {
		return StatementsNone
	}

	data, err := json.Marshal(entries)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to serialize core statement data")
		return StatementsMarshalErr
	}
	return string(data)
}
