package models

import "time"

// InitialOverallConclusion seeds the iterated conclusion before any module
// has been integrated.
const InitialOverallConclusion = "分析尚未开始，暂无总体结论。"

// ContradictionEntry records one detected conflict between a freshly
// completed module finding and the overall conclusion as it stood before the
// integration. Snippets are truncated at capture time; the log is append-only.
type ContradictionEntry struct {
	Timestamp              time.Time `json:"timestamp"`
	ModuleName             string    `json:"module_name"`
	ModuleConfidence       string    `json:"module_confidence"`
	Description            string    `json:"contradiction_description"`
	FindingSnippet         string    `json:"module_finding_snippet"`
	PriorConclusionSnippet string    `json:"previous_overall_conclusion_snippet"`
}

// ConclusionUpdate is the JSON contract of one conclusion integration call.
type ConclusionUpdate struct {
	UpdatedOverallConclusion string `json:"updated_overall_conclusion"`
	ContradictionFound       bool   `json:"contradiction_found"`
	ContradictionDescription string `json:"contradiction_description"`
}

// noContradictionTexts are descriptions that mean "no conflict" and must not
// produce a logbook entry even when contradiction_found is true.
var noContradictionTexts = map[string]struct{}{
	"无明显矛盾。": {},
	"无明显矛盾":  {},
	"":       {},
	"无矛盾":    {},
	"未发现矛盾":  {},
}

// IsNoContradiction reports whether the description is one of the fixed
// no-conflict phrasings.
func IsNoContradiction(description string) bool {
	_, ok := noContradictionTexts[description]
	return ok
}
