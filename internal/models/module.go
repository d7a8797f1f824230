package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// ModuleStatus is the terminal state of one module execution.
type ModuleStatus string

const (
	ModuleStatusCompleted ModuleStatus = "Completed"
	ModuleStatusError     ModuleStatus = "Error"
)

// Confidence placeholders used when the model response could not supply one.
const (
	ConfidenceUnparsed    = "N/A (JSON解析失败)"
	ConfidenceMissing     = "N/A (JSON中未提供)"
	ConfidenceNoResponse  = "N/A (无响应或错误)"
	ConfidenceExecFailure = "N/A (执行错误)"
)

// ModuleOutput is the stored result of one analysis module execution.
// AbbreviatedSummary is filled lazily the first time a downstream module
// needs a condensed version of this output, then reused unchanged.
type ModuleOutput struct {
	TextSummary        string       `json:"text_summary"`
	ConfidenceScore    string       `json:"confidence_score"`
	Status             ModuleStatus `json:"status"`
	Timestamp          time.Time    `json:"timestamp"`
	PromptUsed         string       `json:"prompt_used,omitempty"`
	AbbreviatedSummary string       `json:"abbreviated_summary,omitempty"`
}

// BestSummary prefers the abbreviated summary when one has been generated.
func (o *ModuleOutput) BestSummary() string {
	if o.AbbreviatedSummary != "" {
		return o.AbbreviatedSummary
	}
	return o.TextSummary
}

// ModuleResult is the JSON contract every analysis module prompt asks the
// model to return. Responses that fail to parse into this shape fall back to
// the raw text with an unparsed confidence marker.
type ModuleResult struct {
	AnalysisText    string `json:"analysis_text" validate:"required"`
	ConfidenceScore string `json:"confidence_score"`
}

// Validate checks the result against its schema constraints.
func (r *ModuleResult) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ToMap converts the result to a generic map for storage or logging.
func (r *ModuleResult) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
