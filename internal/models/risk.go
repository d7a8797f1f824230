package models

// Rating levels for risk impact and opportunity benefit.
const (
	RatingHigh   = "高"
	RatingMedium = "中"
	RatingLow    = "低"
)

// RiskItem is one consolidated key risk, ranked most important first.
type RiskItem struct {
	ID                 string   `json:"id"` // e.g. "R001"
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	SourceModules      []string `json:"source_modules"`
	PotentialImpact    string   `json:"potential_impact"` // 高, 中, 低
	MitigatingFactors  string   `json:"mitigating_factors_observed,omitempty"`
	InvestigationNotes string   `json:"notes_for_further_investigation,omitempty"`
}

// OpportunityItem is one consolidated key opportunity, ranked most important
// first.
type OpportunityItem struct {
	ID                 string   `json:"id"` // e.g. "O001"
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	SourceModules      []string `json:"source_modules"`
	PotentialBenefit   string   `json:"potential_benefit"` // 高, 中, 低
	ActionabilityNotes string   `json:"actionability_notes,omitempty"`
}

// RiskConsolidation is the JSON contract of the final risk and opportunity
// consolidation call. Missing keys decode as empty lists.
type RiskConsolidation struct {
	KeyRisks         []RiskItem        `json:"key_risks"`
	KeyOpportunities []OpportunityItem `json:"key_opportunities"`
}
