package models

// DocumentExtraction is one planned retrieval of content from a preprocessed
// company document. All three fields are required; entries missing any of
// them are dropped during plan validation.
type DocumentExtraction struct {
	DocumentType    string `json:"document_type"` // footnotes or mda
	PeriodLabel     string `json:"period_label"`
	AnalysisContext string `json:"analysis_context"`
}

// InformationNeeds is the planned external information for one analysis
// module: web search queries plus document content extractions. Both lists
// may be empty when the module needs no external input.
type InformationNeeds struct {
	SearchQueries       []string             `json:"search_queries"`
	DocumentExtractions []DocumentExtraction `json:"document_extractions"`
}

// EmptyNeeds is the defaulted plan used when the planner produced nothing
// usable for a module.
func EmptyNeeds() InformationNeeds {
	return InformationNeeds{
		SearchQueries:       []string{},
		DocumentExtractions: []DocumentExtraction{},
	}
}

// ExtractionGroup collects the analysis contexts of all planned extractions
// that target the same document and period, so one chunk selection and one
// compression serve the whole group.
type ExtractionGroup struct {
	DocumentType string
	PeriodLabel  string
	Contexts     []string
}

// GroupExtractions buckets extractions by (document type, period label),
// preserving first-seen group order and per-group context order.
func GroupExtractions(extractions []DocumentExtraction) []ExtractionGroup {
	type key struct{ docType, period string }
	index := make(map[key]int)
	groups := make([]ExtractionGroup, 0, len(extractions))
	for _, ex := range extractions {
		k := key{ex.DocumentType, ex.PeriodLabel}
		if i, ok := index[k]; ok {
			groups[i].Contexts = append(groups[i].Contexts, ex.AnalysisContext)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, ExtractionGroup{
			DocumentType: ex.DocumentType,
			PeriodLabel:  ex.PeriodLabel,
			Contexts:     []string{ex.AnalysisContext},
		})
	}
	return groups
}

// RoutePlan is the planner's ordered module selection with its rationale.
type RoutePlan struct {
	PlannedModules    []string `json:"planned_modules"`
	PlanningReasoning string   `json:"planning_reasoning"`
}
