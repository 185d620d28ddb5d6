package model

// AnalysisKind tags which variant of structured analysis is populated.
type AnalysisKind string

const (
	// AnalysisGrouped carries per-group summaries plus a global summary.
	AnalysisGrouped AnalysisKind = "grouped"
	// AnalysisLegacy carries flat section lists without grouping.
	AnalysisLegacy AnalysisKind = "legacy"
	// AnalysisRaw means only the raw text survived decoding.
	AnalysisRaw AnalysisKind = "raw"
	// AnalysisNone means nothing usable was decoded; callers must degrade
	// to a "no AI summary available" display state, never error.
	AnalysisNone AnalysisKind = "none"
)

// StructuredAnalysis is a tagged union decoded once at the service
// boundary. Exactly one of Grouped/Legacy is populated, selected by Kind.
type StructuredAnalysis struct {
	Kind    AnalysisKind     `json:"kind"`
	Grouped *GroupedAnalysis `json:"grouped,omitempty"`
	Legacy  *LegacyAnalysis  `json:"legacy,omitempty"`
}

// GroupedAnalysis is the multi-thread grouped output shape.
type GroupedAnalysis struct {
	Groups        []AnalysisGroup `json:"groups"`
	GlobalSummary GlobalSummary   `json:"global_summary"`
}

// AnalysisGroup summarizes one topically related set of threads.
type AnalysisGroup struct {
	Title           string   `json:"title"`
	ThreadSubjects  []string `json:"thread_subjects"`
	EmailSummaries  []string `json:"email_summaries"`
	MeetingAgenda   []string `json:"meeting_agenda"`
	MeetingDateTime []string `json:"meeting_date_time"`
	FinalConclusion string   `json:"final_conclusion"`
}

// GlobalSummary spans all groups of a grouped analysis.
type GlobalSummary struct {
	FinalConclusion string `json:"final_conclusion"`
}

// LegacyAnalysis is the flat single/combined output shape.
type LegacyAnalysis struct {
	ThreadSubjects  []string `json:"thread_subjects"`
	EmailSummaries  []string `json:"email_summaries"`
	MeetingAgenda   []string `json:"meeting_agenda"`
	MeetingDateTime []string `json:"meeting_date_time"`
	FinalConclusion string   `json:"final_conclusion"`
}

// AnalysisResult is the cached output of the analysis stage.
type AnalysisResult struct {
	Structured    StructuredAnalysis `json:"structured_analysis"`
	Raw           string             `json:"raw_analysis"`
	ClientName    string             `json:"client_name"`
	ProductName   string             `json:"product_name"`
	ProductDomain string             `json:"product_domain"`
	Relevancy     *RelevancyAnalysis `json:"relevancy_analysis,omitempty"`
}
