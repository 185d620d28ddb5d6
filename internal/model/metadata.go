package model

import "time"

// Participant is a consolidated person seen across thread headers.
type Participant struct {
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

// ThreadMetadata holds per-thread metadata extracted during processing.
type ThreadMetadata struct {
	ThreadID        string                 `json:"thread_id"`
	Subject         string                 `json:"subject"`
	Sender          string                 `json:"sender"`
	MessageCount    int                    `json:"message_count"`
	Participants    map[string]Participant `json:"participants"`
	FirstEmailDate  *time.Time             `json:"first_email_date,omitempty"`
	LastEmailDate   *time.Time             `json:"last_email_date,omitempty"`
	ContentSnippets []string               `json:"content_snippets,omitempty"`
	// Summary is AI-authored when present; display layers must synthesize
	// a fallback from the metadata above when it is empty.
	Summary string `json:"summary,omitempty"`
}

// CombinedMetadata consolidates metadata across all processed threads.
type CombinedMetadata struct {
	ThreadCount    int                    `json:"thread_count"`
	TotalMessages  int                    `json:"total_messages"`
	Participants   map[string]Participant `json:"participants"`
	FirstEmailDate *time.Time             `json:"first_email_date,omitempty"`
	LastEmailDate  *time.Time             `json:"last_email_date,omitempty"`
	DateRangeDays  int                    `json:"date_range_days"`
}

// ProcessedMetadata is the result of a successful process call.
// Invalidated whenever the selection set changes or a new search runs.
type ProcessedMetadata struct {
	ProcessedThreadIDs   []string           `json:"processed_thread_ids"`
	Combined             CombinedMetadata   `json:"combined_metadata"`
	ThreadMetadatas      []ThreadMetadata   `json:"thread_metadatas"`
	AvailableClientNames []string           `json:"available_client_names"`
	Relevancy            *RelevancyAnalysis `json:"relevancy_analysis,omitempty"`
	CombinedContent      string             `json:"-"`
}

// RelevancyAnalysis partitions processed threads into topically related
// groups and leftovers that fit no group.
type RelevancyAnalysis struct {
	RelevantGroups    [][]ThreadMetadata `json:"relevant_groups"`
	IrrelevantThreads []ThreadMetadata   `json:"irrelevant_threads"`
	Insights          string             `json:"relevancy_insights,omitempty"`
}
