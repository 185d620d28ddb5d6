package pipeline

import (
	"context"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// SearchService finds Gmail threads matching the search criteria.
type SearchService interface {
	SearchThreads(ctx context.Context, criteria model.SearchCriteria) ([]model.Thread, error)
}

// MetadataService fetches and consolidates metadata for selected threads.
type MetadataService interface {
	ProcessThreads(ctx context.Context, threadIDs []string) (*model.ProcessedMetadata, error)
}

// AnalysisService produces the structured analysis over processed metadata.
type AnalysisService interface {
	Analyze(ctx context.Context, meta *model.ProcessedMetadata) (*model.AnalysisResult, error)
}

// DossierService generates the three dossier kinds from a cached analysis.
type DossierService interface {
	MeetingFlow(ctx context.Context, analysis *model.AnalysisResult, meta *model.ProcessedMetadata) (*model.Dossier, error)
	PastSummary(ctx context.Context, analysis *model.AnalysisResult, meta *model.ProcessedMetadata) (*model.Dossier, error)
	ClientDossier(ctx context.Context, clientName, clientDomain, clientContext string) (*model.Dossier, error)
}

// AuthStatus is the session check result consumed by the gate.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// AuthService answers whether the current session is authenticated.
type AuthService interface {
	Status(ctx context.Context) (AuthStatus, error)
}
