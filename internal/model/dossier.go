package model

import "time"

// DossierKind names the three independently generated dossier types.
type DossierKind string

const (
	DossierSummary DossierKind = "summary"
	DossierMeeting DossierKind = "meeting"
	DossierClient  DossierKind = "client"
)

// Valid reports whether k is a known dossier kind.
func (k DossierKind) Valid() bool {
	switch k {
	case DossierSummary, DossierMeeting, DossierClient:
		return true
	}
	return false
}

// Dossier is a generated business artifact. Each kind is cached
// independently; generating one never invalidates another.
type Dossier struct {
	ID            string      `json:"id,omitempty"`
	Kind          DossierKind `json:"kind"`
	ClientName    string      `json:"client_name,omitempty"`
	ProductName   string      `json:"product_name,omitempty"`
	ProductDomain string      `json:"product_domain,omitempty"`
	Content       string      `json:"content"`
	ThreadIDs     []string    `json:"thread_ids,omitempty"`
	GeneratedAt   time.Time   `json:"generated_at"`
}
