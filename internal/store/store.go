// Package store persists generated dossiers so past research survives
// process restarts. Two drivers are provided: SQLite for single-user
// local use and PostgreSQL for shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// DossierFilter specifies criteria for listing stored dossiers.
type DossierFilter struct {
	Kind       model.DossierKind `json:"kind,omitempty"`
	ClientName string            `json:"client_name,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for dossier history.
type Store interface {
	// SaveDossier upserts a dossier by ID, assigning one if empty.
	SaveDossier(ctx context.Context, d *model.Dossier) error
	// GetDossier returns the dossier with the given ID, or nil if absent.
	GetDossier(ctx context.Context, id string) (*model.Dossier, error)
	// ListDossiers returns dossiers matching the filter, newest first.
	ListDossiers(ctx context.Context, filter DossierFilter) ([]model.Dossier, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs the store selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
