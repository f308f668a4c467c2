package storage

import (
	"fmt"

	"github.com/toringerhartCAMM/QC/internal/config"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
)

// BackendType represents different plane-source backends
type BackendType string

const (
	// RemoteBackend reads planes through the image server session
	RemoteBackend BackendType = "remote"
	// AzureBackend reads exported planes from Azure blob storage
	AzureBackend BackendType = "azure"
)

// NewPlaneSource creates the plane source selected by the
// configuration.
func NewPlaneSource(cfg *config.Config, client *imagestore.Client) (PlaneSource, error) {
	switch BackendType(cfg.Storage.Backend) {
	case RemoteBackend:
		return NewRemoteSource(client), nil
	case AzureBackend:
		return NewAzureSource(cfg.Storage.AzureAccount, cfg.Storage.AzureKey, cfg.Storage.AzureContainer)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
