package storage

import (
	"context"

	"github.com/toringerhartCAMM/QC/internal/imagestore"
)

// PlaneSource defines the interface for pixel-plane access operations
type PlaneSource interface {
	// GetImage retrieves the metadata snapshot for an image
	GetImage(ctx context.Context, imageID int64) (*imagestore.Image, error)

	// GetPlane retrieves one (Z,C,T) pixel plane of an image
	GetPlane(ctx context.Context, imageID int64, z, c, t int) (*imagestore.Plane, error)
}

// RemoteSource reads planes straight from the image server session.
type RemoteSource struct {
	client *imagestore.Client
}

// NewRemoteSource creates a plane source backed by the server session.
func NewRemoteSource(client *imagestore.Client) PlaneSource {
	return &RemoteSource{client: client}
}

// GetImage retrieves the metadata snapshot for an image
func (r *RemoteSource) GetImage(ctx context.Context, imageID int64) (*imagestore.Image, error) {
	return r.client.GetImage(ctx, imageID)
}

// GetPlane retrieves one (Z,C,T) pixel plane of an image
func (r *RemoteSource) GetPlane(ctx context.Context, imageID int64, z, c, t int) (*imagestore.Plane, error) {
	return r.client.GetPlane(ctx, imageID, z, c, t)
}
