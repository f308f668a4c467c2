package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
)

// azureSource reads exported image metadata and planes from Azure Blob
// Storage. Exports follow the layout
//
//	{container}/{imageID}/meta.json
//	{container}/{imageID}/z{z}_c{c}_t{t}.json
//
// with the same JSON shapes the image server serves.
type azureSource struct {
	client    *azblob.Client
	container string
}

// NewAzureSource creates a plane source over an Azure blob container.
func NewAzureSource(accountName, accountKey, container string) (PlaneSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &azureSource{client: client, container: container}, nil
}

// GetImage retrieves the metadata snapshot for an image
func (s *azureSource) GetImage(ctx context.Context, imageID int64) (*imagestore.Image, error) {
	var img imagestore.Image
	if err := s.downloadJSON(ctx, fmt.Sprintf("%d/meta.json", imageID), &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// GetPlane retrieves one (Z,C,T) pixel plane of an image
func (s *azureSource) GetPlane(ctx context.Context, imageID int64, z, c, t int) (*imagestore.Plane, error) {
	var plane imagestore.Plane
	blobName := fmt.Sprintf("%d/z%d_c%d_t%d.json", imageID, z, c, t)
	if err := s.downloadJSON(ctx, blobName, &plane); err != nil {
		return nil, err
	}
	if len(plane.Values) != plane.Width*plane.Height {
		return nil, apperrors.NewStorageError(
			fmt.Sprintf("blob %s has %d values, expected %d",
				blobName, len(plane.Values), plane.Width*plane.Height), nil)
	}
	return &plane, nil
}

func (s *azureSource) downloadJSON(ctx context.Context, blobName string, out interface{}) error {
	downloadResponse, err := s.client.DownloadStream(ctx, s.container, blobName, nil)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("download %s failed", blobName), err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	if err := json.NewDecoder(retryReader).Decode(out); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("decode %s failed", blobName), err)
	}
	return nil
}
