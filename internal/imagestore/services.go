package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
)

// QueryService executes object queries against the remote server.
type QueryService struct {
	client *Client
}

// UpdateService creates, links and deletes annotations.
type UpdateService struct {
	client *Client
}

// RoiService reads regions of interest.
type RoiService struct {
	client *Client
}

// QueryService returns the query service handle. Calls made through it
// recover from a lost session by reconnecting and retrying once.
func (c *Client) QueryService() *QueryService {
	return &QueryService{client: c}
}

// UpdateService returns the update service handle.
func (c *Client) UpdateService() *UpdateService {
	return &UpdateService{client: c}
}

// RoiService returns the ROI service handle.
func (c *Client) RoiService() *RoiService {
	return &RoiService{client: c}
}

// FindImageIDs runs an HQL-style object query with named bind
// parameters and returns the matched image IDs in server order.
func (s *QueryService) FindImageIDs(ctx context.Context, query string, params map[string]interface{}) ([]int64, error) {
	in := map[string]interface{}{
		"query":  query,
		"params": params,
	}
	var out struct {
		IDs []int64 `json:"ids"`
	}
	err := s.client.withReconnect(ctx, func() error {
		return s.client.doJSON(ctx, http.MethodPost, "/api/query/images", in, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// SaveAnnotation persists an annotation object and returns its new ID.
// The annotation is not linked to anything yet.
func (s *UpdateService) SaveAnnotation(ctx context.Context, ann Annotation) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	err := s.client.withReconnect(ctx, func() error {
		return s.client.doJSON(ctx, http.MethodPost, "/api/annotations", ann, &out)
	})
	if err != nil {
		return 0, err
	}
	return out.ID, nil
}

// SaveFileAnnotation uploads file content as a file annotation and
// returns its new ID.
func (s *UpdateService) SaveFileAnnotation(ctx context.Context, namespace, fileName, mimeType string, content io.Reader) (int64, error) {
	// Buffer the content so a reconnect retry re-sends the whole file.
	data, err := io.ReadAll(content)
	if err != nil {
		return 0, apperrors.NewInternalError("read file annotation content", err)
	}

	fields := map[string]string{
		"namespace": namespace,
		"mime_type": mimeType,
	}
	var out struct {
		ID int64 `json:"id"`
	}
	err = s.client.withReconnect(ctx, func() error {
		return s.client.uploadFile(ctx, "/api/annotations/files", fields, fileName, bytes.NewReader(data), &out)
	})
	if err != nil {
		return 0, err
	}
	return out.ID, nil
}

// LinkImageAnnotation attaches a saved annotation to an image.
func (s *UpdateService) LinkImageAnnotation(ctx context.Context, imageID, annotationID int64) error {
	in := map[string]int64{"annotation_id": annotationID}
	return s.client.withReconnect(ctx, func() error {
		return s.client.doJSON(ctx, http.MethodPost,
			fmt.Sprintf("/api/images/%d/annotation-links", imageID), in, nil)
	})
}

// DeleteAnnotation removes an annotation from the server.
func (s *UpdateService) DeleteAnnotation(ctx context.Context, annotationID int64) error {
	return s.client.withReconnect(ctx, func() error {
		return s.client.doJSON(ctx, http.MethodDelete,
			fmt.Sprintf("/api/annotations/%d", annotationID), nil, nil)
	})
}

// FindByImage returns the regions of interest defined on an image.
func (s *RoiService) FindByImage(ctx context.Context, imageID int64) ([]ROI, error) {
	var out struct {
		ROIs []ROI `json:"rois"`
	}
	err := s.client.withReconnect(ctx, func() error {
		return s.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/images/%d/rois", imageID), nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.ROIs, nil
}
