package checks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/toringerhartCAMM/QC/internal/engine"
	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
	"github.com/toringerhartCAMM/QC/internal/storage"
)

// Saturation reports, per (Z,C,T) plane, the fraction of pixels at or
// above the saturation ceiling of the image's pixel type. A threshold
// below 1.0 lowers that ceiling, flagging near-saturated pixels too.
type Saturation struct {
	planes    storage.PlaneSource
	update    *imagestore.UpdateService
	threshold float64
}

// NewSaturation creates the saturation check. threshold is the
// fraction of the pixel-type maximum at which a pixel counts as
// saturated; 1.0 means only pixels at the exact ceiling.
func NewSaturation(planes storage.PlaneSource, update *imagestore.UpdateService, threshold float64) *Saturation {
	return &Saturation{planes: planes, update: update, threshold: threshold}
}

// Name identifies the check
func (s *Saturation) Name() string { return "SaturationCheck" }

// Version distinguishes result generations
func (s *Saturation) Version() string { return "0.1" }

// Check computes one [label, fraction] pair per (Z,C,T) plane.
func (s *Saturation) Check(ctx context.Context, imageID int64) (interface{}, error) {
	img, err := s.planes.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	ceiling := s.threshold * img.MaxPixelValue()

	var results [][2]string
	for _, zct := range planeCoords(img) {
		plane, err := s.planes.GetPlane(ctx, imageID, zct.Z, zct.C, zct.T)
		if err != nil {
			return nil, err
		}
		label := channelLabel(img, zct.C) + " saturation"
		fraction := SaturatedFraction(plane.Values, ceiling)
		results = append(results, [2]string{label, strconv.FormatFloat(fraction, 'g', -1, 64)})
	}
	return results, nil
}

// SaturatedFraction returns the fraction of values at or above the
// ceiling. An empty plane has no saturated pixels.
func SaturatedFraction(values []float64, ceiling float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v >= ceiling {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

// Store persists the results as one map annotation linked to the
// image.
func (s *Saturation) Store(ctx context.Context, imageID int64, result interface{}) error {
	pairs, ok := result.([][2]string)
	if !ok {
		return apperrors.NewInternalError(
			fmt.Sprintf("unexpected saturation result type %T", result), nil)
	}

	annID, err := s.update.SaveAnnotation(ctx, imagestore.Annotation{
		Kind:      imagestore.KindMap,
		Namespace: engine.Namespace(s),
		MapValue:  pairs,
	})
	if err != nil {
		return err
	}
	return s.update.LinkImageAnnotation(ctx, imageID, annID)
}
