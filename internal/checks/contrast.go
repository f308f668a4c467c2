package checks

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/toringerhartCAMM/QC/internal/engine"
	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
	"github.com/toringerhartCAMM/QC/internal/storage"
)

// DivideByZero is reported instead of a contrast ratio when a plane's
// median intensity is effectively zero.
const DivideByZero = "divide by zero"

// medianEpsilon bounds how close to zero a median may be before the
// ratio is considered undefined.
const medianEpsilon = 1e-5

// Contrast measures per-plane contrast as (P75 - P25) / P50 of the
// pixel intensities.
type Contrast struct {
	planes storage.PlaneSource
	update *imagestore.UpdateService
}

// NewContrast creates the contrast check.
func NewContrast(planes storage.PlaneSource, update *imagestore.UpdateService) *Contrast {
	return &Contrast{planes: planes, update: update}
}

// Name identifies the check
func (c *Contrast) Name() string { return "ContrastMeasure" }

// Version distinguishes result generations
func (c *Contrast) Version() string { return "0.1" }

// Check computes one [label, contrast] pair per (Z,C,T) plane.
func (c *Contrast) Check(ctx context.Context, imageID int64) (interface{}, error) {
	img, err := c.planes.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}

	var results [][2]string
	for _, zct := range planeCoords(img) {
		plane, err := c.planes.GetPlane(ctx, imageID, zct.Z, zct.C, zct.T)
		if err != nil {
			return nil, err
		}
		label := channelLabel(img, zct.C) + " contrast"
		results = append(results, [2]string{label, PlaneContrast(plane.Values)})
	}
	return results, nil
}

// PlaneContrast computes (P75 - P25) / P50 over one plane's values,
// or the DivideByZero sentinel when the median is effectively zero.
func PlaneContrast(values []float64) string {
	sorted := sortedCopy(values)
	p25 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	p50 := stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p75 := stat.Quantile(0.75, stat.Empirical, sorted, nil)

	if math.Abs(p50) < medianEpsilon {
		return DivideByZero
	}
	return strconv.FormatFloat((p75-p25)/p50, 'g', -1, 64)
}

// Store persists the results as one map annotation linked to the
// image.
func (c *Contrast) Store(ctx context.Context, imageID int64, result interface{}) error {
	pairs, ok := result.([][2]string)
	if !ok {
		return apperrors.NewInternalError(
			fmt.Sprintf("unexpected contrast result type %T", result), nil)
	}

	annID, err := c.update.SaveAnnotation(ctx, imagestore.Annotation{
		Kind:      imagestore.KindMap,
		Namespace: engine.Namespace(c),
		MapValue:  pairs,
	})
	if err != nil {
		return err
	}
	return c.update.LinkImageAnnotation(ctx, imageID, annID)
}
