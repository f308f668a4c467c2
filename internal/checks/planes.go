// Package checks holds the concrete quality checks that plug into the
// engine: contrast measurement, power-spectrum analysis and saturation
// detection.
package checks

import (
	"fmt"
	"sort"

	"github.com/toringerhartCAMM/QC/internal/imagestore"
)

// planeCoord addresses one pixel plane of an image.
type planeCoord struct {
	Z, C, T int
}

// planeCoords enumerates every (Z,C,T) plane of an image, Z outermost.
func planeCoords(img *imagestore.Image) []planeCoord {
	coords := make([]planeCoord, 0, img.SizeZ*img.SizeC*img.SizeT)
	for z := 0; z < img.SizeZ; z++ {
		for c := 0; c < img.SizeC; c++ {
			for t := 0; t < img.SizeT; t++ {
				coords = append(coords, planeCoord{Z: z, C: c, T: t})
			}
		}
	}
	return coords
}

// channelLabel returns the label for channel c, falling back to the
// channel index when the server has none.
func channelLabel(img *imagestore.Image, c int) string {
	if c < len(img.ChannelLabels) && img.ChannelLabels[c] != "" {
		return img.ChannelLabels[c]
	}
	return fmt.Sprintf("channel %d", c)
}

// sortedCopy returns the values in ascending order without touching
// the plane.
func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
