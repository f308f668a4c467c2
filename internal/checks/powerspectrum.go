package checks

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/toringerhartCAMM/QC/internal/engine"
	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
	"github.com/toringerhartCAMM/QC/internal/storage"
)

// PowerSpectrum computes the radially averaged log-power-spectrum of
// each plane and stores one profile per channel, as a numeric summary
// annotation plus a rendered PNG plot.
type PowerSpectrum struct {
	planes storage.PlaneSource
	update *imagestore.UpdateService
}

// NewPowerSpectrum creates the power-spectrum check.
func NewPowerSpectrum(planes storage.PlaneSource, update *imagestore.UpdateService) *PowerSpectrum {
	return &PowerSpectrum{planes: planes, update: update}
}

// Name identifies the check
func (ps *PowerSpectrum) Name() string { return "PowerSpectrum" }

// Version distinguishes result generations
func (ps *PowerSpectrum) Version() string { return "0.1" }

// Check computes one radial profile per channel. When a channel has
// several (Z,T) planes, the last plane's profile wins, so a profile
// always describes a single plane.
func (ps *PowerSpectrum) Check(ctx context.Context, imageID int64) (interface{}, error) {
	img, err := ps.planes.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}

	// The bin layout depends only on plane geometry, so it is shared
	// across every plane of the image.
	groups := radialGroups(img.SizeX, img.SizeY)

	results := make(map[string][]float64)
	for _, zct := range planeCoords(img) {
		plane, err := ps.planes.GetPlane(ctx, imageID, zct.Z, zct.C, zct.T)
		if err != nil {
			return nil, err
		}
		power := logPowerSpectrum(plane.Values, plane.Width, plane.Height)
		results[channelLabel(img, zct.C)] = radialAverage(power, groups)
	}
	return results, nil
}

// zeroPowerFloor stands in for log10(0) at frequencies with no signal.
// It sits below the log power of any representable nonzero signal, so
// profiles stay finite and can be stored as double annotations.
var zeroPowerFloor = math.Log10(math.SmallestNonzeroFloat64)

// logPowerSpectrum returns log10(|FFT2(plane)|^2) flattened in
// row-major order. Zero spectral power maps to zeroPowerFloor instead
// of -Inf.
func logPowerSpectrum(values []float64, width, height int) []float64 {
	freq := make([]complex128, len(values))
	for i, v := range values {
		freq[i] = complex(v, 0)
	}

	rowFFT := fourier.NewCmplxFFT(width)
	row := make([]complex128, width)
	for y := 0; y < height; y++ {
		copy(row, freq[y*width:(y+1)*width])
		rowFFT.Coefficients(freq[y*width:(y+1)*width], row)
	}

	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	out := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = freq[y*width+x]
		}
		colFFT.Coefficients(out, col)
		for y := 0; y < height; y++ {
			freq[y*width+x] = out[y]
		}
	}

	power := make([]float64, len(freq))
	for i, f := range freq {
		re, im := real(f), imag(f)
		p := re*re + im*im
		if p == 0 {
			power[i] = zeroPowerFloor
			continue
		}
		power[i] = math.Log10(p)
	}
	return power
}

// radialGroups partitions flattened pixel indexes into unit-distance
// annuli around the plane midpoint. The distance metric folds each
// axis so the unshifted spectrum's symmetric quadrants land in the
// same bins:
//
//	f = (w/2) - |x - (w/2)|
//	g = (h/2) - |y - (h/2)|
//	d = hypot(f, g)
//
// Bin k covers distances in (k, k+1]; distance 0 (the DC term) joins
// bin 0. The number of bins is ceil(max distance).
func radialGroups(width, height int) [][]int {
	midrow := int(math.Ceil(0.5 * float64(height)))
	midcol := int(math.Ceil(0.5 * float64(width)))

	distances := make([]float64, width*height)
	maxDistance := 0.0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx := float64(midcol - abs(x-midcol))
			fy := float64(midrow - abs(y-midrow))
			d := math.Hypot(fx, fy)
			distances[y*width+x] = d
			if d > maxDistance {
				maxDistance = d
			}
		}
	}

	if maxDistance == 0 {
		// Degenerate 1x1 plane: only the DC term, one bin.
		return [][]int{{0}}
	}

	groups := make([][]int, int(math.Ceil(maxDistance)))
	for i, d := range distances {
		bin := int(math.Ceil(d)) - 1
		if bin < 0 {
			bin = 0
		}
		if bin >= len(groups) {
			bin = len(groups) - 1
		}
		groups[bin] = append(groups[bin], i)
	}
	return groups
}

// radialAverage reduces a flattened power spectrum to the per-annulus
// mean.
func radialAverage(power []float64, groups [][]int) []float64 {
	profile := make([]float64, len(groups))
	bin := make([]float64, 0, len(power))
	for k, group := range groups {
		bin = bin[:0]
		for _, idx := range group {
			bin = append(bin, power[idx])
		}
		profile[k] = stat.Mean(bin, nil)
	}
	return profile
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Store persists, per channel, a double annotation holding the mean
// spectral power plus a PNG plot of the radial profile. The plot is
// staged through a temp file that is removed once the upload finishes.
func (ps *PowerSpectrum) Store(ctx context.Context, imageID int64, result interface{}) error {
	profiles, ok := result.(map[string][]float64)
	if !ok {
		return apperrors.NewInternalError(
			fmt.Sprintf("unexpected power-spectrum result type %T", result), nil)
	}

	for label, profile := range profiles {
		annID, err := ps.update.SaveAnnotation(ctx, imagestore.Annotation{
			Kind:        imagestore.KindDouble,
			Namespace:   engine.Namespace(ps),
			Name:        label + " power spectrum",
			DoubleValue: stat.Mean(profile, nil),
		})
		if err != nil {
			return err
		}
		if err := ps.update.LinkImageAnnotation(ctx, imageID, annID); err != nil {
			return err
		}

		if err := ps.storePlot(ctx, imageID, label, profile); err != nil {
			return err
		}
	}
	return nil
}

func (ps *PowerSpectrum) storePlot(ctx context.Context, imageID int64, label string, profile []float64) error {
	prefix := strings.ReplaceAll(label, " ", "_")
	f, err := os.CreateTemp("", prefix+"_*_powerspectrum.png")
	if err != nil {
		return apperrors.NewInternalError("create plot temp file", err)
	}
	filename := f.Name()
	f.Close()
	defer os.Remove(filename)

	if err := renderProfilePlot(label, profile, filename); err != nil {
		return err
	}

	plotFile, err := os.Open(filename)
	if err != nil {
		return apperrors.NewInternalError("reopen plot temp file", err)
	}
	defer plotFile.Close()

	fileAnnID, err := ps.update.SaveFileAnnotation(ctx, engine.Namespace(ps),
		prefix+"_powerspectrum.png", "image/png", plotFile)
	if err != nil {
		return err
	}
	return ps.update.LinkImageAnnotation(ctx, imageID, fileAnnID)
}

func renderProfilePlot(label string, profile []float64, filename string) error {
	p := plot.New()
	p.Title.Text = label + " Power Spectrum"
	p.X.Label.Text = "radial distance (px)"
	p.Y.Label.Text = "log power"

	pts := make(plotter.XYs, len(profile))
	for i, v := range profile {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return apperrors.NewInternalError("build profile plot", err)
	}
	p.Add(line)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, filename); err != nil {
		return apperrors.NewInternalError("save profile plot", err)
	}
	return nil
}
