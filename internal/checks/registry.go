package checks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/toringerhartCAMM/QC/internal/engine"
	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
	"github.com/toringerhartCAMM/QC/internal/storage"
)

// Registry creates and resolves the concrete checks wired against one
// plane source and update service.
type Registry struct {
	checks map[string]engine.Check
}

// NewRegistry builds every known check.
func NewRegistry(planes storage.PlaneSource, update *imagestore.UpdateService, saturationThreshold float64) *Registry {
	r := &Registry{checks: make(map[string]engine.Check)}
	for _, c := range []engine.Check{
		NewContrast(planes, update),
		NewPowerSpectrum(planes, update),
		NewSaturation(planes, update, saturationThreshold),
	} {
		r.checks[strings.ToLower(c.Name())] = c
	}
	return r
}

// Get resolves a check by name, case-insensitively, accepting short
// forms ("contrast" for ContrastMeasure, "saturation" for
// SaturationCheck).
func (r *Registry) Get(name string) (engine.Check, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "contrast":
		key = "contrastmeasure"
	case "saturation":
		key = "saturationcheck"
	}
	c, ok := r.checks[key]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("unknown check: %s", name), nil)
	}
	return c, nil
}

// All returns every check, ordered by name.
func (r *Registry) All() []engine.Check {
	out := make([]engine.Check, 0, len(r.checks))
	for _, c := range r.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the canonical check names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.checks))
	for _, c := range r.checks {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}
