// Package engine orchestrates quality-check runs: it finds images not
// yet checked, invokes the pluggable per-image check, and persists
// results back to the image server so completed images are skipped on
// the next run.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toringerhartCAMM/QC/internal/imagestore"
	"github.com/toringerhartCAMM/QC/internal/journal"
	"github.com/toringerhartCAMM/QC/internal/logger"
	"github.com/toringerhartCAMM/QC/internal/query"
)

// Check is the plug-in contract for a concrete quality check.
type Check interface {
	// Name identifies the check, e.g. "ContrastMeasure".
	Name() string

	// Version distinguishes result generations. Bumping it makes every
	// image eligible again under the new identity; prior results stay
	// in place.
	Version() string

	// Check computes the result for one image from its pixel data.
	Check(ctx context.Context, imageID int64) (interface{}, error)

	// Store persists the result as annotations linked to the image.
	// The engine has already linked the completion tag by the time
	// Store runs.
	Store(ctx context.Context, imageID int64, result interface{}) error
}

// Namespace scopes every annotation a check writes.
func Namespace(c Check) string {
	return fmt.Sprintf("%s.qualitycheck", c.Name())
}

// CompletionTag is the sentinel tag value marking an image as done.
func CompletionTag(c Check) string {
	return fmt.Sprintf("#%s_v%s", c.Name(), c.Version())
}

// The eligibility query returns images reachable through a plate that
// carry neither the check's completion tag nor the #noqc tag, from
// plates not tagged #noqc.
const eligibilityQuery = `
select image from Plate plate

left outer join plate.wells as wells
left outer join wells.wellSamples as samples
left outer join samples.image as image

where image not in (    select img from Image img
                        left outer join img.annotationLinks as links
                        left outer join links.child as annotation
                        where annotation.textValue like :qcTag
                        or    annotation.textValue like :noqc )

and plate not in (      select p from Plate p
                        left outer join p.annotationLinks as links
                        left outer join links.child as annotation
                        where annotation.textValue like :noqc )
`

// RunSummary reports the outcome of one Run.
type RunSummary struct {
	RunID      string `json:"run_id"`
	Check      string `json:"check"`
	Version    string `json:"version"`
	Candidates int    `json:"candidates"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
}

// Engine runs checks against the image server. It shares the client's
// single session, so it must not be used from multiple goroutines.
type Engine struct {
	client          *imagestore.Client
	journal         *journal.Journal
	continueOnError bool
}

// New creates an engine. continueOnError makes a per-image failure
// move on to the next candidate instead of aborting the run.
func New(client *imagestore.Client, jrnl *journal.Journal, continueOnError bool) *Engine {
	return &Engine{
		client:          client,
		journal:         jrnl,
		continueOnError: continueOnError,
	}
}

// Candidates returns the IDs of images eligible for the check: no
// completion tag, no #noqc tag on the image or its plate.
func (e *Engine) Candidates(ctx context.Context, c Check) ([]int64, error) {
	params := map[string]interface{}{
		"qcTag": CompletionTag(c),
		"noqc":  query.NoQCTag,
	}
	return e.client.QueryService().FindImageIDs(ctx, eligibilityQuery, params)
}

// Run executes the check over every eligible image. Each image is an
// independent unit: check, completion tag, then the check's own store
// logic. By default the first failure aborts the run; images stored
// before the failure keep their tags and are skipped on the next run.
func (e *Engine) Run(ctx context.Context, c Check) (*RunSummary, error) {
	ids, err := e.Candidates(ctx, c)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{
		Check:      c.Name(),
		Version:    c.Version(),
		Candidates: len(ids),
	}

	runID, err := e.journal.BeginRun(ctx, c.Name(), c.Version())
	if err != nil {
		return nil, err
	}
	summary.RunID = runID
	defer e.journal.FinishRun(ctx, runID)

	logger.WithFields(logrus.Fields{
		"check":      c.Name(),
		"version":    c.Version(),
		"candidates": len(ids),
		"run_id":     runID,
	}).Info("Starting quality-check run")

	for i, imageID := range ids {
		start := time.Now()
		if err := e.processImage(ctx, c, imageID); err != nil {
			summary.Failed++
			e.journal.RecordImage(ctx, runID, imageID, journal.StatusFailed, err.Error(), time.Since(start))
			logger.WithCheck(c.Name()).WithError(err).WithField("image", imageID).
				Error("Quality check failed")
			if !e.continueOnError {
				for _, rest := range ids[i+1:] {
					e.journal.RecordImage(ctx, runID, rest, journal.StatusSkipped, "", 0)
				}
				return summary, err
			}
			continue
		}
		summary.Succeeded++
		e.journal.RecordImage(ctx, runID, imageID, journal.StatusOK, "", time.Since(start))
		logger.WithCheck(c.Name()).WithField("image", imageID).Debug("Quality check stored")
	}

	logger.WithFields(logrus.Fields{
		"check":     c.Name(),
		"run_id":    runID,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Quality-check run finished")
	return summary, nil
}

func (e *Engine) processImage(ctx context.Context, c Check, imageID int64) error {
	result, err := c.Check(ctx, imageID)
	if err != nil {
		return err
	}
	return e.store(ctx, c, imageID, result)
}

// store links the completion tag, then runs the check's own storage
// logic. The tag is linked first and unconditionally: an image whose
// store logic fails halfway still counts as checked, matching how the
// eligibility query has always behaved.
func (e *Engine) store(ctx context.Context, c Check, imageID int64, result interface{}) error {
	if err := e.autotag(ctx, c, imageID); err != nil {
		return err
	}
	return c.Store(ctx, imageID, result)
}

func (e *Engine) autotag(ctx context.Context, c Check, imageID int64) error {
	update := e.client.UpdateService()
	tagID, err := update.SaveAnnotation(ctx, imagestore.Annotation{
		Kind:      imagestore.KindTag,
		Namespace: Namespace(c),
		TextValue: CompletionTag(c),
	})
	if err != nil {
		return err
	}
	return update.LinkImageAnnotation(ctx, imageID, tagID)
}

// Remove deletes every annotation on the image scoped to the check's
// namespace, completion tag included, making the image eligible again.
func (e *Engine) Remove(ctx context.Context, c Check, imageID int64) error {
	anns, err := e.client.ListAnnotations(ctx, imageID, Namespace(c))
	if err != nil {
		return err
	}
	update := e.client.UpdateService()
	for _, ann := range anns {
		if err := update.DeleteAnnotation(ctx, ann.ID); err != nil {
			return err
		}
	}
	logger.WithCheck(c.Name()).WithFields(logrus.Fields{
		"image":   imageID,
		"removed": len(anns),
	}).Info("Removed quality-check annotations")
	return nil
}
