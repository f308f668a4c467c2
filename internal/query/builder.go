// Package query translates named search criteria into the HQL-style
// object queries the remote image server understands.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
)

// Criteria maps recognized search keys to their values.
//
// Recognized keys:
//   - "filename":    string, LIKE match against the image file path
//   - "plate":       string, LIKE match against the plate name
//   - "acquisition": string, LIKE match against the acquisition name
//   - "with_tag":    string, images carrying a matching tag
//   - "without_tag": string, images not carrying a matching tag
//   - "daterange":   []time.Time of length 2, ordered, bounding the
//     image creation event
//   - "noqc":        bool, when true additionally excludes images
//     tagged "#noqc" directly or through their plate
type Criteria map[string]interface{}

// NoQCTag is the sentinel tag that excludes an image or plate from all
// quality checking.
const NoQCTag = "#noqc"

// Builder composes and executes image searches.
type Builder struct {
	queries *imagestore.QueryService
}

// NewBuilder creates a builder executing through the given query
// service.
func NewBuilder(queries *imagestore.QueryService) *Builder {
	return &Builder{queries: queries}
}

// Build validates the criteria and composes a single conjoined query
// plus its bind parameters. Returned parameter values are strings for
// text criteria and epoch-millisecond integers for the date bounds.
func Build(criteria Criteria) (string, map[string]interface{}, error) {
	noqc := false
	params := make(map[string]interface{})

	for key, value := range criteria {
		switch key {
		case "noqc":
			b, ok := value.(bool)
			if !ok {
				return "", nil, apperrors.NewValidationError(
					"expected boolean value with 'noqc' keyword", nil)
			}
			noqc = b
		case "daterange":
			ts, ok := value.([]time.Time)
			if !ok || len(ts) != 2 {
				return "", nil, apperrors.NewValidationError(
					"expected two-element timestamp pair for 'daterange' parameter", nil)
			}
			if ts[0].After(ts[1]) {
				return "", nil, apperrors.NewValidationError(
					"'daterange' start must not be after end", nil)
			}
			params["startDate"] = ts[0].UnixMilli()
			params["endDate"] = ts[1].UnixMilli()
		case "filename", "plate", "acquisition", "with_tag", "without_tag":
			s, ok := value.(string)
			if !ok {
				return "", nil, apperrors.NewValidationError(
					fmt.Sprintf("expected string value for %q parameter", key), nil)
			}
			params[key] = s
		default:
			return "", nil, apperrors.NewValidationError(
				fmt.Sprintf("unknown query parameter: %s", key), nil)
		}
	}

	// If this has no entries, then we have nothing to look for.
	if len(params) == 0 {
		return "", nil, apperrors.NewValidationError("no parameters to query", nil)
	}

	var where []string
	if _, ok := criteria["without_tag"]; ok {
		where = append(where, fmt.Sprintf("image not in ( %s )", tagSubquery("without_tag")))
	}
	if _, ok := criteria["acquisition"]; ok {
		where = append(where, fmt.Sprintf("image in ( %s )", acquisitionSubquery()))
	}
	if _, ok := criteria["daterange"]; ok {
		where = append(where, fmt.Sprintf("image in ( %s )", dateSubquery()))
	}
	if _, ok := criteria["filename"]; ok {
		where = append(where, fmt.Sprintf("image in ( %s )", filenameSubquery()))
	}
	if _, ok := criteria["with_tag"]; ok {
		where = append(where, fmt.Sprintf("image in ( %s )", tagSubquery("with_tag")))
	}
	if _, ok := criteria["plate"]; ok {
		where = append(where, fmt.Sprintf("image in ( %s )", plateSubquery()))
	}
	if noqc {
		where = append(where, fmt.Sprintf("image not in ( %s )", tagSubquery("noqc")))
		where = append(where, fmt.Sprintf("image not in ( %s )", plateTagSubquery("noqc")))
		params["noqc"] = NoQCTag
	}

	q := "select image from Image image where " + strings.Join(where, " and ")
	return q, params, nil
}

// FindImages composes the query and executes it, returning matched
// image IDs in server order. The order is not stable across calls.
func (b *Builder) FindImages(ctx context.Context, criteria Criteria) ([]int64, error) {
	q, params, err := Build(criteria)
	if err != nil {
		return nil, err
	}
	return b.queries.FindImageIDs(ctx, q, params)
}

func tagSubquery(param string) string {
	return fmt.Sprintf(`select img from Image img
		left outer join img.annotationLinks as links
		left outer join links.child as annotation
		where annotation.textValue like :%s`, param)
}

func plateTagSubquery(param string) string {
	return fmt.Sprintf(`select image from Plate plate
		left outer join plate.annotationLinks as links
		left outer join links.child as annotation
		left outer join plate.plateAcquisition as acquisition
		left outer join acquisition.wellSample as sample
		left outer join sample.image as image
		where annotation.textValue like :%s`, param)
}

func filenameSubquery() string {
	return `select img from Image img
		left outer join img.fileset as fileset
		left outer join fileset.usedFiles as file
		where file.clientPath like :filename`
}

func plateSubquery() string {
	return `select image from Plate plate
		left outer join plate.plateAcquisition as acquisition
		left outer join acquisition.wellSample as sample
		left outer join sample.image as image
		where plate.name like :plate`
}

func acquisitionSubquery() string {
	return `select image from Plate plate
		left outer join plate.plateAcquisition as acquisition
		left outer join acquisition.wellSample as sample
		left outer join sample.image as image
		where acquisition.name like :acquisition`
}

func dateSubquery() string {
	return `select img from Image img
		left outer join img.details.creationEvent as event
		where event.time between :startDate and :endDate`
}
