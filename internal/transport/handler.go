package transport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/toringerhartCAMM/QC/internal/checks"
	"github.com/toringerhartCAMM/QC/internal/config"
	"github.com/toringerhartCAMM/QC/internal/engine"
	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
	"github.com/toringerhartCAMM/QC/internal/logger"
	"github.com/toringerhartCAMM/QC/internal/query"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewHandler builds the HTTP surface: health, check runs, image search,
// ROI listing and annotation removal.
func NewHandler(eng *engine.Engine, registry *checks.Registry, builder *query.Builder, rois *imagestore.RoiService, cfg *config.Config) http.Handler {
	r := gin.Default()

	r.GET("/health", healthCheck(registry))
	r.POST("/checks/:name/run", runCheck(eng, registry, cfg))
	r.GET("/images", searchImages(builder, cfg))
	r.GET("/images/:id/rois", listROIs(rois, cfg))
	r.DELETE("/checks/:name/images/:id", removeCheck(eng, registry, cfg))

	return r
}

func healthCheck(registry *checks.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"checks": registry.Names(),
		})
	}
}

func runCheck(eng *engine.Engine, registry *checks.Registry, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		chk, err := registry.Get(c.Param("name"))
		if err != nil {
			respondError(c, http.StatusNotFound, "unknown check", err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.APIRequestTimeout())
		defer cancel()

		logger.WithCheck(chk.Name()).WithField("ip", c.ClientIP()).
			Info("Processing check-run request")

		summary, err := eng.Run(ctx, chk)
		if err != nil {
			logger.WithCheck(chk.Name()).WithError(err).Error("Check run failed")
			respondError(c, apperrors.GetStatusCode(err), "check run failed", err)
			return
		}

		logger.WithCheck(chk.Name()).WithFields(logrus.Fields{
			"succeeded":          summary.Succeeded,
			"failed":             summary.Failed,
			"processing_time_ms": time.Since(start).Milliseconds(),
		}).Info("Check run completed")
		c.JSON(http.StatusOK, summary)
	}
}

func searchImages(builder *query.Builder, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		criteria, err := criteriaFromQuery(c)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid search criteria", err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.APIRequestTimeout())
		defer cancel()

		ids, err := builder.FindImages(ctx, criteria)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "image search failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ids": ids})
	}
}

// criteriaFromQuery maps URL query parameters onto builder criteria.
// Shape validation stays in the builder; only parameter decoding
// happens here.
func criteriaFromQuery(c *gin.Context) (query.Criteria, error) {
	criteria := query.Criteria{}
	for _, key := range []string{"filename", "plate", "acquisition", "with_tag", "without_tag"} {
		if v := c.Query(key); v != "" {
			criteria[key] = v
		}
	}
	if v := c.Query("noqc"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, apperrors.NewValidationError("noqc must be a boolean", err)
		}
		criteria["noqc"] = b
	}
	startRaw, endRaw := c.Query("start"), c.Query("end")
	if startRaw != "" || endRaw != "" {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return nil, apperrors.NewValidationError("start must be an RFC3339 timestamp", err)
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return nil, apperrors.NewValidationError("end must be an RFC3339 timestamp", err)
		}
		criteria["daterange"] = []time.Time{start, end}
	}
	return criteria, nil
}

func listROIs(rois *imagestore.RoiService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		imageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid image id", err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.APIRequestTimeout())
		defer cancel()

		found, err := rois.FindByImage(ctx, imageID)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "roi lookup failed", err)
			return
		}
		if found == nil {
			found = []imagestore.ROI{}
		}
		c.JSON(http.StatusOK, gin.H{"rois": found})
	}
}

func removeCheck(eng *engine.Engine, registry *checks.Registry, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		chk, err := registry.Get(c.Param("name"))
		if err != nil {
			respondError(c, http.StatusNotFound, "unknown check", err)
			return
		}
		imageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid image id", err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.APIRequestTimeout())
		defer cancel()

		if err := eng.Remove(ctx, chk, imageID); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "remove failed", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func respondError(c *gin.Context, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Message = err.Error()
	}
	c.JSON(status, resp)
}
