package handlers

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kosarica/catalog-ingest/internal/pipeline"
)

// Ingester is the part of the pipeline the HTTP surfaces drive
type Ingester interface {
	IngestURL(ctx context.Context, rawURL, retailerID, storeID string) (pipeline.Result, error)
	IngestObject(ctx context.Context, event pipeline.ObjectEvent) (pipeline.Result, error)
}

// FetchRequest carries the fetch parameters, from the query string or a JSON body
type FetchRequest struct {
	URL        string `json:"url" form:"url"`
	RetailerID string `json:"retailerId" form:"retailerId"`
	StoreID    string `json:"storeId" form:"storeId"`
}

// IngestHandler serves the fetch and storage-event surfaces
type IngestHandler struct {
	ingester Ingester
	logger   zerolog.Logger
}

// NewIngestHandler creates a handler over ingester
func NewIngestHandler(ingester Ingester, logger zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		ingester: ingester,
		logger:   logger.With().Str("component", "ingest_handler").Logger(),
	}
}

// FetchPriceFile downloads a catalog and ingests it
// GET|POST /fetch?url=...&retailerId=...&storeId=...
// The url is taken from the query first; retailerId and storeId from the
// JSON body first. Responds with plain text.
func (h *IngestHandler) FetchPriceFile(c *gin.Context) {
	req := h.bindFetchRequest(c)
	if strings.TrimSpace(req.URL) == "" {
		c.String(http.StatusBadRequest, "Missing url")
		return
	}

	result, err := h.ingester.IngestURL(c.Request.Context(), req.URL, req.RetailerID, req.StoreID)
	if err != nil {
		status := statusForError(err)
		h.logger.Error().
			Err(err).
			Str("url", req.URL).
			Str("retailer", req.RetailerID).
			Int("status", status).
			Msg("Fetch ingestion failed")
		c.String(status, "Error: %v", err)
		return
	}

	c.String(http.StatusOK, result.Message())
}

func (h *IngestHandler) bindFetchRequest(c *gin.Context) FetchRequest {
	var query, body FetchRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		h.logger.Debug().Err(err).Msg("Ignoring unparsable query")
	}
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		// Bodies that are not JSON are ignored, like a missing body
		if err := c.ShouldBindJSON(&body); err != nil {
			h.logger.Debug().Err(err).Msg("Ignoring unparsable body")
		}
	}

	return FetchRequest{
		URL:        cmp.Or(query.URL, body.URL),
		RetailerID: cmp.Or(body.RetailerID, query.RetailerID),
		StoreID:    cmp.Or(body.StoreID, query.StoreID),
	}
}

// StorageEvent ingests an object finalized in a bucket
// POST /events/storage {"bucket": "...", "name": "prices/...xml", "metadata": {...}}
// Objects outside prices/ or not ending in .xml answer 204 and are not read.
func (h *IngestHandler) StorageEvent(c *gin.Context) {
	var event pipeline.ObjectEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.String(http.StatusBadRequest, "Invalid event: %v", err)
		return
	}

	result, err := h.ingester.IngestObject(c.Request.Context(), event)
	if errors.Is(err, pipeline.ErrIgnoredObject) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("bucket", event.Bucket).
			Str("name", event.Name).
			Msg("Storage event ingestion failed")
		c.String(http.StatusInternalServerError, "Error: %v", err)
		return
	}

	c.String(http.StatusOK, result.Message())
}

// statusForError maps pipeline sentinels onto response codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrMissingURL):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, pipeline.ErrMalformedDocument):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
