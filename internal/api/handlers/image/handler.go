package image

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-gateway/internal/api/respond"
	"github.com/aliskhannn/image-gateway/internal/cache"
	"github.com/aliskhannn/image-gateway/internal/fetch"
	"github.com/aliskhannn/image-gateway/internal/processor"
	imagesvc "github.com/aliskhannn/image-gateway/internal/service/image"
	"github.com/aliskhannn/image-gateway/internal/spec"
)

// StatusClientClosedRequest is returned when the caller went away mid-request.
const StatusClientClosedRequest = 499

// service defines the interface for rendering images.
type service interface {
	Render(ctx context.Context, specStr, rawURL string) (imagesvc.Result, error)
}

// statsSource defines the interface for reading cache counters.
type statsSource interface {
	Stats() cache.Stats
}

// Handler provides HTTP handlers for the gateway endpoints.
type Handler struct {
	service      service
	stats        statsSource
	cacheControl string
}

// NewHandler creates a new Handler. maxAge is the Cache-Control max-age of
// rendered images in seconds; zero or less disables the header.
func NewHandler(s service, st statsSource, maxAge int) *Handler {
	h := &Handler{service: s, stats: st}
	if maxAge > 0 {
		h.cacheControl = "public, max-age=" + strconv.Itoa(maxAge)
	}
	return h
}

// Render serves GET /image/:spec/*url. The url parameter is the
// percent-encoded source URL and is decoded with path rules; a query string
// on the request belongs to it.
func (h *Handler) Render(c *ginext.Context) {
	ctx := c.Request.Context()
	log := zerolog.Ctx(ctx)

	specStr, err := url.PathUnescape(c.Param("spec"))
	if err != nil {
		log.Warn().Err(err).Msg("bad escape in spec")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid spec escape: %w", err))
		return
	}

	rawURL, err := url.PathUnescape(strings.TrimPrefix(c.Param("url"), "/"))
	if err != nil {
		log.Warn().Err(err).Msg("bad escape in source url")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid source url escape: %w", err))
		return
	}
	if rawURL == "" {
		log.Warn().Msg("missing source url")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("missing source url"))
		return
	}
	if q := c.Request.URL.RawQuery; q != "" {
		rawURL += "?" + q
	}

	res, err := h.service.Render(ctx, specStr, rawURL)
	if err != nil {
		status := statusFor(err)
		if status == StatusClientClosedRequest {
			log.Info().Err(err).Str("url", rawURL).Msg("client closed request")
			c.AbortWithStatus(status)
			return
		}

		evt := log.Warn()
		if status >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Err(err).
			Str("url", rawURL).
			Int("status", status).
			Msg("failed to render image")

		respond.Fail(c, status, err)
		return
	}

	if h.cacheControl != "" {
		c.Header("Cache-Control", h.cacheControl)
	}

	respond.Image(c, res.ContentType, res.Data)
}

// Health reports that the process is serving.
func (h *Handler) Health(c *ginext.Context) {
	respond.OK(c, "ok")
}

// Stats returns the cache counters.
func (h *Handler) Stats(c *ginext.Context) {
	respond.OK(c, h.stats.Stats())
}

// statusFor maps a render error to its HTTP status.
func statusFor(err error) int {
	var decodeErr *spec.DecodeError

	switch {
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest
	case errors.Is(err, fetch.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, fetch.ErrTooLarge), errors.Is(err, processor.ErrSourceTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, fetch.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, fetch.ErrBadStatus), errors.Is(err, fetch.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
