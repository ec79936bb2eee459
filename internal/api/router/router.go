package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-gateway/internal/api/handlers/image"
	"github.com/aliskhannn/image-gateway/internal/middleware"
)

func Setup(h *image.Handler) *ginext.Engine {
	r := ginext.New()

	// Source URLs travel percent-encoded inside the path. Params stay raw and
	// the handler decodes them with path rules, so "+" is not read as a space.
	r.UseRawPath = true
	r.UnescapePathValues = false

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RequestID())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/image/:spec/*url", h.Render) // rendering a source image
	r.GET("/health", h.Health)           // liveness probe
	r.GET("/stats", h.Stats)             // cache counters

	return r
}
