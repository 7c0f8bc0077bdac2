package router

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-storage/internal/api/handlers/image"
)

// Setup registers the image routes, the metrics endpoint and the health probe.
func Setup(h *image.Handler, metrics http.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/health", func(c *ginext.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *ginext.Context) { metrics.ServeHTTP(c.Writer, c.Request) })

	api := r.Group("/api")

	api.POST("/images/:domain", h.Upload)        // uploading image
	api.GET("/images/:domain/:ref", h.Sign)      // presigned URL or redirect
	api.GET("/images/:domain/:ref/raw", h.Raw)   // streaming image bytes
	api.DELETE("/images/:domain/:ref", h.Delete) // deleting image

	return r
}
