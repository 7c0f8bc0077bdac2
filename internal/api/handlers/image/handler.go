package image

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/api/respond"
	"github.com/aliskhannn/image-storage/internal/model"
	"github.com/aliskhannn/image-storage/internal/processor"
	imagesvc "github.com/aliskhannn/image-storage/internal/service/image"
)

// maxUploadMemory is the multipart form memory limit; larger parts spill to disk.
const maxUploadMemory = 10 << 20

// service defines the image operations of a single domain.
type service interface {
	Upload(ctx context.Context, img image.Image) (string, error)
	Sign(ctx context.Context, ref string) (model.PresignedURL, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
	ContentType() string
}

// Handler provides HTTP handlers for image endpoints of every registered
// domain.
type Handler struct {
	services map[string]service
}

// NewHandler creates a Handler with no domains.
func NewHandler() *Handler {
	return &Handler{services: make(map[string]service)}
}

// Register serves the domain name with s.
func (h *Handler) Register(name string, s service) {
	h.services[name] = s
}

// UploadResponse is returned for a stored image.
type UploadResponse struct {
	Ref string `json:"ref"`
}

// Upload decodes the multipart "image" field and stores it in the domain.
func (h *Handler) Upload(c *ginext.Context) {
	svc, ok := h.domain(c)
	if !ok {
		return
	}

	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read the uploaded file")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("image field is required"))
		return
	}
	defer file.Close()

	img, err := processor.Decode(file)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("filename", header.Filename).Msg("failed to decode upload")
		respond.Fail(c, http.StatusUnprocessableEntity, err)
		return
	}

	ref, err := svc.Upload(c.Request.Context(), img)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond.Created(c, UploadResponse{Ref: ref})
}

// Sign returns a presigned URL for the referenced image, or redirects to it
// when the redirect query parameter is true.
func (h *Handler) Sign(c *ginext.Context) {
	svc, ok := h.domain(c)
	if !ok {
		return
	}

	u, err := svc.Sign(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusTemporaryRedirect, u.URI)
		return
	}

	respond.OK(c, u)
}

// Raw streams the referenced image through the server.
func (h *Handler) Raw(c *ginext.Context) {
	svc, ok := h.domain(c)
	if !ok {
		return
	}

	reader, err := svc.Open(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer reader.Close()

	respond.Image(c, http.StatusOK, svc.ContentType(), reader)
}

// Delete removes the referenced image.
func (h *Handler) Delete(c *ginext.Context) {
	svc, ok := h.domain(c)
	if !ok {
		return
	}

	if err := svc.Delete(c.Request.Context(), c.Param("ref")); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) domain(c *ginext.Context) (service, bool) {
	name := c.Param("domain")
	svc, ok := h.services[name]
	if !ok {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("unknown image domain %q", name))
		return nil, false
	}

	return svc, true
}

func (h *Handler) fail(c *ginext.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		zlog.Logger.Err(err).Str("path", c.Request.URL.Path).Msg("image request failed")
	}

	respond.Fail(c, status, err)
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, imagesvc.ErrCompensationFailed):
		return http.StatusInternalServerError
	case errors.Is(err, imagesvc.ErrProcess):
		return http.StatusUnprocessableEntity
	case errors.Is(err, imagesvc.ErrNotFound), errors.Is(err, imagesvc.ErrMismatch):
		return http.StatusNotFound
	case errors.Is(err, imagesvc.ErrStore), errors.Is(err, imagesvc.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
