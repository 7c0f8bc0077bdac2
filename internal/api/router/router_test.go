package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/zlog"

	imagehandler "github.com/aliskhannn/image-storage/internal/api/handlers/image"
	"github.com/aliskhannn/image-storage/internal/metrics"
	"github.com/aliskhannn/image-storage/internal/model"
	imagesvc "github.com/aliskhannn/image-storage/internal/service/image"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

type fakeService struct {
	mu       sync.Mutex
	uploaded []image.Image
	deleted  []string

	uploadErr error
	signErr   error
	deleteErr error
}

func (f *fakeService) Upload(_ context.Context, img image.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, img)
	return "42", nil
}

func (f *fakeService) Sign(_ context.Context, ref string) (model.PresignedURL, error) {
	if f.signErr != nil {
		return model.PresignedURL{}, f.signErr
	}
	return model.PresignedURL{
		URI:        "https://cdn.test/avatar/" + ref + "?X-Amz-Expires=3600",
		ValidUntil: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeService) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	return io.NopCloser(strings.NewReader("jpeg-bytes-" + ref)), nil
}

func (f *fakeService) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeService) ContentType() string { return "image/jpeg" }

func newServer(t *testing.T, svc *fakeService) (http.Handler, *metrics.Metrics) {
	t.Helper()

	h := imagehandler.NewHandler()
	h.Register("avatar", svc)

	m := metrics.New()
	return Setup(h, m.Handler()), m
}

func multipartImage(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", "upload.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return body, w.FormDataContentType()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}

	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func do(srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	svc := &fakeService{}
	srv, _ := newServer(t, svc)

	body, ct := multipartImage(t, pngBytes(t, 40, 30))
	req := httptest.NewRequest(http.MethodPost, "/api/images/avatar", body)
	req.Header.Set("Content-Type", ct)

	rec := do(srv, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Result imagehandler.UploadResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Result.Ref)

	require.Len(t, svc.uploaded, 1)
	assert.Equal(t, 40, svc.uploaded[0].Bounds().Dx())
}

func TestUploadRejectsUndecodable(t *testing.T) {
	svc := &fakeService{}
	srv, _ := newServer(t, svc)

	body, ct := multipartImage(t, []byte("definitely not an image"))
	req := httptest.NewRequest(http.MethodPost, "/api/images/avatar", body)
	req.Header.Set("Content-Type", ct)

	rec := do(srv, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, svc.uploaded)
}

func TestUploadWithoutFile(t *testing.T) {
	srv, _ := newServer(t, &fakeService{})

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("note", "no file"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images/avatar", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	assert.Equal(t, http.StatusBadRequest, do(srv, req).Code)
}

func TestUnknownDomain(t *testing.T) {
	srv, _ := newServer(t, &fakeService{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/images/banner/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "banner")
}

func TestSign(t *testing.T) {
	srv, _ := newServer(t, &fakeService{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/images/avatar/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result model.PresignedURL `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://cdn.test/avatar/42?X-Amz-Expires=3600", resp.Result.URI)
	assert.True(t, resp.Result.ValidUntil.Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSignRedirect(t *testing.T) {
	srv, _ := newServer(t, &fakeService{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/images/avatar/42?redirect=true", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://cdn.test/avatar/42?X-Amz-Expires=3600", rec.Header().Get("Location"))
}

func TestRaw(t *testing.T) {
	srv, _ := newServer(t, &fakeService{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/images/avatar/42/raw", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes-42", rec.Body.String())
}

func TestDelete(t *testing.T) {
	svc := &fakeService{}
	srv, _ := newServer(t, svc)

	rec := do(srv, httptest.NewRequest(http.MethodDelete, "/api/images/avatar/42", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"42"}, svc.deleted)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", imagesvc.ErrNotFound, http.StatusNotFound},
		{"mismatch", imagesvc.ErrMismatch, http.StatusNotFound},
		{"metadata", imagesvc.ErrMetadata, http.StatusInternalServerError},
		{"store", imagesvc.ErrStore, http.StatusBadGateway},
		{"transport", imagesvc.ErrTransport, http.StatusBadGateway},
		{"orphan", &imagesvc.OrphanError{Container: "avatar", Key: "k", Cause: imagesvc.ErrMetadata, UndoErr: errors.New("boom")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, &fakeService{deleteErr: tt.err, signErr: tt.err})

			assert.Equal(t, tt.want, do(srv, httptest.NewRequest(http.MethodDelete, "/api/images/avatar/42", nil)).Code)
			assert.Equal(t, tt.want, do(srv, httptest.NewRequest(http.MethodGet, "/api/images/avatar/42", nil)).Code)

			rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/images/avatar/42/raw", nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEqual(t, "image/jpeg", rec.Header().Get("Content-Type"))
		})
	}
}

func TestUploadProcessError(t *testing.T) {
	srv, _ := newServer(t, &fakeService{uploadErr: imagesvc.ErrProcess})

	body, ct := multipartImage(t, pngBytes(t, 8, 8))
	req := httptest.NewRequest(http.MethodPost, "/api/images/avatar", body)
	req.Header.Set("Content-Type", ct)

	assert.Equal(t, http.StatusUnprocessableEntity, do(srv, req).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, m := newServer(t, &fakeService{})
	m.Observe("avatar", "sign", "ok")

	assert.Equal(t, http.StatusOK, do(srv, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `image_storage_operations_total{domain="avatar",operation="sign",outcome="ok"} 1`)
}
