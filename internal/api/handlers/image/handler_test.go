package image_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	stdimage "image"
	"image/color"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/image-gateway/internal/api/handlers/image"
	"github.com/aliskhannn/image-gateway/internal/api/router"
	"github.com/aliskhannn/image-gateway/internal/cache"
	"github.com/aliskhannn/image-gateway/internal/fetch"
	"github.com/aliskhannn/image-gateway/internal/middleware"
	"github.com/aliskhannn/image-gateway/internal/processor"
	imagesvc "github.com/aliskhannn/image-gateway/internal/service/image"
	"github.com/aliskhannn/image-gateway/internal/spec"
)

type gateway struct {
	router http.Handler
	cache  *cache.Cache
}

func newGateway(t *testing.T) gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := fetch.New(fetch.Options{Timeout: 2 * time.Second}, nil)
	c, err := cache.New(16, f)
	require.NoError(t, err)

	p, err := processor.New(processor.Options{Format: "png"})
	require.NoError(t, err)

	svc := imagesvc.NewService(c, p, nil, retry.Strategy{Attempts: 2, Delay: time.Millisecond, Backoff: 1})
	h := image.NewHandler(svc, c, 3600)

	return gateway{router: router.Setup(h), cache: c}
}

func sourcePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}

	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func newOrigin(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photo.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func renderPath(p spec.Pipeline, source string) string {
	return "/image/" + spec.Encode(p) + "/" + url.PathEscape(source)
}

func serve(g gateway, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRenderEndToEnd(t *testing.T) {
	g := newGateway(t)
	origin := newOrigin(t, sourcePNG(t, 64, 48))

	pipeline := spec.Pipeline{
		spec.Resize{Width: 500, Height: 800, Filter: spec.CatmullRom},
		spec.Watermark{X: 20, Y: 20},
		spec.Filter{Kind: spec.Marine},
	}
	w := serve(g, renderPath(pipeline, origin.URL+"/photo.png"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	img, err := imaging.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 500, img.Bounds().Dx())
	assert.Equal(t, 800, img.Bounds().Dy())

	assert.Equal(t, 1, g.cache.Len())
}

func TestRenderReusesCachedSource(t *testing.T) {
	g := newGateway(t)
	origin := newOrigin(t, sourcePNG(t, 10, 10))
	source := origin.URL + "/photo.png"

	for i := 0; i < 3; i++ {
		w := serve(g, renderPath(spec.Pipeline{spec.FlipH{}}, source))
		require.Equal(t, http.StatusOK, w.Code)
	}

	st := g.cache.Stats()
	assert.Equal(t, uint64(1), st.Fetches)
	assert.Equal(t, uint64(2), st.Hits)
}

func TestRenderErrors(t *testing.T) {
	g := newGateway(t)
	origin := newOrigin(t, sourcePNG(t, 10, 10))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := "http://" + ln.Addr().String() + "/photo.png"
	require.NoError(t, ln.Close())

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"malformed spec", "/image/!!!/" + url.PathEscape(origin.URL+"/photo.png"), http.StatusBadRequest},
		{"unknown variant", "/image/AWM/" + url.PathEscape(origin.URL+"/photo.png"), http.StatusBadRequest},
		{"relative url", renderPath(nil, "photo.png"), http.StatusBadRequest},
		{"origin 404", renderPath(nil, origin.URL+"/missing.png"), http.StatusBadGateway},
		{"unreachable origin", renderPath(nil, closed), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(g, tt.path)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var body struct {
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Message)
		})
	}

	assert.Zero(t, g.cache.Len(), "failures must not be cached")
}

func TestRenderUndecodableSource(t *testing.T) {
	g := newGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	t.Cleanup(srv.Close)

	w := serve(g, renderPath(nil, srv.URL+"/photo.png"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type stubService struct{ err error }

func (s stubService) Render(context.Context, string, string) (imagesvc.Result, error) {
	return imagesvc.Result{}, s.err
}

func TestRenderStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"too large", &fetch.Error{Kind: fetch.ErrTooLarge, URL: "x"}, http.StatusRequestEntityTooLarge},
		{"timeout", &fetch.Error{Kind: fetch.ErrTimeout, URL: "x"}, http.StatusGatewayTimeout},
		{"network", &fetch.Error{Kind: fetch.ErrNetwork, URL: "x"}, http.StatusBadGateway},
		{"bad status", &fetch.Error{Kind: fetch.ErrBadStatus, URL: "x", StatusCode: 500}, http.StatusBadGateway},
		{"processing", &processor.Error{Kind: processor.ErrEncode, Step: -1}, http.StatusInternalServerError},
		{"oversized source", &processor.Error{Kind: processor.ErrSourceDecode, Step: -1, Err: processor.ErrSourceTooLarge}, http.StatusRequestEntityTooLarge},
		{"canceled", context.Canceled, image.StatusClientClosedRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := router.Setup(image.NewHandler(stubService{err: tt.err}, nil, 0))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/image/AQ/http%3A%2F%2Forigin.test%2Fa.png", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRenderAppendsQueryToSource(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got string
	svc := recordingService{url: &got}
	r := router.Setup(image.NewHandler(svc, nil, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/image/AQ/https%3A%2F%2Forigin.test%2Fa.png?v=2", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://origin.test/a.png?v=2", got)
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

func TestRenderKeepsPlusInSource(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		path string
	}{
		{"unescaped plus", "/image/AQ/" + url.PathEscape("https://origin.test/a+b.png")},
		{"escaped plus", "/image/AQ/https%3A%2F%2Forigin.test%2Fa%2Bb.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			r := router.Setup(image.NewHandler(recordingService{url: &got}, nil, 0))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "https://origin.test/a+b.png", got)
		})
	}
}

func TestRenderRejectsBadEscape(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got string
	r := router.Setup(image.NewHandler(recordingService{url: &got}, nil, 0))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = "/image/AQ/a%zz"
	req.URL.RawPath = "/image/AQ/a%zz"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, got)
}

type recordingService struct{ url *string }

func (s recordingService) Render(_ context.Context, _ string, rawURL string) (imagesvc.Result, error) {
	*s.url = rawURL
	return imagesvc.Result{Data: []byte("x"), ContentType: "image/png"}, nil
}

func TestHealthAndStats(t *testing.T) {
	g := newGateway(t)

	w := serve(g, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"ok"}`, w.Body.String())

	w = serve(g, "/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Result cache.Stats `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 16, body.Result.Capacity)
}
