package logger

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddleware_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(slog.Default()))

	var fromCtx, fromGin *slog.Logger
	r.GET("/ping", func(c *gin.Context) {
		fromGin = FromGin(c)
		fromCtx = From(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "rid-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "rid-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	if fromGin == nil || fromCtx == nil {
		t.Fatalf("expected request loggers")
	}
	if fromGin != fromCtx {
		t.Fatalf("expected same logger in gin and request context")
	}
}

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(slog.Default()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestMiddleware_QuietPathsLogOnlyFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Middleware(l, "/healthz"))
	healthy := true
	r.GET("/healthz", func(c *gin.Context) {
		if healthy {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusServiceUnavailable)
	})
	r.GET("/v1/things", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Fatalf("expected successful health check to stay quiet, got %s", buf.String())
	}

	healthy = false
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/things", nil))
	out := buf.String()
	if strings.Count(out, `"msg":"request"`) != 2 || !strings.Contains(out, `"status":503`) {
		t.Fatalf("expected failed health check and normal request logged, got %s", out)
	}
}
