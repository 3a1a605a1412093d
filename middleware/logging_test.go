package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestRequestIDAndLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(RequestID(), Logger(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("echoed request id = %q", got)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.InfoLevel || entry.Data["request_id"] != "req-42" || entry.Data["status"] != 200 {
		t.Errorf("log entry = %+v", entry)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("request id not generated")
	}
	if entry := hook.LastEntry(); entry.Level != logrus.ErrorLevel {
		t.Errorf("5xx logged at %s", entry.Level)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/api/gallery", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/gallery", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/gallery", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin was allowed")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
