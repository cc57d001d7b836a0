package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakeLimiter struct {
	allow    bool
	err      error
	acquired []string
	released []string
}

func (f *fakeLimiter) Acquire(_ context.Context, key string) (bool, error) {
	f.acquired = append(f.acquired, key)
	return f.allow, f.err
}

func (f *fakeLimiter) Release(_ context.Context, key string) error {
	f.released = append(f.released, key)
	return nil
}

func capRouter(l Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/up", UploadCap(l), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestUploadCap_AcquiresAndReleases(t *testing.T) {
	l := &fakeLimiter{allow: true}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/up", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	capRouter(l).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(l.acquired) != 1 || l.acquired[0] != "10.0.0.7" || len(l.released) != 1 {
		t.Fatalf("unexpected limiter calls: %+v", l)
	}
}

func TestUploadCap_RejectsOverLimit(t *testing.T) {
	l := &fakeLimiter{allow: false}
	w := httptest.NewRecorder()
	capRouter(l).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/up", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if len(l.released) != 0 {
		t.Fatalf("rejected request must not release a slot")
	}
}

func TestUploadCap_FailsOpen(t *testing.T) {
	l := &fakeLimiter{err: errors.New("redis down")}
	w := httptest.NewRecorder()
	capRouter(l).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/up", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", w.Code)
	}
}

func TestUploadCap_NilLimiter(t *testing.T) {
	w := httptest.NewRecorder()
	capRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/up", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
