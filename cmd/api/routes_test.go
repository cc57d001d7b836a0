package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auditchain/internal/anchoring"
	"auditchain/internal/auth"
	"auditchain/internal/config"
	"auditchain/internal/contentstore"
	"auditchain/internal/health"
	"auditchain/internal/httpapi"
	"auditchain/internal/journal"
	"auditchain/internal/ledger"
	"auditchain/internal/rbac"

	"github.com/gin-gonic/gin"
)

func newRouter(t *testing.T) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	store := contentstore.NewMemoryStore("https://gateway.pinata.cloud")
	l := ledger.NewMemoryLedger()
	h := httpapi.Handlers{
		Anchor: anchoring.NewOrchestrator(store, l, journal.NewMemoryRepo()),
		Status: anchoring.NewStatusUpdater(l),
		Ledger: l,
		Prober: health.NewProber(store, l),
	}
	r := gin.New()
	registerRoutes(r, h, auth.RequireAccessToken(m), httpapi.UploadCap(nil))
	return r, m
}

func auditRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader(`{"invoice_id":"INV-1","status":"VALIDATED"}`))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRoutes_WriteRoutesRequireToken(t *testing.T) {
	r, _ := newRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, auditRequest(""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRoutes_RoleChecks(t *testing.T) {
	r, m := newRouter(t)
	cases := map[string]int{
		rbac.RoleAuditor:  http.StatusOK,
		rbac.RoleAdmin:    http.StatusOK,
		rbac.RoleOperator: http.StatusForbidden,
		rbac.RoleViewer:   http.StatusForbidden,
	}
	for role, want := range cases {
		tok, err := m.IssueAccess(time.Now(), "u-1", role)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, auditRequest(tok))
		if w.Code != want {
			t.Fatalf("role %s: expected %d, got %d", role, want, w.Code)
		}
	}
}

func TestRoutes_ReadRoutesArePublic(t *testing.T) {
	r, _ := newRouter(t)
	for _, path := range []string{"/healthz", "/api/health", "/api/records"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}
