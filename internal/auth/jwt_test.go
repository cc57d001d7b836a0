package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auditchain/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0).UTC()

	tok, err := m.IssueAccess(now, "ops-1", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "ops-1" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0).UTC()
	tok, _ := m.IssueAccess(now, "ops-1", "operator")
	if _, err := m.Verify(tok, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsOtherIssuer(t *testing.T) {
	now := time.Now()
	other, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "someone-else", JWTAudience: "aud"})
	tok, _ := other.IssueAccess(now, "ops-1", "operator")
	if _, err := testManager(t).Verify(tok, now); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := testManager(t)
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops-1",
			Issuer:    "issuer",
			Audience:  jwt.ClaimStrings{"aud"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Role:      "operator",
		TokenType: "refresh",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(tok, now); !errors.Is(err, ErrTokenType) {
		t.Fatalf("expected ErrTokenType, got %v", err)
	}
}

func TestIssueRequiresSubjectAndRole(t *testing.T) {
	m := testManager(t)
	if _, err := m.IssueAccess(time.Now(), "", "operator"); !errors.Is(err, ErrSubjectMissing) {
		t.Fatalf("expected ErrSubjectMissing, got %v", err)
	}
	if _, err := m.IssueAccess(time.Now(), "ops-1", ""); !errors.Is(err, ErrRoleMissing) {
		t.Fatalf("expected ErrRoleMissing, got %v", err)
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := testManager(t)

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		sub, _ := Subject(c.Request.Context())
		role, _ := Role(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"sub": sub, "role": role})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	tok, _ := m.IssueAccess(time.Now(), "ops-1", "auditor")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
