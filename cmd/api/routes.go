package main

import (
	"net/http"

	"auditchain/internal/httpapi"
	"auditchain/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW, uploadCap gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// Read routes are public.
	api.POST("/verify", h.Verify)
	api.GET("/records", h.Records)
	api.GET("/health", h.Health)

	// Write routes append to the ledger and require an operator token.
	write := api.Group("")
	write.Use(authMW)
	{
		write.POST("/upload-full", rbac.RequireAnyRole(rbac.RoleOperator), uploadCap, h.UploadFull)
		write.GET("/anchors", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleAuditor), h.Attempts)
		write.POST("/anchors/:attempt_id/resubmit", rbac.RequireAnyRole(rbac.RoleOperator), h.Resubmit)
		write.POST("/audit", rbac.RequireAnyRole(rbac.RoleAuditor), h.Audit)
	}
}
