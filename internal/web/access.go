package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/webharbour/internal/authkit"
	"github.com/tyemirov/webharbour/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// AccessGate is a role-gated route group.
type AccessGate struct {
	Path     string
	Required []authkit.Role
}

// DefaultAccessGates mirrors the marketplace's gated areas: developer app management,
// admin catalog management, and user reviews.
func DefaultAccessGates() []AccessGate {
	return []AccessGate{
		{Path: "/developer", Required: []authkit.Role{authkit.RoleDeveloper}},
		{Path: "/admin", Required: []authkit.Role{authkit.RoleAdmin}},
		{Path: "/reviews", Required: []authkit.Role{authkit.RoleUser}},
	}
}

// MountAccessGates registers GET <gate>/access behind authentication and the gate's role check.
func MountAccessGates(router gin.IRouter, validator *sessionvalidator.Validator, logger *zap.Logger, gates []AccessGate) {
	for _, gate := range gates {
		group := router.Group(gate.Path)
		group.Use(authkit.RequireAuthentication(validator), authkit.RequireRole(gate.Required...))
		group.GET("/access", HandleAccessProbe(logger))
	}
}

// HandleAccessProbe echoes the admitted caller's identity and grants.
func HandleAccessProbe(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		claims, ok := sessionvalidator.ClaimsFromContext(contextGin, authkit.ClaimsContextKey)
		if !ok {
			logger.Warn("missing auth claims on context",
				zap.String("code", "api.access.missing_claims"))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing or invalid token"})
			return
		}
		role, _ := authkit.ParseRole(claims.UserRole)
		expiresAt := claims.GetExpiresAt()
		contextGin.JSON(http.StatusOK, gin.H{
			"id":      claims.UserID,
			"email":   claims.UserEmail,
			"role":    role,
			"grants":  role.Grants(),
			"expires": expiresAt.UTC().Format(time.RFC3339),
		})
	}
}
