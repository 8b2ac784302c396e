package authkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/webharbour/pkg/sessionvalidator"
)

// ClaimsContextKey is where RequireAuthentication stores the caller's claims.
const ClaimsContextKey = sessionvalidator.DefaultContextKey

// RequireAuthentication validates the bearer access token and injects claims.
func RequireAuthentication(validator *sessionvalidator.Validator) gin.HandlerFunc {
	return validator.GinMiddleware(ClaimsContextKey)
}

// RequireRole admits callers whose role grants intersect required.
// A request without authenticated claims is always rejected.
func RequireRole(required ...Role) gin.HandlerFunc {
	requiredRoles := append([]Role(nil), required...)
	return func(contextGin *gin.Context) {
		claims, ok := sessionvalidator.ClaimsFromContext(contextGin, ClaimsContextKey)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}
		callerRole, _ := ParseRole(claims.UserRole)
		if err := Authorize(callerRole, requiredRoles...); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}
		contextGin.Next()
	}
}
