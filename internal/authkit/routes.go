package authkit

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tyemirov/webharbour/pkg/sessionvalidator"
	"go.uber.org/zap"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

const (
	registerFieldsMessage = "name, email, and password are required"
	loginFieldsMessage    = "email and password are required"
	refreshFieldsMessage  = "refreshToken is required"
)

var errMissingClaims = fmt.Errorf("auth.claims_missing: %w", ErrUnauthorized)

// MountAuthRoutes registers /auth/register, /auth/login, /auth/refresh, /auth/become-developer, and /auth/me.
func MountAuthRoutes(router gin.IRouter, service *SessionService, tokenValidator *sessionvalidator.Validator, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	authGroup := router.Group("/auth")

	authGroup.POST("/register", func(contextGin *gin.Context) {
		var inbound registerRequest
		if !bindRequest(contextGin, logger, &inbound, registerFieldsMessage) {
			return
		}
		user, err := service.Register(contextGin.Request.Context(), RegisterInput{
			Name:     inbound.Name,
			Email:    inbound.Email,
			Password: inbound.Password,
		})
		if err != nil {
			writeServiceError(contextGin, logger, err)
			return
		}
		contextGin.JSON(http.StatusCreated, user)
	})

	authGroup.POST("/login", func(contextGin *gin.Context) {
		var inbound loginRequest
		if !bindRequest(contextGin, logger, &inbound, loginFieldsMessage) {
			return
		}
		result, err := service.Login(contextGin.Request.Context(), LoginInput{Email: inbound.Email, Password: inbound.Password})
		if err != nil {
			writeServiceError(contextGin, logger, err)
			return
		}
		contextGin.JSON(http.StatusOK, result)
	})

	authGroup.POST("/refresh", func(contextGin *gin.Context) {
		var inbound refreshRequest
		if !bindRequest(contextGin, logger, &inbound, refreshFieldsMessage) {
			return
		}
		result, err := service.Refresh(contextGin.Request.Context(), inbound.RefreshToken)
		if err != nil {
			writeServiceError(contextGin, logger, err)
			return
		}
		contextGin.JSON(http.StatusOK, result)
	})

	protected := authGroup.Group("")
	protected.Use(RequireAuthentication(tokenValidator))
	protected.POST("/become-developer", handleBecomeDeveloper(service, logger))
	protected.GET("/me", handleCurrentUser(service, logger))
}

func handleBecomeDeveloper(service *SessionService, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims, ok := sessionvalidator.ClaimsFromContext(contextGin, ClaimsContextKey)
		if !ok {
			writeServiceError(contextGin, logger, errMissingClaims)
			return
		}
		result, err := service.BecomeDeveloper(contextGin.Request.Context(), claims.UserID)
		if err != nil {
			writeServiceError(contextGin, logger, err)
			return
		}
		contextGin.JSON(http.StatusOK, result)
	}
}

func handleCurrentUser(service *SessionService, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims, ok := sessionvalidator.ClaimsFromContext(contextGin, ClaimsContextKey)
		if !ok {
			writeServiceError(contextGin, logger, errMissingClaims)
			return
		}
		user, err := service.CurrentUser(contextGin.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				logger.Warn("token subject missing",
					zap.String("code", "auth.me.user_missing"),
					zap.String("user_id", claims.UserID))
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
				return
			}
			writeServiceError(contextGin, logger, err)
			return
		}
		contextGin.JSON(http.StatusOK, user)
	}
}

// bindRequest decodes the body and applies binding tags. An empty body or a missing
// required field is reported with missingMessage; the service repeats the check after trimming.
func bindRequest(contextGin *gin.Context, logger *zap.Logger, target any, missingMessage string) bool {
	err := contextGin.ShouldBindJSON(target)
	if err == nil {
		return true
	}
	var fieldErrors validator.ValidationErrors
	if errors.Is(err, io.EOF) || errors.As(err, &fieldErrors) {
		writeServiceError(contextGin, logger, NewValidationError(missingMessage))
		return false
	}
	contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "request body must be valid JSON"})
	return false
}

func writeServiceError(contextGin *gin.Context, logger *zap.Logger, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": validationErr.Message})
	case errors.Is(err, ErrConflict):
		contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "Email already registered"})
	case errors.Is(err, ErrInvalidCredentials):
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
	case errors.Is(err, ErrInvalidRefreshToken):
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid refresh token"})
	case errors.Is(err, ErrUnauthorized):
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing or invalid token"})
	case errors.Is(err, ErrNotFound):
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "User not found"})
	case errors.Is(err, ErrForbidden):
		contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
	default:
		logger.Error("auth request failed",
			zap.String("code", "auth.internal"),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
	}
}
