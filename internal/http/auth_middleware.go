package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/security"
	log "github.com/sirupsen/logrus"
)

// PrincipalMiddleware attaches the caller identified by a bearer JWT to the request context.
// Requests without an Authorization header continue as anonymous; a malformed or invalid
// token is rejected. An empty secret disables token checks entirely.
func PrincipalMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(secret) == "" {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format", "code": "UNAUTHORIZED"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token", "code": "UNAUTHORIZED"})
			return
		}

		claims, errJWT := security.ParseToken(secret, token)
		if errJWT != nil {
			message := "invalid token"
			if errors.Is(errJWT, security.ErrExpiredToken) {
				message = "token expired"
			}
			log.WithField("request_id", c.GetString(requestIDKey)).Debug("rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "code": "UNAUTHORIZED"})
			return
		}

		principal := crud.Principal{Subject: claims.Subject, Role: claims.Role}
		c.Set("principal", principal)
		c.Request = c.Request.WithContext(crud.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}
