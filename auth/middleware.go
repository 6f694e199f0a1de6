package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/johnp2003/captify-ai/app/logger"
)

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	PublicPaths map[string]bool
	// DisableAuth injects LocalSubject instead of verifying a token. Only honoured for
	// local environments by the caller.
	DisableAuth bool
	Logger      logger.Logger
	// OnAuthenticated runs after the claims are placed in the context. An error aborts
	// the request with 500.
	OnAuthenticated func(ctx context.Context, claims *Claims) error
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return func(c *gin.Context) {
		if cfg.PublicPaths != nil && cfg.PublicPaths[c.FullPath()] {
			c.Next()
			return
		}

		var claims *Claims
		if cfg.DisableAuth {
			claims = &Claims{
				Subject: LocalSubject,
				Issuer:  "local",
				Raw:     map[string]any{"sub": LocalSubject},
			}
		} else {
			fields := map[string]interface{}{"path": c.Request.URL.Path}
			if verifier == nil {
				respondUnauthorized(c, "auth verifier not configured")
				return
			}

			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				log.Warn("auth failure: missing Authorization header", fields)
				respondUnauthorized(c, "missing authorization header")
				return
			}

			token, ok := extractBearerToken(authHeader)
			if !ok {
				log.Warn("auth failure: malformed Authorization header", fields)
				respondUnauthorized(c, "invalid authorization header")
				return
			}

			verified, err := verifier.Verify(token)
			if err != nil {
				log.WithError(err).Warn("auth failure: token invalid", fields)
				respondUnauthorized(c, "invalid token")
				return
			}
			claims = verified
		}

		ctx := WithClaims(c.Request.Context(), claims)
		c.Request = c.Request.WithContext(ctx)

		if cfg.OnAuthenticated != nil {
			if err := cfg.OnAuthenticated(ctx, claims); err != nil {
				log.WithError(err).Error("post-auth hook failed", map[string]interface{}{"user_id": claims.Subject})
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
				return
			}
		}
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
