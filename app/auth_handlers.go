package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnp2003/captify-ai/app/models"
	"github.com/johnp2003/captify-ai/app/store"
	"github.com/johnp2003/captify-ai/auth"
)

// Health is a public liveness endpoint.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Readyz reports whether the entitlement store answers.
func (s *Server) Readyz(c *gin.Context) {
	if s.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.Ready(ctx); err != nil {
			s.Log.WithError(err).Warn("readiness check failed", nil)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Me returns the signed-in user's profile, balance and latest subscription.
func (s *Server) Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	ctx := c.Request.Context()
	fields := map[string]interface{}{"user_id": claims.Subject}

	user, err := s.Users.GetUser(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.upsertUserFromClaims(ctx, claims)
	}
	if err != nil {
		s.Log.WithError(err).Error("load user failed", fields)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	var subscription *models.Subscription
	sub, err := s.Users.LatestSubscription(ctx, claims.Subject)
	switch {
	case err == nil:
		subscription = &sub
	case errors.Is(err, store.ErrNotFound):
	default:
		s.Log.WithError(err).Error("load subscription failed", fields)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"name":         user.Name,
		"points":       user.Points,
		"subscription": subscription,
	})
}
