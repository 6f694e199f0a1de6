package app

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/auth"
)

// Stripe is configured with the first path; the second is kept for older dashboards.
const (
	WebhookPath      = "/api/stripe/webhook"
	WebhookAliasPath = "/api/webhooks/stripe"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server) *gin.Engine {
	if s.Log == nil {
		s.Log = logger.NewNoOpLogger()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), requestLogger(s.Log))
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins(s.FrontendURL),
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.Health)
	router.GET("/readyz", s.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST(WebhookPath, s.StripeWebhook)
	router.POST(WebhookAliasPath, s.StripeWebhook)

	protected := router.Group("/")
	protected.Use(auth.Middleware(s.Verifier, auth.MiddlewareConfig{
		DisableAuth: s.DisableAuth,
		Logger:      s.Log,
		OnAuthenticated: func(ctx context.Context, claims *auth.Claims) error {
			_, err := s.upsertUserFromClaims(ctx, claims)
			return err
		},
	}))
	protected.GET("/me", s.Me)
	protected.GET("/api/points", s.Points)
	protected.GET("/api/history", s.History)
	protected.POST("/api/generate", s.Generate)
	protected.POST("/api/billing/create-checkout-session", s.CreateCheckoutSession)
	protected.POST("/api/billing/portal-session", s.CreatePortalSession)

	return router
}

func allowOrigins(frontendURL string) []string {
	if frontendURL == "" {
		return []string{"*"}
	}
	return []string{frontendURL}
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok {
			fields["user_id"] = claims.Subject
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields)
		case c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics":
			log.Debug("request", fields)
		default:
			log.Info("request", fields)
		}
	}
}

// currentUserID reads the subject placed in the context by auth.Middleware.
func currentUserID(c *gin.Context) (string, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
