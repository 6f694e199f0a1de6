package app

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnp2003/captify-ai/app/billing"
	"github.com/johnp2003/captify-ai/app/metrics"
	"github.com/johnp2003/captify-ai/app/store"
	"github.com/johnp2003/captify-ai/auth"
)

const maxWebhookBodyBytes = 64 << 10

// StripeWebhook verifies a Stripe delivery and reconciles checkout completions into
// subscriptions and points. Non-2xx responses make Stripe retry.
func (s *Server) StripeWebhook(c *gin.Context) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
			c.JSON(status, gin.H{"error": "payload too large"})
			return
		}
		s.Log.WithError(err).Warn("stripe webhook read failed", nil)
		status = http.StatusBadRequest
		c.JSON(status, gin.H{"error": "invalid payload"})
		return
	}

	res, err := s.Reconciler.HandleWebhook(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	if res.EventType != "" {
		eventType = res.EventType
	}
	status = billing.HTTPStatus(err)
	switch {
	case err == nil:
		c.JSON(status, gin.H{"received": true})
	case errors.Is(err, billing.ErrInvalidSignature):
		c.String(status, "Webhook Error: %s", err.Error())
	case status < http.StatusInternalServerError:
		c.JSON(status, gin.H{"error": err.Error()})
	default:
		// The reconciler has already logged the details.
		c.JSON(status, gin.H{"error": "webhook processing failed"})
	}
}

type checkoutRequest struct {
	PriceID string `json:"priceId" binding:"required"`
}

// CreateCheckoutSession starts a subscription Checkout Session for the authenticated user.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if _, err := s.Plans.Resolve(req.PriceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown price"})
		return
	}
	if s.FrontendURL == "" {
		s.Log.Error("FRONTEND_URL not configured", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	url, err := s.Checkout.NewCheckoutSession(c.Request.Context(), billing.CheckoutRequest{
		UserID:     claims.Subject,
		Email:      claims.Email,
		PriceID:    req.PriceID,
		SuccessURL: s.FrontendURL + "/dashboard?checkout=success",
		CancelURL:  s.FrontendURL + "/pricing?checkout=cancelled",
	})
	if err != nil {
		s.Log.WithError(err).Error("stripe checkout session failed", map[string]interface{}{
			"user_id":  claims.Subject,
			"price_id": req.PriceID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// CreatePortalSession opens the Stripe billing portal for the user's latest subscription.
func (s *Server) CreatePortalSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	fields := map[string]interface{}{"user_id": userID}

	sub, err := s.Users.LatestSubscription(c.Request.Context(), userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sub.StripeCustomerID == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}
	if err != nil {
		s.Log.WithError(err).Error("portal lookup failed", fields)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}
	if s.FrontendURL == "" {
		s.Log.Error("FRONTEND_URL not configured", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	url, err := s.Checkout.NewPortalSession(c.Request.Context(), sub.StripeCustomerID, s.FrontendURL+"/settings/billing")
	if err != nil {
		s.Log.WithError(err).Error("stripe portal session failed", fields)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
