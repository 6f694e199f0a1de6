// Package app wires the HTTP surface shared by local and Lambda execution.
package app

import (
	"context"

	"github.com/johnp2003/captify-ai/app/billing"
	"github.com/johnp2003/captify-ai/app/generate"
	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/models"
	"github.com/johnp2003/captify-ai/auth"
)

// UserStore is the read side of the entitlement store plus user creation.
type UserStore interface {
	UpsertUser(ctx context.Context, u models.User, signupPoints int64) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetPoints(ctx context.Context, userID string) (int64, error)
	LatestSubscription(ctx context.Context, userID string) (models.Subscription, error)
	ListGeneratedContent(ctx context.Context, userID string, limit int) ([]models.GeneratedContent, error)
}

type Generator interface {
	Generate(ctx context.Context, userID string, req generate.Request) (generate.Result, error)
}

type CheckoutProvider interface {
	NewCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (string, error)
	NewPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (billing.Result, error)
}

// Server holds the handler dependencies. Handlers are methods so tests can swap any
// collaborator.
type Server struct {
	Users      UserStore
	Generator  Generator
	Checkout   CheckoutProvider
	Reconciler WebhookReconciler
	Plans      billing.PlanTable
	Verifier   *auth.Verifier
	Log        logger.Logger

	FrontendURL   string
	SignupPoints  int64
	MaxImageBytes int
	// DisableAuth is only set for local runs.
	DisableAuth bool
	// Ready backs /readyz; nil reports ready.
	Ready func(ctx context.Context) error
}
