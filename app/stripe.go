package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/johnp2003/captify-ai/app/billing"
	"github.com/johnp2003/captify-ai/app/config"
	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/store"
)

// Billing is the reconciliation stack built from configuration.
type Billing struct {
	Processor  *billing.StripeProcessor
	Reconciler *billing.Reconciler
	Plans      billing.PlanTable
	// ReplayQueue is nil when STRIPE_REPLAY_QUEUE_URL is unset.
	ReplayQueue *billing.SQSReplayQueue
}

// NewBilling wires the Stripe client, event ledger and replay queue. rdb may be nil, in
// which case the ledger only deduplicates within this process.
func NewBilling(ctx context.Context, cfg *config.Config, st *store.Store, rdb *redis.Client, log logger.Logger) (*Billing, error) {
	plans, err := billing.ParsePlanTable(cfg.Stripe.Plans)
	if err != nil {
		return nil, fmt.Errorf("STRIPE_PLANS: %w", err)
	}

	processor, err := billing.NewStripeProcessor(cfg.Stripe.SecretKey)
	if err != nil {
		return nil, err
	}

	var ledger billing.EventLedger
	if rdb != nil {
		ledger = billing.NewRedisLedger(rdb, cfg.Stripe.EventInflight, cfg.Stripe.EventDoneTTL)
	} else {
		if cfg.Stripe.DedupEvents {
			log.Warn("REDIS_ADDR not set; webhook dedup is process-local", nil)
		}
		ledger = billing.NewMemoryLedger(cfg.Stripe.EventInflight, cfg.Stripe.EventDoneTTL)
	}

	b := &Billing{Processor: processor, Plans: plans}

	var replay billing.ReplayPublisher
	if cfg.Stripe.ReplayQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		b.ReplayQueue = billing.NewSQSReplayQueue(sqs.NewFromConfig(awsCfg), cfg.Stripe.ReplayQueueURL, log)
		replay = b.ReplayQueue
	}

	b.Reconciler, err = billing.NewReconciler(billing.ReconcilerConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Plans:         plans,
		DedupEvents:   cfg.Stripe.DedupEvents,
		LookupTimeout: cfg.Stripe.LookupTimeout,
	}, processor, st, ledger, replay, log)
	if err != nil {
		return nil, err
	}

	log.Info("billing configured", map[string]interface{}{
		"plans":        plans.PriceIDs(),
		"dedup_events": cfg.Stripe.DedupEvents,
		"replay_queue": cfg.Stripe.ReplayQueueURL != "",
	})
	return b, nil
}
