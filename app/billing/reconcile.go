package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/metrics"
	"github.com/johnp2003/captify-ai/app/models"
	"github.com/johnp2003/captify-ai/app/store"
)

// Entitlements is the write side of the entitlement store.
type Entitlements interface {
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	AdjustPoints(ctx context.Context, userID string, delta int64) (int64, error)
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what a delivery did.
type Result struct {
	EventID        string      `json:"eventId"`
	EventType      string      `json:"eventType"`
	Outcome        Outcome     `json:"outcome"`
	UserID         string      `json:"userId,omitempty"`
	SubscriptionID string      `json:"subscriptionId,omitempty"`
	PriceID        string      `json:"priceId,omitempty"`
	Plan           models.Plan `json:"plan,omitempty"`
	PointsGranted  int64       `json:"pointsGranted,omitempty"`
	Balance        int64       `json:"balance,omitempty"`
}

// ApplyInput is a verified checkout completion, from a webhook, the replay queue or an
// operator.
type ApplyInput struct {
	EventID        string
	EventType      string
	UserID         string
	SubscriptionID string
	CustomerID     string
}

type ReconcilerConfig struct {
	WebhookSecret string
	Plans         PlanTable
	// DedupEvents enables event-id deduplication through the ledger. When false every
	// verified delivery is applied.
	DedupEvents   bool
	LookupTimeout time.Duration
}

// Reconciler turns checkout.session.completed events into a subscription row and a
// points grant.
type Reconciler struct {
	cfg       ReconcilerConfig
	processor Processor
	store     Entitlements
	ledger    EventLedger
	replay    ReplayPublisher
	log       logger.Logger
}

func NewReconciler(cfg ReconcilerConfig, processor Processor, st Entitlements, ledger EventLedger, replay ReplayPublisher, log logger.Logger) (*Reconciler, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.New("webhook secret is required")
	}
	if len(cfg.Plans) == 0 {
		return nil, errors.New("plan table is empty")
	}
	if processor == nil || st == nil {
		return nil, errors.New("processor and entitlement store are required")
	}
	if cfg.DedupEvents && ledger == nil {
		return nil, errors.New("event ledger is required when deduplication is enabled")
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	if replay == nil {
		replay = LogReplayPublisher{Log: log}
	}
	return &Reconciler{
		cfg:       cfg,
		processor: processor,
		store:     st,
		ledger:    ledger,
		replay:    replay,
		log:       log,
	}, nil
}

// Plans returns the configured plan table.
func (r *Reconciler) Plans() PlanTable {
	return r.cfg.Plans
}

// HandleWebhook verifies a raw Stripe delivery and applies it. payload must be the
// unparsed request body.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (Result, error) {
	if sigHeader == "" {
		r.log.Warn("stripe webhook without signature header", nil)
		return Result{Outcome: OutcomeFailed}, ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		sigHeader,
		r.cfg.WebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		r.log.WithError(err).Warn("stripe webhook signature verification failed", nil)
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	res := Result{EventID: event.ID, EventType: string(event.Type)}
	log := r.log.With(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": res.EventType,
	})

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		log.Debug("ignoring stripe event", nil)
		res.Outcome = OutcomeIgnored
		metrics.ReconciliationsTotal.WithLabelValues(string(OutcomeIgnored)).Inc()
		return res, nil
	}
	if event.Data == nil {
		return r.fail(log, res, fmt.Errorf("%w: event has no data", ErrMalformedEvent))
	}

	checkout, err := DecodeCheckoutCompleted(event.Data.Raw)
	res.UserID = checkout.UserID
	res.SubscriptionID = checkout.SubscriptionID
	if err != nil {
		return r.fail(log, res, err)
	}

	return r.ApplyOnce(ctx, ApplyInput{
		EventID:        event.ID,
		EventType:      res.EventType,
		UserID:         checkout.UserID,
		SubscriptionID: checkout.SubscriptionID,
		CustomerID:     checkout.CustomerID,
	})
}

// ApplyOnce applies a verified event, claiming its id first when deduplication is on.
// A completed event is a no-op; a failed one releases its claim so the next delivery
// re-runs it.
func (r *Reconciler) ApplyOnce(ctx context.Context, in ApplyInput) (Result, error) {
	return r.applyOnce(ctx, in, true)
}

// Replay re-applies a record taken from the replay queue. Failures are not republished;
// the message stays on the queue instead.
func (r *Reconciler) Replay(ctx context.Context, rec models.ReplayRecord) error {
	_, err := r.applyOnce(ctx, ApplyInput{
		EventID:        rec.EventID,
		EventType:      rec.EventType,
		UserID:         rec.UserID,
		SubscriptionID: rec.SubscriptionID,
	}, false)
	return err
}

func (r *Reconciler) applyOnce(ctx context.Context, in ApplyInput, publishOnPartial bool) (Result, error) {
	res := Result{
		EventID:        in.EventID,
		EventType:      in.EventType,
		UserID:         in.UserID,
		SubscriptionID: in.SubscriptionID,
	}
	log := r.log.With(map[string]interface{}{
		"event_id":        in.EventID,
		"event_type":      in.EventType,
		"user_id":         in.UserID,
		"subscription_id": in.SubscriptionID,
	})

	if !r.cfg.DedupEvents || in.EventID == "" {
		return r.apply(ctx, log, in, publishOnPartial)
	}

	state, err := r.ledger.Claim(ctx, in.EventID)
	if err != nil {
		return r.fail(log, res, fmt.Errorf("%w: event ledger: %v", ErrStoreUnavailable, err))
	}
	switch state {
	case AlreadyProcessed:
		log.Info("stripe event already processed", nil)
		res.Outcome = OutcomeDuplicate
		metrics.ReconciliationsTotal.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return res, nil
	case InFlight:
		return r.fail(log, res, ErrEventInFlight)
	}

	res, err = r.apply(ctx, log, in, publishOnPartial)
	// Ledger bookkeeping must survive a client disconnect.
	bookCtx := context.WithoutCancel(ctx)
	if err != nil {
		if relErr := r.ledger.Release(bookCtx, in.EventID); relErr != nil {
			log.WithError(relErr).Error("release stripe event claim failed", nil)
		}
		return res, err
	}
	if err := r.ledger.Complete(bookCtx, in.EventID); err != nil {
		// The grant is already applied; failing here would invite a second grant.
		log.WithError(err).Error("mark stripe event complete failed", nil)
	}
	return res, nil
}

// Apply runs the reconciliation steps without touching the ledger. It is exported for
// operator tooling.
func (r *Reconciler) Apply(ctx context.Context, in ApplyInput) (Result, error) {
	log := r.log.With(map[string]interface{}{
		"event_id":        in.EventID,
		"user_id":         in.UserID,
		"subscription_id": in.SubscriptionID,
	})
	return r.apply(ctx, log, in, false)
}

func (r *Reconciler) apply(ctx context.Context, log logger.Logger, in ApplyInput, publishOnPartial bool) (Result, error) {
	res := Result{
		EventID:        in.EventID,
		EventType:      in.EventType,
		UserID:         in.UserID,
		SubscriptionID: in.SubscriptionID,
	}
	if in.UserID == "" || in.SubscriptionID == "" {
		return r.fail(log, res, ErrMissingCorrelation)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	sub, err := r.processor.GetSubscription(lookupCtx, in.SubscriptionID)
	cancel()
	if err != nil {
		if !errors.Is(err, ErrProcessorUnavailable) {
			err = fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}
		return r.fail(log, res, err)
	}
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return r.fail(log, res, ErrNoLineItems)
	}

	item := sub.Items.Data[0]
	if item != nil && item.Price != nil {
		res.PriceID = item.Price.ID
	}
	log = log.With(map[string]interface{}{"price_id": res.PriceID})

	plan, err := r.cfg.Plans.Resolve(res.PriceID)
	if err != nil {
		return r.fail(log, res, err)
	}
	res.Plan = plan.Name

	customerID := in.CustomerID
	if sub.Customer != nil && sub.Customer.ID != "" {
		customerID = sub.Customer.ID
	}
	record := models.Subscription{
		UserID:               in.UserID,
		StripeSubscriptionID: in.SubscriptionID,
		StripeCustomerID:     customerID,
		Plan:                 plan.Name,
		Status:               string(sub.Status),
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if err := r.store.UpsertSubscription(ctx, record); err != nil {
		if errors.Is(err, store.ErrSubscriptionOwner) {
			return r.fail(log, res, ErrSubscriptionOwner)
		}
		return r.fail(log, res, fmt.Errorf("%w: upsert subscription: %v", ErrStoreUnavailable, err))
	}

	balance, err := r.store.AdjustPoints(ctx, in.UserID, plan.Points)
	if err != nil {
		if publishOnPartial {
			r.publishReplay(ctx, log, res, err)
		}
		return r.fail(log, res, fmt.Errorf("%w: %v", ErrPartialGrant, err))
	}

	res.Outcome = OutcomeApplied
	res.PointsGranted = plan.Points
	res.Balance = balance
	metrics.ReconciliationsTotal.WithLabelValues(string(OutcomeApplied)).Inc()
	metrics.PointsGrantedTotal.WithLabelValues(string(plan.Name)).Add(float64(plan.Points))
	log.Info("checkout reconciled", map[string]interface{}{
		"plan":    string(plan.Name),
		"points":  plan.Points,
		"balance": balance,
	})
	return res, nil
}

func (r *Reconciler) publishReplay(ctx context.Context, log logger.Logger, res Result, cause error) {
	rec := models.ReplayRecord{
		EventID:        res.EventID,
		EventType:      res.EventType,
		UserID:         res.UserID,
		SubscriptionID: res.SubscriptionID,
		PriceID:        res.PriceID,
		Reason:         cause.Error(),
		FailedAt:       time.Now().UTC(),
	}
	if err := r.replay.Publish(context.WithoutCancel(ctx), rec); err != nil {
		log.WithError(err).Error("publish replay record failed, manual replay required", map[string]interface{}{
			"reason": rec.Reason,
		})
	}
}

func (r *Reconciler) fail(log logger.Logger, res Result, err error) (Result, error) {
	res.Outcome = OutcomeFailed
	metrics.ReconciliationsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
	if HTTPStatus(err) < 500 {
		log.WithError(err).Warn("stripe event rejected", nil)
	} else {
		log.WithError(err).Error("stripe event failed", nil)
	}
	return res, err
}
