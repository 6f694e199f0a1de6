// Package billingtest provides in-memory stand-ins for Stripe and the entitlement store.
package billingtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/johnp2003/captify-ai/app/billing"
	"github.com/johnp2003/captify-ai/app/models"
	"github.com/johnp2003/captify-ai/app/store"
)

// NewSubscription builds an active Stripe subscription with one item per price id.
func NewSubscription(id, customerID string, priceIDs ...string) *stripe.Subscription {
	items := make([]*stripe.SubscriptionItem, 0, len(priceIDs))
	for i, p := range priceIDs {
		items = append(items, &stripe.SubscriptionItem{
			ID:    fmt.Sprintf("si_%d", i+1),
			Price: &stripe.Price{ID: p},
		})
	}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := &stripe.Subscription{
		ID:                 id,
		Status:             stripe.SubscriptionStatusActive,
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.AddDate(0, 1, 0).Unix(),
		Items:              &stripe.SubscriptionItemList{Data: items},
	}
	if customerID != "" {
		sub.Customer = &stripe.Customer{ID: customerID}
	}
	return sub
}

// FakeProcessor serves subscriptions from a map.
type FakeProcessor struct {
	mu            sync.Mutex
	Subscriptions map[string]*stripe.Subscription
	Err           error
	Calls         int
	// Delay holds every subscription lookup, honouring the context deadline.
	Delay       time.Duration
	CheckoutURL string
	PortalURL   string
	Checkouts   []billing.CheckoutRequest
}

func NewFakeProcessor(subs ...*stripe.Subscription) *FakeProcessor {
	p := &FakeProcessor{
		Subscriptions: map[string]*stripe.Subscription{},
		CheckoutURL:   "https://checkout.stripe.test/session",
		PortalURL:     "https://billing.stripe.test/portal",
	}
	for _, s := range subs {
		p.Subscriptions[s.ID] = s
	}
	return p
}

func (p *FakeProcessor) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	p.mu.Lock()
	p.Calls++
	delay := p.Delay
	p.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, ok := p.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return sub, nil
}

func (p *FakeProcessor) NewCheckoutSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.Checkouts = append(p.Checkouts, req)
	return p.CheckoutURL, nil
}

func (p *FakeProcessor) NewPortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return p.PortalURL + "?customer=" + customerID + "&return=" + returnURL, nil
}

// MemoryEntitlements implements the store operations used by billing and the HTTP layer.
type MemoryEntitlements struct {
	mu            sync.Mutex
	users         map[string]models.User
	subscriptions map[string]models.Subscription
	content       []models.GeneratedContent

	// Adjustments records every successful points delta in order.
	Adjustments []int64

	UpsertErr error
	AdjustErr error
	SaveErr   error
}

func NewMemoryEntitlements() *MemoryEntitlements {
	return &MemoryEntitlements{
		users:         map[string]models.User{},
		subscriptions: map[string]models.Subscription{},
	}
}

// SetPoints seeds a user balance.
func (m *MemoryEntitlements) SetPoints(userID string, points int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.ID = userID
	u.Points = points
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[userID] = u
}

// Points returns the balance, zero for unknown users.
func (m *MemoryEntitlements) Points(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].Points
}

// Subscription returns a stored subscription by Stripe id.
func (m *MemoryEntitlements) Subscription(id string) (models.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[id]
	return s, ok
}

// WriteCount is the number of subscription rows plus points adjustments.
func (m *MemoryEntitlements) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions) + len(m.Adjustments)
}

// Content returns the saved history entries.
func (m *MemoryEntitlements) Content() []models.GeneratedContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GeneratedContent(nil), m.content...)
}

func (m *MemoryEntitlements) UpsertUser(_ context.Context, u models.User, signupPoints int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		return models.User{}, errors.New("missing user id")
	}
	existing, ok := m.users[u.ID]
	if !ok {
		u.Points = signupPoints
		u.CreatedAt = time.Now().UTC()
		m.users[u.ID] = u
		return u, nil
	}
	if u.Email != "" {
		existing.Email = u.Email
	}
	if u.Name != "" {
		existing.Name = u.Name
	}
	m.users[u.ID] = existing
	return existing, nil
}

func (m *MemoryEntitlements) GetUser(_ context.Context, userID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.User{}, store.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryEntitlements) GetPoints(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, store.ErrUserNotFound
	}
	return u.Points, nil
}

func (m *MemoryEntitlements) AdjustPoints(_ context.Context, userID string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AdjustErr != nil {
		return 0, m.AdjustErr
	}
	u, ok := m.users[userID]
	if delta < 0 {
		if !ok {
			return 0, store.ErrUserNotFound
		}
		if u.Points+delta < 0 {
			return 0, store.ErrInsufficientPoints
		}
	}
	if !ok {
		u = models.User{ID: userID, CreatedAt: time.Now().UTC()}
	}
	u.Points += delta
	m.users[userID] = u
	m.Adjustments = append(m.Adjustments, delta)
	return u.Points, nil
}

func (m *MemoryEntitlements) UpsertSubscription(_ context.Context, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if existing, ok := m.subscriptions[sub.StripeSubscriptionID]; ok && existing.UserID != sub.UserID {
		return store.ErrSubscriptionOwner
	}
	if _, ok := m.users[sub.UserID]; !ok {
		m.users[sub.UserID] = models.User{ID: sub.UserID, CreatedAt: time.Now().UTC()}
	}
	sub.UpdatedAt = time.Now().UTC()
	m.subscriptions[sub.StripeSubscriptionID] = sub
	return nil
}

func (m *MemoryEntitlements) LatestSubscription(_ context.Context, userID string) (models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest models.Subscription
		found  bool
	)
	for _, s := range m.subscriptions {
		if s.UserID == userID && (!found || s.UpdatedAt.After(latest.UpdatedAt)) {
			latest, found = s, true
		}
	}
	if !found {
		return models.Subscription{}, store.ErrNotFound
	}
	return latest, nil
}

func (m *MemoryEntitlements) SaveGeneratedContent(_ context.Context, c models.GeneratedContent) (models.GeneratedContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return models.GeneratedContent{}, m.SaveErr
	}
	if c.ID == "" {
		c.ID = fmt.Sprintf("gc_%d", len(m.content)+1)
	}
	c.CreatedAt = time.Now().UTC().Add(time.Duration(len(m.content)) * time.Millisecond)
	m.content = append(m.content, c)
	return c, nil
}

func (m *MemoryEntitlements) ListGeneratedContent(_ context.Context, userID string, limit int) ([]models.GeneratedContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.GeneratedContent{}
	for _, c := range m.content {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordingPublisher keeps published replay records.
type RecordingPublisher struct {
	mu      sync.Mutex
	Records []models.ReplayRecord
	Err     error
}

func (p *RecordingPublisher) Publish(_ context.Context, rec models.ReplayRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Records = append(p.Records, rec)
	return nil
}
