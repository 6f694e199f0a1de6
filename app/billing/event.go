package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v79"
	"github.com/xeipuuv/gojsonschema"
)

// EventCheckoutCompleted is the only event type that changes entitlements.
const EventCheckoutCompleted = string(stripe.EventTypeCheckoutSessionCompleted)

// checkoutSessionSchema covers the fields read from a checkout session. Correlation
// fields may be null here; their absence is reported as ErrMissingCorrelation.
const checkoutSessionSchema = `{
	"type": "object",
	"required": ["id", "object"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"object": {"const": "checkout.session"},
		"client_reference_id": {"type": ["string", "null"]},
		"subscription": {
			"oneOf": [
				{"type": ["string", "null"]},
				{"type": "object", "required": ["id"], "properties": {"id": {"type": "string"}}}
			]
		},
		"customer": {
			"oneOf": [
				{"type": ["string", "null"]},
				{"type": "object", "required": ["id"], "properties": {"id": {"type": "string"}}}
			]
		}
	}
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func checkoutSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(checkoutSessionSchema))
	})
	return schema, schemaErr
}

// CheckoutCompleted is the typed view of a checkout.session.completed payload.
type CheckoutCompleted struct {
	SessionID      string
	UserID         string
	SubscriptionID string
	CustomerID     string
}

// DecodeCheckoutCompleted validates the event's data object and extracts the correlation
// fields. Both the user id and the subscription id are required.
func DecodeCheckoutCompleted(raw json.RawMessage) (CheckoutCompleted, error) {
	s, err := checkoutSchema()
	if err != nil {
		return CheckoutCompleted{}, fmt.Errorf("compile checkout schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return CheckoutCompleted{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !res.Valid() {
		errs := make([]string, len(res.Errors()))
		for i, desc := range res.Errors() {
			errs[i] = desc.String()
		}
		return CheckoutCompleted{}, fmt.Errorf("%w: %s", ErrMalformedEvent, strings.Join(errs, "; "))
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return CheckoutCompleted{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out := CheckoutCompleted{
		SessionID: sess.ID,
		UserID:    strings.TrimSpace(sess.ClientReferenceID),
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if out.UserID == "" || out.SubscriptionID == "" {
		return out, ErrMissingCorrelation
	}
	return out, nil
}
