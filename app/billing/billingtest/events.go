package billingtest

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// EventPayload renders a Stripe event envelope around object.
func EventPayload(eventID, eventType string, object map[string]interface{}) []byte {
	b, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return b
}

// CheckoutCompleted renders a checkout.session.completed event. Empty ids are omitted.
func CheckoutCompleted(eventID, userID, subscriptionID string) []byte {
	obj := map[string]interface{}{
		"id":       "cs_test_" + eventID,
		"object":   "checkout.session",
		"mode":     "subscription",
		"customer": "cus_test",
	}
	if userID != "" {
		obj["client_reference_id"] = userID
	}
	if subscriptionID != "" {
		obj["subscription"] = subscriptionID
	}
	return EventPayload(eventID, string(stripe.EventTypeCheckoutSessionCompleted), obj)
}

// Sign produces a Stripe-Signature header for payload.
func Sign(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}
