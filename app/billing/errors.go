package billing

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Authenticity.
	ErrMissingSignature = errors.New("missing Stripe-Signature header")
	ErrInvalidSignature = errors.New("signature verification failed")

	// Malformed events are permanent for the delivery.
	ErrMalformedEvent     = errors.New("malformed event")
	ErrMissingCorrelation = fmt.Errorf("%w: missing client_reference_id or subscription", ErrMalformedEvent)
	ErrNoLineItems        = fmt.Errorf("%w: subscription has no line items", ErrMalformedEvent)
	ErrSubscriptionOwner  = fmt.Errorf("%w: subscription belongs to another user", ErrMalformedEvent)

	// ErrUnknownPrice means the billing catalog and the deployed plan table disagree.
	ErrUnknownPrice = errors.New("unknown price id")

	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrStoreUnavailable     = errors.New("entitlement store unavailable")
	ErrEventInFlight        = errors.New("event is already being processed")

	// ErrPartialGrant means the subscription was written but the points grant was not.
	ErrPartialGrant = errors.New("subscription saved but points grant failed")
)

// HTTPStatus maps a reconciliation error to the status returned to Stripe.
// Client errors stop retries; everything else asks Stripe to retry.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingSignature),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMalformedEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
