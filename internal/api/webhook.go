package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/carebook/clinic-booking/internal/booking"
)

// Keep oversized payloads from being read; Stripe events are small.
const maxWebhookBody = 65536

// PaymentReconciler is the slice of the reconciler the webhook needs.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, transactionID string, outcome booking.Outcome) error
}

// paymentWebhookHandler receives Stripe's asynchronous payment outcomes.
// The signature check runs before anything in the payload is trusted; an
// unverifiable notification is rejected outright and never reconciled.
// Anomalies past that point (unknown transaction, unmapped event type) are
// acknowledged with 200 and logged for the operator, since retrying them
// cannot help and the sender is not a user-facing caller.
func paymentWebhookHandler(rec PaymentReconciler, signingSecret string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payload", "could not read body")
			return
		}

		event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), signingSecret)
		if err != nil {
			log.Warn("webhook signature verification failed", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
			return
		}

		outcome, transactionID, ok := classifyEvent(log, event)
		if !ok {
			// Event types outside the checkout lifecycle are acknowledged
			// so Stripe stops redelivering them.
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := rec.Reconcile(r.Context(), transactionID, outcome); err != nil {
			if errors.Is(err, booking.ErrUnknownTransaction) {
				log.Error("reconciliation anomaly: unknown transaction",
					zap.String("transaction_id", transactionID),
					zap.String("event_type", string(event.Type)),
				)
				w.WriteHeader(http.StatusOK)
				return
			}
			log.Error("reconciliation failed",
				zap.String("transaction_id", transactionID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "reconciliation failed")
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// classifyEvent maps a Stripe event to a reconciliation outcome and the
// checkout session id used as our transaction reference.
func classifyEvent(log *zap.Logger, event stripe.Event) (booking.Outcome, string, bool) {
	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.expired",
		"checkout.session.async_payment_failed":
	default:
		return "", "", false
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		log.Error("reconciliation anomaly: undecodable checkout session",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		return "", "", false
	}

	switch event.Type {
	case "checkout.session.completed":
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// Async payment method; the definitive async_payment_* event
			// is still to come.
			return "", "", false
		}
		return booking.OutcomeSucceeded, sess.ID, true
	case "checkout.session.async_payment_succeeded":
		return booking.OutcomeSucceeded, sess.ID, true
	default:
		return booking.OutcomeFailed, sess.ID, true
	}
}
