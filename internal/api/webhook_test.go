package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/carebook/clinic-booking/internal/booking"
)

const webhookSecret = "whsec_test_secret"

// stripeSignature builds a Stripe-Signature header over the payload the
// same way Stripe's servers do.
func stripeSignature(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEvent(eventType, sessionID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"api_version": %q,
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"object": "checkout.session",
				"payment_status": %q
			}
		}
	}`, stripe.APIVersion, eventType, sessionID, paymentStatus))
}

func postWebhook(t *testing.T, rec PaymentReconciler, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	router := newTestRouter(&stubService{}, rec, webhookSecret)

	req := httptest.NewRequest("POST", "/payments/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signature)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestPaymentWebhookHandler(t *testing.T) {
	t.Run("completed session reconciles as success", func(t *testing.T) {
		rec := &stubReconciler{}
		payload := checkoutEvent("checkout.session.completed", "cs_test_ok", "paid")

		rr := postWebhook(t, rec, payload, stripeSignature(webhookSecret, payload, time.Now()))

		assert.Equal(t, http.StatusOK, rr.Code)
		require.Len(t, rec.calls, 1)
		assert.Equal(t, "cs_test_ok:"+string(booking.OutcomeSucceeded), rec.calls[0])
	})

	t.Run("expired session reconciles as failure", func(t *testing.T) {
		rec := &stubReconciler{}
		payload := checkoutEvent("checkout.session.expired", "cs_test_gone", "unpaid")

		rr := postWebhook(t, rec, payload, stripeSignature(webhookSecret, payload, time.Now()))

		assert.Equal(t, http.StatusOK, rr.Code)
		require.Len(t, rec.calls, 1)
		assert.Equal(t, "cs_test_gone:"+string(booking.OutcomeFailed), rec.calls[0])
	})

	t.Run("async payment events carry the definitive outcome", func(t *testing.T) {
		cases := []struct {
			eventType string
			want      booking.Outcome
		}{
			{"checkout.session.async_payment_succeeded", booking.OutcomeSucceeded},
			{"checkout.session.async_payment_failed", booking.OutcomeFailed},
		}

		for _, tc := range cases {
			t.Run(tc.eventType, func(t *testing.T) {
				rec := &stubReconciler{}
				payload := checkoutEvent(tc.eventType, "cs_test_async", "unpaid")

				rr := postWebhook(t, rec, payload, stripeSignature(webhookSecret, payload, time.Now()))

				assert.Equal(t, http.StatusOK, rr.Code)
				require.Len(t, rec.calls, 1)
				assert.Equal(t, "cs_test_async:"+string(tc.want), rec.calls[0])
			})
		}
	})

	t.Run("completed but unpaid session waits for the async event", func(t *testing.T) {
		rec := &stubReconciler{}
		payload := checkoutEvent("checkout.session.completed", "cs_test_async", "unpaid")

		rr := postWebhook(t, rec, payload, stripeSignature(webhookSecret, payload, time.Now()))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rec.calls)
	})

	t.Run("bad signature is rejected before reconciliation", func(t *testing.T) {
		rec := &stubReconciler{}
		payload := checkoutEvent("checkout.session.completed", "cs_test_ok", "paid")

		rr := postWebhook(t, rec, payload, stripeSignature("whsec_wrong_secret", payload, time.Now()))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, rec.calls)
	})

	t.Run("stale timestamp is rejected", func(t *testing.T) {
		rec := &stubReconciler{}
		payload := checkoutEvent("checkout.session.completed", "cs_test_ok", "paid")

		rr := postWebhook(t, rec, payload, stripeSignature(webhookSecret, payload, time.Now().Add(-time.Hour)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, rec.calls)
	})

	t.Run("unrelated event type is acknowledged without reconciling", func(t *testing.T) {
		rec := &stubReconciler{}
		payload := checkoutEvent("invoice.paid", "in_test_1", "paid")

		rr := postWebhook(t, rec, payload, stripeSignature(webhookSecret, payload, time.Now()))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rec.calls)
	})

	t.Run("unknown transaction is acknowledged as an anomaly", func(t *testing.T) {
		rec := &stubReconciler{err: booking.ErrUnknownTransaction}
		payload := checkoutEvent("checkout.session.completed", "cs_test_stranger", "paid")

		rr := postWebhook(t, rec, payload, stripeSignature(webhookSecret, payload, time.Now()))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, rec.calls, 1)
	})

	t.Run("reconciler failure asks for redelivery", func(t *testing.T) {
		rec := &stubReconciler{err: fmt.Errorf("db down")}
		payload := checkoutEvent("checkout.session.completed", "cs_test_ok", "paid")

		rr := postWebhook(t, rec, payload, stripeSignature(webhookSecret, payload, time.Now()))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
