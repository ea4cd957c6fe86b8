package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeGateway opens Stripe Checkout sessions for the fixed reservation fee.
type StripeGateway struct {
	api         *client.API
	productName string
	successURL  string
	cancelURL   string
	timeout     time.Duration
	log         *zap.Logger
}

type StripeConfig struct {
	APIKey      string
	ProductName string
	SuccessURL  string
	CancelURL   string
	Timeout     time.Duration
}

func NewStripeGateway(cfg StripeConfig, log *zap.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.APIKey, nil)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &StripeGateway{
		api:         api,
		productName: cfg.ProductName,
		successURL:  cfg.SuccessURL,
		cancelURL:   cfg.CancelURL,
		timeout:     timeout,
		log:         log,
	}
}

// OpenCheckout creates a single-item checkout session. The call is bounded
// by a client-side timeout; a session that never materializes is a gateway
// error like any other.
func (g *StripeGateway) OpenCheckout(ctx context.Context, amount int64, currency string, meta Metadata) (*Checkout, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(g.productName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
	}
	params.Context = ctx
	params.AddMetadata("appointment_id", meta.AppointmentID)
	params.AddMetadata("patient_id", meta.PatientID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		g.log.Error("stripe checkout session creation failed",
			zap.String("appointment_id", meta.AppointmentID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: create checkout session: %v", ErrGateway, err)
	}

	return &Checkout{
		TransactionID: sess.ID,
		RedirectURL:   sess.URL,
	}, nil
}
