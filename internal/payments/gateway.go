package payments

import (
	"context"
	"errors"
)

// ErrGateway marks any failure of the external payment provider, including
// client-side timeouts. A single failed attempt is final for the booking
// request that made it; the caller compensates and the patient may retry
// with a fresh request.
var ErrGateway = errors.New("payment gateway error")

// Checkout is an open gateway transaction the patient completes elsewhere.
type Checkout struct {
	TransactionID string
	RedirectURL   string
}

// Metadata tags a checkout so the later webhook can be correlated back to
// local records.
type Metadata struct {
	AppointmentID string
	PatientID     string
}

// Gateway opens payment transactions with an external provider. It is an
// injected capability, never a process-wide singleton, so tests can
// substitute a deterministic fake.
type Gateway interface {
	OpenCheckout(ctx context.Context, amount int64, currency string, meta Metadata) (*Checkout, error)
}
