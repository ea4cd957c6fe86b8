package booking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Reconciler applies the gateway's authoritative payment outcome to local
// payment, appointment and slot state. This is the trust boundary: nothing
// the client can influence (success redirects included) moves a payment out
// of pending, only the verified gateway notification handled here.
type Reconciler struct {
	store Store
	log   *zap.Logger
}

func NewReconciler(store Store, log *zap.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Reconcile finalizes the payment identified by transactionID. It is
// idempotent: the payment row is locked for the duration of the transaction,
// and a payment already in paid or failed is left untouched, so duplicate or
// out-of-order gateway deliveries cannot double-apply a transition.
//
// Returns ErrUnknownTransaction when no payment matches; the caller decides
// how to report the anomaly, it never reaches a user-facing response.
func (r *Reconciler) Reconcile(ctx context.Context, transactionID string, outcome Outcome) error {
	err := r.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		payment, err := tx.LockPaymentByTransactionID(ctx, transactionID)
		if err != nil {
			if errors.Is(err, ErrPaymentNotFound) {
				return ErrUnknownTransaction
			}
			return fmt.Errorf("lock payment: %w", err)
		}

		if payment.Status != PaymentPending {
			r.log.Info("duplicate payment notification ignored",
				zap.String("transaction_id", transactionID),
				zap.String("payment_status", string(payment.Status)),
			)
			return nil
		}

		switch outcome {
		case OutcomeSucceeded:
			return r.applySuccess(ctx, tx, payment)
		case OutcomeFailed:
			return r.applyFailure(ctx, tx, payment)
		default:
			return fmt.Errorf("unknown payment outcome %q", outcome)
		}
	})
	if err != nil {
		return err
	}

	r.log.Info("payment reconciled",
		zap.String("transaction_id", transactionID),
		zap.String("outcome", string(outcome)),
	)
	return nil
}

func (r *Reconciler) applySuccess(ctx context.Context, tx TxStore, payment *Payment) error {
	if err := tx.SetPaymentStatus(ctx, payment.ID, PaymentPaid); err != nil {
		return err
	}

	_, err := tx.UpdateAppointmentStatus(ctx, payment.AppointmentID, StatusPending, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The appointment was cancelled while the payment was in
			// flight. The money moved; leave the payment paid and let the
			// anomaly surface for the operator.
			r.log.Warn("payment succeeded for non-pending appointment",
				zap.String("appointment_id", payment.AppointmentID.String()),
				zap.String("transaction_id", payment.TransactionID),
			)
			return nil
		}
		return fmt.Errorf("confirm appointment: %w", err)
	}
	return nil
}

func (r *Reconciler) applyFailure(ctx context.Context, tx TxStore, payment *Payment) error {
	if err := tx.SetPaymentStatus(ctx, payment.ID, PaymentFailed); err != nil {
		return err
	}

	appt, err := tx.UpdateAppointmentStatus(ctx, payment.AppointmentID, StatusPending, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Already cancelled through the cancellation path, which also
			// released the slot. Nothing further to roll back.
			return nil
		}
		return fmt.Errorf("cancel appointment: %w", err)
	}

	return tx.ReleaseSlot(ctx, appt.SlotID)
}
