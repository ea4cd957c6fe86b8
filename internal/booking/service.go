package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carebook/clinic-booking/internal/payments"
	redisclient "github.com/carebook/clinic-booking/internal/redis"
)

// Engine turns a booking request into a consistent
// {appointment, payment, gateway transaction} triple, or fails with nothing
// left dangling.
type Engine struct {
	store   Store
	gateway payments.Gateway
	locker  redisclient.Locker
	fee     Fee
	log     *zap.Logger
}

// Fee is the fixed reservation charge, in minor currency units.
type Fee struct {
	Amount   int64
	Currency string
}

func NewEngine(store Store, gateway payments.Gateway, locker redisclient.Locker, fee Fee, log *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		gateway: gateway,
		locker:  locker,
		fee:     fee,
		log:     log,
	}
}

// Book reserves a slot for a patient and opens a checkout transaction for it.
//
// The claim and the appointment creation share one transaction under the
// slot's row lock; the gateway call deliberately happens after that
// transaction commits, so no row lock is ever held across network I/O. A
// gateway failure compensates the claim (appointment cancelled, slot
// released) before the error is returned.
//
// The whole sequence runs under a per-patient lock so two near-simultaneous
// requests from the same patient cannot both pass the active-appointment
// check and claim different slots.
func (e *Engine) Book(ctx context.Context, patientID, slotID uuid.UUID) (*BookingResult, error) {
	if _, err := e.store.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var result *BookingResult

	err := e.locker.WithPatientLock(ctx, patientID, func(lockCtx context.Context) error {
		active, err := e.store.GetActiveAppointmentForPatient(lockCtx, patientID)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if active != nil {
			return ErrAlreadyActive
		}

		result, err = e.runBooking(lockCtx, patientID, slotID)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingInProgress
		}
		return nil, err
	}

	return result, nil
}

func (e *Engine) runBooking(ctx context.Context, patientID, slotID uuid.UUID) (*BookingResult, error) {
	var (
		appt     *Appointment
		checkout *payments.Checkout
	)

	steps := []sagaStep{
		{
			name: "claim-slot",
			run: func(ctx context.Context) error {
				return e.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
					if _, err := tx.ClaimSlot(ctx, slotID); err != nil {
						return err
					}
					created, err := tx.CreateAppointment(ctx, patientID, slotID)
					if err != nil {
						return fmt.Errorf("create pending appointment: %w", err)
					}
					appt = created
					return nil
				})
			},
			compensate: func(ctx context.Context) error {
				return e.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
					if _, err := tx.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusCancelled); err != nil {
						return fmt.Errorf("cancel appointment %s: %w", appt.ID, err)
					}
					if err := tx.ReleaseSlot(ctx, slotID); err != nil {
						return fmt.Errorf("release slot %s: %w", slotID, err)
					}
					return nil
				})
			},
		},
		{
			name: "open-checkout",
			run: func(ctx context.Context) error {
				c, err := e.gateway.OpenCheckout(ctx, e.fee.Amount, e.fee.Currency, payments.Metadata{
					AppointmentID: appt.ID.String(),
					PatientID:     patientID.String(),
				})
				if err != nil {
					return err
				}
				checkout = c
				return nil
			},
			// An orphaned checkout session expires on the gateway's side;
			// nothing local to undo.
		},
		{
			name: "record-payment",
			run: func(ctx context.Context) error {
				return e.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
					_, err := tx.CreatePayment(ctx, appt.ID, checkout.TransactionID, e.fee.Amount, e.fee.Currency)
					if err != nil {
						return fmt.Errorf("create payment record: %w", err)
					}
					return nil
				})
			},
		},
	}

	if err := runSaga(ctx, e.log, steps); err != nil {
		return nil, err
	}

	e.log.Info("booking created",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("patient_id", patientID.String()),
		zap.String("slot_id", slotID.String()),
		zap.String("transaction_id", checkout.TransactionID),
	)

	return &BookingResult{
		Appointment: appt,
		CheckoutURL: checkout.RedirectURL,
	}, nil
}

// Cancel terminates an appointment and frees its slot. The actor must be the
// owning patient or an operator. Cancelling an already-cancelled appointment
// fails with ErrAlreadyTerminal so callers can tell "already gone" from
// "just cancelled". Confirmed appointments stay cancellable; refund issuance
// is not this engine's concern.
func (e *Engine) Cancel(ctx context.Context, appointmentID uuid.UUID, actor Actor) error {
	appt, err := e.store.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return err
	}

	if !actor.Operator && actor.PatientID != appt.PatientID {
		e.log.Warn("cancellation forbidden",
			zap.String("appointment_id", appointmentID.String()),
			zap.String("actor_patient_id", actor.PatientID.String()),
		)
		return ErrForbidden
	}

	if appt.Status == StatusCancelled {
		return ErrAlreadyTerminal
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		if _, err := tx.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled); err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Status moved between the read and the update.
				return ErrAlreadyTerminal
			}
			return fmt.Errorf("cancel appointment: %w", err)
		}
		return tx.ReleaseSlot(ctx, appt.SlotID)
	})
	if err != nil {
		return err
	}

	e.log.Info("appointment cancelled",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("slot_id", appt.SlotID.String()),
		zap.Bool("by_operator", actor.Operator),
	)
	return nil
}

// GetAppointment retrieves a fully hydrated appointment by ID.
func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := e.store.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListSlots lists upcoming slots regardless of availability.
func (e *Engine) ListSlots(ctx context.Context) ([]TimeSlot, error) {
	slots, err := e.store.ListSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}
