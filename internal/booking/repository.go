package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotNotAvailable    = errors.New("slot is not available")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")

	ErrAlreadyActive     = errors.New("patient already has an active appointment")
	ErrBookingInProgress = errors.New("another booking for this patient is in progress")
	ErrForbidden         = errors.New("actor may not cancel this appointment")
	ErrAlreadyTerminal   = errors.New("appointment is already cancelled")

	// ErrCompensationFailed means a rollback after a gateway error did not
	// complete. The slot may still read booked with no live payment path;
	// manual reconciliation is required.
	ErrCompensationFailed = errors.New("booking compensation failed")

	// ErrUnknownTransaction means a webhook referenced a transaction id with
	// no matching payment record.
	ErrUnknownTransaction = errors.New("no payment matches transaction")
)

// SlotLedger is the only writer of slot status. Claim takes the slot's row
// lock for the duration of the enclosing transaction, so concurrent claims
// on the same slot serialize.
type SlotLedger interface {
	// ClaimSlot transitions an available slot to booked. Returns
	// ErrSlotNotFound or ErrSlotNotAvailable.
	ClaimSlot(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error)

	// ReleaseSlot transitions a slot back to available. Releasing an
	// already-available slot is a no-op.
	ReleaseSlot(ctx context.Context, slotID uuid.UUID) error
}

// TxStore is the set of writes available inside a single transaction.
type TxStore interface {
	SlotLedger

	CreateAppointment(ctx context.Context, patientID, slotID uuid.UUID) (*Appointment, error)

	// UpdateAppointmentStatus moves an appointment from one status to
	// another. Returns ErrAppointmentNotFound when no row matches id+from,
	// so callers can detect a transition that already happened.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	CreatePayment(ctx context.Context, appointmentID uuid.UUID, transactionID string, amount int64, currency string) (*Payment, error)

	// LockPaymentByTransactionID loads a payment under its row lock so that
	// duplicate webhook deliveries for the same transaction serialize.
	LockPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error)

	SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error
}

// Store contains all DB interactions needed by the booking engine.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	ListSlots(ctx context.Context) ([]TimeSlot, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// GetActiveAppointmentForPatient returns the patient's appointment in
	// pending or confirmed status, or ErrAppointmentNotFound.
	GetActiveAppointmentForPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error)

	// FindStalePending lists pending appointments created before the cutoff,
	// for the anomaly worker.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error)
}
