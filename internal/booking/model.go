package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Outcome is the gateway's authoritative verdict on a payment transaction.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TimeSlot struct {
	ID        uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Payment records the monetary transaction for one appointment.
// Amount and currency are immutable after creation; only the status moves,
// and only the reconciler moves it.
type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	TransactionID string
	Amount        int64
	Currency      string
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Actor identifies who is asking for a cancellation.
type Actor struct {
	PatientID uuid.UUID
	Operator  bool
}

type AppointmentDetail struct {
	Appointment
	Slot    *TimeSlot
	Payment *Payment
}

// BookingResult is what a successful Book returns: the pending appointment
// plus the checkout redirect the patient must follow to pay.
type BookingResult struct {
	Appointment *Appointment
	CheckoutURL string
}
