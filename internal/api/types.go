package api

import (
	"time"

	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	SlotID    string `json:"slot_id"`
	PatientID string `json:"patient_id"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	SlotID    uuid.UUID `json:"slot_id"`
	Status    string    `json:"status"`
}

type BookAppointmentResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	CheckoutURL string              `json:"checkout_url"`
}

type TimeSlotResponse struct {
	ID        uuid.UUID `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

type PaymentResponse struct {
	ID            uuid.UUID `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Slot    *TimeSlotResponse `json:"slot,omitempty"`
	Payment *PaymentResponse  `json:"payment,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
