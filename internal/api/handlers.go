package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebook/clinic-booking/internal/booking"
	"github.com/carebook/clinic-booking/internal/payments"
)

// BookingService is the slice of the engine the handlers need.
type BookingService interface {
	Book(ctx context.Context, patientID, slotID uuid.UUID) (*booking.BookingResult, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID, actor booking.Actor) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*booking.AppointmentDetail, error)
	ListSlots(ctx context.Context) ([]booking.TimeSlot, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func listTimeSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListSlots(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "could not list time slots")
			return
		}

		resp := make([]TimeSlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, TimeSlotResponse{
				ID:        s.ID,
				StartTime: s.StartTime,
				EndTime:   s.EndTime,
				Status:    string(s.Status),
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		result, err := svc.Book(r.Context(), patientID, slotID)
		if err != nil {
			handleBookError(w, err)
			return
		}

		resp := BookAppointmentResponse{
			Appointment: AppointmentResponse{
				ID:        result.Appointment.ID,
				PatientID: result.Appointment.PatientID,
				SlotID:    result.Appointment.SlotID,
				Status:    string(result.Appointment.Status),
			},
			CheckoutURL: result.CheckoutURL,
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "could not load appointment")
			return
		}

		resp := AppointmentDetailResponse{
			AppointmentResponse: AppointmentResponse{
				ID:        detail.ID,
				PatientID: detail.PatientID,
				SlotID:    detail.SlotID,
				Status:    string(detail.Status),
			},
		}
		if detail.Slot != nil {
			resp.Slot = &TimeSlotResponse{
				ID:        detail.Slot.ID,
				StartTime: detail.Slot.StartTime,
				EndTime:   detail.Slot.EndTime,
				Status:    string(detail.Slot.Status),
			}
		}
		if detail.Payment != nil {
			resp.Payment = &PaymentResponse{
				ID:            detail.Payment.ID,
				TransactionID: detail.Payment.TransactionID,
				Amount:        detail.Payment.Amount,
				Currency:      detail.Payment.Currency,
				Status:        string(detail.Payment.Status),
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor", err.Error())
			return
		}

		if err := svc.Cancel(r.Context(), id, actor); err != nil {
			handleCancelError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

// actorFromRequest reads the identity the upstream auth layer attached.
// Operators carry X-Actor-Role: operator; patients carry their own id.
func actorFromRequest(r *http.Request) (booking.Actor, error) {
	if r.Header.Get("X-Actor-Role") == "operator" {
		return booking.Actor{Operator: true}, nil
	}

	patientID, err := uuid.Parse(r.Header.Get("X-Patient-ID"))
	if err != nil {
		return booking.Actor{}, errors.New("X-Patient-ID must be a valid UUID")
	}
	return booking.Actor{PatientID: patientID}, nil
}

func handleBookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotAvailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrAlreadyActive):
		writeError(w, http.StatusConflict, "already_active", err.Error())
	case errors.Is(err, booking.ErrBookingInProgress):
		writeError(w, http.StatusConflict, "booking_in_progress", "another booking for this patient is in progress, please retry shortly")
	case errors.Is(err, booking.ErrCompensationFailed):
		// Diagnostics stay server-side; the caller only learns the booking failed.
		writeError(w, http.StatusInternalServerError, "internal_error", "booking failed")
	case errors.Is(err, payments.ErrGateway):
		writeError(w, http.StatusBadGateway, "gateway_error", "payment provider is unavailable, please try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "booking failed")
	}
}

func handleCancelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "already_terminal", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "cancellation failed")
	}
}
