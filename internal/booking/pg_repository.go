package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot

	err := row.Scan(
		&s.ID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.SlotID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.TransactionID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	return &p, nil
}

// Interface methods

func (s *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTxStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PgStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *PgStore) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, start_time, end_time, status, created_at, updated_at
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (s *PgStore) ListSlots(ctx context.Context) ([]TimeSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, start_time, end_time, status, created_at, updated_at
		FROM time_slots
		WHERE start_time > now()
		ORDER BY start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *slot)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, slot_id, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}

	slot, err := s.GetSlotByID(ctx, appt.SlotID)
	if err != nil && !errors.Is(err, ErrSlotNotFound) {
		return nil, err
	}
	detail.Slot = slot

	payment, err := s.GetPaymentForAppointment(ctx, appt.ID)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}
	detail.Payment = payment

	return detail, nil
}

func (s *PgStore) GetActiveAppointmentForPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, slot_id, status, created_at, updated_at
		FROM appointments
		WHERE patient_id = $1 AND status IN ('pending', 'confirmed')
	`, patientID)
	return scanAppointment(row)
}

func (s *PgStore) GetPaymentForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, appointment_id, transaction_id, amount, currency, status, created_at, updated_at
		FROM payments
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID)
	return scanPayment(row)
}

func (s *PgStore) FindStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, patient_id, slot_id, status, created_at, updated_at
		FROM appointments
		WHERE status = 'pending'
		  AND created_at < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// pgTxStore runs the writes of a single transaction on one pgx.Tx.
type pgTxStore struct {
	tx pgx.Tx
}

// ClaimSlot takes the slot row lock before reading status, so the second of
// two concurrent claimants blocks until the first commits and then sees the
// slot as booked.
func (s *pgTxStore) ClaimSlot(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT id, start_time, end_time, status, created_at, updated_at
		FROM time_slots
		WHERE id = $1
		FOR UPDATE
	`, slotID)

	slot, err := scanSlot(row)
	if err != nil {
		return nil, err
	}
	if slot.Status != SlotAvailable {
		return nil, ErrSlotNotAvailable
	}

	row = s.tx.QueryRow(ctx, `
		UPDATE time_slots
		SET status = 'booked',
		    updated_at = now()
		WHERE id = $1
		RETURNING id, start_time, end_time, status, created_at, updated_at
	`, slotID)

	return scanSlot(row)
}

func (s *pgTxStore) ReleaseSlot(ctx context.Context, slotID uuid.UUID) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'available',
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'available'
	`, slotID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (s *pgTxStore) CreateAppointment(ctx context.Context, patientID, slotID uuid.UUID) (*Appointment, error) {
	id := uuid.New()

	row := s.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, slot_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', now(), now())
		RETURNING id, patient_id, slot_id, status, created_at, updated_at
	`, id, patientID, slotID)

	return scanAppointment(row)
}

func (s *pgTxStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := s.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, patient_id, slot_id, status, created_at, updated_at
	`, id, to, from)

	return scanAppointment(row)
}

func (s *pgTxStore) CreatePayment(ctx context.Context, appointmentID uuid.UUID, transactionID string, amount int64, currency string) (*Payment, error) {
	id := uuid.New()

	row := s.tx.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, transaction_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', now(), now())
		RETURNING id, appointment_id, transaction_id, amount, currency, status, created_at, updated_at
	`, id, appointmentID, transactionID, amount, currency)

	return scanPayment(row)
}

func (s *pgTxStore) LockPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT id, appointment_id, transaction_id, amount, currency, status, created_at, updated_at
		FROM payments
		WHERE transaction_id = $1
		FOR UPDATE
	`, transactionID)
	return scanPayment(row)
}

func (s *pgTxStore) SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
