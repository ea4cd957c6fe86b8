package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/clinic-booking/internal/payments"
	redisclient "github.com/carebook/clinic-booking/internal/redis"
)

// fakeStore is an in-memory Store. It does not simulate rollbacks; tests
// that exercise failure paths inject errors before any write happens, or
// assert on the compensating writes directly.
type fakeStore struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]*Patient
	slots        map[uuid.UUID]*TimeSlot
	appointments map[uuid.UUID]*Appointment
	payments     map[uuid.UUID]*Payment

	failRelease       bool
	failCreatePayment bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patients:     make(map[uuid.UUID]*Patient),
		slots:        make(map[uuid.UUID]*TimeSlot),
		appointments: make(map[uuid.UUID]*Appointment),
		payments:     make(map[uuid.UUID]*Payment),
	}
}

func (s *fakeStore) addPatient() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.patients[id] = &Patient{ID: id, Name: "Test Patient", CreatedAt: time.Now()}
	return id
}

func (s *fakeStore) addSlot(status SlotStatus) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	start := time.Now().Add(24 * time.Hour)
	s.slots[id] = &TimeSlot{
		ID:        id,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Status:    status,
	}
	return id
}

func (s *fakeStore) slotStatus(id uuid.UUID) SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[id].Status
}

func (s *fakeStore) appointmentStatus(id uuid.UUID) AppointmentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appointments[id].Status
}

func (s *fakeStore) paymentByTransaction(transactionID string) *Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (s *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return fn(ctx, &fakeTxStore{s: s})
}

func (s *fakeStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *slot
	return &cp, nil
}

func (s *fakeStore) ListSlots(ctx context.Context) ([]TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []TimeSlot
	for _, slot := range s.slots {
		result = append(result, *slot)
	}
	return result, nil
}

func (s *fakeStore) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}
	if slot, err := s.GetSlotByID(ctx, appt.SlotID); err == nil {
		detail.Slot = slot
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.AppointmentID == id {
			cp := *p
			detail.Payment = &cp
		}
	}
	return detail, nil
}

func (s *fakeStore) GetActiveAppointmentForPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appointments {
		if a.PatientID == patientID && (a.Status == StatusPending || a.Status == StatusConfirmed) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (s *fakeStore) FindStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Appointment
	for _, a := range s.appointments {
		if a.Status == StatusPending && a.CreatedAt.Before(cutoff) {
			result = append(result, *a)
		}
	}
	return result, nil
}

type fakeTxStore struct {
	s *fakeStore
}

func (t *fakeTxStore) ClaimSlot(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	slot, ok := t.s.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if slot.Status != SlotAvailable {
		return nil, ErrSlotNotAvailable
	}
	slot.Status = SlotBooked
	cp := *slot
	return &cp, nil
}

func (t *fakeTxStore) ReleaseSlot(ctx context.Context, slotID uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.failRelease {
		return errors.New("injected release failure")
	}
	if slot, ok := t.s.slots[slotID]; ok {
		slot.Status = SlotAvailable
	}
	return nil
}

func (t *fakeTxStore) CreateAppointment(ctx context.Context, patientID, slotID uuid.UUID) (*Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a := &Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		SlotID:    slotID,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	t.s.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (t *fakeTxStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (t *fakeTxStore) CreatePayment(ctx context.Context, appointmentID uuid.UUID, transactionID string, amount int64, currency string) (*Payment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.failCreatePayment {
		return nil, errors.New("injected payment insert failure")
	}
	p := &Payment{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      currency,
		Status:        PaymentPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	t.s.payments[p.ID] = p
	cp := *p
	return &cp, nil
}

func (t *fakeTxStore) LockPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, p := range t.s.payments {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (t *fakeTxStore) SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

// fakeLocker runs the critical section inline, or refuses the lock.
type fakeLocker struct {
	refuse bool
	calls  int
}

func (l *fakeLocker) WithPatientLock(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error {
	l.calls++
	if l.refuse {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

// fakeGateway returns a canned checkout or fails every call.
type fakeGateway struct {
	fail     bool
	calls    int
	lastMeta payments.Metadata
}

func (g *fakeGateway) OpenCheckout(ctx context.Context, amount int64, currency string, meta payments.Metadata) (*payments.Checkout, error) {
	g.calls++
	g.lastMeta = meta
	if g.fail {
		return nil, fmt.Errorf("%w: provider unreachable", payments.ErrGateway)
	}
	return &payments.Checkout{
		TransactionID: "cs_test_" + uuid.NewString(),
		RedirectURL:   "https://checkout.example.com/pay",
	}, nil
}
