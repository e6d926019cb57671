package appointments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/clinicazen/platform/services/booking-service/internal/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var madrid, _ = time.LoadLocation("Europe/Madrid")

// Sunday 2026-03-01 10:00 in Madrid; the next day is a Monday.
var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, madrid)

type memStore struct {
	mu           sync.Mutex
	therapies    map[string]model.Therapy
	users        map[string]model.User
	rules        []model.AvailabilityRule
	appointments map[string]*model.Appointment
	payments     map[string]*model.Payment
	events       []outbox.Event
	seq          int
}

func newMemStore() *memStore {
	return &memStore{
		therapies: map[string]model.Therapy{
			"reiki": {ID: "reiki", Name: "Reiki", DurationMinutes: 60, Price: decimal.NewFromInt(1000), Active: true},
			"old":   {ID: "old", Name: "Retirada", DurationMinutes: 60, Price: decimal.NewFromInt(10), Active: false},
			"long":  {ID: "long", Name: "Masaje largo", DurationMinutes: 90, Price: decimal.NewFromInt(80), Active: true},
		},
		users: map[string]model.User{
			"client-1":    {ID: "client-1", FullName: "Lucía", Email: "lucia@example.com", Role: "CLIENT"},
			"client-2":    {ID: "client-2", FullName: "Pablo", Email: "pablo@example.com", Role: "CLIENT"},
			"therapist-1": {ID: "therapist-1", FullName: "Marta", Email: "marta@example.com", Role: "THERAPIST"},
			"therapist-2": {ID: "therapist-2", FullName: "Jon", Email: "jon@example.com", Role: "THERAPIST"},
		},
		rules: []model.AvailabilityRule{
			{ID: "r1", TherapistID: "therapist-1", DayOfWeek: time.Monday, StartMinute: 9 * 60, EndMinute: 11 * 60, Active: true},
		},
		appointments: map[string]*model.Appointment{},
		payments:     map[string]*model.Payment{},
	}
}

func (m *memStore) runInTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m)
}

func (m *memStore) TherapyByID(_ context.Context, id string) (model.Therapy, error) {
	t, ok := m.therapies[id]
	if !ok {
		return model.Therapy{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *memStore) UserByID(_ context.Context, id string) (model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memStore) RulesForDate(_ context.Context, therapistID string, date time.Time) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for _, r := range m.rules {
		if r.TherapistID == therapistID && availability.Applies(r, date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ActiveAppointmentAt(_ context.Context, therapistID string, at time.Time) (bool, error) {
	for _, a := range m.appointments {
		if a.TherapistID == therapistID && a.ScheduledAt.Equal(at) && a.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	if taken, _ := m.ActiveAppointmentAt(ctx, a.TherapistID, a.ScheduledAt); taken {
		return &pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uq"}
	}
	m.seq++
	a.ID = fmt.Sprintf("appt-%d", m.seq)
	a.CreatedAt = fixedNow
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *memStore) InsertPayment(_ context.Context, p *model.Payment) error {
	cp := *p
	m.payments[p.AppointmentID] = &cp
	return nil
}

func (m *memStore) AppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return *a, nil
}

func (m *memStore) MarkConfirmed(_ context.Context, id string, at time.Time) error {
	a := m.appointments[id]
	a.Status = model.StatusConfirmed
	a.ConfirmedAt = &at
	return nil
}

func (m *memStore) MarkCancelled(_ context.Context, id string, c Cancellation) error {
	a := m.appointments[id]
	a.Status = model.StatusCancelled
	a.CancellationFee = c.Fee
	a.CancellationReason = c.Reason
	a.CancelledAt = &c.At
	a.PaymentStatus = c.PaymentStatus
	return nil
}

func (m *memStore) SettlePayment(_ context.Context, appointmentID string, amount decimal.Decimal, status model.PaymentStatus) (string, error) {
	p, ok := m.payments[appointmentID]
	if !ok {
		return "", pgx.ErrNoRows
	}
	p.Amount = amount
	p.Status = status
	return p.ProviderRef, nil
}

func (m *memStore) SetPaymentProviderRef(_ context.Context, appointmentID, ref string) error {
	m.payments[appointmentID].ProviderRef = ref
	return nil
}

func (m *memStore) Enqueue(_ context.Context, evt outbox.Event) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *memStore) seed(a model.Appointment) string {
	m.seq++
	a.ID = fmt.Sprintf("appt-%d", m.seq)
	m.appointments[a.ID] = &a
	m.payments[a.ID] = &model.Payment{AppointmentID: a.ID, Amount: a.TotalAmount, Status: model.PaymentPending, ProviderRef: "pi_seed"}
	return a.ID
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

type countingMetrics struct {
	mu                  sync.Mutex
	booked              map[string]int
	confirmed           int
	cancelled, withFee  int
	notificationsFailed int
}

func (c *countingMetrics) Booked(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.booked == nil {
		c.booked = map[string]int{}
	}
	c.booked[result]++
}
func (c *countingMetrics) Confirmed() { c.confirmed++ }
func (c *countingMetrics) Cancelled(withFee bool) {
	c.cancelled++
	if withFee {
		c.withFee++
	}
}
func (c *countingMetrics) NotificationFailed() { c.notificationsFailed++ }

type fakePayments struct {
	authorized []string
	voided     []string
}

func (f *fakePayments) Authorize(_ context.Context, a model.Appointment, _ string) (string, error) {
	f.authorized = append(f.authorized, a.ID)
	return "pi_" + a.ID, nil
}

func (f *fakePayments) Void(_ context.Context, ref string) error {
	f.voided = append(f.voided, ref)
	return nil
}

type fixture struct {
	store    *memStore
	notifier *recordingNotifier
	metrics  *countingMetrics
	payments *fakePayments
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		notifier: &recordingNotifier{},
		metrics:  &countingMetrics{},
		payments: &fakePayments{},
	}
	f.svc = NewService(f.store.runInTx, Options{
		Location: madrid,
		Notifier: f.notifier,
		Payments: f.payments,
		Metrics:  f.metrics,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return fixedNow },
	})
	return f
}

var (
	client1   = auth.Principal{UserID: "client-1", Role: auth.RoleClient}
	client2   = auth.Principal{UserID: "client-2", Role: auth.RoleClient}
	therapist = auth.Principal{UserID: "therapist-1", Role: auth.RoleTherapist}
	other     = auth.Principal{UserID: "therapist-2", Role: auth.RoleTherapist}
	admin     = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
)

func mondayAt(clock string) BookRequest {
	m, _ := availability.ParseClock(clock)
	return BookRequest{
		ClientID:    "client-1",
		TherapistID: "therapist-1",
		TherapyID:   "reiki",
		Date:        time.Date(2026, 3, 2, 0, 0, 0, 0, madrid),
		StartMinute: m,
	}
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	f := newFixture()

	appt, err := f.svc.Book(context.Background(), mondayAt("10:00"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, appt.Status)
	assert.True(t, appt.ScheduledAt.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, madrid)))
	assert.Equal(t, 60, appt.DurationMinutes)
	assert.True(t, appt.TotalAmount.Equal(decimal.NewFromInt(1000)))

	pay := f.store.payments[appt.ID]
	require.NotNil(t, pay)
	assert.Equal(t, model.PaymentPending, pay.Status)
	assert.True(t, pay.Amount.Equal(appt.TotalAmount))
	assert.Equal(t, "pi_"+appt.ID, pay.ProviderRef)

	require.Len(t, f.store.events, 1)
	assert.Equal(t, outbox.TypeAppointmentRequested, f.store.events[0].EventType)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "therapist-1", f.notifier.sent[0].UserID)
	assert.Equal(t, model.NotificationRequested, f.notifier.sent[0].Kind)
	assert.Contains(t, f.notifier.sent[0].Message, "02/03/2026 a las 10:00")
	assert.Equal(t, 1, f.metrics.booked["created"])
}

func TestBookRejections(t *testing.T) {
	cases := []struct {
		name string
		req  func() BookRequest
		kind apperr.Kind
	}{
		{"unknown therapy", func() BookRequest { r := mondayAt("09:00"); r.TherapyID = "nope"; return r }, apperr.KindNotFound},
		{"inactive therapy", func() BookRequest { r := mondayAt("09:00"); r.TherapyID = "old"; return r }, apperr.KindNotFound},
		{"therapist is a client", func() BookRequest { r := mondayAt("09:00"); r.TherapistID = "client-2"; return r }, apperr.KindNotFound},
		{"outside window", func() BookRequest { return mondayAt("11:00") }, apperr.KindUnprocessable},
		{"session overruns window", func() BookRequest { r := mondayAt("10:00"); r.TherapyID = "long"; return r }, apperr.KindUnprocessable},
		{"no rules that day", func() BookRequest { r := mondayAt("09:00"); r.Date = r.Date.AddDate(0, 0, 1); return r }, apperr.KindUnprocessable},
		{"end before start", func() BookRequest { r := mondayAt("10:00"); r.EndMinute = 9 * 60; return r }, apperr.KindValidation},
		{"in the past", func() BookRequest { r := mondayAt("09:00"); r.Date = r.Date.AddDate(0, 0, -7); return r }, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Book(context.Background(), tc.req())
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err), "err: %v", err)
			assert.Empty(t, f.store.appointments)
			assert.Empty(t, f.notifier.sent)
		})
	}
}

func TestBookSameSlotTwiceConflicts(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Book(context.Background(), mondayAt("09:00"))
	require.NoError(t, err)

	second := mondayAt("09:00")
	second.ClientID = "client-2"
	_, err = f.svc.Book(context.Background(), second)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
	assert.Equal(t, 1, f.metrics.booked["conflict"])
}

// A stale pre-check must still end in a conflict through the unique index.
type staleCheckStore struct{ *memStore }

func (s staleCheckStore) ActiveAppointmentAt(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func TestBookUniqueIndexClosesRace(t *testing.T) {
	f := newFixture()
	f.svc.inTx = func(ctx context.Context, fn func(Tx) error) error {
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		return fn(staleCheckStore{f.store})
	}

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), mondayAt("09:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
	active := 0
	for _, a := range f.store.appointments {
		if a.Status.Active() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestBookCancelledSlotCanBeRebooked(t *testing.T) {
	f := newFixture()
	appt, err := f.svc.Book(context.Background(), mondayAt("09:00"))
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), client1, appt.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Book(context.Background(), mondayAt("09:00"))
	assert.NoError(t, err)
}

func TestBookSurvivesNotificationFailure(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("realtime down")

	appt, err := f.svc.Book(context.Background(), mondayAt("09:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, 1, f.metrics.notificationsFailed)
}

func TestConfirm(t *testing.T) {
	f := newFixture()
	id := f.store.seed(model.Appointment{
		ClientID: "client-1", TherapistID: "therapist-1", TherapyID: "reiki",
		ScheduledAt: fixedNow.Add(48 * time.Hour), Status: model.StatusPending, TotalAmount: decimal.NewFromInt(1000),
	})

	_, err := f.svc.Confirm(context.Background(), other, id)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Confirm(context.Background(), client1, id)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Equal(t, model.StatusPending, f.store.appointments[id].Status, "rejected confirm must not change state")
	assert.Empty(t, f.store.events)

	appt, err := f.svc.Confirm(context.Background(), therapist, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, appt.Status)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "client-1", f.notifier.sent[0].UserID)

	again, err := f.svc.Confirm(context.Background(), admin, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, again.Status)
	assert.Len(t, f.notifier.sent, 1, "idempotent confirm sends nothing")
	assert.Len(t, f.store.events, 1)
	assert.Equal(t, 1, f.metrics.confirmed)

	_, err = f.svc.Confirm(context.Background(), admin, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestConfirmCancelledIsConflict(t *testing.T) {
	f := newFixture()
	id := f.store.seed(model.Appointment{
		ClientID: "client-1", TherapistID: "therapist-1", TherapyID: "reiki",
		ScheduledAt: fixedNow.Add(48 * time.Hour), Status: model.StatusCancelled,
	})
	_, err := f.svc.Confirm(context.Background(), admin, id)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, model.StatusCancelled, f.store.appointments[id].Status)
}

func TestCancelFees(t *testing.T) {
	cases := []struct {
		name    string
		in      time.Duration
		fee     decimal.Decimal
		payment model.PaymentStatus
	}{
		{"48 hours out", 48 * time.Hour, decimal.Zero, model.PaymentCancelled},
		{"exactly 24 hours out", 24 * time.Hour, decimal.Zero, model.PaymentCancelled},
		{"2 hours out", 2 * time.Hour, decimal.NewFromInt(500), model.PaymentPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			id := f.store.seed(model.Appointment{
				ClientID: "client-1", TherapistID: "therapist-1", TherapyID: "reiki",
				ScheduledAt: fixedNow.Add(tc.in), Status: model.StatusConfirmed, TotalAmount: decimal.NewFromInt(1000),
			})

			appt, err := f.svc.Cancel(context.Background(), client1, id, "")
			require.NoError(t, err)
			assert.Equal(t, model.StatusCancelled, appt.Status)
			assert.True(t, appt.CancellationFee.Equal(tc.fee), "fee %s", appt.CancellationFee)
			assert.Equal(t, "Cancelada por el cliente", appt.CancellationReason)
			assert.Equal(t, tc.payment, f.store.payments[id].Status)
			assert.True(t, f.store.payments[id].Amount.Equal(tc.fee))

			require.Len(t, f.notifier.sent, 2)
			assert.Equal(t, "client-1", f.notifier.sent[0].UserID)
			assert.Equal(t, "therapist-1", f.notifier.sent[1].UserID)
			if tc.fee.IsPositive() {
				assert.Contains(t, f.notifier.sent[0].Message, "500")
				assert.Empty(t, f.payments.voided)
			} else {
				assert.Equal(t, []string{"pi_seed"}, f.payments.voided)
			}
		})
	}
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture()
	id := f.store.seed(model.Appointment{
		ClientID: "client-1", TherapistID: "therapist-1", TherapyID: "reiki",
		ScheduledAt: fixedNow.Add(48 * time.Hour), Status: model.StatusPending, TotalAmount: decimal.NewFromInt(60),
	})

	for _, p := range []auth.Principal{client2, therapist} {
		_, err := f.svc.Cancel(context.Background(), p, id, "")
		assert.True(t, apperr.Is(err, apperr.KindForbidden), "%s should be forbidden", p.UserID)
	}
	assert.Equal(t, model.StatusPending, f.store.appointments[id].Status)

	appt, err := f.svc.Cancel(context.Background(), admin, id, "")
	require.NoError(t, err)
	assert.Equal(t, "Cancelada por administración", appt.CancellationReason)
}

func TestCancelTwiceKeepsOriginalCancellation(t *testing.T) {
	f := newFixture()
	id := f.store.seed(model.Appointment{
		ClientID: "client-1", TherapistID: "therapist-1", TherapyID: "reiki",
		ScheduledAt: fixedNow.Add(2 * time.Hour), Status: model.StatusPending, TotalAmount: decimal.NewFromInt(1000),
	})

	first, err := f.svc.Cancel(context.Background(), client1, id, "Me encuentro mal")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return fixedNow.Add(-72 * time.Hour) }
	second, err := f.svc.Cancel(context.Background(), admin, id, "otro motivo")
	require.NoError(t, err)

	assert.True(t, second.CancellationFee.Equal(first.CancellationFee))
	assert.Equal(t, "Me encuentro mal", second.CancellationReason)
	assert.True(t, second.CancelledAt.Equal(*first.CancelledAt))
	assert.Len(t, f.store.events, 1)
	assert.Len(t, f.notifier.sent, 2)
	assert.Equal(t, 1, f.metrics.cancelled)
}

func TestCancellationFee(t *testing.T) {
	total := decimal.RequireFromString("45.25")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, CancellationFee(total, now.Add(23*time.Hour+59*time.Minute), now).Equal(decimal.RequireFromString("22.625")))
	assert.True(t, CancellationFee(total, now.Add(24*time.Hour), now).IsZero())
	assert.True(t, CancellationFee(total, now.Add(-time.Hour), now).Equal(decimal.RequireFromString("22.625")))
}
