package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/clinicazen/platform/services/booking-service/internal/appointments"
	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/clinicazen/platform/services/booking-service/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Store is the read and management side of storage used by the API.
type Store interface {
	ListRules(ctx context.Context, therapistID string, date *time.Time) ([]model.AvailabilityRule, error)
	ReplaceWeekly(ctx context.Context, therapistID string, desired []model.AvailabilityRule) (availability.Plan, error)
	UpsertDateRule(ctx context.Context, r model.AvailabilityRule) (model.AvailabilityRule, error)
	DeleteRule(ctx context.Context, ref storage.RuleRef) (int64, error)

	ListForClient(ctx context.Context, clientID string) ([]model.AppointmentDetail, error)
	ListForTherapist(ctx context.Context, therapistID string) ([]model.AppointmentDetail, error)
	ListAll(ctx context.Context, status model.AppointmentStatus, limit int) ([]model.AppointmentDetail, error)

	ListTherapies(ctx context.Context, includeInactive bool) ([]model.Therapy, error)
	TherapyByID(ctx context.Context, id string) (model.Therapy, error)
	CreateTherapy(ctx context.Context, t model.Therapy) (model.Therapy, error)
	UpdateTherapy(ctx context.Context, t model.Therapy) (model.Therapy, error)
	DeleteTherapy(ctx context.Context, id string) error
	SetTherapyImage(ctx context.Context, id, url string) (model.Therapy, error)

	ListTherapists(ctx context.Context) ([]model.TherapistProfile, error)
	ListTestimonials(ctx context.Context, filter storage.TestimonialFilter) ([]model.Testimonial, error)
	CreateTestimonial(ctx context.Context, t model.Testimonial) (model.Testimonial, error)
	ModerateTestimonial(ctx context.Context, id string, approve bool) error

	UserByID(ctx context.Context, id string) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	ListUsers(ctx context.Context, role string) ([]model.User, error)
	UpdateUserRole(ctx context.Context, id, role string) (model.User, error)

	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) (bool, error)
}

type Booking interface {
	Book(ctx context.Context, req appointments.BookRequest) (model.Appointment, error)
	Confirm(ctx context.Context, caller auth.Principal, id string) (model.Appointment, error)
	Cancel(ctx context.Context, caller auth.Principal, id, reason string) (model.Appointment, error)
}

type SlotResolver interface {
	Slots(ctx context.Context, therapistID string, date time.Time) ([]model.TimeSlot, error)
}

type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

type ImageUploader interface {
	Upload(ctx context.Context, therapyID, contentType string, r io.Reader, size int64) (string, error)
}

type Deps struct {
	Store    Store
	Booking  Booking
	Slots    SlotResolver
	Tokens   TokenIssuer
	Images   ImageUploader
	Stream   http.Handler
	Logger   *slog.Logger
	Location *time.Location
	// CookieSecure marks the session cookie Secure; disable only for local HTTP.
	CookieSecure bool
}

type API struct {
	store        Store
	booking      Booking
	slots        SlotResolver
	tokens       TokenIssuer
	images       ImageUploader
	stream       http.Handler
	logger       *slog.Logger
	loc          *time.Location
	cookieSecure bool
}

func New(d Deps) *API {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &API{
		store:        d.Store,
		booking:      d.Booking,
		slots:        d.Slots,
		tokens:       d.Tokens,
		images:       d.Images,
		stream:       d.Stream,
		logger:       d.Logger,
		loc:          loc,
		cookieSecure: d.CookieSecure,
	}
}

const (
	jsonBodyLimit  = 1 << 20
	imageBodyLimit = 5 << 20
)

// Routes mounts the /api surface. Sessions must already be resolved by
// auth.Authenticate.
func (a *API) Routes(r chi.Router) {
	authed := auth.RequireAuth(a.logger)
	admin := auth.RequireRole(a.logger, auth.RoleAdmin)
	staff := auth.RequireRole(a.logger, auth.RoleTherapist, auth.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httpx.WithBodyLimit(jsonBodyLimit))

			r.Post("/auth/register", a.Register)
			r.Post("/auth/login", a.Login)
			r.Post("/auth/logout", a.Logout)
			r.With(authed).Get("/auth/me", a.Me)

			r.Get("/availability", a.ListAvailability)
			r.With(staff).Post("/availability", a.SaveAvailability)
			r.With(staff).Delete("/availability", a.DeleteAvailability)
			r.Get("/availability/slots", a.Slots)

			r.With(authed).Get("/appointments", a.ListAppointments)
			r.With(authed).Post("/appointments", a.CreateAppointment)
			r.With(authed).Post("/appointments/book", a.BookAppointment)
			r.With(staff).Post("/appointments/confirm", a.ConfirmAppointment)
			r.With(authed).Post("/appointments/cancel", a.CancelAppointment)
			r.With(admin).Get("/appointments/all", a.ListAllAppointments)

			r.Get("/therapies", a.ListTherapies)
			r.With(admin).Post("/therapies", a.CreateTherapy)
			r.With(admin).Put("/therapies", a.UpdateTherapy)
			r.With(admin).Delete("/therapies", a.DeleteTherapy)

			r.Get("/therapists", a.ListTherapists)

			r.Get("/testimonials", a.ListTestimonials)
			r.With(authed).Post("/testimonials", a.CreateTestimonial)
			r.With(admin).Post("/testimonials/moderate", a.ModerateTestimonial)

			r.With(admin).Get("/users", a.ListUsers)
			r.With(admin).Post("/users", a.UpdateUserRole)
			r.With(admin).Post("/users/create", a.CreateUser)

			r.With(authed).Get("/notifications", a.ListNotifications)
			r.With(authed).Post("/notifications/read", a.MarkNotificationsRead)
			r.With(authed).Delete("/notifications", a.DeleteNotification)
		})

		r.With(admin, httpx.WithBodyLimit(imageBodyLimit)).Post("/therapies/image", a.UploadTherapyImage)
		if a.stream != nil {
			r.With(authed).Get("/notifications/ws", a.stream.ServeHTTP)
		}
	})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(r.Context(), w, a.logger, err)
}

// caller is only used behind RequireAuth, so the principal is present.
func caller(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func requireUUID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperr.Validation(field+" es obligatorio", map[string]string{field: "es obligatorio"})
	}
	if _, err := uuid.Parse(value); err != nil {
		return "", apperr.Validation(field+" debe ser un identificador válido", map[string]string{field: "debe ser un identificador válido"})
	}
	return value, nil
}

// notFound maps a missing row to a 404 with msg and passes other errors on.
func notFound(err error, msg string) error {
	if db.IsNotFound(err) {
		return apperr.NotFound(msg).Wrap(err)
	}
	return err
}
