package handlers

import (
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// money renders at least two decimals and never rounds away precision.
func money(d decimal.Decimal) string {
	if d.Exponent() >= -2 {
		return d.StringFixed(2)
	}
	return d.String()
}

type appointmentView struct {
	ID                 string     `json:"id"`
	ClientID           string     `json:"clientId"`
	TherapistID        string     `json:"therapistId"`
	TherapyID          string     `json:"serviceId"`
	ScheduledAt        time.Time  `json:"scheduledAt"`
	Date               string     `json:"date"`
	Time               string     `json:"time"`
	DurationMinutes    int        `json:"durationMinutes"`
	Status             string     `json:"status"`
	TotalAmount        string     `json:"totalAmount"`
	PaymentStatus      string     `json:"paymentStatus"`
	CancellationFee    string     `json:"cancellationFee"`
	CancellationReason string     `json:"cancellationReason,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	ConfirmedAt        *time.Time `json:"confirmedAt,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`

	ClientName    string `json:"clientName,omitempty"`
	ClientEmail   string `json:"clientEmail,omitempty"`
	TherapistName string `json:"therapistName,omitempty"`
	TherapyName   string `json:"serviceName,omitempty"`
}

func toAppointmentView(a model.Appointment, loc *time.Location) appointmentView {
	local := a.ScheduledAt.In(loc)
	return appointmentView{
		ID:                 a.ID,
		ClientID:           a.ClientID,
		TherapistID:        a.TherapistID,
		TherapyID:          a.TherapyID,
		ScheduledAt:        a.ScheduledAt,
		Date:               local.Format(time.DateOnly),
		Time:               local.Format("15:04"),
		DurationMinutes:    a.DurationMinutes,
		Status:             string(a.Status),
		TotalAmount:        money(a.TotalAmount),
		PaymentStatus:      string(a.PaymentStatus),
		CancellationFee:    money(a.CancellationFee),
		CancellationReason: a.CancellationReason,
		Notes:              a.Notes,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		ConfirmedAt:        a.ConfirmedAt,
		CancelledAt:        a.CancelledAt,
	}
}

func toDetailViews(list []model.AppointmentDetail, loc *time.Location) []appointmentView {
	out := make([]appointmentView, 0, len(list))
	for _, d := range list {
		v := toAppointmentView(d.Appointment, loc)
		v.ClientName = d.ClientName
		v.ClientEmail = d.ClientEmail
		v.TherapistName = d.TherapistName
		v.TherapyName = d.TherapyName
		out = append(out, v)
	}
	return out
}

type ruleView struct {
	ID           string `json:"id"`
	TherapistID  string `json:"therapistId"`
	DayOfWeek    int    `json:"dayOfWeek"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	IsActive     bool   `json:"isActive"`
	SpecificDate string `json:"specificDate,omitempty"`
}

func toRuleViews(rules []model.AvailabilityRule) []ruleView {
	out := make([]ruleView, 0, len(rules))
	for _, r := range rules {
		v := ruleView{
			ID:          r.ID,
			TherapistID: r.TherapistID,
			DayOfWeek:   int(r.DayOfWeek),
			StartTime:   availability.FormatClock(r.StartMinute),
			EndTime:     availability.FormatClock(r.EndMinute),
			IsActive:    r.Active,
		}
		if r.SpecificDate != nil {
			v.SpecificDate = r.SpecificDate.Format(time.DateOnly)
		}
		out = append(out, v)
	}
	return out
}

type therapyView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"durationMinutes"`
	Price           string `json:"price"`
	ImageURL        string `json:"imageUrl,omitempty"`
	IsActive        bool   `json:"isActive"`
}

func toTherapyView(t model.Therapy) therapyView {
	return therapyView{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		DurationMinutes: t.DurationMinutes,
		Price:           money(t.Price),
		ImageURL:        t.ImageURL,
		IsActive:        t.Active,
	}
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserView(u model.User) userView {
	return userView{ID: u.ID, Email: u.Email, FullName: u.FullName, Phone: u.Phone, Role: u.Role, CreatedAt: u.CreatedAt}
}

type therapistView struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Bio         string   `json:"bio,omitempty"`
	Specialties []string `json:"specialties"`
}

type testimonialView struct {
	ID         string    `json:"id"`
	AuthorName string    `json:"authorName"`
	TherapyID  string    `json:"serviceId,omitempty"`
	Rating     int       `json:"rating"`
	Content    string    `json:"content"`
	Approved   bool      `json:"approved"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toTestimonialView(t model.Testimonial) testimonialView {
	return testimonialView{
		ID:         t.ID,
		AuthorName: t.AuthorName,
		TherapyID:  t.TherapyID,
		Rating:     t.Rating,
		Content:    t.Content,
		Approved:   t.Approved,
		CreatedAt:  t.CreatedAt,
	}
}
