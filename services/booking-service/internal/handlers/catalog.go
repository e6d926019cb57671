package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/clinicazen/platform/services/booking-service/internal/media"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/clinicazen/platform/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
)

const therapyNotFound = "Terapia no encontrada."

func (a *API) ListTherapies(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	includeInactive := p.IsAdmin() && r.URL.Query().Get("all") == "true"
	list, err := a.store.ListTherapies(r.Context(), includeInactive)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]therapyView, 0, len(list))
	for _, t := range list {
		out = append(out, toTherapyView(t))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type therapyRequest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name" validate:"required,max=120"`
	Description     string          `json:"description" validate:"max=4000"`
	DurationMinutes int             `json:"durationMinutes" validate:"required,gt=0,lte=480"`
	Price           decimal.Decimal `json:"price"`
	ImageURL        string          `json:"imageUrl" validate:"omitempty,url"`
	IsActive        *bool           `json:"isActive"`
}

func (req therapyRequest) toModel() (model.Therapy, error) {
	if req.Price.IsNegative() {
		return model.Therapy{}, apperr.Validation("price debe ser mayor o igual que 0", map[string]string{"price": "debe ser mayor o igual que 0"})
	}
	return model.Therapy{
		ID:              req.ID,
		Name:            strings.TrimSpace(req.Name),
		Description:     strings.TrimSpace(req.Description),
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price.Round(2),
		ImageURL:        req.ImageURL,
		Active:          active(req.IsActive),
	}, nil
}

func (a *API) CreateTherapy(w http.ResponseWriter, r *http.Request) {
	var req therapyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := req.toModel()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	created, err := a.store.CreateTherapy(r.Context(), t)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toTherapyView(created))
}

func (a *API) UpdateTherapy(w http.ResponseWriter, r *http.Request) {
	var req therapyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if _, err := requireUUID("id", req.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := req.toModel()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	updated, err := a.store.UpdateTherapy(r.Context(), t)
	if err != nil {
		a.fail(w, r, notFound(err, therapyNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTherapyView(updated))
}

func (a *API) DeleteTherapy(w http.ResponseWriter, r *http.Request) {
	id, err := requireUUID("id", r.URL.Query().Get("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	err = a.store.DeleteTherapy(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case db.IsForeignKeyViolation(err):
		a.fail(w, r, apperr.Conflict("La terapia tiene citas asociadas. Desactívala en lugar de eliminarla.").Wrap(err))
	default:
		a.fail(w, r, notFound(err, therapyNotFound))
	}
}

func (a *API) UploadTherapyImage(w http.ResponseWriter, r *http.Request) {
	if a.images == nil {
		a.fail(w, r, apperr.Unavailable("La subida de imágenes no está configurada."))
		return
	}
	id, err := requireUUID("id", r.URL.Query().Get("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if _, err := a.store.TherapyByID(r.Context(), id); err != nil {
		a.fail(w, r, notFound(err, therapyNotFound))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, apperr.Validation("Adjunta la imagen en el campo file.", map[string]string{"file": "es obligatorio"}).Wrap(err))
		return
	}
	defer file.Close()

	url, err := a.images.Upload(r.Context(), id, header.Header.Get("Content-Type"), file, header.Size)
	if errors.Is(err, media.ErrUnsupportedType) {
		a.fail(w, r, apperr.Validation("La imagen debe ser JPEG, PNG o WebP.", map[string]string{"file": "no es válido"}).Wrap(err))
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := a.store.SetTherapyImage(r.Context(), id, url)
	if err != nil {
		a.fail(w, r, notFound(err, therapyNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTherapyView(t))
}

func (a *API) ListTherapists(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListTherapists(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]therapistView, 0, len(list))
	for _, p := range list {
		specialties := p.Specialties
		if specialties == nil {
			specialties = []string{}
		}
		out = append(out, therapistView{ID: p.UserID, DisplayName: p.DisplayName, Bio: p.Bio, Specialties: specialties})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (a *API) ListTestimonials(w http.ResponseWriter, r *http.Request) {
	filter := storage.TestimonialFilter(r.URL.Query().Get("status"))
	switch filter {
	case "", storage.TestimonialsApproved:
		filter = storage.TestimonialsApproved
	case storage.TestimonialsPending, storage.TestimonialsAll:
		if p, ok := auth.PrincipalFrom(r.Context()); !ok || !p.IsAdmin() {
			a.fail(w, r, apperr.Forbidden(""))
			return
		}
	default:
		a.fail(w, r, apperr.Validation("status no es válido", map[string]string{"status": "debe ser uno de: approved, pending, all"}))
		return
	}
	list, err := a.store.ListTestimonials(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]testimonialView, 0, len(list))
	for _, t := range list {
		out = append(out, toTestimonialView(t))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type testimonialRequest struct {
	ServiceID string `json:"serviceId" validate:"omitempty,uuid"`
	Rating    int    `json:"rating" validate:"required,gte=1,lte=5"`
	Content   string `json:"content" validate:"required,min=10,max=2000"`
}

func (a *API) CreateTestimonial(w http.ResponseWriter, r *http.Request) {
	var req testimonialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p := caller(r)
	t, err := a.store.CreateTestimonial(r.Context(), model.Testimonial{
		AuthorID:   p.UserID,
		AuthorName: p.Name,
		TherapyID:  req.ServiceID,
		Rating:     req.Rating,
		Content:    strings.TrimSpace(req.Content),
	})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			a.fail(w, r, apperr.NotFound(therapyNotFound).Wrap(err))
			return
		}
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toTestimonialView(t))
}

type moderateRequest struct {
	ID     string `json:"id" validate:"required,uuid"`
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

func (a *API) ModerateTestimonial(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.store.ModerateTestimonial(r.Context(), req.ID, req.Action == "approve"); err != nil {
		a.fail(w, r, notFound(err, "Testimonio no encontrado."))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
