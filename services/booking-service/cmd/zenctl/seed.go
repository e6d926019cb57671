package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Catalog is the seed file layout:
//
//	therapies:
//	  - name: Reiki
//	    duration_minutes: 60
//	    price: "45.00"
//	users:
//	  - email: marta@clinicazen.es
//	    full_name: Marta Ruiz
//	    role: THERAPIST
//	    password: cambiame123
//	    availability:
//	      - {day: 1, start: "09:00", end: "13:00"}
type Catalog struct {
	Therapies []TherapySeed `yaml:"therapies"`
	Users     []UserSeed    `yaml:"users"`
}

type TherapySeed struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Price           string `yaml:"price"`
	ImageURL        string `yaml:"image_url"`
	Inactive        bool   `yaml:"inactive"`

	price decimal.Decimal
}

type UserSeed struct {
	Email        string       `yaml:"email"`
	FullName     string       `yaml:"full_name"`
	Phone        string       `yaml:"phone"`
	Role         string       `yaml:"role"`
	Password     string       `yaml:"password"`
	Bio          string       `yaml:"bio"`
	Specialties  []string     `yaml:"specialties"`
	Availability []WindowSeed `yaml:"availability"`
}

type WindowSeed struct {
	Day   int    `yaml:"day"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// LoadCatalog decodes and validates a catalog. Unknown keys are rejected.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}

	for i := range c.Therapies {
		t := &c.Therapies[i]
		if strings.TrimSpace(t.Name) == "" {
			return Catalog{}, fmt.Errorf("therapies[%d]: name is required", i)
		}
		if t.DurationMinutes <= 0 {
			return Catalog{}, fmt.Errorf("therapy %q: duration_minutes must be positive", t.Name)
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil || price.IsNegative() {
			return Catalog{}, fmt.Errorf("therapy %q: price must be a non-negative amount", t.Name)
		}
		t.price = price.Round(2)
	}

	for i, u := range c.Users {
		if !strings.Contains(u.Email, "@") {
			return Catalog{}, fmt.Errorf("users[%d]: invalid email %q", i, u.Email)
		}
		if !auth.Role(u.Role).Valid() {
			return Catalog{}, fmt.Errorf("user %s: unknown role %q", u.Email, u.Role)
		}
		if len(u.Password) < 8 {
			return Catalog{}, fmt.Errorf("user %s: password must have at least 8 characters", u.Email)
		}
		if len(u.Availability) > 0 && auth.Role(u.Role) != auth.RoleTherapist {
			return Catalog{}, fmt.Errorf("user %s: only therapists have availability", u.Email)
		}
		if _, err := u.rules(""); err != nil {
			return Catalog{}, fmt.Errorf("user %s: %w", u.Email, err)
		}
	}
	return c, nil
}

func (t TherapySeed) model() model.Therapy {
	return model.Therapy{
		Name:            strings.TrimSpace(t.Name),
		Description:     t.Description,
		DurationMinutes: t.DurationMinutes,
		Price:           t.price,
		ImageURL:        t.ImageURL,
		Active:          !t.Inactive,
	}
}

func (u UserSeed) rules(therapistID string) ([]model.AvailabilityRule, error) {
	out := make([]model.AvailabilityRule, 0, len(u.Availability))
	for _, w := range u.Availability {
		if w.Day < 0 || w.Day > 6 {
			return nil, fmt.Errorf("availability day %d must be between 0 (Sunday) and 6", w.Day)
		}
		start, err := availability.ParseClock(w.Start)
		if err != nil {
			return nil, err
		}
		end, err := availability.ParseClock(w.End)
		if err != nil {
			return nil, err
		}
		rule := model.AvailabilityRule{
			TherapistID: therapistID,
			DayOfWeek:   time.Weekday(w.Day),
			StartMinute: start,
			EndMinute:   end,
			Active:      true,
		}
		if err := availability.Validate(rule); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

type seedStore interface {
	ListTherapies(ctx context.Context, includeInactive bool) ([]model.Therapy, error)
	CreateTherapy(ctx context.Context, t model.Therapy) (model.Therapy, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	UpsertTherapistProfile(ctx context.Context, p model.TherapistProfile) error
	ReplaceWeekly(ctx context.Context, therapistID string, desired []model.AvailabilityRule) (availability.Plan, error)
}

type SeedResult struct {
	TherapiesCreated, TherapiesSkipped int
	UsersCreated, UsersSkipped         int
}

// Seed creates what the catalog lists and leaves existing therapies (by
// name) and users (by email) untouched, so it can be rerun.
func Seed(ctx context.Context, store seedStore, c Catalog) (SeedResult, error) {
	var res SeedResult

	existing, err := store.ListTherapies(ctx, true)
	if err != nil {
		return res, fmt.Errorf("list therapies: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, t := range existing {
		names[strings.ToLower(t.Name)] = true
	}
	for _, t := range c.Therapies {
		m := t.model()
		if names[strings.ToLower(m.Name)] {
			res.TherapiesSkipped++
			continue
		}
		if _, err := store.CreateTherapy(ctx, m); err != nil {
			return res, fmt.Errorf("create therapy %q: %w", m.Name, err)
		}
		names[strings.ToLower(m.Name)] = true
		res.TherapiesCreated++
	}

	for _, u := range c.Users {
		_, err := store.UserByEmail(ctx, u.Email)
		if err == nil {
			res.UsersSkipped++
			continue
		}
		if !db.IsNotFound(err) {
			return res, fmt.Errorf("look up %s: %w", u.Email, err)
		}
		if err := seedUser(ctx, store, u); err != nil {
			return res, err
		}
		res.UsersCreated++
	}
	return res, nil
}

func seedUser(ctx context.Context, store seedStore, u UserSeed) error {
	hash, err := auth.HashPassword(u.Password)
	if err != nil {
		return err
	}
	created, err := store.CreateUser(ctx, model.User{
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash: hash,
		FullName:     u.FullName,
		Phone:        u.Phone,
		Role:         u.Role,
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, err)
	}
	if auth.Role(u.Role) != auth.RoleTherapist {
		return nil
	}

	if err := store.UpsertTherapistProfile(ctx, model.TherapistProfile{
		UserID:      created.ID,
		DisplayName: u.FullName,
		Bio:         u.Bio,
		Specialties: u.Specialties,
		Active:      true,
	}); err != nil {
		return fmt.Errorf("profile for %s: %w", u.Email, err)
	}
	rules, err := u.rules(created.ID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	if _, err := store.ReplaceWeekly(ctx, created.ID, rules); err != nil {
		return fmt.Errorf("availability for %s: %w", u.Email, err)
	}
	return nil
}
