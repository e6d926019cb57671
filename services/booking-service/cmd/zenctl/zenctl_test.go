package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

const catalogYAML = `
therapies:
  - name: Reiki
    description: Equilibrio energético
    duration_minutes: 60
    price: "45.00"
  - name: Masaje ayurvédico
    duration_minutes: 90
    price: "70"
users:
  - email: Marta@ClinicaZen.es
    full_name: Marta Ruiz
    role: THERAPIST
    password: cambiame123
    specialties: [reiki]
    availability:
      - {day: 1, start: "09:00", end: "13:00"}
      - {day: 3, start: "16:00", end: "20:00"}
  - email: admin@clinicazen.es
    full_name: Admin
    role: ADMIN
    password: cambiame123
`

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(strings.NewReader(catalogYAML))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(c.Therapies) != 2 || len(c.Users) != 2 {
		t.Fatalf("unexpected catalog %+v", c)
	}
	if got := c.Therapies[1].model().Price.StringFixed(2); got != "70.00" {
		t.Fatalf("price = %s", got)
	}
	rules, err := c.Users[0].rules("t-1")
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if len(rules) != 2 || rules[0].DayOfWeek != time.Monday || rules[1].StartMinute != 16*60 {
		t.Fatalf("unexpected rules %+v", rules)
	}
}

func TestLoadCatalogRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "therapies:\n  - name: Reiki\n    duration: 60\n",
		"negative price":   "therapies:\n  - {name: Reiki, duration_minutes: 60, price: \"-1\"}\n",
		"bad role":         "users:\n  - {email: a@b.es, role: OWNER, password: cambiame123}\n",
		"short password":   "users:\n  - {email: a@b.es, role: CLIENT, password: corta}\n",
		"client schedule":  "users:\n  - {email: a@b.es, role: CLIENT, password: cambiame123, availability: [{day: 1, start: \"09:00\", end: \"10:00\"}]}\n",
		"inverted window":  "users:\n  - {email: a@b.es, role: THERAPIST, password: cambiame123, availability: [{day: 1, start: \"11:00\", end: \"10:00\"}]}\n",
		"day out of range": "users:\n  - {email: a@b.es, role: THERAPIST, password: cambiame123, availability: [{day: 7, start: \"09:00\", end: \"10:00\"}]}\n",
	}
	for name, raw := range cases {
		if _, err := LoadCatalog(strings.NewReader(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

type memSeedStore struct {
	therapies []model.Therapy
	users     map[string]model.User
	profiles  []model.TherapistProfile
	weekly    map[string][]model.AvailabilityRule
}

func (m *memSeedStore) ListTherapies(context.Context, bool) ([]model.Therapy, error) {
	return m.therapies, nil
}

func (m *memSeedStore) CreateTherapy(_ context.Context, t model.Therapy) (model.Therapy, error) {
	m.therapies = append(m.therapies, t)
	return t, nil
}

func (m *memSeedStore) UserByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memSeedStore) CreateUser(_ context.Context, u model.User) (model.User, error) {
	u.ID = "id-" + u.Email
	m.users[u.Email] = u
	return u, nil
}

func (m *memSeedStore) UpsertTherapistProfile(_ context.Context, p model.TherapistProfile) error {
	m.profiles = append(m.profiles, p)
	return nil
}

func (m *memSeedStore) ReplaceWeekly(_ context.Context, therapistID string, desired []model.AvailabilityRule) (availability.Plan, error) {
	m.weekly[therapistID] = desired
	return availability.Plan{Insert: desired}, nil
}

func TestSeedIsRerunnable(t *testing.T) {
	c, err := LoadCatalog(strings.NewReader(catalogYAML))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	store := &memSeedStore{
		therapies: []model.Therapy{{Name: "reiki"}},
		users:     map[string]model.User{},
		weekly:    map[string][]model.AvailabilityRule{},
	}

	res, err := Seed(context.Background(), store, c)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.TherapiesCreated != 1 || res.TherapiesSkipped != 1 || res.UsersCreated != 2 {
		t.Fatalf("unexpected first run %+v", res)
	}
	marta, ok := store.users["marta@clinicazen.es"]
	if !ok {
		t.Fatal("email must be stored lower-cased")
	}
	if ok, _ := auth.CheckPassword(marta.PasswordHash, "cambiame123"); !ok {
		t.Fatal("password must be stored as a bcrypt hash")
	}
	if len(store.profiles) != 1 || len(store.weekly[marta.ID]) != 2 {
		t.Fatalf("therapist profile and availability expected, got %d profiles, %d rules", len(store.profiles), len(store.weekly[marta.ID]))
	}

	res, err = Seed(context.Background(), store, c)
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if res.TherapiesCreated != 0 || res.UsersCreated != 0 || res.UsersSkipped != 2 {
		t.Fatalf("second run must not create anything, got %+v", res)
	}
}

func TestIssueToken(t *testing.T) {
	p := auth.Principal{UserID: "9d4c1c8e-0000-4000-8000-000000000001", Role: auth.RoleAdmin}
	token, _, err := issueToken("s3cret", "booking-service", time.Hour, p)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	got, err := auth.NewTokens("s3cret", "booking-service", time.Hour).Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.UserID != p.UserID || got.Role != auth.RoleAdmin {
		t.Fatalf("unexpected principal %+v", got)
	}

	if _, _, err := issueToken("", "booking-service", time.Hour, p); err == nil {
		t.Fatal("expected error without secret")
	}
	p.Role = "ROOT"
	if _, _, err := issueToken("s3cret", "booking-service", time.Hour, p); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestTokenCommandPrintsToken(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--secret", "s3cret", "--user", "9d4c1c8e-0000-4000-8000-000000000001", "--role", "THERAPIST"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Count(strings.TrimSpace(out.String()), ".") != 2 {
		t.Fatalf("expected a JWT on stdout, got %q", out.String())
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "up"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected missing url error, got %v", err)
	}
}
