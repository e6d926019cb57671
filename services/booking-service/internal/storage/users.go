package storage

import (
	"context"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

func userByID(ctx context.Context, q querier, id string) (model.User, error) {
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) UserByID(ctx context.Context, id string) (model.User, error) {
	return userByID(ctx, s.pool, id)
}

func (t *Tx) UserByID(ctx context.Context, id string) (model.User, error) {
	return userByID(ctx, t.tx, id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// CreateUser inserts u. A taken email fails with a unique violation. New
// therapists get an active profile named after them.
func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	var created model.User
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		created, err = scanUser(tx.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, full_name, phone, role)
			VALUES (lower($1), $2, $3, $4, $5)
			RETURNING `+userColumns,
			u.Email, u.PasswordHash, u.FullName, u.Phone, u.Role))
		if err != nil {
			return err
		}
		if created.Role != "THERAPIST" {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO therapist_profiles (user_id, display_name) VALUES ($1, $2)
		`, created.ID, created.FullName)
		return err
	})
	return created, err
}

func (s *Store) ListUsers(ctx context.Context, role string) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE $1 = '' OR role = $1
		ORDER BY created_at DESC
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpsertTherapistProfile(ctx context.Context, p model.TherapistProfile) error {
	if p.Specialties == nil {
		p.Specialties = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO therapist_profiles (user_id, display_name, bio, specialties, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, bio = EXCLUDED.bio,
			specialties = EXCLUDED.specialties, active = EXCLUDED.active
	`, p.UserID, p.DisplayName, p.Bio, p.Specialties, p.Active)
	return err
}

// ListTherapists returns active therapist profiles of THERAPIST accounts.
func (s *Store) ListTherapists(ctx context.Context) ([]model.TherapistProfile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.user_id::text, p.display_name, p.bio, p.specialties, p.active
		FROM therapist_profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.active AND u.role = 'THERAPIST'
		ORDER BY p.display_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TherapistProfile{}
	for rows.Next() {
		var p model.TherapistProfile
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Bio, &p.Specialties, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateUserRole changes the role of a user; promoting to THERAPIST creates
// the profile when missing.
func (s *Store) UpdateUserRole(ctx context.Context, id, role string) (model.User, error) {
	var updated model.User
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		updated, err = scanUser(tx.QueryRow(ctx, `
			UPDATE users SET role = $2 WHERE id = $1
			RETURNING `+userColumns, id, role))
		if err != nil || role != "THERAPIST" {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO therapist_profiles (user_id, display_name) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
		`, updated.ID, updated.FullName)
		return err
	})
	return updated, err
}
