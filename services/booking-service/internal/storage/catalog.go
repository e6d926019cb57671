package storage

import (
	"context"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

func therapyByID(ctx context.Context, q querier, id string) (model.Therapy, error) {
	return scanTherapy(q.QueryRow(ctx, `SELECT `+therapyColumns+` FROM therapies WHERE id = $1`, id))
}

func (s *Store) TherapyByID(ctx context.Context, id string) (model.Therapy, error) {
	return therapyByID(ctx, s.pool, id)
}

func (t *Tx) TherapyByID(ctx context.Context, id string) (model.Therapy, error) {
	return therapyByID(ctx, t.tx, id)
}

func (s *Store) ListTherapies(ctx context.Context, includeInactive bool) ([]model.Therapy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+therapyColumns+`
		FROM therapies
		WHERE active OR $1
		ORDER BY name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Therapy{}
	for rows.Next() {
		t, err := scanTherapy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTherapy(ctx context.Context, t model.Therapy) (model.Therapy, error) {
	return scanTherapy(s.pool.QueryRow(ctx, `
		INSERT INTO therapies (name, description, duration_minutes, price, image_url, active)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING `+therapyColumns,
		t.Name, t.Description, t.DurationMinutes, t.Price.String(), t.ImageURL, t.Active))
}

func (s *Store) UpdateTherapy(ctx context.Context, t model.Therapy) (model.Therapy, error) {
	return scanTherapy(s.pool.QueryRow(ctx, `
		UPDATE therapies
		SET name = $2, description = $3, duration_minutes = $4, price = $5::numeric,
			image_url = $6, active = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+therapyColumns,
		t.ID, t.Name, t.Description, t.DurationMinutes, t.Price.String(), t.ImageURL, t.Active))
}

func (s *Store) SetTherapyImage(ctx context.Context, id, url string) (model.Therapy, error) {
	return scanTherapy(s.pool.QueryRow(ctx, `
		UPDATE therapies SET image_url = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+therapyColumns, id, url))
}

// DeleteTherapy removes a therapy. Therapies referenced by appointments fail
// with a foreign key violation.
func (s *Store) DeleteTherapy(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM therapies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// TestimonialFilter selects testimonials by moderation state.
type TestimonialFilter string

const (
	TestimonialsApproved TestimonialFilter = "approved"
	TestimonialsPending  TestimonialFilter = "pending"
	TestimonialsAll      TestimonialFilter = "all"
)

func (s *Store) ListTestimonials(ctx context.Context, filter TestimonialFilter) ([]model.Testimonial, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id::text, t.author_id::text, u.full_name, COALESCE(t.therapy_id::text, ''),
			t.rating, t.content, t.approved, t.created_at
		FROM testimonials t
		JOIN users u ON u.id = t.author_id
		WHERE $1 = 'all' OR t.approved = ($1 = 'approved')
		ORDER BY t.created_at DESC
	`, string(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Testimonial{}
	for rows.Next() {
		var t model.Testimonial
		if err := rows.Scan(&t.ID, &t.AuthorID, &t.AuthorName, &t.TherapyID, &t.Rating, &t.Content, &t.Approved, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTestimonial(ctx context.Context, t model.Testimonial) (model.Testimonial, error) {
	var therapyID any
	if t.TherapyID != "" {
		therapyID = t.TherapyID
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO testimonials (author_id, therapy_id, rating, content)
		VALUES ($1, $2::uuid, $3, $4)
		RETURNING id::text, approved, created_at
	`, t.AuthorID, therapyID, t.Rating, t.Content).Scan(&t.ID, &t.Approved, &t.CreatedAt)
	return t, err
}

// ModerateTestimonial approves a testimonial or, when rejected, deletes it.
func (s *Store) ModerateTestimonial(ctx context.Context, id string, approve bool) error {
	query := `UPDATE testimonials SET approved = true WHERE id = $1`
	if !approve {
		query = `DELETE FROM testimonials WHERE id = $1`
	}
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
