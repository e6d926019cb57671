package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func rulesForDate(ctx context.Context, q querier, therapistID string, date time.Time) ([]model.AvailabilityRule, error) {
	rows, err := q.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM therapist_availability
		WHERE therapist_id = $1
			AND active
			AND ((specific_date IS NULL AND day_of_week = $2) OR specific_date = $3::date)
		ORDER BY start_minute
	`, therapistID, int(date.Weekday()), date.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]model.AvailabilityRule, error) {
	defer rows.Close()
	out := []model.AvailabilityRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RulesForDate returns the active weekly rules for date's weekday and the
// active rules pinned to date. date is a calendar day in the clinic zone.
func (s *Store) RulesForDate(ctx context.Context, therapistID string, date time.Time) ([]model.AvailabilityRule, error) {
	return rulesForDate(ctx, s.pool, therapistID, date)
}

func (t *Tx) RulesForDate(ctx context.Context, therapistID string, date time.Time) ([]model.AvailabilityRule, error) {
	return rulesForDate(ctx, t.tx, therapistID, date)
}

// ListRules returns every weekly rule of the therapist, or when date is set
// the weekly rules for that weekday plus the rules pinned to date.
// Inactive rows are included.
func (s *Store) ListRules(ctx context.Context, therapistID string, date *time.Time) ([]model.AvailabilityRule, error) {
	if date == nil {
		rows, err := s.pool.Query(ctx, `
			SELECT `+ruleColumns+`
			FROM therapist_availability
			WHERE therapist_id = $1 AND specific_date IS NULL
			ORDER BY day_of_week, start_minute
		`, therapistID)
		if err != nil {
			return nil, err
		}
		return collectRules(rows)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM therapist_availability
		WHERE therapist_id = $1
			AND ((specific_date IS NULL AND day_of_week = $2) OR specific_date = $3::date)
		ORDER BY specific_date NULLS FIRST, start_minute
	`, therapistID, int(date.Weekday()), date.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	return collectRules(rows)
}

// ReplaceWeekly makes desired the therapist's full set of weekly rules. The
// current rows are locked and only the differences are written.
func (s *Store) ReplaceWeekly(ctx context.Context, therapistID string, desired []model.AvailabilityRule) (availability.Plan, error) {
	var plan availability.Plan
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+ruleColumns+`
			FROM therapist_availability
			WHERE therapist_id = $1 AND specific_date IS NULL
			ORDER BY created_at
			FOR UPDATE
		`, therapistID)
		if err != nil {
			return err
		}
		current, err := collectRules(rows)
		if err != nil {
			return err
		}

		plan = availability.Diff(current, desired)
		if len(plan.Delete) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM therapist_availability WHERE id = ANY($1::uuid[])`, plan.Delete); err != nil {
				return fmt.Errorf("delete rules: %w", err)
			}
		}
		for _, r := range plan.Update {
			if _, err := tx.Exec(ctx, `
				UPDATE therapist_availability SET active = $2, updated_at = now() WHERE id = $1
			`, r.ID, r.Active); err != nil {
				return fmt.Errorf("update rule: %w", err)
			}
		}
		batch := &pgx.Batch{}
		for _, r := range plan.Insert {
			batch.Queue(`
				INSERT INTO therapist_availability (therapist_id, day_of_week, start_minute, end_minute, active)
				VALUES ($1, $2, $3, $4, $5)
			`, therapistID, int(r.DayOfWeek), r.StartMinute, r.EndMinute, r.Active)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert rules: %w", err)
			}
		}
		return nil
	})
	return plan, err
}

// UpsertDateRule stores a rule pinned to one date, keyed by
// (therapist, date, start).
func (s *Store) UpsertDateRule(ctx context.Context, r model.AvailabilityRule) (model.AvailabilityRule, error) {
	if r.SpecificDate == nil {
		return model.AvailabilityRule{}, fmt.Errorf("date rule without date")
	}
	return scanRule(s.pool.QueryRow(ctx, `
		INSERT INTO therapist_availability (therapist_id, day_of_week, start_minute, end_minute, active, specific_date)
		VALUES ($1, $2, $3, $4, $5, $6::date)
		ON CONFLICT (therapist_id, specific_date, start_minute) WHERE specific_date IS NOT NULL
		DO UPDATE SET end_minute = EXCLUDED.end_minute, active = EXCLUDED.active, updated_at = now()
		RETURNING `+ruleColumns,
		r.TherapistID, int(r.SpecificDate.Weekday()), r.StartMinute, r.EndMinute, r.Active, r.SpecificDate.Format(time.DateOnly)))
}

// RuleRef identifies one rule to delete: by date and start for date rules,
// by weekday and start for weekly ones.
type RuleRef struct {
	TherapistID string
	Date        *time.Time
	DayOfWeek   time.Weekday
	StartMinute int
}

func (s *Store) DeleteRule(ctx context.Context, ref RuleRef) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if ref.Date != nil {
		tag, err = s.pool.Exec(ctx, `
			DELETE FROM therapist_availability
			WHERE therapist_id = $1 AND specific_date = $2::date AND start_minute = $3
		`, ref.TherapistID, ref.Date.Format(time.DateOnly), ref.StartMinute)
	} else {
		tag, err = s.pool.Exec(ctx, `
			DELETE FROM therapist_availability
			WHERE therapist_id = $1 AND specific_date IS NULL AND day_of_week = $2 AND start_minute = $3
		`, ref.TherapistID, int(ref.DayOfWeek), ref.StartMinute)
	}
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
